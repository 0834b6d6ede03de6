package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/adrianhesketh/deepresearch/pkg/deepresearch"
	"github.com/adrianhesketh/deepresearch/pkg/logging"
	"github.com/adrianhesketh/deepresearch/pkg/store"
)

// Service wires the stateless ResearchEngine to the store package for
// background (non-streaming) sessions, mirroring the teacher's
// Service/runWorker job pattern.
type Service struct {
	DB     *store.PostgresDB
	Engine *deepresearch.ResearchEngine
}

func NewService(db *store.PostgresDB, engine *deepresearch.ResearchEngine) *Service {
	return &Service{DB: db, Engine: engine}
}

// CreateSessionRequest is the POST /api/research body.
type CreateSessionRequest struct {
	Query          string `json:"query"`
	IsDeep         bool   `json:"isDeep"`
	Depth          int    `json:"depth"`
	Breadth        int    `json:"breadth"`
	ModelID        string `json:"modelId"`
	MaxConcurrency int    `json:"maxConcurrency"`
}

func (r CreateSessionRequest) toOptions(defaultModelID string, defaultConcurrency int) deepresearch.ResearchOptions {
	opts := deepresearch.ResearchOptions{
		IsDeep:         r.IsDeep,
		Depth:          r.Depth,
		Breadth:        r.Breadth,
		ModelID:        r.ModelID,
		MaxConcurrency: r.MaxConcurrency,
	}
	if opts.Depth == 0 {
		opts.Depth = 1
	}
	if opts.Breadth == 0 {
		opts.Breadth = 1
	}
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = defaultConcurrency
	}
	return opts
}

// CreateSession persists a pending session row and runs it to completion in
// a background goroutine, mirroring the teacher's CreateJob/runWorker split.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest, defaultModelID string, defaultConcurrency int) (*store.Session, error) {
	opts := req.toOptions(defaultModelID, defaultConcurrency)

	session, err := s.DB.CreateSession(ctx, req.Query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	go s.runBackground(session.ID, req.Query, opts)

	return session, nil
}

func (s *Service) ListSessions(ctx context.Context) ([]store.Session, error) {
	return s.DB.ListSessions(ctx)
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	return s.DB.GetSession(ctx, id)
}

func (s *Service) GetSessionEvents(ctx context.Context, id uuid.UUID) ([]store.EventRow, error) {
	return s.DB.GetSessionEvents(ctx, id)
}

func (s *Service) runBackground(sessionID uuid.UUID, query string, opts deepresearch.ResearchOptions) {
	ctx := context.Background()

	_ = s.DB.SetSessionStatus(ctx, sessionID, "running")

	seq := &logging.SeqCounter{}
	dbLogger := slog.New(logging.NewPostgresHandler(s.DB, sessionID, seq))

	engine := *s.Engine
	engine.Logger = dbLogger

	stream, err := engine.Run(ctx, query, opts)
	if err != nil {
		dbLogger.Error("failed to start research session", "error", err)
		_ = s.DB.SetSessionStatus(ctx, sessionID, "failed")
		return
	}

	var report string
	for event := range stream.Events() {
		if err := s.DB.AppendEvent(ctx, sessionID, seq.Next(), string(event.Type), event); err != nil {
			dbLogger.Error("failed to persist event", "error", err)
		}
		if event.Type == deepresearch.EventContent {
			report = event.Content
		}
		if event.Type == deepresearch.EventError {
			_ = s.DB.SetSessionStatus(ctx, sessionID, "failed")
			return
		}
	}

	if err := s.DB.CompleteSession(ctx, sessionID, report); err != nil {
		dbLogger.Error("failed to save final report", "error", err)
	}
}
