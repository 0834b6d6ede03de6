package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the persisted projection of one research run.
type Session struct {
	ID        uuid.UUID       `json:"id"`
	Query     string          `json:"query"`
	Status    string          `json:"status"`
	Report    *string         `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Options   json.RawMessage `json:"options"`
}

// EventRow is one persisted, sequence-numbered event for a session.
type EventRow struct {
	ID        int             `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateSession inserts a new pending session row and returns it.
func (db *PostgresDB) CreateSession(ctx context.Context, query string, options interface{}) (*Session, error) {
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session options: %w", err)
	}

	sessionID := uuid.New()
	insertQuery := `
		INSERT INTO research_sessions (id, query, status, options)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, query, status, created_at, updated_at, options
	`
	s := &Session{}
	err = db.Pool.QueryRow(ctx, insertQuery, sessionID, query, optionsJSON).Scan(
		&s.ID, &s.Query, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.Options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetSession fetches one session by ID.
func (db *PostgresDB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, query, status, report, created_at, updated_at, options
		FROM research_sessions
		WHERE id = $1
	`
	s := &Session{}
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Query, &s.Status, &s.Report, &s.CreatedAt, &s.UpdatedAt, &s.Options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns the most recently created sessions.
func (db *PostgresDB) ListSessions(ctx context.Context) ([]Session, error) {
	query := `
		SELECT id, query, status, report, created_at, updated_at, options
		FROM research_sessions
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Query, &s.Status, &s.Report, &s.CreatedAt, &s.UpdatedAt, &s.Options); err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// SetSessionStatus updates a session's status.
func (db *PostgresDB) SetSessionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.Pool.Exec(ctx, "UPDATE research_sessions SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// CompleteSession marks a session completed and stores its final report.
func (db *PostgresDB) CompleteSession(ctx context.Context, id uuid.UUID, report string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_sessions SET status = 'completed', report = $2, updated_at = NOW() WHERE id = $1",
		id, report)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

// AppendEvent persists one sequence-numbered event row for a session.
func (db *PostgresDB) AppendEvent(ctx context.Context, sessionID uuid.UUID, seq int, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		"INSERT INTO research_events (session_id, seq, type, payload) VALUES ($1, $2, $3, $4)",
		sessionID, seq, eventType, payloadJSON)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetSessionEvents replays the persisted event log for a session in order.
func (db *PostgresDB) GetSessionEvents(ctx context.Context, sessionID uuid.UUID) ([]EventRow, error) {
	query := `
		SELECT id, session_id, seq, type, payload, created_at
		FROM research_events
		WHERE session_id = $1
		ORDER BY seq ASC
	`
	rows, err := db.Pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
