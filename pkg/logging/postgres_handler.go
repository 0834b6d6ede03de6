// Package logging adapts log/slog to the store package so a running
// research session's structured log output lands in research_events
// alongside the engine's own emitted events, keyed by session UUID.
package logging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/adrianhesketh/deepresearch/pkg/store"
)

// SeqCounter hands out a monotonically increasing sequence number, shared
// between a session's PostgresHandler (log rows, written from whichever
// engine goroutine logs) and its event-draining loop (event rows), so both
// row kinds interleave correctly on one sequence despite coming from
// concurrent writers.
type SeqCounter struct {
	mu  sync.Mutex
	val int
}

// Next returns the next sequence number, starting at 1.
func (c *SeqCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val++
	return c.val
}

// PostgresHandler is a slog.Handler that inserts each record as a "log"
// typed row in research_events, scoped to one session.
type PostgresHandler struct {
	DB        *store.PostgresDB
	SessionID uuid.UUID
	seq       *SeqCounter
}

// NewPostgresHandler builds a handler writing into sessionID's event log.
// seq is shared with the caller's event-draining loop so log rows
// interleave with engine event rows on one monotonic sequence number.
func NewPostgresHandler(db *store.PostgresDB, sessionID uuid.UUID, seq *SeqCounter) *PostgresHandler {
	return &PostgresHandler{DB: db, SessionID: sessionID, seq: seq}
}

func (h *PostgresHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *PostgresHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	payload := map[string]interface{}{
		"level":   r.Level.String(),
		"message": r.Message,
		"attrs":   attrs,
		"time":    r.Time,
	}

	seq := h.seq.Next()
	// Logging is best-effort: a persistence failure must never interrupt
	// the research session itself, so the error is swallowed here.
	_ = h.DB.AppendEvent(context.Background(), h.SessionID, seq, "log", payload)
	return nil
}

func (h *PostgresHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *PostgresHandler) WithGroup(name string) slog.Handler {
	return h
}
