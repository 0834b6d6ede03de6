package deepresearch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// EventType tags the discriminated union of session events emitted over
// the EventStream, per spec §6.1.
type EventType string

const (
	EventStart         EventType = "start"
	EventProgress      EventType = "progress"
	EventSearchResults EventType = "search_results"
	EventSources       EventType = "sources"
	EventLearning      EventType = "learning"
	EventContent       EventType = "content"
	EventError         EventType = "error"
	EventComplete      EventType = "complete"
)

// StartOptions is the options echo carried by a start event.
type StartOptions struct {
	IsDeep  bool   `json:"isDeep"`
	Depth   int    `json:"depth"`
	Breadth int    `json:"breadth"`
	ModelID string `json:"modelId"`
}

// ProgressDetails is the optional breakdown carried by a progress event.
type ProgressDetails struct {
	Depth   DepthBreadthCounter `json:"depth"`
	Breadth DepthBreadthCounter `json:"breadth"`
	Queries QueryCounter        `json:"queries"`
}

// CompleteMetrics is the optional metrics block carried by a complete event.
type CompleteMetrics struct {
	TotalTimeSeconds float64 `json:"totalTimeSeconds"`
	ModelID          string  `json:"modelId"`
	TotalTokens      int     `json:"totalTokens,omitempty"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd,omitempty"`
}

// Event is the single wire shape for every EventRecord variant. Fields
// irrelevant to a given Type are left zero and omitted from the JSON
// encoding, matching the spec's "fields absent from a given event type are
// omitted" rule.
type Event struct {
	Type EventType `json:"type"`

	Query     string        `json:"query,omitempty"`
	Options   *StartOptions `json:"options,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`

	Progress float64          `json:"progress,omitempty"`
	Status   string           `json:"status,omitempty"`
	Details  *ProgressDetails `json:"details,omitempty"`

	Content string `json:"content,omitempty"`

	Sources []Source `json:"sources,omitempty"`

	Kind string `json:"kind,omitempty"`

	Metrics *CompleteMetrics `json:"metrics,omitempty"`
}

func newStartEvent(query string, opts ResearchOptions, now time.Time) Event {
	return Event{
		Type:  EventStart,
		Query: query,
		Options: &StartOptions{
			IsDeep:  opts.IsDeep,
			Depth:   opts.Depth,
			Breadth: opts.Breadth,
			ModelID: opts.ModelID,
		},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

func newProgressEvent(snap ProgressSnapshot) Event {
	return Event{
		Type:     EventProgress,
		Progress: snap.Progress,
		Status:   snap.Status,
		Details: &ProgressDetails{
			Depth:   snap.Depth,
			Breadth: snap.Breadth,
			Queries: snap.Queries,
		},
	}
}

func newSearchResultsEvent(content string) Event {
	return Event{Type: EventSearchResults, Content: content}
}

func newSourcesEvent(sources []Source) Event {
	return Event{Type: EventSources, Sources: sources}
}

func newLearningEvent(content string) Event {
	return Event{Type: EventLearning, Content: content}
}

func newContentEvent(content string) Event {
	return Event{Type: EventContent, Content: content}
}

func newErrorEvent(content string, kind Kind) Event {
	return Event{Type: EventError, Content: content, Kind: string(kind)}
}

func newCompleteEvent(metrics *CompleteMetrics) Event {
	return Event{Type: EventComplete, Metrics: metrics}
}

// EventStream is a bounded, newline-delimited-JSON event channel. The
// producer (ResearchEngine) writes into it; a consumer drains it as NDJSON.
// A full buffer blocks the producing worker — dropping events is a
// correctness violation per spec §5, since sources or learnings could be
// silently lost.
type EventStream struct {
	events chan Event
	done   chan struct{}
}

// NewEventStream builds a stream with the given bounded buffer size
// (design default 64, per spec §6.3's engine.eventBufferSize).
func NewEventStream(bufferSize int) *EventStream {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventStream{
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Emit blocks until the event is buffered or ctx is cancelled. It never
// drops an event silently.
func (s *EventStream) Emit(ctx context.Context, e Event) error {
	select {
	case <-s.done:
		return WrapError(KindCancelled, fmt.Errorf("event stream closed"))
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return WrapError(KindCancelled, ctx.Err())
	case <-s.done:
		return WrapError(KindCancelled, fmt.Errorf("event stream closed"))
	}
}

// Close signals no further events will be emitted, then closes the
// underlying channel so a ranging consumer terminates.
func (s *EventStream) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	close(s.events)
}

// Events exposes the receive-only channel for a consumer to range over.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// WriteNDJSON drains the stream, writing one JSON object per line to w,
// flushing after each write so a slow HTTP consumer sees events as they
// arrive rather than buffered until the session ends.
func WriteNDJSON(w io.Writer, stream *EventStream) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for event := range stream.Events() {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		if _, err := bw.Write([]byte("\n")); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		if flusher, ok := w.(interface{ Flush() }); ok {
			flusher.Flush()
		}
	}
	return nil
}
