// Package deepresearch implements an iterative, depth×breadth research
// engine: it expands a natural-language query into a tree of SERP queries,
// searches the web for each, extracts learnings and follow-up questions via
// an LLM, recurses up to a bounded depth, and synthesizes a final Markdown
// report grounded in the collected learnings and sources.
package deepresearch

import (
	"fmt"
	"time"
)

// ResearchOptions configures one research session. Built once per session
// from the caller's request and never mutated afterward.
type ResearchOptions struct {
	IsDeep         bool   `json:"isDeep"`
	Depth          int    `json:"depth"`
	Breadth        int    `json:"breadth"`
	ModelID        string `json:"modelId"`
	MaxConcurrency int    `json:"maxConcurrency"`
}

// Validate rejects out-of-range options before any work starts, per the
// invalid_input error kind.
func (o ResearchOptions) Validate(maxDepth, maxBreadth int) error {
	if o.Depth < 1 || o.Depth > maxDepth {
		return newError(KindInvalidInput, fmt.Errorf("depth must be in [1,%d], got %d", maxDepth, o.Depth))
	}
	if o.Breadth < 1 || o.Breadth > maxBreadth {
		return newError(KindInvalidInput, fmt.Errorf("breadth must be in [1,%d], got %d", maxBreadth, o.Breadth))
	}
	if o.MaxConcurrency < 1 {
		return newError(KindInvalidInput, fmt.Errorf("maxConcurrency must be >= 1, got %d", o.MaxConcurrency))
	}
	return nil
}

// SerpQuery is a single search-engine query planned by the QueryPlanner.
type SerpQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// SearchDoc is one result document returned by the SearchClient for a
// single query, in provider rank order.
type SearchDoc struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	MainText string `json:"mainText"`
	Rank     int    `json:"rank"`
}

// Source is a deduplicated, URL-keyed record derived from a SearchDoc at
// emission time.
type Source struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Domain    string  `json:"domain"`
	Favicon   string  `json:"favicon,omitempty"`
	Relevance float64 `json:"relevance"`
}

// Learning is a single information-dense sentence synthesized from search
// content. Learnings are append-only within a session and never mutated.
type Learning struct {
	Content string `json:"content"`
}

// DepthBreadthCounter reports a current/total pair, used for both the
// depth and breadth dimensions of ProgressSnapshot.
type DepthBreadthCounter struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// QueryCounter reports query progress, with an optional in-flight query.
type QueryCounter struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	CurrentQuery string `json:"currentQuery,omitempty"`
}

// ProgressSnapshot is an immutable copy of the session's progress at one
// point in time. Never a shared reference — every emitted progress event
// carries its own copy.
type ProgressSnapshot struct {
	Progress  float64             `json:"progress"`
	Status    string              `json:"status"`
	Depth     DepthBreadthCounter `json:"depth"`
	Breadth   DepthBreadthCounter `json:"breadth"`
	Queries   QueryCounter        `json:"queries"`
	Timestamp time.Time           `json:"-"`
}

// ChatRole tags a message in an LLMClient request.
type ChatRole string

const (
	RoleSystem ChatRole = "system"
	RoleUser   ChatRole = "user"
)

// ChatMessage is one role-tagged message sent to an LLMClient.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatParams are the recognized tuning knobs for a single LLMClient call.
type ChatParams struct {
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "text" or "json"
}

// DefaultChatParams mirrors the spec's stated defaults.
func DefaultChatParams() ChatParams {
	return ChatParams{Temperature: 0.7, MaxTokens: 4000, ResponseFormat: "text"}
}

// ChatCompletion is the result of a single LLMClient.Chat call. Token
// counts are best-effort: populated when the backend reports usage,
// left zero otherwise.
type ChatCompletion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// SearchResponse is the result of a single SearchClient.Search call.
type SearchResponse struct {
	Docs    []SearchDoc
	Sources []Source
}
