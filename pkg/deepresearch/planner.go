package deepresearch

import (
	"context"
	"strings"
)

// QueryPlanner generates up to numQueries distinct SERP queries for a
// research topic, optionally steering away from what prior learnings
// already cover.
type QueryPlanner struct {
	LLM     LLMClient
	ModelID string
}

// NewQueryPlanner builds a QueryPlanner bound to a single model.
func NewQueryPlanner(llm LLMClient, modelID string) *QueryPlanner {
	return &QueryPlanner{LLM: llm, ModelID: modelID}
}

type plannerResponse struct {
	Queries []SerpQuery `json:"queries"`
}

// Plan implements the QueryPlanner contract from spec §4.4. On any parse
// failure, or an empty/malformed result, it falls back to a single SerpQuery
// echoing userQuery — planner failures must never abort the session.
func (p *QueryPlanner) Plan(ctx context.Context, userQuery string, numQueries int, priorLearnings []string) []SerpQuery {
	system, user := buildPlannerPrompt(userQuery, numQueries, priorLearnings)

	params := DefaultChatParams()
	params.ResponseFormat = "json"

	completion, err := p.LLM.Chat(ctx, p.ModelID, []ChatMessage{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, params)
	if err != nil {
		return fallbackQuery(userQuery)
	}

	var parsed plannerResponse
	if err := ExtractJSON(completion.Text, "queries", &parsed); err != nil {
		return fallbackQuery(userQuery)
	}
	if len(parsed.Queries) == 0 {
		return fallbackQuery(userQuery)
	}

	return dedupeQueries(truncateQueries(parsed.Queries, numQueries))
}

func fallbackQuery(userQuery string) []SerpQuery {
	return []SerpQuery{{Query: userQuery, ResearchGoal: "direct answer"}}
}

func truncateQueries(queries []SerpQuery, n int) []SerpQuery {
	if n <= 0 || n >= len(queries) {
		return queries
	}
	return queries[:n]
}

// dedupeQueries removes duplicates by normalized query string, keeping
// first occurrence order.
func dedupeQueries(queries []SerpQuery) []SerpQuery {
	seen := make(map[string]bool, len(queries))
	out := make([]SerpQuery, 0, len(queries))
	for _, q := range queries {
		key := normalizeQuery(q.Query)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// normalizeQuery lower-cases and trims a query string for dedup/visited-set
// comparisons per spec §3's SessionState.visitedQueries invariant.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
