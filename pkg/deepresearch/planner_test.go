package deepresearch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryPlanner_Plan_Success(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{
		{text: `{"queries": [{"query": "go generics", "researchGoal": "overview"}, {"query": "go generics", "researchGoal": "dup"}, {"query": "go type params", "researchGoal": "detail"}]}`},
	}}
	p := NewQueryPlanner(llm, "test-model")

	queries := p.Plan(context.Background(), "learn about go generics", 2, nil)

	require.Len(t, queries, 1, "truncation to numQueries keeps the first two entries; dedupe then drops the repeated one")
	assert.Equal(t, "go generics", queries[0].Query)
	assert.Equal(t, "overview", queries[0].ResearchGoal)
}

func TestQueryPlanner_Plan_FallsBackOnLLMError(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{err: errors.New("boom")}}}
	p := NewQueryPlanner(llm, "test-model")

	queries := p.Plan(context.Background(), "some topic", 3, nil)

	require.Len(t, queries, 1)
	assert.Equal(t, "some topic", queries[0].Query)
	assert.Equal(t, "direct answer", queries[0].ResearchGoal)
}

func TestQueryPlanner_Plan_FallsBackOnEmptyResult(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: `{"queries": []}`}}}
	p := NewQueryPlanner(llm, "test-model")

	queries := p.Plan(context.Background(), "some topic", 3, nil)

	require.Len(t, queries, 1)
	assert.Equal(t, "some topic", queries[0].Query)
}

func TestQueryPlanner_Plan_FallsBackOnUnparsableResponse(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: "I refuse to answer in JSON."}}}
	p := NewQueryPlanner(llm, "test-model")

	queries := p.Plan(context.Background(), "some topic", 3, nil)

	require.Len(t, queries, 1)
	assert.Equal(t, "some topic", queries[0].Query)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "go generics", normalizeQuery("  Go Generics  "))
}

func TestDedupeQueries_KeepsFirstOccurrence(t *testing.T) {
	in := []SerpQuery{
		{Query: "A", ResearchGoal: "first"},
		{Query: "a", ResearchGoal: "second"},
		{Query: "B", ResearchGoal: "third"},
	}
	out := dedupeQueries(in)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].ResearchGoal)
}
