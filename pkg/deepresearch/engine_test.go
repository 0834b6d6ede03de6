package deepresearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainEvents(t *testing.T, stream *EventStream) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-deadline:
			t.Fatal("timed out draining event stream")
			return nil
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func newTestEngine(search SearchClient, llm LLMClient) *ResearchEngine {
	planner := NewQueryPlanner(llm, "test-model")
	processor := NewResultProcessor(llm, "test-model")
	report := NewReportWriter(llm, "test-model")
	return NewResearchEngine(search, planner, processor, report)
}

func TestResearchEngine_Run_RejectsEmptyQuery(t *testing.T) {
	e := newTestEngine(newFakeSearchClient(), &fakeLLMClient{})
	_, err := e.Run(context.Background(), "   ", ResearchOptions{Depth: 1, Breadth: 1, MaxConcurrency: 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestResearchEngine_Run_RejectsOutOfRangeOptions(t *testing.T) {
	e := newTestEngine(newFakeSearchClient(), &fakeLLMClient{})
	_, err := e.Run(context.Background(), "go generics", ResearchOptions{Depth: 99, Breadth: 1, MaxConcurrency: 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestResearchEngine_RunShallow_EmitsExpectedSequenceWithoutLearningOrProgress(t *testing.T) {
	search := newFakeSearchClient()
	search.responses["go generics"] = SearchResponse{
		Docs:    []SearchDoc{{URL: "https://go.dev", Title: "Go", Snippet: "overview", MainText: "Generics were added in Go 1.18."}},
		Sources: []Source{{URL: "https://go.dev", Title: "Go"}},
	}
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: "# Introduction\n\nGenerics let you parameterize types."}}}
	e := newTestEngine(search, llm)

	stream, err := e.Run(context.Background(), "go generics", ResearchOptions{IsDeep: false, Depth: 1, Breadth: 1, MaxConcurrency: 1, ModelID: "test-model"})
	require.NoError(t, err)

	events := drainEvents(t, stream)
	types := eventTypes(events)

	require.Equal(t, []EventType{EventStart, EventSearchResults, EventSources, EventContent, EventComplete}, types)
	assert.NotContains(t, types, EventLearning)
	assert.NotContains(t, types, EventProgress)
}

func TestResearchEngine_RunDeep_ExpandsFrontierAndEmitsLearnings(t *testing.T) {
	search := newFakeSearchClient()
	search.responses["deep topic"] = SearchResponse{
		Docs:    []SearchDoc{{URL: "https://a.example", MainText: "root level content"}},
		Sources: []Source{{URL: "https://a.example", Title: "A"}},
	}
	search.responses["follow up"] = SearchResponse{
		Docs:    []SearchDoc{{URL: "https://b.example", MainText: "deeper content"}},
		Sources: []Source{{URL: "https://b.example", Title: "B"}},
	}

	llm := &fakeLLMClient{responses: []fakeLLMResponse{
		{text: `{"queries": [{"query": "deep topic", "researchGoal": "root"}]}`},
		{text: `{"learnings": ["root learning"], "followUpQuestions": [{"query": "follow up", "researchGoal": "next"}]}`},
		{text: `{"queries": [{"query": "follow up", "researchGoal": "leaf"}]}`},
		{text: `{"learnings": ["leaf learning"], "followUpQuestions": []}`},
		{text: "# Introduction\n\nSynthesized report."},
	}}
	e := newTestEngine(search, llm)

	stream, err := e.Run(context.Background(), "deep topic", ResearchOptions{IsDeep: true, Depth: 2, Breadth: 1, MaxConcurrency: 2, ModelID: "test-model"})
	require.NoError(t, err)

	events := drainEvents(t, stream)
	types := eventTypes(events)

	assert.Equal(t, EventStart, types[0])
	assert.Equal(t, EventComplete, types[len(types)-1])
	assert.Contains(t, types, EventLearning)
	assert.Contains(t, types, EventProgress)
	assert.Contains(t, types, EventContent)

	var learningContents []string
	for _, e := range events {
		if e.Type == EventLearning {
			learningContents = append(learningContents, e.Content)
		}
	}
	assert.ElementsMatch(t, []string{"root learning", "leaf learning"}, learningContents)
}

func TestResearchEngine_RunShallow_ToleratesSearchFailure(t *testing.T) {
	search := newFakeSearchClient()
	search.errs["go generics"] = WrapError(KindTransient, assertErr("network down"))
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: "fallback body"}}}
	e := newTestEngine(search, llm)

	stream, err := e.Run(context.Background(), "go generics", ResearchOptions{Depth: 1, Breadth: 1, MaxConcurrency: 1})
	require.NoError(t, err)

	events := drainEvents(t, stream)
	types := eventTypes(events)
	assert.Contains(t, types, EventComplete)
	assert.NotContains(t, types, EventError)
}

func TestResearchEngine_Run_SearchCancellationEmitsErrorEvent(t *testing.T) {
	search := newFakeSearchClient()
	search.errs["go generics"] = WrapError(KindCancelled, context.Canceled)
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: "body"}}}
	e := newTestEngine(search, llm)

	stream, err := e.Run(context.Background(), "go generics", ResearchOptions{Depth: 1, Breadth: 1, MaxConcurrency: 1})
	require.NoError(t, err)

	events := drainEvents(t, stream)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, string(KindCancelled), last.Kind)
	assert.NotContains(t, eventTypes(events), EventComplete)
}
