package deepresearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportWriter_Write_AppendsSourcesFooter(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: "# Introduction\n\nGenerics let you write reusable code."}}}
	w := NewReportWriter(llm, "test-model")
	sources := []Source{{URL: "https://go.dev", Title: "The Go Programming Language"}}

	report := w.Write(context.Background(), "go generics", nil, sources)

	assert.Contains(t, report, "Generics let you write reusable code.")
	assert.Contains(t, report, "## Sources")
	assert.Contains(t, report, "[The Go Programming Language](https://go.dev)")
}

func TestReportWriter_Write_FallsBackOnLLMError(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{err: assertErr("boom")}}}
	w := NewReportWriter(llm, "test-model")
	learnings := []Learning{{Content: "Go 1.18 added generics."}}

	report := w.Write(context.Background(), "go generics", learnings, nil)

	require.Contains(t, report, "# Research Report: go generics")
	assert.Contains(t, report, "Go 1.18 added generics.")
}

func TestReportWriter_Write_FallsBackOnEmptyResponse(t *testing.T) {
	llm := &fakeLLMClient{responses: []fakeLLMResponse{{text: "   "}}}
	w := NewReportWriter(llm, "test-model")

	report := w.Write(context.Background(), "go generics", nil, nil)

	assert.Contains(t, report, "No learnings were collected")
}

func TestSourcesSection_FallsBackToURLWhenTitleMissing(t *testing.T) {
	section := sourcesSection([]Source{{URL: "https://example.com"}})
	assert.Contains(t, section, "[https://example.com](https://example.com)")
}
