package deepresearch

import (
	"context"
	"fmt"
	"strings"
)

// ReportWriter synthesizes the final Markdown report from all learnings
// and sources collected during a session.
type ReportWriter struct {
	LLM     LLMClient
	ModelID string
}

// NewReportWriter builds a ReportWriter bound to a single model.
func NewReportWriter(llm LLMClient, modelID string) *ReportWriter {
	return &ReportWriter{LLM: llm, ModelID: modelID}
}

// Write implements the ReportWriter contract from spec §4.6. The LLM
// produces the Introduction/Main Findings/Analysis/Conclusion body; the
// mechanical "## Sources" footer is always appended here, never left to
// the model. On LLM failure, Write falls back to a deterministic report.
func (w *ReportWriter) Write(ctx context.Context, userQuery string, learnings []Learning, sources []Source) string {
	system, user := buildReportPrompt(userQuery, learnings, sources)

	params := DefaultChatParams()
	params.ResponseFormat = "text"

	completion, err := w.LLM.Chat(ctx, w.ModelID, []ChatMessage{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, params)
	if err != nil {
		return fallbackReport(userQuery, learnings, sources)
	}

	body := strings.TrimSpace(completion.Text)
	if body == "" {
		return fallbackReport(userQuery, learnings, sources)
	}

	return body + "\n\n" + sourcesSection(sources)
}

func fallbackReport(userQuery string, learnings []Learning, sources []Source) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Research Report: %s\n\n", userQuery))
	if len(learnings) == 0 {
		b.WriteString("No learnings were collected for this query.\n\n")
	} else {
		b.WriteString("## Findings\n\n")
		for _, l := range learnings {
			b.WriteString("- ")
			b.WriteString(l.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(sourcesSection(sources))
	return b.String()
}

func sourcesSection(sources []Source) string {
	var b strings.Builder
	b.WriteString("## Sources\n\n")
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		b.WriteString(fmt.Sprintf("- [%s](%s)\n", title, s.URL))
	}
	return b.String()
}
