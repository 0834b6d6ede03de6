package deepresearch

import (
	"context"
	"strings"
)

// contextBudgetChars is the design constant for how much concatenated
// search content is fed to the LLM per spec §4.5.
const contextBudgetChars = 150_000

// perDocCap bounds how much of a single doc's text enters the concat, so
// one long page can't crowd out the rest.
const perDocCap = 25_000

const learningMaxChars = 500

// ResultProcessor extracts learnings and follow-up questions from one
// query's search results.
type ResultProcessor struct {
	LLM     LLMClient
	ModelID string
}

// NewResultProcessor builds a ResultProcessor bound to a single model.
func NewResultProcessor(llm LLMClient, modelID string) *ResultProcessor {
	return &ResultProcessor{LLM: llm, ModelID: modelID}
}

// ProcessResult is the output of ResultProcessor.Process.
type ProcessResult struct {
	Learnings         []string
	FollowUpQuestions []SerpQuery
}

type processorResponse struct {
	Learnings         []string           `json:"learnings"`
	FollowUpQuestions []followUpQuestion `json:"followUpQuestions"`
}

// followUpQuestion mirrors the processor prompt's own {query, goal} schema
// (see resultSchemaDescription), which is distinct from SerpQuery's
// {query, researchGoal} planner contract. Parsed separately and converted
// to SerpQuery so the rest of the pipeline (dedupeQueries, truncateQueries,
// frontier expansion) only has to know one query shape.
type followUpQuestion struct {
	Query string `json:"query"`
	Goal  string `json:"goal"`
}

// Process implements the ResultProcessor contract from spec §4.5. If the
// concatenated content block is empty, the LLM is never called and an
// empty result is returned. Parse failures also yield an empty result —
// per-query extraction failures must never abort the session.
func (p *ResultProcessor) Process(ctx context.Context, query string, docs []SearchDoc, numLearnings, numFollowUps int) ProcessResult {
	content := buildContentBlock(docs)
	if content == "" {
		return ProcessResult{}
	}

	system, user := buildProcessorPrompt(query, content, numLearnings, numFollowUps)
	params := DefaultChatParams()
	params.ResponseFormat = "json"

	completion, err := p.LLM.Chat(ctx, p.ModelID, []ChatMessage{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, params)
	if err != nil {
		return ProcessResult{}
	}

	var parsed processorResponse
	if err := ExtractJSON(completion.Text, "learnings", &parsed); err != nil {
		return ProcessResult{}
	}

	return ProcessResult{
		Learnings:         truncateAndDedupeLearnings(parsed.Learnings, numLearnings),
		FollowUpQuestions: dedupeQueries(truncateQueries(toSerpQueries(parsed.FollowUpQuestions), numFollowUps)),
	}
}

// toSerpQueries converts the processor's {query, goal} wire shape into the
// SerpQuery shape shared by the planner and the frontier.
func toSerpQueries(questions []followUpQuestion) []SerpQuery {
	out := make([]SerpQuery, 0, len(questions))
	for _, q := range questions {
		out = append(out, SerpQuery{Query: q.Query, ResearchGoal: q.Goal})
	}
	return out
}

// buildContentBlock concatenates each doc's mainText (preferred) or
// snippet (fallback), each capped at perDocCap, then trims the whole block
// to contextBudgetChars.
func buildContentBlock(docs []SearchDoc) string {
	var b strings.Builder
	for _, d := range docs {
		text := d.MainText
		if strings.TrimSpace(text) == "" {
			text = d.Snippet
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if len(text) > perDocCap {
			text = text[:perDocCap]
		}
		b.WriteString("Source: ")
		b.WriteString(d.URL)
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	block := b.String()
	if len(block) > contextBudgetChars {
		block = block[:contextBudgetChars]
	}
	return strings.TrimSpace(block)
}

// truncateAndDedupeLearnings caps each learning to learningMaxChars with an
// ellipsis, deduplicates case-insensitively, and truncates the slice to n.
func truncateAndDedupeLearnings(learnings []string, n int) []string {
	seen := make(map[string]bool, len(learnings))
	out := make([]string, 0, len(learnings))
	for _, l := range learnings {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if len(l) > learningMaxChars {
			l = l[:learningMaxChars-len("…")] + "…"
		}
		key := strings.ToLower(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}
