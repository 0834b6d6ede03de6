package deepresearch

import (
	"fmt"
	"strings"
)

// researchAssistantSystemPrompt is the fixed research-assistant directive
// used as the system message for every QueryPlanner call.
const researchAssistantSystemPrompt = "You are an expert research assistant. Be comprehensive and evidence-based. Every claim you plan for must be traceable to a source you intend to search for and cite. Prefer precise, specific search queries over broad ones."

const querySchemaDescription = `Respond with a single JSON object and nothing else, of the shape:
{"queries": [{"query": "<SERP query>", "researchGoal": "<why this query>"}, ...]}`

func buildPlannerPrompt(userQuery string, numQueries int, priorLearnings []string) (system string, user string) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Generate up to %d distinct search-engine queries to research the following topic:\n\n", numQueries))
	b.WriteString(userQuery)
	b.WriteString("\n\n")
	if len(priorLearnings) > 0 {
		b.WriteString("Here is what has already been learned from prior research; do not repeat these angles, dig deeper or explore gaps instead:\n")
		for _, l := range priorLearnings {
			b.WriteString("- ")
			b.WriteString(l)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(querySchemaDescription)
	return researchAssistantSystemPrompt, b.String()
}

const resultSchemaDescription = `Respond with a single JSON object and nothing else, of the shape:
{"learnings": ["<information-dense sentence>", ...], "followUpQuestions": [{"query": "<next SERP query>", "goal": "<why>"}, ...]}`

func buildProcessorPrompt(query string, content string, numLearnings, numFollowUps int) (system string, user string) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("The search query was:\n%s\n\n", query))
	b.WriteString("Here is the retrieved content:\n\n")
	b.WriteString(content)
	b.WriteString(fmt.Sprintf("\n\nExtract up to %d information-dense learnings and up to %d follow-up questions worth researching next. ", numLearnings, numFollowUps))
	b.WriteString("Each learning must be a single sentence, dense with specific facts, numbers, or names, grounded strictly in the content above.\n\n")
	b.WriteString(resultSchemaDescription)
	return researchAssistantSystemPrompt, b.String()
}

const reportSchemaDescription = "Write in Markdown with exactly these top-level sections, in order: ## Introduction, ## Main Findings, ## Analysis, ## Conclusion. Do not add a Sources section — it will be appended separately."

func buildReportPrompt(userQuery string, learnings []Learning, sources []Source) (system string, user string) {
	var b strings.Builder
	b.WriteString("Write a comprehensive research report answering the following query:\n\n")
	b.WriteString(userQuery)
	b.WriteString("\n\nGround every claim in the learnings below; do not invent facts absent from them.\n\n")
	b.WriteString("Learnings:\n")
	for _, l := range learnings {
		b.WriteString("- ")
		b.WriteString(l.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nAvailable sources (cite by URL where relevant, never invent a URL not in this list):\n")
	for _, s := range sources {
		b.WriteString(fmt.Sprintf("- %s (%s)\n", s.URL, s.Domain))
	}
	b.WriteString("\n")
	b.WriteString(reportSchemaDescription)
	return researchAssistantSystemPrompt, b.String()
}
