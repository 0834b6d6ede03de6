package deepresearch

import (
	"context"
	"sync"
)

// ModelUsage is one model's aggregated usage inside a CostReport.
type ModelUsage struct {
	Count       int     `json:"count"`
	TotalTokens int     `json:"totalTokens"`
	CostUSD     float64 `json:"costUsd"`
}

// CostReport is a point-in-time snapshot of everything a CostTracker has
// recorded so far.
type CostReport struct {
	TotalRequests  int                   `json:"totalRequests"`
	TotalTokens    int                   `json:"totalTokens"`
	TotalCostUSD   float64               `json:"totalCostUsd"`
	ModelBreakdown map[string]ModelUsage `json:"modelBreakdown"`
}

// modelPricing is a per-token USD rate pair.
type modelPricing struct {
	promptPerToken     float64
	completionPerToken float64
}

// defaultModelPricing has a couple of well-known entries; anything else
// falls back to fallbackPricing. Grounded on cost_tracker.py's own
// approximation for models it doesn't have exact pricing for.
var defaultModelPricing = map[string]modelPricing{
	"gpt-4o":           {promptPerToken: 0.000005, completionPerToken: 0.000015},
	"gpt-4o-mini":      {promptPerToken: 0.00000015, completionPerToken: 0.0000006},
	"gemini-1.5-pro":   {promptPerToken: 0.0000035, completionPerToken: 0.0000105},
	"gemini-1.5-flash": {promptPerToken: 0.00000035, completionPerToken: 0.0000007},
}

// fallbackPricing mirrors cost_tracker.py's Claude-3.5 approximation, used
// for any modelID with no entry in defaultModelPricing rather than
// silently reporting zero cost for it.
var fallbackPricing = modelPricing{promptPerToken: 0.000012, completionPerToken: 0.000060}

// CostTracker decorates an LLMClient, recording per-call token usage and
// estimated cost without changing the Chat contract. Grounded on the
// original implementation's src/middleware/cost_tracker.py
// ResearchCostTracker (a LangChain callback handler recording
// {timestamp, model, tokens, cost} on every LLM call and aggregating a
// per-model breakdown); reimplemented as a decorator around LLMClient
// since Go has no callback bus to hook into.
type CostTracker struct {
	inner LLMClient

	mu      sync.Mutex
	byModel map[string]*ModelUsage
}

// NewCostTracker wraps inner so every Chat call through the tracker is
// also recorded for Report().
func NewCostTracker(inner LLMClient) *CostTracker {
	return &CostTracker{inner: inner, byModel: make(map[string]*ModelUsage)}
}

// Chat implements LLMClient, delegating to inner and recording usage on
// success. A failed call records nothing, matching cost_tracker.py's
// on_llm_end hook, which only fires for successful generations.
func (t *CostTracker) Chat(ctx context.Context, modelID string, messages []ChatMessage, params ChatParams) (ChatCompletion, error) {
	completion, err := t.inner.Chat(ctx, modelID, messages, params)
	if err != nil {
		return completion, err
	}
	t.record(modelID, completion)
	return completion, nil
}

func (t *CostTracker) record(modelID string, completion ChatCompletion) {
	cost := estimateCostUSD(modelID, completion.PromptTokens, completion.CompletionTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	usage, ok := t.byModel[modelID]
	if !ok {
		usage = &ModelUsage{}
		t.byModel[modelID] = usage
	}
	usage.Count++
	usage.TotalTokens += completion.TotalTokens
	usage.CostUSD += cost
}

// Report returns a snapshot of everything recorded so far. Safe to call
// concurrently with in-flight Chat calls.
func (t *CostTracker) Report() CostReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := CostReport{ModelBreakdown: make(map[string]ModelUsage, len(t.byModel))}
	for model, usage := range t.byModel {
		report.TotalRequests += usage.Count
		report.TotalTokens += usage.TotalTokens
		report.TotalCostUSD += usage.CostUSD
		report.ModelBreakdown[model] = *usage
	}
	return report
}

// estimateCostUSD prices a single call's prompt/completion tokens, falling
// back to the original's Claude-3.5 approximation for any model without an
// explicit entry.
func estimateCostUSD(modelID string, promptTokens, completionTokens int) float64 {
	pricing, ok := defaultModelPricing[modelID]
	if !ok {
		pricing = fallbackPricing
	}
	return float64(promptTokens)*pricing.promptPerToken + float64(completionTokens)*pricing.completionPerToken
}
