package deepresearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMClient is a single call to a chat-completion backend addressed by a
// model identifier. Implementations are stateless.
type LLMClient interface {
	Chat(ctx context.Context, modelID string, messages []ChatMessage, params ChatParams) (ChatCompletion, error)
}

// CredentialsReloader is invoked when a provider returns 401, before the
// single retry the spec requires. Pluggable so the caller can refresh a
// rotated API key.
type CredentialsReloader interface {
	ReloadCredentials(ctx context.Context) error
}

// LangchainClient adapts langchaingo llms.Model instances to the LLMClient
// contract, grounded on the teacher's pkg/clients/google.go model factory
// and the llms.WithJSONMode()/GenerateContent call shape used throughout
// pkg/research/engine.go.
type LangchainClient struct {
	Models      map[string]llms.Model // modelID -> backend
	RateLimiter *RateLimiter
	Timeout     time.Duration
	Reloader    CredentialsReloader
}

// NewLangchainClient builds a client with the spec's default 60s
// per-request timeout for non-streaming calls.
func NewLangchainClient(limiter *RateLimiter) *LangchainClient {
	return &LangchainClient{
		Models:      make(map[string]llms.Model),
		RateLimiter: limiter,
		Timeout:     60 * time.Second,
	}
}

// RegisterModel makes modelID resolvable to backend for subsequent Chat
// calls.
func (c *LangchainClient) RegisterModel(modelID string, backend llms.Model) {
	c.Models[modelID] = backend
}

// NewGoogleAIBackend builds a langchaingo googleai.GoogleAI backend for the
// given Gemini model name, mirroring clients.GoogleAi in the teacher.
func NewGoogleAIBackend(ctx context.Context, apiKey, modelName string) (llms.Model, error) {
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("failed to init google ai backend: %w", err)
	}
	return llm, nil
}

// NewOpenAIBackend builds a langchaingo openai.LLM backend, generalizing
// the teacher's commented-out anthropic factory in pkg/clients/anthropic.go
// to an OpenAI-compatible endpoint (also covers Anthropic's OpenAI-shim and
// local vLLM/Ollama gateways).
func NewOpenAIBackend(apiKey, modelName, baseURL string) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(modelName)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init openai backend: %w", err)
	}
	return llm, nil
}

// Chat implements LLMClient. Failure classification follows spec §4.3:
// unauthenticated (401, single credential-reload retry), rate_limited (429,
// retried via RateLimiter backoff), timeout, bad_response (empty content),
// transient (retried up to 2 times).
func (c *LangchainClient) Chat(ctx context.Context, modelID string, messages []ChatMessage, params ChatParams) (ChatCompletion, error) {
	backend, ok := c.Models[modelID]
	if !ok {
		return ChatCompletion{}, WrapError(KindInvalidInput, fmt.Errorf("no LLM backend registered for model %q", modelID))
	}

	const maxTransientRetries = 2
	var lastErr error
	triedReload := false

	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ChatCompletion{}, WrapError(KindCancelled, ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		completion, err := c.doChat(ctx, backend, messages, params)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if IsKind(err, KindUnauthenticated) && !triedReload && c.Reloader != nil {
			triedReload = true
			if reloadErr := c.Reloader.ReloadCredentials(ctx); reloadErr != nil {
				return ChatCompletion{}, WrapError(KindUnauthenticated, fmt.Errorf("credential reload failed: %w", reloadErr))
			}
			attempt-- // retry this attempt; doesn't count against transient budget
			continue
		}
		if !IsKind(err, KindTransient) && !IsKind(err, KindRateLimited) {
			return ChatCompletion{}, err
		}
	}
	return ChatCompletion{}, lastErr
}

func (c *LangchainClient) doChat(ctx context.Context, backend llms.Model, messages []ChatMessage, params ChatParams) (ChatCompletion, error) {
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Acquire(ctx); err != nil {
			return ChatCompletion{}, err
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	opts := []llms.CallOption{}
	if params.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(params.Temperature))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}
	if params.ResponseFormat == "json" {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := backend.GenerateContent(reqCtx, content, opts...)
	if err != nil {
		return ChatCompletion{}, classifyLLMError(reqCtx, err, c.RateLimiter)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return ChatCompletion{}, WrapError(KindBadResponse, fmt.Errorf("llm returned no content"))
	}
	if c.RateLimiter != nil {
		c.RateLimiter.ResetBackoff()
	}
	completion := ChatCompletion{Text: resp.Choices[0].Content}
	completion.PromptTokens, completion.CompletionTokens, completion.TotalTokens = tokenUsageFromGenerationInfo(resp.Choices[0].GenerationInfo)
	return completion, nil
}

// tokenUsageFromGenerationInfo extracts token counts from a langchaingo
// backend's free-form GenerationInfo, tolerant of provider key casing the
// same way projectSearchDocs is tolerant of search-provider key casing:
// backends populate snake_case keys ("prompt_tokens", "completion_tokens",
// "total_tokens"), but not every backend populates every key.
func tokenUsageFromGenerationInfo(info map[string]interface{}) (prompt, completion, total int) {
	prompt = intField(info, "prompt_tokens")
	completion = intField(info, "completion_tokens")
	total = intField(info, "total_tokens")
	if total == 0 && (prompt != 0 || completion != 0) {
		total = prompt + completion
	}
	return prompt, completion, total
}

func intField(info map[string]interface{}, key string) int {
	v, ok := info[key]
	if !ok {
		for k, candidate := range info {
			if strings.EqualFold(k, key) {
				v, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func classifyLLMError(ctx context.Context, err error, limiter *RateLimiter) error {
	msg := strings.ToLower(err.Error())
	switch {
	case ctx.Err() != nil:
		return WrapError(KindTransient, fmt.Errorf("llm call timed out: %w", err))
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return WrapError(KindUnauthenticated, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		if limiter != nil {
			limiter.SignalRateLimitError(0)
		}
		return WrapError(KindRateLimited, err)
	default:
		return WrapError(KindTransient, err)
	}
}
