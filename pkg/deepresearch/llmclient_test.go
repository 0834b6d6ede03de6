package deepresearch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeLLMBackend is a scripted llms.Model double, grounded on the pack's
// own mockLLM pattern (jemygraw-langgraphgo/adapter/llm_adapter_test.go):
// each call to GenerateContent pops the next queued response.
type fakeLLMBackend struct {
	responses []fakeBackendResponse
	calls     int
}

type fakeBackendResponse struct {
	text string
	err  error
}

func (f *fakeLLMBackend) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	if idx < 0 {
		return nil, fmt.Errorf("fakeLLMBackend: no responses configured")
	}
	r := f.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.text}}}, nil
}

func (f *fakeLLMBackend) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", fmt.Errorf("fakeLLMBackend: Call not implemented")
}

// TestLangchainClient_RetriesAfterRateLimitedThenSucceeds guards against
// KindRateLimited errors being surfaced immediately instead of retried:
// spec §4.3 requires a 429/provider-rate-limit indication to signal the
// RateLimiter and then retry with backoff, the same as a transient error.
func TestLangchainClient_RetriesAfterRateLimitedThenSucceeds(t *testing.T) {
	backend := &fakeLLMBackend{responses: []fakeBackendResponse{
		{err: fmt.Errorf("provider returned 429: rate limit exceeded")},
		{text: "the answer"},
	}}

	c := NewLangchainClient(nil)
	c.RegisterModel("test-model", backend)

	completion, err := c.Chat(context.Background(), "test-model", []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, DefaultChatParams())

	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls, "must retry once after the rate-limited error instead of surfacing it immediately")
	assert.Equal(t, "the answer", completion.Text)
}
