package deepresearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Acquire_Succeeds(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPM: 600})
	err := rl.Acquire(context.Background())
	require.NoError(t, err)
}

func TestRateLimiter_Acquire_RespectsCancellation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPM: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// First acquire drains the single burst token synchronously; a second
	// acquire on an already-cancelled context must fail fast.
	_ = rl.Acquire(context.Background())
	err := rl.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCancelled))
}

func TestRateLimiter_SignalRateLimitError_RaisesBackoffWindow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPM: 600, InitialBackoff: 20 * time.Millisecond})
	rl.SignalRateLimitError(0)

	rl.mu.Lock()
	until := rl.backoffUntil
	rl.mu.Unlock()
	assert.False(t, until.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := rl.Acquire(ctx)
	require.NoError(t, err, "acquire should succeed once the backoff window elapses")
}

func TestRateLimiter_SignalRateLimitError_DoublesOnRepeatedSignals(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPM: 600, InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second})
	rl.SignalRateLimitError(0)
	first := rl.backoff
	rl.SignalRateLimitError(0)
	second := rl.backoff

	assert.Greater(t, second, first)
}

func TestRateLimiter_ResetBackoff_ClearsWindow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPM: 600})
	rl.SignalRateLimitError(time.Hour)
	rl.ResetBackoff()

	rl.mu.Lock()
	until := rl.backoffUntil
	rl.mu.Unlock()
	assert.True(t, until.IsZero())
}
