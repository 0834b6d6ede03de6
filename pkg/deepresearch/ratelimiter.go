package deepresearch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token-bucket-style gate shared by SearchClient and
// LLMClient adapters. It enforces at most RPM successful acquires per
// rolling 60-second window and layers an exponential backoff on top that
// activates when a downstream provider signals a rate-limit error.
type RateLimiter struct {
	limiter *rate.Limiter

	mu               sync.Mutex
	backoff          time.Duration
	backoffUntil     time.Time
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	multiplier       float64
}

// RateLimiterConfig configures a RateLimiter. Zero values fall back to the
// spec's stated defaults.
type RateLimiterConfig struct {
	RPM            int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.RPM <= 0 {
		c.RPM = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	return c
}

// NewRateLimiter builds a RateLimiter enforcing cfg.RPM requests per
// rolling minute, grounded on golang.org/x/time/rate for the steady-state
// gate. Burst is set to 1 so waiters are serialized FIFO rather than
// allowed to spend the whole window's budget in one instant.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	perRequest := time.Minute / time.Duration(cfg.RPM)
	return &RateLimiter{
		limiter:        rate.NewLimiter(rate.Every(perRequest), 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		multiplier:     cfg.Multiplier,
	}
}

// Acquire suspends the caller until a token is available or ctx is done.
// It never panics or returns a non-cancellation error; a cancelled context
// surfaces as a *Error with KindCancelled.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := r.waitOutBackoff(ctx); err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return WrapError(KindCancelled, err)
	}
	return nil
}

func (r *RateLimiter) waitOutBackoff(ctx context.Context) error {
	r.mu.Lock()
	until := r.backoffUntil
	r.mu.Unlock()

	if until.IsZero() {
		return nil
	}
	wait := time.Until(until)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return WrapError(KindCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// SignalRateLimitError raises the shared backoff window. If retryAfter is
// non-zero it is used directly; otherwise the backoff doubles from its
// current value, capped at maxBackoff. Every worker sharing this limiter
// observes the same wait, per the spec's "shared backoff" requirement.
func (r *RateLimiter) SignalRateLimitError(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfter > 0 {
		r.backoff = retryAfter
	} else if r.backoff <= 0 {
		r.backoff = r.initialBackoff
	} else {
		next := time.Duration(float64(r.backoff) * r.multiplier)
		if next > r.maxBackoff {
			next = r.maxBackoff
		}
		r.backoff = next
	}

	deadline := time.Now().Add(r.backoff)
	if deadline.After(r.backoffUntil) {
		r.backoffUntil = deadline
	}
}

// ResetBackoff drops the backoff back to its initial value, called after a
// clean window (a successful acquire with no subsequent rate-limit signal).
func (r *RateLimiter) ResetBackoff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = 0
	r.backoffUntil = time.Time{}
}
