package news

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by the outbound news calls.
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	mu             sync.Mutex
}

// NewRateLimiter allows perSecond calls per second with a burst of one.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &RateLimiter{
		tokens:         1,
		maxTokens:      1,
		refillRate:     time.Duration(float64(time.Second) / perSecond),
		lastRefillTime: time.Now(),
	}
}

// Wait blocks until a token is available. A nil limiter never blocks.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	for {
		if rl.tryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if add := int(now.Sub(rl.lastRefillTime) / rl.refillRate); add > 0 {
		rl.tokens += add
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefillTime = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}
