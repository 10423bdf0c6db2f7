package client

import (
	"sync"
	"time"
)

// TMI message-frequency policy: verified limits per privilege tier.
const (
	NormalRateCapacity    = 20
	ModeratorRateCapacity = 100
	RateInterval          = 30 * time.Second
)

// RateLimiter is a token bucket gating outbound chat messages. Refill is
// computed lazily from elapsed wall-clock time at acquisition, so the
// limiter is purely a function of (state, now) and needs no timer
// goroutine.
type RateLimiter struct {
	mu       sync.Mutex
	capacity float64
	interval time.Duration
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing capacity sends per interval.
// The bucket starts full.
func NewRateLimiter(capacity int, interval time.Duration) *RateLimiter {
	now := time.Now
	return &RateLimiter{
		capacity: float64(capacity),
		interval: interval,
		tokens:   float64(capacity),
		last:     now(),
		now:      now,
	}
}

// NewRateLimiterForTier returns a limiter configured for the account's
// privilege tier.
func NewRateLimiterForTier(moderator bool) *RateLimiter {
	if moderator {
		return NewRateLimiter(ModeratorRateCapacity, RateInterval)
	}
	return NewRateLimiter(NormalRateCapacity, RateInterval)
}

// TryAcquire takes one token if available. Non-blocking.
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Available returns the whole tokens currently in the bucket.
func (rl *RateLimiter) Available() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return int(rl.tokens)
}

// refill credits tokens earned since the last observation. Caller holds mu.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.last)
	if elapsed <= 0 {
		return
	}
	rl.last = now

	rl.tokens += elapsed.Seconds() / rl.interval.Seconds() * rl.capacity
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
}
