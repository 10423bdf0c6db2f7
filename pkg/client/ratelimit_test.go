package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives the limiter's notion of time in tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(capacity int, interval time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(capacity, interval)
	rl.now = clock.now
	rl.last = clock.t
	return rl, clock
}

func TestRateLimiterStartsFull(t *testing.T) {
	rl, _ := newTestLimiter(20, 30*time.Second)
	assert.Equal(t, 20, rl.Available())
}

func TestRateLimiterExhaustion(t *testing.T) {
	rl, _ := newTestLimiter(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.TryAcquire(), "acquire %d should succeed", i)
	}
	assert.False(t, rl.TryAcquire(), "bucket should be empty")
	assert.Equal(t, 0, rl.Available())
}

// One token, 30 second interval: a second send becomes possible only
// after a full interval has elapsed.
func TestRateLimiterSingleTokenRefill(t *testing.T) {
	rl, clock := newTestLimiter(1, 30*time.Second)

	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	clock.advance(15 * time.Second)
	assert.False(t, rl.TryAcquire(), "half an interval earns half a token")

	clock.advance(15 * time.Second)
	assert.True(t, rl.TryAcquire(), "full interval restores the token")
}

func TestRateLimiterPartialRefill(t *testing.T) {
	rl, clock := newTestLimiter(20, 30*time.Second)

	for i := 0; i < 20; i++ {
		rl.TryAcquire()
	}
	assert.Equal(t, 0, rl.Available())

	// 3 seconds at 20 tokens per 30s earns 2 tokens.
	clock.advance(3 * time.Second)
	assert.Equal(t, 2, rl.Available())
	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())
}

func TestRateLimiterCapsAtCapacity(t *testing.T) {
	rl, clock := newTestLimiter(5, 30*time.Second)

	clock.advance(10 * time.Minute)
	assert.Equal(t, 5, rl.Available())
}

// No more than capacity sends can ever be admitted within one interval.
func TestRateLimiterWindowProperty(t *testing.T) {
	rl, clock := newTestLimiter(20, 30*time.Second)

	admitted := 0
	for i := 0; i < 600; i++ {
		if rl.TryAcquire() {
			admitted++
		}
		clock.advance(50 * time.Millisecond)
	}
	// 30s elapsed total: the initial 20 plus at most 20 refilled.
	assert.LessOrEqual(t, admitted, 40)
	assert.GreaterOrEqual(t, admitted, 39)
}

func TestRateLimiterTiers(t *testing.T) {
	assert.Equal(t, NormalRateCapacity, NewRateLimiterForTier(false).Available())
	assert.Equal(t, ModeratorRateCapacity, NewRateLimiterForTier(true).Available())
}
