package notify

import (
	"sync"
	"time"
)

// TokenBucket is a simple per-sink rate limiter. Locked because system
// notices can arrive from outside the poll loop.
type TokenBucket struct {
	capacity float64
	rate     float64 // tokens per second

	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// NewTokenBucket creates a token bucket with capacity and refill rate.
func NewTokenBucket(capacity, rate float64) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		rate:     rate,
		tokens:   capacity,
	}
}

// NewPerMinute creates a bucket admitting n sends per minute, with a
// burst of n.
func NewPerMinute(n int) *TokenBucket {
	return NewTokenBucket(float64(n), float64(n)/60)
}

// Allow consumes one token if available, refilling based on elapsed time.
func (b *TokenBucket) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastUpdate.IsZero() {
		b.lastUpdate = now
	}
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
		b.lastUpdate = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
