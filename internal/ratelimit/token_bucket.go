// Package ratelimit provides the token bucket that guards inbound signaling
// traffic against floods from a misbehaving relay or peer.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time so tests can drive refill deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

const nanoTokensPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket refills at an integer rate (tokens/sec).
//
// Tokens are kept as fixed-point nano-tokens (1 token = 1e9), so a rate of X
// tokens/sec adds X nano-tokens per elapsed nanosecond without float rounding.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64
	rate     int64

	available int64
	last      time.Time
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: toNano(capacity),
		last:      clock.Now(),
	}
}

// Allow consumes tokens if they are available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := toNano(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Clock went backwards; move the reference point without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	b.last = now

	if b.rate <= 0 || b.capacity <= 0 {
		return
	}
	full := toNano(b.capacity)
	need := full - b.available
	if need <= 0 {
		b.available = full
		return
	}
	// Clamp before multiplying so elapsed*rate cannot overflow.
	if fillTime := need / b.rate; fillTime <= 0 || elapsed >= fillTime {
		b.available = full
		return
	}
	b.available += elapsed * b.rate
	if b.available > full {
		b.available = full
	}
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoTokensPerToken {
		return maxInt64
	}
	return tokens * nanoTokensPerToken
}

// MessageLimiter admits at most perSecond messages per second with a burst
// of the same size. A nil *MessageLimiter admits everything.
type MessageLimiter struct {
	bucket *TokenBucket
}

// NewMessageLimiter returns nil when perSecond is not positive, meaning
// unlimited.
func NewMessageLimiter(clock Clock, perSecond int) *MessageLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &MessageLimiter{bucket: NewTokenBucket(clock, int64(perSecond), int64(perSecond))}
}

func (l *MessageLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.bucket.Allow(1)
}
