package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket. A non-positive rate disables limiting.
type Limiter struct {
	inner *rate.Limiter
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{inner: rate.NewLimiter(limit, burst)}
}

func (l *Limiter) Allow() bool {
	return l.inner.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.inner.Wait(ctx)
}

// KeyedLimiter hands out one Limiter per key and forgets keys that have
// been idle for longer than ttl.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedEntry
	rate     float64
	burst    int
	ttl      time.Duration
}

type keyedEntry struct {
	limiter  *Limiter
	lastUsed time.Time
}

func NewKeyedLimiter(perSecond float64, burst int, ttl time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		rate:     perSecond,
		burst:    burst,
		ttl:      ttl,
	}
}

// Allow consumes a token from key's bucket. Idle entries are swept on the
// way in, so no background goroutine is needed.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	k.sweepLocked(now)
	entry, ok := k.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: NewLimiter(k.rate, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter.Allow()
}

func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

func (k *KeyedLimiter) sweepLocked(now time.Time) {
	if k.ttl <= 0 {
		return
	}
	for key, entry := range k.limiters {
		if now.Sub(entry.lastUsed) > k.ttl {
			delete(k.limiters, key)
		}
	}
}
