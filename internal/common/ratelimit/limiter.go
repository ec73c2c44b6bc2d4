package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepEvery = 256

// SenderLimiter applies a token bucket per sender id and evicts buckets of
// senders that have been idle longer than idleTTL.
type SenderLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	bySender map[int64]*bucket
	hits     uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns nil when rps or burst is not positive; a nil limiter allows
// everything.
func New(rps float64, burst int, idleTTL time.Duration) *SenderLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &SenderLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  idleTTL,
		bySender: make(map[int64]*bucket),
	}
}

// Allow reports whether the sender may be served at now.
func (l *SenderLimiter) Allow(senderID int64, now time.Time) bool {
	if l == nil || senderID == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bySender[senderID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.bySender[senderID] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%sweepEvery == 0 {
		l.sweepLocked(now)
	}
	return allowed
}

// Sweep evicts idle buckets.
func (l *SenderLimiter) Sweep(now time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.sweepLocked(now)
	l.mu.Unlock()
}

// Len is the number of tracked senders.
func (l *SenderLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bySender)
}

func (l *SenderLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for id, b := range l.bySender {
		if b.lastSeen.Before(cutoff) {
			delete(l.bySender, id)
		}
	}
}
