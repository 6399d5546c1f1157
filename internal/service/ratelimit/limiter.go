package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter keeps one token bucket per key. Buckets idle for longer than the
// idle window are dropped.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*bucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	clock     clockwork.Clock
	lastPrune time.Time
}

type Option func(*Limiter)

func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithIdle sets how long an unused bucket is kept.
func WithIdle(d time.Duration) Option {
	return func(l *Limiter) { l.idle = d }
}

// New creates a limiter refilling perSec tokens per second up to burst.
func New(perSec float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		m:     make(map[string]*bucket),
		limit: rate.Limit(perSec),
		burst: burst,
		idle:  10 * time.Minute,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastPrune = l.clock.Now()
	return l
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.idle {
		l.prune(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = b
	}
	b.last = now
	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) prune(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) >= l.idle {
			delete(l.m, k)
		}
	}
	l.lastPrune = now
}
