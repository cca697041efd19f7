// Package ratelimit throttles calls to upstream data sources, one token
// bucket per upstream.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out a rate.Limiter per key. Keys seen for the first time
// get the default rate and burst.
type Limiter struct {
	mu     sync.Mutex
	m      map[string]*rate.Limiter
	perSec float64
	burst  int
}

// New creates a limiter whose unknown keys get perSec and burst. A zero
// rate means unlimited.
func New(perSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{m: make(map[string]*rate.Limiter), perSec: perSec, burst: burst}
}

// Set overrides the rate for one key.
func (l *Limiter) Set(key string, perSec float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[key] = rate.NewLimiter(limit(perSec), burst)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(limit(l.perSec), l.burst)
		l.m[key] = b
	}
	return b
}

// Allow returns true if one token can be consumed for key now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Wait blocks until a token for key is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// non-positive rates disable limiting
func limit(perSec float64) rate.Limit {
	if perSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSec)
}
