package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds concurrent outbound work and spaces acquisitions: a slot is
// granted no sooner than spacing after the previous Release.
type Limiter struct {
	sem     *semaphore.Weighted
	spacing time.Duration

	mu          sync.Mutex
	lastRelease time.Time
}

// NewLimiter creates a Limiter with the given concurrency and spacing.
func NewLimiter(concurrency int, spacing time.Duration) *Limiter {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		spacing: spacing,
	}
}

// Acquire blocks until a slot is free and the spacing since the last release
// has elapsed. It returns the context error if ctx ends first; no slot is held
// in that case.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if l.spacing <= 0 {
		return nil
	}

	l.mu.Lock()
	wait := time.Until(l.lastRelease.Add(l.spacing))
	l.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.sem.Release(1)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Release frees a slot acquired with Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.lastRelease = time.Now()
	l.mu.Unlock()
	l.sem.Release(1)
}
