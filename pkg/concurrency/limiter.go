// Package concurrency provides semaphore-based concurrency control for node
// executions, with an in-flight gauge surfaced through the gateway's system
// status.
package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Limiter bounds the number of concurrent node executions.
type Limiter struct {
	sem    chan struct{}
	active int64

	totalAcquired   int64
	peakConcurrent  int64
	totalWaitTimeNs int64
}

// NewLimiter creates a limiter allowing at most maxConcurrent simultaneous
// acquisitions. Values below 1 are clamped to 1.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem: make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until a slot is available or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case l.sem <- struct{}{}:
		atomic.AddInt64(&l.totalWaitTimeNs, time.Since(start).Nanoseconds())
		atomic.AddInt64(&l.totalAcquired, 1)
		l.updatePeak(atomic.AddInt64(&l.active, 1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		atomic.AddInt64(&l.active, -1)
	default:
		// Release without a matching Acquire
	}
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int64 {
	return atomic.LoadInt64(&l.active)
}

// Peak returns the highest concurrent slot count observed.
func (l *Limiter) Peak() int64 {
	return atomic.LoadInt64(&l.peakConcurrent)
}

// AverageWaitTime returns the mean time spent waiting for a slot.
func (l *Limiter) AverageWaitTime() time.Duration {
	acquired := atomic.LoadInt64(&l.totalAcquired)
	if acquired == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&l.totalWaitTimeNs) / acquired)
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.peakConcurrent)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&l.peakConcurrent, peak, current) {
			return
		}
	}
}
