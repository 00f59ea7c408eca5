package remote

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of in-flight HTTP requests for one run.
// A nil Gate admits everything.
type Gate struct {
	sem  *semaphore.Weighted
	size int
}

// NewGate returns a gate admitting at most n concurrent requests.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	if g == nil {
		return
	}
	g.sem.Release(1)
}

// Size is the configured capacity.
func (g *Gate) Size() int {
	if g == nil {
		return 0
	}
	return g.size
}
