package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultBlockingReads bounds concurrent blocking reads.
const DefaultBlockingReads = 64

// Blocking performs blocking response reads on a bounded set of goroutines.
type Blocking struct {
	sem *semaphore.Weighted
}

// NewBlocking allows at most n reads at once. n <= 0 uses
// DefaultBlockingReads.
func NewBlocking(n int64) *Blocking {
	if n <= 0 {
		n = DefaultBlockingReads
	}
	return &Blocking{sem: semaphore.NewWeighted(n)}
}

type readResult struct {
	lines []string
	err   error
}

// ReadLines reads op's response and closes op. If ctx ends first, or is
// already done, the call returns ctx.Err() while the read finishes in the
// background; the worker is returned to its pool when it does. The request
// already dispatched is not interrupted.
func (b *Blocking) ReadLines(ctx context.Context, op Operation) ([]string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		// The request is already with the worker. Let it finish so the
		// worker goes back to its pool instead of being discarded.
		go func() {
			_, _ = op.ReadLines()
			_ = op.Close()
		}()
		return nil, err
	}

	ch := make(chan readResult, 1)
	go func() {
		defer b.sem.Release(1)
		lines, err := op.ReadLines()
		_ = op.Close()
		ch <- readResult{lines: lines, err: err}
	}()

	select {
	case r := <-ch:
		return r.lines, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
