package worker

import "context"

// DefaultConcurrency is the number of workers per pool.
const DefaultConcurrency = 4

// Pool hands requests to workers. Implementations must be safe for
// concurrent use.
type Pool interface {
	// Run sends req to a free worker, waiting for one if all are busy.
	Run(ctx context.Context, req []byte) (Operation, error)

	// Close shuts the pool down. Run fails with POOL_CLOSED afterwards.
	Close() error
}

// Operation is one request/response exchange with a borrowed worker.
type Operation interface {
	// ReadLines blocks until the worker finished its response and returns
	// the response lines without line terminators.
	ReadLines() ([]string, error)

	// Close returns the worker to its pool. It is safe to call more than
	// once. Closing before the response was read discards the worker.
	Close() error
}
