// Package cache provides the caching layers prerender is built on.
//
// Two different kinds of caching live here:
//
//   - [Memo] is the in-process "compute once per distinct input, share
//     concurrently" primitive. The partitioner, the emitter and the worker
//     pool manager all memoize through it, so concurrent render requests for
//     the same compiled target share one partition pass, one write pass and
//     one worker pool.
//   - [Cache] is a byte-oriented key/value store for rendered output that may
//     outlive the process ([FileCache], [RedisCache]) or be disabled
//     ([NullCache]).
//
// Keys for both are produced by a [Keyer] from content hashes, so results are
// cached by content identity rather than by reference.
package cache

import (
	"context"
	"time"
)

// Cache stores rendered output keyed by content fingerprints.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached bytes for key. hit is false on a miss or when
	// the entry has expired; err is reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl of zero means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
