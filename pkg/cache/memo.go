package cache

import (
	"context"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/prerender/pkg/observability"
)

// Memo runs a computation at most once per key and shares the result.
//
// The first caller for a key starts the computation; concurrent callers with
// the same key attach to the in-flight call and observe the same result. A
// successful result is kept until [Memo.Forget]; a failed computation is not
// cached, so the next caller retries it.
//
// The computation runs with a context detached from the first caller's
// cancellation: one caller giving up must not fail the others that share the
// call. A caller whose own context ends stops waiting and gets ctx.Err().
//
// Memo is safe for concurrent use. The zero value is not usable; use NewMemo.
type Memo[V any] struct {
	name  string
	group singleflight.Group

	mu   sync.RWMutex
	done map[string]V
}

// NewMemo creates an empty memo table. name labels cache hook events
// (e.g. "partition", "emit", "pool").
func NewMemo[V any](name string) *Memo[V] {
	return &Memo[V]{name: name, done: make(map[string]V)}
}

// Do returns the memoized value for key, computing it with fn if needed.
func (m *Memo[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := m.Load(key); ok {
		observability.Cache().OnCacheHit(ctx, m.name)
		return v, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		if v, ok := m.Load(key); ok {
			return v, nil
		}
		observability.Cache().OnCacheMiss(detached, m.name)
		v, err := fn(detached)
		if err != nil {
			return v, err
		}
		m.mu.Lock()
		m.done[key] = v
		m.mu.Unlock()
		return v, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			var zero V
			return zero, r.Err
		}
		v, _ := r.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Load returns a completed value without computing anything.
func (m *Memo[V]) Load(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.done[key]
	return v, ok
}

// Forget drops the completed value for key. An in-flight computation for key
// is not affected and will store its result when it finishes.
func (m *Memo[V]) Forget(key string) {
	m.mu.Lock()
	delete(m.done, key)
	m.mu.Unlock()
	m.group.Forget(key)
}

// Len returns the number of completed values.
func (m *Memo[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.done)
}

// Values returns the completed values ordered by key.
func (m *Memo[V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(m.done))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.done[k])
	}
	return out
}
