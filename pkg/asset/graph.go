package asset

import (
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/errors"
)

// ReferenceFunc lazily produces the assets an asset references.
// It may block (e.g. on a bundler) and must honor ctx.
type ReferenceFunc func(ctx context.Context) ([]Asset, error)

// Source is the read side of an asset graph, as consumed by traversals.
type Source interface {
	// Asset returns the asset stored under id.
	Asset(id ID) (Asset, bool)

	// References returns the ordered references of id. It may block.
	References(ctx context.Context, id ID) ([]ID, error)
}

// Graph is an arena of assets keyed by [ID] with their reference lists.
//
// Adding an asset that is already present is a no-op that returns the
// existing ID. Graph is safe for concurrent use.
type Graph struct {
	mu        sync.RWMutex
	assets    map[ID]Asset
	order     []ID
	links     map[ID][]ID
	resolvers map[ID]ReferenceFunc
	resolved  *cache.Memo[[]ID]
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		assets:    make(map[ID]Asset),
		links:     make(map[ID][]ID),
		resolvers: make(map[ID]ReferenceFunc),
		resolved:  cache.NewMemo[[]ID]("references"),
	}
}

// Add stores a and returns its ID.
func (g *Graph) Add(a Asset) ID {
	id := a.ID()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addLocked(id, a)
	return id
}

func (g *Graph) addLocked(id ID, a Asset) {
	if _, ok := g.assets[id]; ok {
		return
	}
	g.assets[id] = a
	g.order = append(g.order, id)
}

// Link appends static references from -> to. Every ID must already be in
// the graph. Duplicate links are kept; traversals dedup on visit.
func (g *Graph) Link(from ID, to ...ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.assets[from]; !ok {
		return errors.New(errors.ErrCodeUnknownAsset, "link from unknown asset %s", from.Short())
	}
	for _, t := range to {
		if _, ok := g.assets[t]; !ok {
			return errors.New(errors.ErrCodeUnknownAsset, "link to unknown asset %s", t.Short())
		}
	}
	g.links[from] = append(g.links[from], to...)
	return nil
}

// SetResolver installs fn as the lazy reference producer for id. fn runs
// once, the first time [Graph.References] asks for id; the assets it returns
// join the graph and follow any static links. Replacing a resolver drops the
// remembered output.
func (g *Graph) SetResolver(id ID, fn ReferenceFunc) error {
	g.mu.Lock()
	if _, ok := g.assets[id]; !ok {
		g.mu.Unlock()
		return errors.New(errors.ErrCodeUnknownAsset, "resolver for unknown asset %s", id.Short())
	}
	g.resolvers[id] = fn
	g.mu.Unlock()
	g.resolved.Forget(string(id))
	return nil
}

// Asset returns the asset stored under id.
func (g *Graph) Asset(id ID) (Asset, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.assets[id]
	return a, ok
}

// References returns the static links of id followed by whatever its
// resolver produced. Concurrent callers share one resolver run, and a
// failed run is retried by the next caller. The resolver runs without the
// graph lock held.
func (g *Graph) References(ctx context.Context, id ID) ([]ID, error) {
	g.mu.RLock()
	_, ok := g.assets[id]
	refs := slices.Clone(g.links[id])
	fn := g.resolvers[id]
	g.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownAsset, "unknown asset %s", id.Short())
	}
	if fn == nil {
		return refs, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	produced, err := g.resolved.Do(ctx, string(id), func(ctx context.Context) ([]ID, error) {
		assets, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]ID, 0, len(assets))
		g.mu.Lock()
		defer g.mu.Unlock()
		for _, a := range assets {
			rid := a.ID()
			g.addLocked(rid, a)
			ids = append(ids, rid)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return append(refs, produced...), nil
}

// IDs returns every asset ID in insertion order.
func (g *Graph) IDs() []ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Len returns the number of assets.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.assets)
}

var _ Source = (*Graph)(nil)
