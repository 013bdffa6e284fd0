package partition

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/observability"
)

// DefaultConcurrency bounds in-flight reference fetches.
const DefaultConcurrency = 16

// Result is the outcome of partitioning one entry against one output root.
// Results are shared between callers and must be treated as read-only.
type Result struct {
	Entry    asset.ID
	Root     fs.Path
	Internal []asset.ID // sorted
	External []asset.ID // sorted
	Edges    []Edge     // references out of Internal assets, sorted
}

// Fingerprint identifies the content of the partitioned subgraph. Asset IDs
// hash content and destination, so any rebuilt asset changes it, even when
// the entry asset itself is unchanged.
func (r *Result) Fingerprint() string {
	parts := make([][]byte, 0, len(r.Internal)+len(r.External)+2)
	parts = append(parts, []byte("internal"))
	for _, id := range r.Internal {
		parts = append(parts, []byte(id))
	}
	parts = append(parts, []byte("external"))
	for _, id := range r.External {
		parts = append(parts, []byte(id))
	}
	return cache.HashParts(parts...)
}

// Edge is a reference from an Internal asset.
type Edge struct {
	From asset.ID
	To   asset.ID
}

// IsInternal reports whether id was classified Internal.
func (r *Result) IsInternal(id asset.ID) bool {
	_, ok := slices.BinarySearch(r.Internal, id)
	return ok
}

// IsExternal reports whether id was classified External.
func (r *Result) IsExternal(id asset.ID) bool {
	_, ok := slices.BinarySearch(r.External, id)
	return ok
}

// Options configures a Partitioner.
type Options struct {
	Concurrency int
	Keyer       cache.Keyer
	Logger      *log.Logger
}

// Partitioner classifies assets of a [asset.Source]. It is safe for
// concurrent use.
type Partitioner struct {
	src    asset.Source
	opts   Options
	memo   *cache.Memo[*Result]
	logger *log.Logger
}

// New creates a partitioner over src.
func New(src asset.Source, opts Options) *Partitioner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Partitioner{
		src:    src,
		opts:   opts,
		memo:   cache.NewMemo[*Result]("partition"),
		logger: opts.Logger,
	}
}

// Source returns the asset source the partitioner reads.
func (p *Partitioner) Source() asset.Source { return p.src }

// Partition classifies every asset reachable from entry through Internal
// assets. The entry itself may be External, in which case the result has
// no Internal assets and no references are fetched.
//
// A failed reference fetch aborts the traversal with a GRAPH_FETCH error;
// failures are not memoized.
func (p *Partitioner) Partition(ctx context.Context, entry asset.ID, root fs.Path) (*Result, error) {
	key := p.opts.Keyer.PartitionKey(string(entry), root.String())
	return p.memo.Do(ctx, key, func(ctx context.Context) (*Result, error) {
		return p.run(ctx, entry, root)
	})
}

func (p *Partitioner) run(ctx context.Context, entry asset.ID, root fs.Path) (*Result, error) {
	hooks := observability.Pipeline()
	hooks.OnPartitionStart(ctx, string(entry))
	start := time.Now()

	res, err := traverse(ctx, p.src, entry, root, p.opts.Concurrency)

	elapsed := time.Since(start)
	if err != nil {
		hooks.OnPartitionComplete(ctx, string(entry), 0, 0, elapsed, err)
		return nil, err
	}
	hooks.OnPartitionComplete(ctx, string(entry), len(res.Internal), len(res.External), elapsed, nil)
	p.logger.Debug("partitioned",
		"entry", entry.Short(),
		"root", root.String(),
		"internal", len(res.Internal),
		"external", len(res.External),
		"duration", elapsed)
	return res, nil
}

// fetched is the outcome of one reference fetch.
type fetched struct {
	id   asset.ID
	refs []asset.ID
	err  error
}

// traverse runs the worklist. Only this goroutine touches visited and the
// result slices; fetch goroutines report back over results.
func traverse(ctx context.Context, src asset.Source, entry asset.ID, root fs.Path, concurrency int) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := &Result{Entry: entry, Root: root}
	visited := map[asset.ID]bool{entry: true}
	edges := make(map[Edge]bool)

	results := make(chan fetched)
	sem := make(chan struct{}, concurrency)
	pending := 0

	fetch := func(id asset.ID) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results <- fetched{id: id, err: ctx.Err()}
			return
		}
		refs, err := src.References(ctx, id)
		<-sem
		results <- fetched{id: id, refs: refs, err: err}
	}

	classify := func(id asset.ID) error {
		a, ok := src.Asset(id)
		if !ok {
			return errors.New(errors.ErrCodeUnknownAsset, "unknown asset %s", id.Short())
		}
		if !a.Path.IsInside(root) {
			res.External = append(res.External, id)
			return nil
		}
		res.Internal = append(res.Internal, id)
		pending++
		go fetch(id)
		return nil
	}

	if err := classify(entry); err != nil {
		return nil, err
	}

	var firstErr error
	for pending > 0 {
		r := <-results
		pending--
		if firstErr != nil {
			continue
		}
		if r.err != nil {
			firstErr = errors.Wrap(errors.ErrCodeGraphFetch, r.err, "fetch references of %s", r.id.Short())
			cancel()
			continue
		}
		for _, ref := range r.refs {
			edges[Edge{From: r.id, To: ref}] = true
			if visited[ref] {
				continue
			}
			visited[ref] = true
			if err := classify(ref); err != nil {
				firstErr = errors.Wrap(errors.ErrCodeGraphFetch, err, "fetch references of %s", r.id.Short())
				cancel()
				break
			}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	slices.Sort(res.Internal)
	slices.Sort(res.External)
	for e := range edges {
		res.Edges = append(res.Edges, e)
	}
	slices.SortFunc(res.Edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return res, nil
}
