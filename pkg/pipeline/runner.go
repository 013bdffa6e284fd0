package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/emit"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/issue"
	"github.com/matzehuels/prerender/pkg/observability"
	"github.com/matzehuels/prerender/pkg/partition"
	"github.com/matzehuels/prerender/pkg/worker"
)

// Runner encapsulates rendering with pooling and result caching.
// Both the CLI and the dev server use it so the failure policy lives in one
// place.
//
// Runner holds no per-render state. Multiple goroutines can safely use the
// same Runner with different requests.
type Runner struct {
	Pools    *worker.Manager
	Chunker  Chunker
	Issues   issue.Sink
	Reads    *worker.Blocking
	Cache    cache.Cache
	Keyer    cache.Keyer
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewRunner creates a runner rendering through pools.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// Issues default to a LogSink on logger.
func NewRunner(pools *worker.Manager, chunker Chunker, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Pools:    pools,
		Chunker:  chunker,
		Issues:   issue.LogSink{Logger: logger},
		Reads:    worker.NewBlocking(0),
		Cache:    c,
		Keyer:    keyer,
		CacheTTL: DefaultCacheTTL,
		Logger:   logger,
	}
}

// Render renders req. A worker failure yields a Result carrying an error
// page and the reported Issue, with a nil error; errors are reserved for
// invalid requests and broken builds.
func (r *Runner) Render(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, req.Entry)
	res, err := r.render(ctx, req)
	if err != nil {
		hooks.OnRenderComplete(ctx, req.Entry, false, time.Since(start), err)
		return nil, err
	}
	res.Duration = time.Since(start)
	hooks.OnRenderComplete(ctx, req.Entry, res.OK(), res.Duration, nil)

	r.Logger.Info("rendered",
		"entry", req.Entry,
		"path", req.Path,
		"ok", res.OK(),
		"cached", res.Cached,
		"duration", res.Duration)
	return res, nil
}

func (r *Runner) render(ctx context.Context, req Request) (*Result, error) {
	entry, err := r.chunk(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "encode render data")
	}

	// The entry's own ID does not change when a chunk behind it is rebuilt,
	// so the key covers the whole subgraph. Partitioning is memoized and
	// GetPool reuses the result.
	part, err := r.Pools.Emitter().Partitioner().Partition(ctx, entry, req.OutputRoot)
	if err != nil {
		return nil, err
	}
	key := r.Keyer.RenderKey(string(entry), cache.RenderKeyOpts{
		DataHash: cache.Hash(data),
		Path:     req.Path,
		Subgraph: part.Fingerprint(),
	})
	if !req.NoCache {
		if html, ok, _ := r.Cache.Get(ctx, key); ok {
			observability.Cache().OnCacheHit(ctx, "render")
			return &Result{HTML: string(html), ContentType: ContentTypeHTML, Entry: entry, Cached: true}, nil
		}
		observability.Cache().OnCacheMiss(ctx, "render")
	}

	pool, err := r.Pools.GetPool(ctx, entry, req.OutputRoot)
	if err != nil {
		return nil, err
	}
	op, err := pool.Run(ctx, data)
	if err != nil {
		return nil, err
	}
	lines, err := r.Reads.ReadLines(ctx, op)
	if err != nil {
		return nil, err
	}

	out := ParseResponse(lines)
	if out.OK() {
		if !req.NoCache {
			if err := r.Cache.Set(ctx, key, []byte(out.HTML), r.CacheTTL); err != nil {
				r.Logger.Warn("failed to cache render", "entry", req.Entry, "err", err)
			} else {
				observability.Cache().OnCacheSet(ctx, "render", len(out.HTML))
			}
		}
		return &Result{HTML: out.HTML, ContentType: ContentTypeHTML, Entry: entry}, nil
	}

	f := out.Failure
	is := issue.New(req.subject(), string(f.Kind), ErrorTitle, f.Message, f.Logs())
	if r.Issues != nil {
		r.Issues.Emit(ctx, is)
	}
	return &Result{
		HTML:        ErrorPage(is.Title, is.Message, is.Logs),
		ContentType: ContentTypeHTML,
		Entry:       entry,
		Issue:       &is,
	}, nil
}

func (r *Runner) chunk(ctx context.Context, req Request) (asset.ID, error) {
	chunker := req.Chunker
	if chunker == nil {
		chunker = r.Chunker
	}
	if chunker == nil {
		return "", errors.New(errors.ErrCodeInvalidInput, "no chunker configured")
	}
	id, err := chunker.Chunk(ctx, ChunkRequest{
		Entry:          req.Entry,
		RuntimeEntries: req.RuntimeEntries,
		OutputRoot:     req.OutputRoot,
	})
	if err != nil {
		return "", fmt.Errorf("chunk %s: %w", req.Entry, err)
	}
	return id, nil
}

// Partition chunks req's entry and partitions it against the output root
// without writing anything.
func (r *Runner) Partition(ctx context.Context, req Request) (*partition.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := r.chunk(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.Pools.Emitter().Partitioner().Partition(ctx, entry, req.OutputRoot)
}

// ExternalEntrypoints returns the boundary assets of req's entry: the ones
// referenced from the output root but living outside it.
func (r *Runner) ExternalEntrypoints(ctx context.Context, req Request) ([]asset.ID, error) {
	res, err := r.Partition(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.External, nil
}

// Emit chunks req's entry and writes its internal assets.
func (r *Runner) Emit(ctx context.Context, req Request) (emit.Summary, error) {
	if err := req.Validate(); err != nil {
		return emit.Summary{}, err
	}
	entry, err := r.chunk(ctx, req)
	if err != nil {
		return emit.Summary{}, err
	}
	return r.Pools.Emitter().EmitSummary(ctx, entry, req.OutputRoot)
}
