// Package emit writes the Internal subgraph of an entry to its filesystem.
//
// [Emitter.Emit] partitions the entry, then writes every Internal asset to
// its destination concurrently and returns only after all writes finished.
// The whole pass is memoized by (entry, output root): concurrent callers for
// the same target share one physical write pass, and later callers return
// immediately.
//
// Emission is not transactional. A failed write fails the pass and leaves
// whatever was already written; since asset content and paths are
// deterministic, retrying simply rewrites the same bytes.
package emit

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/observability"
	"github.com/matzehuels/prerender/pkg/partition"
)

// Options configures an Emitter.
type Options struct {
	// Concurrency caps simultaneous writes. Zero writes everything at once.
	Concurrency int
	Keyer       cache.Keyer
	Logger      *log.Logger
}

// Summary describes a completed write pass.
type Summary struct {
	Written  int
	Duration time.Duration
}

// Emitter materializes partitions. It is safe for concurrent use.
type Emitter struct {
	part   *partition.Partitioner
	opts   Options
	memo   *cache.Memo[Summary]
	logger *log.Logger
}

// New creates an emitter that partitions with p.
func New(p *partition.Partitioner, opts Options) *Emitter {
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Emitter{
		part:   p,
		opts:   opts,
		memo:   cache.NewMemo[Summary]("emit"),
		logger: opts.Logger,
	}
}

// Partitioner returns the partitioner the emitter writes from.
func (e *Emitter) Partitioner() *partition.Partitioner { return e.part }

// Emit writes entry's Internal assets under root. See [Emitter.EmitSummary].
func (e *Emitter) Emit(ctx context.Context, entry asset.ID, root fs.Path) error {
	_, err := e.EmitSummary(ctx, entry, root)
	return err
}

// EmitSummary is Emit returning what the (shared) write pass did. Callers
// that joined an earlier pass get that pass's summary.
func (e *Emitter) EmitSummary(ctx context.Context, entry asset.ID, root fs.Path) (Summary, error) {
	key := e.opts.Keyer.EmitKey(string(entry), root.String())
	return e.memo.Do(ctx, key, func(ctx context.Context) (Summary, error) {
		return e.run(ctx, entry, root)
	})
}

// Forget drops the memoized pass for (entry, root) so the next Emit writes
// again, e.g. after the output directory was cleaned.
func (e *Emitter) Forget(entry asset.ID, root fs.Path) {
	e.memo.Forget(e.opts.Keyer.EmitKey(string(entry), root.String()))
}

func (e *Emitter) run(ctx context.Context, entry asset.ID, root fs.Path) (Summary, error) {
	res, err := e.part.Partition(ctx, entry, root)
	if err != nil {
		return Summary{}, err
	}

	hooks := observability.Pipeline()
	hooks.OnEmitStart(ctx, string(entry), len(res.Internal))
	start := time.Now()

	err = e.writeAll(ctx, res)

	sum := Summary{Written: len(res.Internal), Duration: time.Since(start)}
	hooks.OnEmitComplete(ctx, string(entry), sum.Duration, err)
	if err != nil {
		return Summary{}, err
	}
	e.logger.Debug("emitted",
		"entry", entry.Short(),
		"root", root.String(),
		"assets", sum.Written,
		"duration", sum.Duration)
	return sum, nil
}

func (e *Emitter) writeAll(ctx context.Context, res *partition.Result) error {
	src := e.part.Source()
	assets := make([]asset.Asset, 0, len(res.Internal))
	for _, id := range res.Internal {
		a, ok := src.Asset(id)
		if !ok {
			return errors.New(errors.ErrCodeUnknownAsset, "unknown asset %s", id.Short())
		}
		assets = append(assets, a)
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.Concurrency > 0 {
		g.SetLimit(e.opts.Concurrency)
	}
	for _, a := range assets {
		g.Go(func() error {
			if err := a.Path.WriteFile(gctx, a.Content.Data); err != nil {
				return errors.Wrap(errors.ErrCodeWriteFailed, err, "write %s", a.Path)
			}
			return nil
		})
	}
	return g.Wait()
}
