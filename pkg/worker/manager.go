package worker

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/emit"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
)

// EntrypointName is the file every pool executes, relative to the output
// root.
const EntrypointName = "index.js"

// Factory creates a pool from resolved options.
type Factory func(opts Options) (Pool, error)

// ProcessFactory is the default Factory.
func ProcessFactory(opts Options) (Pool, error) {
	return NewProcessPool(opts)
}

// ManagerOptions configures a Manager. Concurrency, Command, Env and Logger
// are passed through to every pool.
type ManagerOptions struct {
	Concurrency int
	Command     []string
	Env         map[string]string
	Logger      *log.Logger
	Keyer       cache.Keyer
	Factory     Factory
}

// Manager creates and shares pools per materialized entrypoint.
type Manager struct {
	emitter *emit.Emitter
	opts    ManagerOptions
	memo    *cache.Memo[Pool]

	mu     sync.Mutex
	closed bool
}

// NewManager creates a manager that emits with e before starting pools.
func NewManager(e *emit.Emitter, opts ManagerOptions) *Manager {
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Factory == nil {
		opts.Factory = ProcessFactory
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{emitter: e, opts: opts, memo: cache.NewMemo[Pool]("pool")}
}

// GetPool emits entry under root and returns the pool running
// <root>/index.js. Repeated calls for the same directory and entrypoint
// return the same pool.
//
// root must be disk-backed: a virtual root fails with
// UNSUPPORTED_FILESYSTEM and no process is started.
func (m *Manager) GetPool(ctx context.Context, entry asset.ID, root fs.Path) (Pool, error) {
	if m.isClosed() {
		return nil, errors.New(errors.ErrCodePoolClosed, "worker manager is closed")
	}
	if err := m.emitter.Emit(ctx, entry, root); err != nil {
		return nil, err
	}

	diskRoot, ok := fs.ResolveDiskRoot(root.FS)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedFilesystem,
			"can only render from a disk filesystem, got %s", root.FS.Name())
	}
	dir := filepath.Join(diskRoot, filepath.FromSlash(root.Path))
	opts := Options{
		Dir:         dir,
		Entrypoint:  filepath.Join(dir, EntrypointName),
		Env:         m.opts.Env,
		Concurrency: m.opts.Concurrency,
		Command:     m.opts.Command,
		Logger:      m.opts.Logger,
	}

	key := m.opts.Keyer.PoolKey(opts.Dir, opts.Entrypoint)
	return m.memo.Do(ctx, key, func(context.Context) (Pool, error) {
		m.opts.Logger.Debug("creating worker pool", "dir", opts.Dir, "workers", opts.WithDefaults().Concurrency)
		return m.opts.Factory(opts)
	})
}

// Emitter returns the emitter run before each pool is handed out.
func (m *Manager) Emitter() *emit.Emitter { return m.emitter }

// Len returns the number of live pools.
func (m *Manager) Len() int { return m.memo.Len() }

// Close closes every pool. GetPool fails with POOL_CLOSED afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var first error
	for _, p := range m.memo.Values() {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
