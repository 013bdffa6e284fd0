package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/config"
	"github.com/matzehuels/prerender/pkg/emit"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/issue"
	"github.com/matzehuels/prerender/pkg/manifest"
	"github.com/matzehuels/prerender/pkg/partition"
	"github.com/matzehuels/prerender/pkg/pipeline"
	"github.com/matzehuels/prerender/pkg/worker"
)

// app is everything a command needs to render: the loaded configuration,
// the manifest's graph, and a runner wired to pools, cache and issue store.
type app struct {
	cfg      *config.Config
	manifest *manifest.Manifest
	chunker  *manifest.Chunker
	pools    *worker.Manager
	runner   *pipeline.Runner
	cache    cache.Cache
	issues   *issue.Store // nil without [issues] database
	out      fs.Path
	logger   *log.Logger
}

type appOptions struct {
	noCache bool
}

// loadConfig reads --config, or discovers a config file in the working
// directory, and applies the global flag overrides.
func (c *CLI) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = config.Discover(wd)
		}
	}
	if err != nil {
		return nil, err
	}
	if c.manifestPath != "" {
		cfg.Manifest, err = filepath.Abs(c.manifestPath)
		if err != nil {
			return nil, err
		}
	}
	if c.outDir != "" {
		if cfg.OutputDir, err = filepath.Abs(c.outDir); err != nil {
			return nil, err
		}
	}
	if c.concurrency > 0 {
		cfg.Pool.Concurrency = c.concurrency
	}
	return cfg, cfg.Validate()
}

// openApp wires the pipeline for the current configuration. Callers must
// Close the result.
func (c *CLI) openApp(ctx context.Context, opts appOptions) (*app, error) {
	logger := loggerFromContext(ctx)
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	// The config can only lower the level; --verbose wins.
	if lvl := cfg.LogLevel(); lvl < c.Logger.GetLevel() {
		c.SetLogLevel(lvl)
	}

	m, err := manifest.Load(cfg.Resolve(cfg.Manifest))
	if err != nil {
		return nil, err
	}
	g := asset.NewGraph()
	chunker, err := manifest.NewChunker(ctx, m, g)
	if err != nil {
		return nil, err
	}
	out, err := outputRoot(cfg)
	if err != nil {
		return nil, err
	}

	keyer := cache.NewDefaultKeyer()
	if cfg.Cache.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Cache.Prefix)
	}
	resultCache, err := openCache(ctx, cfg, opts.noCache)
	if err != nil {
		return nil, err
	}

	part := partition.New(g, partition.Options{Keyer: keyer, Logger: logger})
	em := emit.New(part, emit.Options{Keyer: keyer, Logger: logger})
	pools := worker.NewManager(em, worker.ManagerOptions{
		Concurrency: cfg.Pool.Concurrency,
		Command:     cfg.Pool.Command,
		Env:         cfg.Pool.Env,
		Logger:      logger,
		Keyer:       keyer,
	})

	runner := pipeline.NewRunner(pools, chunker, resultCache, keyer, logger)
	runner.CacheTTL = time.Duration(cfg.Cache.TTL)

	a := &app{
		cfg:      cfg,
		manifest: m,
		chunker:  chunker,
		pools:    pools,
		runner:   runner,
		cache:    resultCache,
		out:      out,
		logger:   logger,
	}
	if cfg.Issues.Database != "" {
		if a.issues, err = openIssues(cfg, logger); err != nil {
			a.Close()
			return nil, err
		}
		runner.Issues = issue.Multi(issue.LogSink{Logger: logger}, a.issues)
	}
	return a, nil
}

// request builds the render request for entry.
func (a *app) request(entry string) pipeline.Request {
	return pipeline.Request{
		Path:           "/" + entry,
		Entry:          entry,
		RuntimeEntries: a.cfg.Runtime,
		OutputRoot:     manifest.RootFor(a.out, entry),
	}
}

// Close stops worker processes and releases the cache and issue store.
func (a *app) Close() error {
	var errs []error
	if a.pools != nil {
		if err := a.pools.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.issues != nil {
		if err := a.issues.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// outputRoot places the output directory on a disk filesystem rooted at the
// project directory, so that external assets (installed packages) resolve
// from the project. An output directory outside the project gets its own
// filesystem.
func outputRoot(cfg *config.Config) (fs.Path, error) {
	project, err := fs.NewDisk(cfg.Dir)
	if err != nil {
		return fs.Path{}, err
	}
	out := cfg.Resolve(cfg.OutputDir)
	rel, err := filepath.Rel(project.Root(), out)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		disk, err := fs.NewDisk(out)
		if err != nil {
			return fs.Path{}, err
		}
		return fs.NewPath(disk, ""), nil
	}
	return fs.NewPath(project, filepath.ToSlash(rel)), nil
}

// openCache returns the configured render result cache.
func openCache(ctx context.Context, cfg *config.Config, disabled bool) (cache.Cache, error) {
	if disabled {
		return cache.NewNullCache(), nil
	}
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		return cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.Cache.RedisAddr})
	case config.CacheNone:
		return cache.NewNullCache(), nil
	}
	dir, err := renderCacheDir(cfg)
	if err != nil {
		return cache.NewNullCache(), nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, fmt.Errorf("open render cache: %w", err)
	}
	return fc, nil
}

// renderCacheDir is [cache] dir, or <XDG cache>/prerender/render.
func renderCacheDir(cfg *config.Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Resolve(cfg.Cache.Dir), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "render"), nil
}

func openIssues(cfg *config.Config, logger *log.Logger) (*issue.Store, error) {
	path := cfg.Resolve(cfg.Issues.Database)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create issue database directory: %w", err)
	}
	return issue.Open(path, logger)
}
