package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/prerender/pkg/cache"
)

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".cache", appName); dir != want {
		t.Errorf("cacheDir() = %q, want %q", dir, want)
	}
}

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/custom-cache")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	if want := filepath.Join("/tmp/custom-cache", appName); dir != want {
		t.Errorf("cacheDir() = %q, want %q", dir, want)
	}
}

func TestCacheCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "prerender.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[cache]\nbackend = \"file\"\ndir = \"renders\"\n"), 0o644))

	fc, err := cache.NewFileCache(filepath.Join(dir, "renders"))
	require.NoError(t, err)
	require.NoError(t, fc.Set(ctx, "stale", []byte("<p>old</p>"), time.Nanosecond))
	require.NoError(t, fc.Set(ctx, "fresh", []byte("<p>new</p>"), 0))
	time.Sleep(2 * time.Millisecond)

	out, err := run(t, "cache", "path", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "renders")+"\n", out)

	_, err = run(t, "cache", "prune", "-c", cfgPath)
	require.NoError(t, err)
	_, hit, _ := fc.Get(ctx, "fresh")
	assert.True(t, hit, "prune keeps live entries")

	_, err = run(t, "cache", "clear", "-c", cfgPath)
	require.NoError(t, err)
	_, hit, _ = fc.Get(ctx, "fresh")
	assert.False(t, hit)

	none := filepath.Join(t.TempDir(), "prerender.toml")
	require.NoError(t, os.WriteFile(none, []byte("[cache]\nbackend = \"none\"\n"), 0o644))
	_, err = run(t, "cache", "clear", "-c", none)
	assert.ErrorContains(t, err, "only the file cache backend")
}

type closeFailingCache struct {
	cache.NullCache
	err error
}

func (c closeFailingCache) Close() error { return c.err }

func TestAppCloseKeepsCause(t *testing.T) {
	errDisk := errors.New("disk gone")
	a := &app{cache: closeFailingCache{err: errDisk}}

	err := a.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)

	assert.NoError(t, (&app{cache: cache.NewNullCache()}).Close())
}
