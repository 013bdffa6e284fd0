package emit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/prerender/pkg/asset"
	perrors "github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/partition"
)

// recordingFS counts writes per path and can hold or fail them.
type recordingFS struct {
	*fs.Memory

	mu     sync.Mutex
	writes map[string]int
	fail   map[string]error
	delay  time.Duration
	active atomic.Int32
}

func newRecordingFS() *recordingFS {
	return &recordingFS{Memory: fs.NewMemory("out"), writes: make(map[string]int), fail: make(map[string]error)}
}

func (r *recordingFS) WriteFile(ctx context.Context, p string, data []byte) error {
	r.active.Add(1)
	defer r.active.Add(-1)

	r.mu.Lock()
	r.writes[p]++
	err := r.fail[p]
	r.mu.Unlock()

	time.Sleep(r.delay)
	if err != nil {
		return err
	}
	return r.Memory.WriteFile(ctx, p, data)
}

func (r *recordingFS) count(p string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[p]
}

type site struct {
	fsys  *recordingFS
	g     *asset.Graph
	entry asset.ID
	root  fs.Path
}

func newSite(t *testing.T) *site {
	fsys := newRecordingFS()
	g := asset.NewGraph()
	add := func(p, body string) asset.ID {
		return g.Add(asset.New(fs.NewPath(fsys, p), []byte(body), "application/javascript"))
	}
	entry := add("server/index.js", "require('./page')")
	page := add("server/page.js", "module.exports = 1")
	shared := add("server/chunks/shared.js", "shared")
	vendor := add("vendor/react.js", "react")
	require.NoError(t, g.Link(entry, page, shared))
	require.NoError(t, g.Link(page, shared, vendor))
	return &site{fsys: fsys, g: g, entry: entry, root: fs.NewPath(fsys, "server")}
}

func TestEmitWritesInternalOnly(t *testing.T) {
	s := newSite(t)
	e := New(partition.New(s.g, partition.Options{}), Options{})

	require.NoError(t, e.Emit(context.Background(), s.entry, s.root))

	assert.Equal(t, []string{"server/chunks/shared.js", "server/index.js", "server/page.js"}, s.fsys.Files())
	data, err := s.fsys.ReadFile(context.Background(), "server/page.js")
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1", string(data))
	assert.Zero(t, s.fsys.count("vendor/react.js"))
}

func TestEmitExactlyOnce(t *testing.T) {
	s := newSite(t)
	s.fsys.delay = 5 * time.Millisecond
	e := New(partition.New(s.g, partition.Options{}), Options{})

	const callers = 16
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Emit(context.Background(), s.entry, s.root))
			// Completion is only observed once every write is done.
			assert.Len(t, s.fsys.Files(), 3)
			assert.Zero(t, s.fsys.active.Load())
		}()
	}
	wg.Wait()

	for _, p := range []string{"server/index.js", "server/page.js", "server/chunks/shared.js"} {
		assert.Equal(t, 1, s.fsys.count(p), "write count for %s", p)
	}

	sum, err := e.EmitSummary(context.Background(), s.entry, s.root)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Written)
	assert.Equal(t, 1, s.fsys.count("server/index.js"), "later callers reuse the completed pass")
}

func TestEmitExternalEntryWritesNothing(t *testing.T) {
	s := newSite(t)
	e := New(partition.New(s.g, partition.Options{}), Options{})

	sum, err := e.EmitSummary(context.Background(), s.entry, fs.NewPath(s.fsys, "client"))
	require.NoError(t, err)
	assert.Zero(t, sum.Written)
	assert.Empty(t, s.fsys.Files())
}

func TestEmitWriteFailure(t *testing.T) {
	s := newSite(t)
	diskFull := errors.New("no space left on device")
	s.fsys.fail["server/page.js"] = diskFull
	e := New(partition.New(s.g, partition.Options{}), Options{Concurrency: 1})

	err := e.Emit(context.Background(), s.entry, s.root)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrCodeWriteFailed))
	assert.True(t, perrors.IsInfrastructure(err))
	assert.ErrorIs(t, err, diskFull)

	// Retrying rewrites everything and succeeds once the fault is gone.
	s.fsys.mu.Lock()
	delete(s.fsys.fail, "server/page.js")
	s.fsys.mu.Unlock()
	require.NoError(t, e.Emit(context.Background(), s.entry, s.root))
	assert.Equal(t, 2, s.fsys.count("server/page.js"))
	assert.Len(t, s.fsys.Files(), 3)
}

func TestEmitPropagatesGraphFetch(t *testing.T) {
	s := newSite(t)
	broken := errors.New("chunking failed")
	require.NoError(t, s.g.SetResolver(s.entry, func(context.Context) ([]asset.Asset, error) {
		return nil, broken
	}))
	e := New(partition.New(s.g, partition.Options{}), Options{})

	err := e.Emit(context.Background(), s.entry, s.root)
	assert.True(t, perrors.Is(err, perrors.ErrCodeGraphFetch))
	assert.Empty(t, s.fsys.Files(), "no writes happen when partitioning fails")
}

func TestEmitForget(t *testing.T) {
	s := newSite(t)
	e := New(partition.New(s.g, partition.Options{}), Options{})

	require.NoError(t, e.Emit(context.Background(), s.entry, s.root))
	e.Forget(s.entry, s.root)
	require.NoError(t, e.Emit(context.Background(), s.entry, s.root))
	assert.Equal(t, 2, s.fsys.count("server/index.js"))
}
