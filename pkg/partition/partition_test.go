package partition

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/prerender/pkg/asset"
	perrors "github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
)

type fixture struct {
	t   *testing.T
	g   *asset.Graph
	mem *fs.Memory
	ids map[string]asset.ID
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, g: asset.NewGraph(), mem: fs.NewMemory("build"), ids: make(map[string]asset.ID)}
}

func (f *fixture) add(paths ...string) {
	for _, p := range paths {
		f.ids[p] = f.g.Add(asset.New(fs.NewPath(f.mem, p), []byte("// "+p), "application/javascript"))
	}
}

func (f *fixture) link(from string, to ...string) {
	ids := make([]asset.ID, len(to))
	for i, p := range to {
		ids[i] = f.ids[p]
	}
	require.NoError(f.t, f.g.Link(f.ids[from], ids...))
}

func (f *fixture) set(paths ...string) []asset.ID {
	out := make([]asset.ID, 0, len(paths))
	for _, p := range paths {
		out = append(out, f.ids[p])
	}
	slices.Sort(out)
	return out
}

func (f *fixture) root() fs.Path { return fs.NewPath(f.mem, "out/server") }

// countingSource wraps a graph and records reference fetches.
type countingSource struct {
	*asset.Graph

	mu    sync.Mutex
	calls map[asset.ID]int
	fail  map[asset.ID]error
	delay func() time.Duration

	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func newCounting(g *asset.Graph) *countingSource {
	return &countingSource{Graph: g, calls: make(map[asset.ID]int), fail: make(map[asset.ID]error)}
}

func (s *countingSource) References(ctx context.Context, id asset.ID) ([]asset.ID, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls[id]++
	err := s.fail[id]
	delay := s.delay
	s.mu.Unlock()

	if delay != nil {
		time.Sleep(delay())
	}
	if err != nil {
		return nil, err
	}
	return s.Graph.References(ctx, id)
}

func (s *countingSource) count(id asset.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *countingSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// app builds: index -> {a, b}, a -> {b, react}, b -> {a}, react -> {c}.
func app(t *testing.T) *fixture {
	f := newFixture(t)
	f.add(
		"out/server/index.js",
		"out/server/a.js",
		"out/server/b.js",
		"node_modules/react/index.js",
		"out/server/c.js",
	)
	f.link("out/server/index.js", "out/server/a.js", "out/server/b.js")
	f.link("out/server/a.js", "out/server/b.js", "node_modules/react/index.js")
	f.link("out/server/b.js", "out/server/a.js")
	f.link("node_modules/react/index.js", "out/server/c.js")
	return f
}

func TestPartitionClassifies(t *testing.T) {
	f := app(t)
	src := newCounting(f.g)
	p := New(src, Options{})

	res, err := p.Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)

	if diff := cmp.Diff(f.set("out/server/index.js", "out/server/a.js", "out/server/b.js"), res.Internal); diff != "" {
		t.Errorf("internal mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(f.set("node_modules/react/index.js"), res.External); diff != "" {
		t.Errorf("external mismatch (-want +got):\n%s", diff)
	}

	assert.Zero(t, src.count(f.ids["node_modules/react/index.js"]), "external references are never fetched")
	assert.False(t, res.IsInternal(f.ids["out/server/c.js"]), "assets behind the boundary are not reached")
	assert.False(t, res.IsExternal(f.ids["out/server/c.js"]))
	for _, id := range res.Internal {
		assert.Equal(t, 1, src.count(id), "each internal asset is fetched exactly once")
	}
	assert.Len(t, res.Edges, 5)
}

func TestPartitionDisjointAndComplete(t *testing.T) {
	f := app(t)
	res, err := New(f.g, Options{}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)

	seen := make(map[asset.ID]int)
	for _, id := range res.Internal {
		seen[id]++
	}
	for _, id := range res.External {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "asset %s appears in both sets", id.Short())
	}

	// Every edge starts in Internal and ends in one of the two sets.
	for _, e := range res.Edges {
		assert.True(t, res.IsInternal(e.From))
		assert.True(t, res.IsInternal(e.To) || res.IsExternal(e.To))
	}
	assert.Len(t, seen, 4)
}

func TestPartitionExternalEntry(t *testing.T) {
	f := newFixture(t)
	f.add("lib/entry.js", "out/server/chunk.js")
	f.link("lib/entry.js", "out/server/chunk.js")
	src := newCounting(f.g)

	res, err := New(src, Options{}).Partition(context.Background(), f.ids["lib/entry.js"], f.root())
	require.NoError(t, err)

	assert.Empty(t, res.Internal)
	assert.Equal(t, f.set("lib/entry.js"), res.External)
	assert.Zero(t, src.total())
}

func TestPartitionSiblingDirectoryIsExternal(t *testing.T) {
	f := newFixture(t)
	f.add("out/server/index.js", "out/server2/x.js", "out/server/nested/y.js")
	f.link("out/server/index.js", "out/server2/x.js", "out/server/nested/y.js")

	res, err := New(f.g, Options{}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)

	assert.Equal(t, f.set("out/server/index.js", "out/server/nested/y.js"), res.Internal)
	assert.Equal(t, f.set("out/server2/x.js"), res.External)
}

func TestPartitionOtherFilesystemIsExternal(t *testing.T) {
	f := newFixture(t)
	f.add("out/server/index.js")
	other := f.g.Add(asset.New(fs.NewPath(fs.NewMemory("elsewhere"), "out/server/shared.js"), nil, ""))
	require.NoError(t, f.g.Link(f.ids["out/server/index.js"], other))

	res, err := New(f.g, Options{}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)
	assert.Equal(t, []asset.ID{other}, res.External)
}

func TestPartitionOrderIndependent(t *testing.T) {
	f := newFixture(t)
	f.add("out/server/index.js")
	var leaves []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		p := "out/server/" + name + ".js"
		ext := "vendor/" + name + ".js"
		f.add(p, ext)
		f.link("out/server/index.js", p)
		f.link(p, ext)
		leaves = append(leaves, p)
	}
	// Cross links so assets are reachable along several paths.
	for i := range leaves {
		f.link(leaves[i], leaves[(i+3)%len(leaves)])
	}

	var want *Result
	for i := range 20 {
		src := newCounting(f.g)
		rng := rand.New(rand.NewPCG(uint64(i), 7))
		var rmu sync.Mutex
		src.delay = func() time.Duration {
			rmu.Lock()
			defer rmu.Unlock()
			return time.Duration(rng.IntN(500)) * time.Microsecond
		}

		got, err := New(src, Options{Concurrency: 1 + i%4}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
		require.NoError(t, err)
		if want == nil {
			want = got
			continue
		}
		if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b fs.Path) bool { return a.String() == b.String() })); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
	assert.Len(t, want.Internal, 9)
	assert.Len(t, want.External, 8)
}

func TestPartitionBoundsConcurrency(t *testing.T) {
	f := newFixture(t)
	f.add("out/server/index.js")
	for i := range 12 {
		p := "out/server/chunk" + string(rune('a'+i)) + ".js"
		f.add(p)
		f.link("out/server/index.js", p)
	}
	src := newCounting(f.g)
	src.delay = func() time.Duration { return 2 * time.Millisecond }

	_, err := New(src, Options{Concurrency: 2}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)
	assert.LessOrEqual(t, src.maxSeen.Load(), int32(2))
	assert.Equal(t, 13, src.total())
}

func TestResultFingerprint(t *testing.T) {
	build := func(page string) (asset.ID, *Result) {
		t.Helper()
		f := newFixture(t)
		f.add("out/server/index.js", "node_modules/react.js")
		f.ids["out/server/page.js"] = f.g.Add(asset.New(fs.NewPath(f.mem, "out/server/page.js"), []byte(page), "application/javascript"))
		f.link("out/server/index.js", "out/server/page.js")
		f.link("out/server/page.js", "node_modules/react.js")
		entry := f.ids["out/server/index.js"]
		res, err := New(f.g, Options{}).Partition(context.Background(), entry, f.root())
		require.NoError(t, err)
		return entry, res
	}

	entryA, a := build("render v1")
	_, again := build("render v1")
	entryB, b := build("render v2")

	assert.Equal(t, entryA, entryB, "the entry asset does not change when a chunk is rebuilt")
	assert.Equal(t, a.Fingerprint(), again.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestPartitionMemoized(t *testing.T) {
	f := app(t)
	src := newCounting(f.g)
	p := New(src, Options{})
	entry := f.ids["out/server/index.js"]

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := p.Partition(context.Background(), entry, f.root())
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 3, src.total(), "one traversal for all callers")

	// A different root is a different key.
	_, err := p.Partition(context.Background(), entry, fs.NewPath(f.mem, "out"))
	require.NoError(t, err)
	assert.Greater(t, src.total(), 3)
}

func TestPartitionFetchError(t *testing.T) {
	f := app(t)
	src := newCounting(f.g)
	boom := errors.New("bundler crashed")
	src.fail[f.ids["out/server/b.js"]] = boom
	p := New(src, Options{})
	entry := f.ids["out/server/index.js"]

	_, err := p.Partition(context.Background(), entry, f.root())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrCodeGraphFetch))
	assert.ErrorIs(t, err, boom)

	// Failures are not memoized.
	src.mu.Lock()
	delete(src.fail, f.ids["out/server/b.js"])
	src.mu.Unlock()
	res, err := p.Partition(context.Background(), entry, f.root())
	require.NoError(t, err)
	assert.Len(t, res.Internal, 3)
}

func TestPartitionUnknownEntry(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.g, Options{}).Partition(context.Background(), asset.ID("nope"), f.root())
	assert.True(t, perrors.Is(err, perrors.ErrCodeUnknownAsset))
}

func TestPartitionLazyReferences(t *testing.T) {
	f := newFixture(t)
	f.add("out/server/index.js")
	lazy := asset.New(fs.NewPath(f.mem, "out/server/lazy.js"), []byte("lazy"), "")
	require.NoError(t, f.g.SetResolver(f.ids["out/server/index.js"], func(context.Context) ([]asset.Asset, error) {
		return []asset.Asset{lazy}, nil
	}))

	res, err := New(f.g, Options{}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)
	assert.True(t, res.IsInternal(lazy.ID()))
}

func TestToDOT(t *testing.T) {
	f := app(t)
	res, err := New(f.g, Options{}).Partition(context.Background(), f.ids["out/server/index.js"], f.root())
	require.NoError(t, err)

	dot := ToDOT(res, f.g)
	assert.True(t, strings.HasPrefix(dot, "digraph G {"))
	assert.Contains(t, dot, `label="/out/server/a.js"`)
	assert.Contains(t, dot, `label="/node_modules/react/index.js", style="rounded,filled,dashed"`)
	assert.Contains(t, dot, "penwidth=2")
	assert.NotContains(t, dot, "c.js")
	assert.Equal(t, len(res.Edges), strings.Count(dot, " -> "))
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" viewBox="0.00 0.00 120.40 80.00"><g/></svg>`)
	out := string(normalizeViewBox(in))
	assert.Contains(t, out, `viewBox="0 0 120.40 80.00"`)
	assert.Contains(t, out, `width="120"`)

	plain := []byte("<svg><g/></svg>")
	assert.Equal(t, plain, normalizeViewBox(plain))
}
