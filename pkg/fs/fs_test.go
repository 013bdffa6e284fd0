package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"out/server", "out/server"},
		{"/out/server/", "out/server"},
		{"out//server/./index.js", "out/server/index.js"},
		{"out/x/../server", "out/server"},
		{"../escape", "escape"},
		// "é" decomposed (e + combining acute) becomes the composed form.
		{"café/a.js", "café/a.js"},
	}

	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPathIsInside(t *testing.T) {
	out := NewMemory("out")
	other := NewMemory("other")
	root := NewPath(out, "server")

	tests := []struct {
		name string
		p    Path
		want bool
	}{
		{"direct child", NewPath(out, "server/index.js"), true},
		{"nested child", NewPath(out, "server/chunks/a.js"), true},
		{"the root itself", NewPath(out, "server"), true},
		{"sibling with shared prefix", NewPath(out, "server2/index.js"), false},
		{"parent", NewPath(out, ""), false},
		{"unrelated", NewPath(out, "static/app.js"), false},
		{"other filesystem", NewPath(other, "server/index.js"), false},
		{"unnormalized", Path{FS: out, Path: "server/./x/../index.js"}, true},
		{"decomposed unicode", NewPath(out, "server/café.js"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.IsInside(root))
		})
	}

	assert.True(t, NewPath(out, "anything").IsInside(NewPath(out, "")), "everything is inside the fs root")
}

func TestPathRelAndJoin(t *testing.T) {
	m := NewMemory("out")
	root := NewPath(m, "server")

	p := root.Join("chunks", "a.js")
	assert.Equal(t, "server/chunks/a.js", p.Path)
	assert.Equal(t, "a.js", p.Base())
	assert.Equal(t, "server/chunks", p.Dir().Path)

	rel, ok := p.Rel(root)
	require.True(t, ok)
	assert.Equal(t, "chunks/a.js", rel)

	_, ok = NewPath(m, "static/x.js").Rel(root)
	assert.False(t, ok)

	rel, ok = p.Rel(NewPath(m, ""))
	require.True(t, ok)
	assert.Equal(t, "server/chunks/a.js", rel)
}

func TestResolveDiskRoot(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)

	root, ok := ResolveDiskRoot(d)
	require.True(t, ok)
	assert.Equal(t, dir, root)

	_, ok = ResolveDiskRoot(NewMemory("virtual"))
	assert.False(t, ok, "memory filesystems are not disk-backed")
}

func TestDiskReadWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)

	p := NewPath(d, "server/chunks/a.js")
	require.NoError(t, p.WriteFile(ctx, []byte("module.exports = 1")))

	data, err := os.ReadFile(filepath.Join(dir, "server", "chunks", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1", string(data))

	got, err := p.ReadFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = NewPath(d, "missing.js").ReadFile(ctx)
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("test")

	buf := []byte("hello")
	require.NoError(t, m.WriteFile(ctx, "/a/b.txt", buf))
	buf[0] = 'j' // stored data must be a copy

	got, err := m.ReadFile(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, []string{"a/b.txt"}, m.Files())

	_, err = m.ReadFile(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestWriteRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemory("x").WriteFile(ctx, "a", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
