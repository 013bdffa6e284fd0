package issue

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/matzehuels/prerender/pkg/errors"
)

func TestNew(t *testing.T) {
	is := New("/blog/[slug]", "render_failure", "Error during rendering", "boom", "line 1")

	id, err := uuid.Parse(is.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "/blog/[slug]", is.Context)
	assert.WithinDuration(t, time.Now(), is.CreatedAt, time.Minute)
	assert.Equal(t, time.UTC, is.CreatedAt.Location())
}

func TestCollectorAndMulti(t *testing.T) {
	var a, b Collector
	var calls int
	sink := Multi(&a, nil, &b, SinkFunc(func(context.Context, Issue) { calls++ }))

	sink.Emit(context.Background(), New("x", "k", "t", "m", ""))
	sink.Emit(context.Background(), New("y", "k", "t", "m", ""))

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, calls)
	assert.Equal(t, "x", a.Issues()[0].Context)

	a.Reset()
	assert.Zero(t, a.Len())
	Discard.Emit(context.Background(), Issue{})
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{})
	LogSink{Logger: logger}.Emit(context.Background(), New("/about", "no_worker_output", "Error during rendering", "nothing", ""))

	out := buf.String()
	assert.Contains(t, out, "Error during rendering")
	assert.Contains(t, out, "/about")
	assert.Contains(t, out, "no_worker_output")
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "issues.db"), log.NewWithOptions(&bytes.Buffer{}, log.Options{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := New("/", "render_failure", "Error during rendering", "boom", "stack 1\nstack 2")
	first.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	second := New("/about", "non_string_result", "Error during rendering", "not a string", "RESULT=42")
	second.CreatedAt = first.CreatedAt.Add(time.Second)

	s.Emit(ctx, first)
	require.NoError(t, s.Save(ctx, second))
	require.NoError(t, s.Save(ctx, second), "duplicate ids are ignored")

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0], "newest first")
	assert.Equal(t, first, all[1])

	only, err := s.List(ctx, ListOptions{Context: "/"})
	require.NoError(t, err)
	assert.Equal(t, []Issue{first}, only)

	limited, err := s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "stack 1\nstack 2", got.Logs)

	_, err = s.Get(ctx, "missing")
	assert.True(t, perrors.Is(err, perrors.ErrCodeNotFound))

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	all, err = s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	is := New("/", "k", "t", strings.Repeat("m", 10), "")
	require.NoError(t, s.Save(context.Background(), is))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), is.ID)
	require.NoError(t, err)
	assert.Equal(t, is.Message, got.Message)
}
