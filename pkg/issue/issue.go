// Package issue carries render diagnostics out of band.
//
// When a worker fails to produce markup the caller still gets a page, and
// the details go to a [Sink] as an [Issue]. Sinks are fire-and-forget: a
// sink that cannot record an issue logs and moves on, it never fails the
// render that reported it.
//
// Sinks provided here:
//   - [LogSink] writes issues to a charmbracelet logger
//   - [Collector] keeps issues in memory (tests, the dev server)
//   - [Store] persists issues in SQLite for `prerender issues`
//   - [Multi] fans out to several sinks
package issue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Issue is one reported render failure.
type Issue struct {
	ID        string    `json:"id"`
	Context   string    `json:"context"` // what was being rendered
	Kind      string    `json:"kind"`    // machine-readable failure kind
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Logs      string    `json:"logs"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates an issue with a fresh time-ordered ID.
func New(subject, kind, title, message, logs string) Issue {
	return Issue{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Context:   subject,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Logs:      logs,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink receives issues.
type Sink interface {
	Emit(ctx context.Context, is Issue)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, is Issue)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, is Issue) { f(ctx, is) }

// Discard drops every issue.
var Discard Sink = SinkFunc(func(context.Context, Issue) {})

// Multi returns a sink that emits to each non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Emit(ctx context.Context, is Issue) {
	for _, s := range m {
		s.Emit(ctx, is)
	}
}

// LogSink logs issues at error level.
type LogSink struct {
	Logger *log.Logger
}

// Emit implements Sink.
func (s LogSink) Emit(_ context.Context, is Issue) {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Error(is.Title, "context", is.Context, "kind", is.Kind, "message", is.Message, "id", is.ID)
}

// Collector keeps issues in memory. The zero value is ready to use.
type Collector struct {
	mu     sync.Mutex
	issues []Issue
}

// Emit implements Sink.
func (c *Collector) Emit(_ context.Context, is Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, is)
}

// Issues returns a copy of the collected issues in emission order.
func (c *Collector) Issues() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.issues)
}

// Len returns the number of collected issues.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issues)
}

// Reset drops all collected issues.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = nil
}
