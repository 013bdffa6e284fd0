// Package pipeline renders entries to HTML through worker processes.
//
// This package implements the complete chunk → partition → emit → render
// flow that is used by the CLI and the dev server. By centralizing it, both
// entry points share one failure policy and one result cache.
//
// # Architecture
//
// A render goes through these stages:
//
//  1. Chunk: a [Chunker] turns the entry module into an intermediate asset
//     (the bootstrap at <output root>/index.js and everything it references)
//  2. Pool: the worker manager partitions and emits that asset, then hands
//     out the pool running the bootstrap
//  3. Exchange: the request data is sent as one JSON line; the response lines
//     are read off the caller's goroutine
//  4. Interpret: [ParseResponse] turns the lines into markup or a failure
//
// # Failures
//
// Broken builds (a virtual output root, a failed reference fetch, a failed
// write, a worker that cannot be started) are returned as errors. A worker
// that answers without usable markup is not an error: the caller gets an
// [ErrorPage] with the diagnostic, and the same diagnostic is reported once
// to the issue sink.
//
// # Usage
//
//	runner := pipeline.NewRunner(manager, chunker, cache, nil, logger)
//	result, err := runner.Render(ctx, pipeline.Request{
//	    Path:       "/blog/hello",
//	    Entry:      "pages/blog/[slug]",
//	    OutputRoot: fs.NewPath(disk, ".next/server"),
//	    Data:       map[string]any{"slug": "hello"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w.Header().Set("Content-Type", result.ContentType)
//	io.WriteString(w, result.HTML)
package pipeline

import (
	"context"
	"time"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/issue"
)

// ContentTypeHTML is the content type of every render result.
const ContentTypeHTML = "text/html; charset=utf-8"

// DefaultCacheTTL is how long successful renders stay in the result cache.
const DefaultCacheTTL = 10 * time.Minute

// Chunker turns an entry module into the intermediate asset a worker pool
// executes. The asset must be placed at <OutputRoot>/index.js.
type Chunker interface {
	Chunk(ctx context.Context, req ChunkRequest) (asset.ID, error)
}

// ChunkerFunc adapts a function to Chunker.
type ChunkerFunc func(ctx context.Context, req ChunkRequest) (asset.ID, error)

// Chunk calls f.
func (f ChunkerFunc) Chunk(ctx context.Context, req ChunkRequest) (asset.ID, error) {
	return f(ctx, req)
}

// ChunkRequest is what a Chunker is asked to build.
type ChunkRequest struct {
	Entry          string
	RuntimeEntries []string
	OutputRoot     fs.Path
}

// Request describes one render.
type Request struct {
	// Path is the request path being rendered. Issues are reported against
	// it; when empty the entry name is used.
	Path string

	// Entry names the entry module.
	Entry string

	// RuntimeEntries are modules evaluated before the entry.
	RuntimeEntries []string

	// Chunker overrides the runner's chunker for this request.
	Chunker Chunker

	// OutputRoot is the directory compiled assets are emitted into. It must
	// be disk-backed.
	OutputRoot fs.Path

	// Data is serialized to JSON and sent to the worker. nil sends null.
	Data any

	// NoCache skips the result cache for this request.
	NoCache bool
}

// Validate checks the request before any work is done.
func (r Request) Validate() error {
	if err := errors.ValidateEntryName(r.Entry); err != nil {
		return err
	}
	if r.OutputRoot.FS == nil {
		return errors.New(errors.ErrCodeInvalidInput, "output root is required")
	}
	return nil
}

func (r Request) subject() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Entry
}

// Result is the outcome of a render. HTML is always a complete document:
// the worker's markup on success, an error page otherwise.
type Result struct {
	HTML        string
	ContentType string
	Entry       asset.ID
	Issue       *issue.Issue // set when the worker failed
	Cached      bool
	Duration    time.Duration
}

// OK reports whether the worker produced the markup.
func (r *Result) OK() bool { return r.Issue == nil }
