// Package pkg provides the libraries behind prerender.
//
// # Overview
//
// prerender turns the server-side output of a bundler into HTML. Given an
// entry and an output root it decides which compiled assets belong to the
// entry, writes them, and renders the entry in a pooled worker process:
//
//	build manifest
//	     ↓
//	[manifest] chunker (places assets, synthesizes the bootstrap)
//	     ↓
//	[partition] internal vs external assets under the output root
//	     ↓
//	[emit] write internal assets exactly once
//	     ↓
//	[worker] process pool per materialized entrypoint
//	     ↓
//	[pipeline] request, parse response, fall back to an error page
//
// Supporting packages:
//
//   - [asset]: content-addressed assets and the reference graph
//   - [cache]: keyed memoization, render result caches (file, redis)
//   - [fs]: filesystem abstraction and path containment
//   - [issue]: render failure reports, persisted in SQLite
//   - [config]: project configuration
//   - [server]: HTTP front end for the pipeline
//   - [errors]: coded errors shared by all packages
//   - [observability]: hook registry for metrics and tracing
//
// # Quick Start
//
//	m, _ := manifest.Load("prerender.manifest.toml")
//	g := asset.NewGraph()
//	chunker, _ := manifest.NewChunker(ctx, m, g)
//
//	disk, _ := fs.NewDisk(".")
//	pools := worker.NewManager(emit.New(partition.New(g, partition.Options{}), emit.Options{}), worker.ManagerOptions{})
//	defer pools.Close()
//
//	runner := pipeline.NewRunner(pools, chunker, nil, nil, nil)
//	res, err := runner.Render(ctx, pipeline.Request{
//	    Entry:      "home",
//	    OutputRoot: manifest.RootFor(fs.NewPath(disk, "out"), "home"),
//	    Data:       map[string]any{"title": "Home"},
//	})
//
// [asset]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/asset
// [cache]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/config
// [emit]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/emit
// [errors]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/errors
// [fs]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/fs
// [issue]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/issue
// [manifest]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/manifest
// [observability]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/observability
// [partition]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/partition
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/pipeline
// [server]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/server
// [worker]: https://pkg.go.dev/github.com/matzehuels/prerender/pkg/worker
package pkg
