package manifest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"sync"
	"text/template"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
	"github.com/matzehuels/prerender/pkg/pipeline"
)

// BootstrapName is the file name of the generated worker entrypoint.
const BootstrapName = "index.js"

//go:embed bootstrap.js.tmpl
var bootstrapSrc string

var bootstrapTmpl = template.Must(template.New("bootstrap").Funcs(template.FuncMap{
	"quote": func(s string) (string, error) {
		b, err := json.Marshal(s)
		return string(b), err
	},
}).Parse(bootstrapSrc))

type bootstrapData struct {
	Runtime []string
	Entry   string
	Export  string
}

// Chunker serves a manifest's entries to the render pipeline.
//
// For each output root it is asked about, it places the manifest's assets
// under that root in its graph (external assets at the filesystem root),
// then generates a bootstrap script at <output root>/index.js that loads the
// runtime entries and the entry's chunks and speaks the worker protocol on
// stdin/stdout. Distinct entries should use distinct output roots: the
// worker pool for a root runs whichever bootstrap was emitted there first.
type Chunker struct {
	m        *Manifest
	graph    *asset.Graph
	contents map[string]asset.Content

	mu     sync.Mutex
	placed map[string]map[string]asset.ID // root -> manifest path -> id
}

// NewChunker reads the manifest's sources and returns a chunker that adds
// assets to g.
func NewChunker(ctx context.Context, m *Manifest, g *asset.Graph) (*Chunker, error) {
	contents, err := m.readSources(ctx)
	if err != nil {
		return nil, err
	}
	return &Chunker{m: m, graph: g, contents: contents, placed: make(map[string]map[string]asset.ID)}, nil
}

// Graph returns the graph assets are placed in.
func (c *Chunker) Graph() *asset.Graph { return c.graph }

// Place adds the manifest's assets under root and links their references.
// It returns the IDs keyed by manifest path. Placing the same root twice is
// a no-op.
func (c *Chunker) Place(root fs.Path) (map[string]asset.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := root.String()
	if ids, ok := c.placed[key]; ok {
		return ids, nil
	}

	ids := make(map[string]asset.ID, len(c.m.Assets))
	for _, spec := range c.m.Assets {
		p := fs.Clean(spec.Path)
		dest := root.Join(p)
		if spec.External {
			dest = fs.NewPath(root.FS, p)
		}
		ids[p] = c.graph.Add(asset.Asset{Path: dest, Content: c.contents[p]})
	}
	for _, spec := range c.m.Assets {
		refs := make([]asset.ID, 0, len(spec.References))
		for _, r := range spec.References {
			refs = append(refs, ids[fs.Clean(r)])
		}
		if err := c.graph.Link(ids[fs.Clean(spec.Path)], refs...); err != nil {
			return nil, err
		}
	}
	c.placed[key] = ids
	return ids, nil
}

// Chunk implements pipeline.Chunker.
func (c *Chunker) Chunk(ctx context.Context, req pipeline.ChunkRequest) (asset.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.OutputRoot.FS == nil {
		return "", errors.New(errors.ErrCodeInvalidInput, "output root is required")
	}
	entry, ok := c.m.Entries[req.Entry]
	if !ok {
		return "", errors.New(errors.ErrCodeUnknownEntry, "unknown entry %q", req.Entry)
	}
	for _, name := range req.RuntimeEntries {
		if _, ok := c.m.Entries[name]; !ok {
			return "", errors.New(errors.ErrCodeUnknownEntry, "unknown runtime entry %q", name)
		}
	}

	ids, err := c.Place(req.OutputRoot)
	if err != nil {
		return "", err
	}

	data := bootstrapData{Export: entry.Export}
	if data.Export == "" {
		data.Export = "default"
	}
	var refs []asset.ID
	for _, name := range req.RuntimeEntries {
		for _, chunk := range c.m.Entries[name].Chunks {
			data.Runtime = append(data.Runtime, "./"+fs.Clean(chunk))
			refs = append(refs, ids[fs.Clean(chunk)])
		}
	}
	for i, chunk := range entry.Chunks {
		rel := "./" + fs.Clean(chunk)
		if i < len(entry.Chunks)-1 {
			data.Runtime = append(data.Runtime, rel)
		} else {
			data.Entry = rel
		}
		refs = append(refs, ids[fs.Clean(chunk)])
	}

	var buf bytes.Buffer
	if err := bootstrapTmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "generate bootstrap for %s", req.Entry)
	}

	boot := asset.New(req.OutputRoot.Join(BootstrapName), buf.Bytes(), "application/javascript")
	if _, ok := c.graph.Asset(boot.ID()); ok {
		return boot.ID(), nil
	}
	id := c.graph.Add(boot)
	if err := c.graph.Link(id, refs...); err != nil {
		return "", err
	}
	return id, nil
}

var _ pipeline.Chunker = (*Chunker)(nil)

// RootFor returns the conventional output root for entry under out: one
// directory per entry, so that each entry gets its own bootstrap and pool.
func RootFor(out fs.Path, entry string) fs.Path {
	return out.Join(entry)
}
