// Package manifest loads build manifests: the list of compiled assets and
// named entries produced by an external bundler.
//
// A manifest is TOML, YAML or JSON, chosen by file extension:
//
//	[[assets]]
//	path = "pages/about.js"
//	source = "build/pages/about.js"
//	content_type = "application/javascript"
//	references = ["chunks/shared.js", "node_modules/react/index.js"]
//
//	[[assets]]
//	path = "node_modules/react/index.js"
//	source = "node_modules/react/index.js"
//	external = true
//
//	[entries.about]
//	chunks = ["pages/about.js"]
//
// Asset paths are destinations relative to the output root of a render,
// except for assets marked external, which are relative to the filesystem
// root. Sources are files relative to the manifest. [Chunker] places the
// assets under each requested output root in an [asset.Graph] and serves the
// manifest's entries to the render pipeline.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/fs"
)

// Manifest is a decoded build manifest.
type Manifest struct {
	Assets  []AssetSpec          `toml:"assets" yaml:"assets" json:"assets"`
	Entries map[string]EntrySpec `toml:"entries" yaml:"entries" json:"entries"`

	// Dir resolves relative Source paths. Load sets it to the manifest's
	// directory.
	Dir string `toml:"-" yaml:"-" json:"-"`
}

// AssetSpec declares one compiled asset. Exactly one of Source and Content
// is set.
type AssetSpec struct {
	Path        string   `toml:"path" yaml:"path" json:"path"`
	Source      string   `toml:"source" yaml:"source" json:"source,omitempty"`
	Content     string   `toml:"content" yaml:"content" json:"content,omitempty"`
	ContentType string   `toml:"content_type" yaml:"content_type" json:"content_type,omitempty"`
	References  []string `toml:"references" yaml:"references" json:"references,omitempty"`

	// External assets live relative to the filesystem root rather than the
	// output root (e.g. installed packages). They are never emitted.
	External bool `toml:"external" yaml:"external" json:"external,omitempty"`
}

// EntrySpec declares a renderable entry.
type EntrySpec struct {
	// Chunks are loaded in order; the last one provides the render export.
	Chunks []string `toml:"chunks" yaml:"chunks" json:"chunks"`

	// Export names the render function (default "default").
	Export string `toml:"export" yaml:"export" json:"export,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest")
	}
	m, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "resolve manifest directory")
	}
	m.Dir = abs
	return m, nil
}

// Parse decodes and validates a manifest. ext selects the format: ".toml",
// ".yaml", ".yml" or ".json".
func Parse(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	default:
		return nil, errors.New(errors.ErrCodeInvalidManifest, "unsupported manifest format %q", ext)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks paths, references and entries.
func (m *Manifest) Validate() error {
	declared := make(map[string]bool, len(m.Assets))
	for i, a := range m.Assets {
		if err := errors.ValidatePath(a.Path); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "asset %d", i)
		}
		p := fs.Clean(a.Path)
		if declared[p] {
			return errors.New(errors.ErrCodeInvalidManifest, "asset %s declared twice", p)
		}
		declared[p] = true
		if a.Source != "" && a.Content != "" {
			return errors.New(errors.ErrCodeInvalidManifest, "asset %s sets both source and content", p)
		}
	}
	for _, a := range m.Assets {
		for _, ref := range a.References {
			if !declared[fs.Clean(ref)] {
				return errors.New(errors.ErrCodeInvalidManifest, "asset %s references undeclared %s", fs.Clean(a.Path), ref)
			}
		}
	}
	external := make(map[string]bool)
	for _, a := range m.Assets {
		if a.External {
			external[fs.Clean(a.Path)] = true
		}
	}
	for name, e := range m.Entries {
		if err := errors.ValidateEntryName(name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "entry %q", name)
		}
		if len(e.Chunks) == 0 {
			return errors.New(errors.ErrCodeInvalidManifest, "entry %q has no chunks", name)
		}
		for _, c := range e.Chunks {
			if !declared[fs.Clean(c)] {
				return errors.New(errors.ErrCodeInvalidManifest, "entry %q uses undeclared chunk %s", name, c)
			}
			if external[fs.Clean(c)] {
				return errors.New(errors.ErrCodeInvalidManifest, "entry %q uses external chunk %s", name, c)
			}
		}
	}
	return nil
}

// EntryNames returns the declared entries, sorted.
func (m *Manifest) EntryNames() []string {
	names := make([]string, 0, len(m.Entries))
	for name := range m.Entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// readSources loads every asset's content, keyed by cleaned path.
func (m *Manifest) readSources(ctx context.Context) (map[string]asset.Content, error) {
	out := make(map[string]asset.Content, len(m.Assets))
	for _, spec := range m.Assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data := []byte(spec.Content)
		if spec.Source != "" {
			src := spec.Source
			if !filepath.IsAbs(src) {
				src = filepath.Join(m.Dir, src)
			}
			var err error
			if data, err = os.ReadFile(src); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read source of %s", spec.Path)
			}
		}
		contentType := spec.ContentType
		if contentType == "" {
			contentType = guessContentType(spec.Path)
		}
		out[fs.Clean(spec.Path)] = asset.Content{Data: data, ContentType: contentType}
	}
	return out, nil
}

func guessContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".js", ".mjs", ".cjs":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".css":
		return "text/css"
	case ".html":
		return "text/html"
	case ".map":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
