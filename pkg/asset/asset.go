// Package asset models the compiled output artifacts of a build.
//
// An [Asset] is an immutable value: a destination [fs.Path] plus its
// [Content]. Two assets with equal content and destination are the same
// asset, and share one [ID]. Assets are stored in a [Graph] arena and
// referenced by ID everywhere else, so deduplication in traversals and memo
// tables is by content identity rather than by pointer.
//
// References between assets are either declared up front ([Graph.Link]) or
// produced lazily by a [ReferenceFunc] ([Graph.SetResolver]) the first time
// they are asked for. A resolver's output is remembered per asset.
package asset

import (
	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/fs"
)

// ID is the content-derived identity of an asset: a hex SHA-256 over its
// filesystem name, destination path, content type and bytes.
type ID string

// Short returns the first 12 characters of the ID, for log output.
func (id ID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// Content is the payload of an asset.
type Content struct {
	Data        []byte
	ContentType string // media type, e.g. "application/javascript"
}

// Asset is a build artifact destined for a path inside a filesystem.
type Asset struct {
	Path    fs.Path
	Content Content
}

// New returns an asset at p with the given content.
func New(p fs.Path, data []byte, contentType string) Asset {
	return Asset{Path: p, Content: Content{Data: data, ContentType: contentType}}
}

// ID computes the asset's identity.
func (a Asset) ID() ID {
	var fsName string
	if a.Path.FS != nil {
		fsName = a.Path.FS.Name()
	}
	return ID(cache.HashParts(
		[]byte(fsName),
		[]byte(fs.Clean(a.Path.Path)),
		[]byte(a.Content.ContentType),
		a.Content.Data,
	))
}
