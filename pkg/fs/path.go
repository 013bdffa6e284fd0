package fs

import (
	"context"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Path is a location inside a FileSystem. The zero value is not usable.
type Path struct {
	FS   FileSystem
	Path string // slash-separated, relative to FS root, "" for the root itself
}

// NewPath returns the normalized path p inside fsys.
func NewPath(fsys FileSystem, p string) Path {
	return Path{FS: fsys, Path: Clean(p)}
}

// Clean normalizes a root-relative path: Unicode NFC, slash-cleaned, no
// leading slash, and "" for the root. Paths that name the same file compare
// equal after Clean even if one came from a decomposing filesystem.
func Clean(p string) string {
	p = norm.NFC.String(p)
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Join returns the path with elem appended.
func (p Path) Join(elem ...string) Path {
	return NewPath(p.FS, path.Join(append([]string{p.Path}, elem...)...))
}

// Dir returns the parent directory of p.
func (p Path) Dir() Path {
	return NewPath(p.FS, path.Dir(p.Path))
}

// Base returns the last element of p.
func (p Path) Base() string { return path.Base(p.Path) }

// Rel returns p relative to dir. ok is false when p is not inside dir.
func (p Path) Rel(dir Path) (string, bool) {
	if !p.IsInside(dir) {
		return "", false
	}
	if dir.Path == "" {
		return p.Path, true
	}
	return strings.TrimPrefix(strings.TrimPrefix(p.Path, dir.Path), "/"), true
}

// IsInside reports whether p lies within dir on the same filesystem.
// Containment is decided on normalized paths with a separator boundary, so
// "out/server2/x.js" is not inside "out/server". A directory counts as being
// inside itself.
func (p Path) IsInside(dir Path) bool {
	if p.FS == nil || dir.FS == nil || p.FS.Name() != dir.FS.Name() {
		return false
	}
	a, d := Clean(p.Path), Clean(dir.Path)
	if d == "" || a == d {
		return true
	}
	return strings.HasPrefix(a, d+"/")
}

// String returns "<fs name>/<path>".
func (p Path) String() string {
	if p.FS == nil {
		return p.Path
	}
	return p.FS.Name() + "/" + p.Path
}

// WriteFile writes data to p.
func (p Path) WriteFile(ctx context.Context, data []byte) error {
	return p.FS.WriteFile(ctx, p.Path, data)
}

// ReadFile reads the file at p.
func (p Path) ReadFile(ctx context.Context) ([]byte, error) {
	return p.FS.ReadFile(ctx, p.Path)
}
