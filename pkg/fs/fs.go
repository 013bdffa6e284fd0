// Package fs abstracts the filesystems that build artifacts are written to.
//
// A [FileSystem] is either backed by a real directory on disk ([Disk]) or is
// purely virtual ([Memory]). Worker processes can only execute files that
// exist on disk, so callers use [ResolveDiskRoot] to find out whether a
// filesystem is path-addressable before spawning anything against it.
//
// Paths inside a filesystem are represented by [Path]: a filesystem plus a
// slash-separated path relative to its root. Paths are normalized on
// construction (cleaned, NFC-normalized) so that containment checks are plain
// prefix tests.
package fs

import (
	"context"
	"errors"
)

// ErrNotExist is returned by ReadFile when the file does not exist.
var ErrNotExist = errors.New("file does not exist")

// FileSystem is a root that artifacts can be written into.
//
// Implementations must be safe for concurrent use: the emitter writes every
// artifact of a subgraph concurrently.
type FileSystem interface {
	// Name identifies the filesystem. Two paths are only comparable when their
	// filesystems share a name.
	Name() string

	// WriteFile writes data to the root-relative path p, creating parent
	// directories as needed.
	WriteFile(ctx context.Context, p string, data []byte) error

	// ReadFile reads the root-relative path p.
	ReadFile(ctx context.Context, p string) ([]byte, error)
}

// DiskBacked is implemented by filesystems whose files live in a real
// directory that other processes can open.
type DiskBacked interface {
	// Root returns the absolute directory the filesystem is rooted at.
	Root() string
}

// ResolveDiskRoot returns the absolute root directory of fsys if it is backed
// by a real disk location. The second result is false for virtual filesystems.
func ResolveDiskRoot(fsys FileSystem) (string, bool) {
	if d, ok := fsys.(DiskBacked); ok {
		return d.Root(), true
	}
	return "", false
}
