package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Disk is a FileSystem rooted at a directory on the local disk.
type Disk struct {
	root string
}

// NewDisk creates a Disk filesystem rooted at dir. The directory is resolved
// to an absolute path but is not created until the first write.
func NewDisk(dir string) (*Disk, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", dir, err)
	}
	return &Disk{root: abs}, nil
}

// Name returns "disk:" followed by the absolute root.
func (d *Disk) Name() string { return "disk:" + d.root }

// Root returns the absolute root directory.
func (d *Disk) Root() string { return d.root }

// Abs converts a root-relative path into an OS path.
func (d *Disk) Abs(p string) string {
	return filepath.Join(d.root, filepath.FromSlash(p))
}

// WriteFile writes data to p, creating parent directories as needed.
func (d *Disk) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := d.Abs(p)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// ReadFile reads p from disk.
func (d *Disk) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Abs(p))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return data, err
}

var (
	_ FileSystem = (*Disk)(nil)
	_ DiskBacked = (*Disk)(nil)
)
