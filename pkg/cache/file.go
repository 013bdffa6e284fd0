package cache

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// entryExt marks files owned by a FileCache. Anything else under the
// directory is ignored by Prune and Clear.
const entryExt = ".entry"

// FileCache stores rendered output as files under a directory, sharded by
// the first two hex digits of the hashed key.
//
// Each file starts with a header line holding the expiry as Unix
// nanoseconds (0 for none), followed by the raw payload. Writes go through
// a temp file and a rename, so concurrent renders of the same key never
// expose a torn entry.
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache creates a file cache rooted at dir, creating it if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// Get implements Cache. Expired and unreadable entries are removed and
// reported as misses.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	data, expires, ok := decodeEntry(raw)
	if !ok || c.expired(expires) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return data, true, nil
}

// Set implements Cache.
func (c *FileCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = c.now().Add(ttl).UnixNano()
	}

	path := c.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	w.WriteString(strconv.FormatInt(expires, 10))
	w.WriteByte('\n')
	w.Write(data)
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Delete implements Cache.
func (c *FileCache) Delete(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close implements Cache.
func (c *FileCache) Close() error { return nil }

// Prune removes expired and corrupt entries and returns how many were
// removed. Live entries are left in place.
func (c *FileCache) Prune(ctx context.Context) (int, error) {
	return c.sweep(ctx, func(path string) bool {
		raw, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		_, expires, ok := decodeEntry(raw)
		return !ok || c.expired(expires)
	})
}

// Clear removes every entry along with the emptied shard directories and
// returns how many entries were removed.
func (c *FileCache) Clear(ctx context.Context) (int, error) {
	return c.sweep(ctx, func(string) bool { return true })
}

func (c *FileCache) sweep(ctx context.Context, remove func(path string) bool) (int, error) {
	count := 0
	var shards []string
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == c.dir {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != c.dir {
				shards = append(shards, path)
			}
			return nil
		}
		if strings.HasSuffix(path, entryExt) && remove(path) {
			if os.Remove(path) == nil {
				count++
			}
		}
		return nil
	})
	for i := len(shards) - 1; i >= 0; i-- {
		os.Remove(shards[i]) // fails on non-empty shards
	}
	return count, err
}

func (c *FileCache) expired(expires int64) bool {
	return expires != 0 && c.now().UnixNano() > expires
}

func (c *FileCache) path(key string) string {
	h := Hash([]byte(key))
	return filepath.Join(c.dir, h[:2], h[2:]+entryExt)
}

func decodeEntry(raw []byte) (data []byte, expires int64, ok bool) {
	header, data, found := bytes.Cut(raw, []byte{'\n'})
	if !found {
		return nil, 0, false
	}
	expires, err := strconv.ParseInt(string(header), 10, 64)
	if err != nil {
		return nil, 0, false
	}
	return data, expires, true
}

var _ Cache = (*FileCache)(nil)
