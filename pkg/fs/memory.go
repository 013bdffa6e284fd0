package fs

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Memory is a virtual, in-process FileSystem. It is useful for tests and for
// artifacts that never need to be executed. Memory is not disk-backed, so
// worker pools cannot be started against it.
type Memory struct {
	name  string
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates an empty in-memory filesystem identified by name.
func NewMemory(name string) *Memory {
	return &Memory{name: "memory:" + name, files: make(map[string][]byte)}
}

// Name returns "memory:" followed by the name given to NewMemory.
func (m *Memory) Name() string { return m.name }

// WriteFile stores a copy of data at p.
func (m *Memory) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[Clean(p)] = slices.Clone(data)
	return nil
}

// ReadFile returns a copy of the data stored at p.
func (m *Memory) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return slices.Clone(data), nil
}

// Files returns the sorted paths of all stored files.
func (m *Memory) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.files))
}

var _ FileSystem = (*Memory)(nil)
