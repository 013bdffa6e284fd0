package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// Several builds sharing one Redis instance use distinct prefixes so that
// their rendered pages never collide.
//
// Example usage:
//
//	// Per-project keys in a shared cache
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "project:docs:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// PartitionKey generates a prefixed partition key.
func (k *ScopedKeyer) PartitionKey(entry, root string) string {
	return k.prefix + k.inner.PartitionKey(entry, root)
}

// EmitKey generates a prefixed emit key.
func (k *ScopedKeyer) EmitKey(entry, root string) string {
	return k.prefix + k.inner.EmitKey(entry, root)
}

// PoolKey generates a prefixed pool key.
func (k *ScopedKeyer) PoolKey(dir, entrypoint string) string {
	return k.prefix + k.inner.PoolKey(dir, entrypoint)
}

// RenderKey generates a prefixed render key.
func (k *ScopedKeyer) RenderKey(entry string, opts RenderKeyOpts) string {
	return k.prefix + k.inner.RenderKey(entry, opts)
}
