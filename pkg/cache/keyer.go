package cache

// Keyer generates cache keys for the memoized stages of a render.
//
// Every key is derived from content identities (asset IDs, data hashes,
// directory paths), never from pointers, so two structurally equal inputs map
// to the same key.
type Keyer interface {
	// PartitionKey identifies the partition of entry's graph against root.
	PartitionKey(entry, root string) string

	// EmitKey identifies the write pass for entry's internal subgraph.
	EmitKey(entry, root string) string

	// PoolKey identifies a worker pool rooted at dir running entrypoint.
	PoolKey(dir, entrypoint string) string

	// RenderKey identifies a rendered page for entry and a hash of its data.
	RenderKey(entry string, opts RenderKeyOpts) string
}

// RenderKeyOpts holds the inputs besides the entry that change a render.
type RenderKeyOpts struct {
	DataHash string `json:"data_hash"`
	Path     string `json:"path,omitempty"`

	// Subgraph fingerprints every asset the render loads, so a rebuilt
	// chunk behind an unchanged entry gets a new key.
	Subgraph string `json:"subgraph,omitempty"`
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a keyer without a namespace prefix.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// PartitionKey returns "partition:<hash>".
func (DefaultKeyer) PartitionKey(entry, root string) string {
	return hashKey("partition", entry, root)
}

// EmitKey returns "emit:<hash>".
func (DefaultKeyer) EmitKey(entry, root string) string {
	return hashKey("emit", entry, root)
}

// PoolKey returns "pool:<hash>".
func (DefaultKeyer) PoolKey(dir, entrypoint string) string {
	return hashKey("pool", dir, entrypoint)
}

// RenderKey returns "render:<hash>".
func (DefaultKeyer) RenderKey(entry string, opts RenderKeyOpts) string {
	return hashKey("render", entry, opts)
}

var _ Keyer = DefaultKeyer{}
