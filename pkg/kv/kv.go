// Package kv defines the storage-engine-agnostic interface both the LSM
// and B-Tree engines implement, mirroring the original store.KV interface
// (put/get/delete, all returning an error).
package kv

// KV is an embeddable, single-node, durable key-value store. Callers own
// key and value byte slices; implementations must not retain references
// to them past the call that received them.
type KV interface {
	// Put writes value under key, overwriting any existing value. Put
	// does not return until the write is durable.
	Put(key, value []byte) error

	// Get returns the value stored under key. found is false if key is
	// absent (never written, or deleted).
	Get(key []byte) (value []byte, found bool, err error)

	// Delete removes key. On the LSM engine it is not an error to delete
	// an absent key — a tombstone is written either way. The B-Tree
	// engine does not implement deletion at all: it always returns
	// ErrUnsupported, regardless of whether key is present or absent.
	Delete(key []byte) error

	// Close releases resources held by the store. A closed KV must not
	// be used again.
	Close() error
}
