// Package store provides the keyed byte store the bridge keeps durable
// records in.
package store

// Entry is one key/value pair returned by List.
type Entry struct {
	Key   []byte
	Value []byte
}

// KV is a keyed store. Implementations must make Get, Put and Delete
// linearizable per key.
type KV interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// List returns entries whose key starts with prefix, ordered by key.
	List(prefix []byte) ([]Entry, error)
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
