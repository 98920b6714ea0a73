// Package kv implements the reversible KV layer of spec.md §4.7: a
// transactional write layer over an ordered, persistent byte KV store
// (component C1, treated as an external abstract collaborator per §1) that
// records forward/reverse mutation logs so an entry-apply can be rolled
// back exactly, and so its effects can be hashed into mutations_hash.
package kv

import "io"

// Store is the abstract ordered KV collaborator from spec.md §1/§6: a
// persistent byte KV with prefix iteration, column-family-like namespacing
// via key prefixes, and no built-in transactions of its own — the
// Reversible layer on top supplies those semantics.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, val []byte) error
	Delete(key []byte) error
	// Iterator returns an ascending iterator over [lower, upper); upper=nil
	// means "no upper bound" (used for prefix scans via PrefixUpperBound).
	Iterator(lower, upper []byte) (Iterator, error)
	io.Closer
}

// Iterator walks a Store in key order.
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	io.Closer
}

// PrefixUpperBound computes the smallest key greater than every key with
// the given prefix, for use as an Iterator upper bound — the standard
// pebble/leveldb idiom for "iterate exactly this prefix".
func PrefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix was all 0xff bytes: unbounded
}
