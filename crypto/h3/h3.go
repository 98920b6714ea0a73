// Package h3 is the node's single hash primitive: BLAKE3, 32-byte digest,
// named "H3" throughout spec.md (entry hashing, tx hashing, mutation
// digests, VRF chaining, POW). The original node (original_source/rust)
// uses the blake3 crate everywhere — sol_bloom.rs, tx.rs, the upow
// preamble hash — so this package wraps lukechampine.com/blake3, the
// closest pure-Go equivalent with the same XOF/keyed-hash surface.
package h3

import (
	"lukechampine.com/blake3"
)

const Size = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [Size]byte

// Sum hashes the concatenation of all inputs, matching the spec's
// H3(a||b||c) notation used throughout (e.g. entry hash chains,
// seed derivation).
func Sum(parts ...[]byte) Hash {
	h := blake3.New(Size, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// XOF returns an extendable-output stream seeded from the given bytes, used
// by the tensormath puzzle (§4.9) to derive the A/B matrices deterministically
// from a 240-byte preamble.
func XOF(seed []byte) *blake3.Hasher {
	h := blake3.New(Size, nil)
	h.Write(seed)
	return h
}

// XOFBytes draws n pseudorandom bytes from the XOF of seed.
func XOFBytes(seed []byte, n int) []byte {
	h := XOF(seed)
	out := make([]byte, n)
	xof := h.XOF()
	_, _ = xof.Read(out)
	return out
}
