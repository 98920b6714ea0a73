// Package types holds the wire data model of spec.md §3: Entry, Tx,
// Action, Attestation, ConsensusRecord, Mutation, ANR, and the nonce and
// hash primitives they're built from.
package types

import "math/big"

// Nonce is the tx nonce: a nanosecond-resolution value that the spec's
// Open Questions section requires to hold up to 99_999_999_999_999_999_999
// — bigger than a uint64 (max ~1.8e19). It's carried as a 16-byte
// big-endian integer, matching the original node's u128.
type Nonce [16]byte

// MaxNonce is the inclusive upper bound from spec.md §4.2
// ("nonce ≤ 99_999_999_999_999_999_999").
var MaxNonce = NonceFromString("99999999999999999999")

func NonceFromString(s string) Nonce {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("types: invalid nonce literal " + s)
	}
	return NonceFromBigInt(v)
}

func NonceFromUint64(v uint64) Nonce {
	var n Nonce
	for i := 0; i < 8; i++ {
		n[15-i] = byte(v >> (8 * i))
	}
	return n
}

func NonceFromBigInt(v *big.Int) Nonce {
	var n Nonce
	b := v.Bytes()
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(n[16-len(b):], b)
	return n
}

func (n Nonce) BigInt() *big.Int {
	return new(big.Int).SetBytes(n[:])
}

func (n Nonce) Bytes() []byte { return n[:] }

func (n Nonce) Cmp(other Nonce) int {
	for i := 0; i < 16; i++ {
		if n[i] != other[i] {
			if n[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (n Nonce) LessOrEqual(other Nonce) bool { return n.Cmp(other) <= 0 }
func (n Nonce) GreaterThan(other Nonce) bool { return n.Cmp(other) > 0 }

func (n Nonce) String() string { return n.BigInt().String() }

// NowNonceNanos is an optional clock hook returning wall-clock nanoseconds,
// the convention §3 describes for client-generated nonces. It is nil unless
// a caller sets it, and nothing in this module reads it.
var NowNonceNanos func() uint64
