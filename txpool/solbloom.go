// Package txpool implements the per-signer nonce/balance-aware admission
// and ordering container of spec.md §4.5.
package txpool

import (
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// SolBloom is a page-segmented Bloom filter over submitted POW solutions,
// ported from the original node's rust/src/libs/bic/sol_bloom.rs (kept per
// SPEC_FULL.md's "supplemented features" — spec.md scenario S2 names these
// constants explicitly). It gives the pool a cheap probabilistic
// pre-filter ahead of the exact dedup in AddGiftedSol.
type SolBloom struct {
	pages [][]byte
}

const (
	SolBloomPages    = 256
	SolBloomPageSize = 65536
	SolBloomM        = SolBloomPages * SolBloomPageSize // 16,777,216
)

func NewSolBloom() *SolBloom {
	pages := make([][]byte, SolBloomPages)
	for i := range pages {
		pages[i] = make([]byte, SolBloomPageSize/8)
	}
	return &SolBloom{pages: pages}
}

// segs returns the (page, bitOffset) pairs hashed from bin, mirroring
// SolBloom::segs in the original.
func segs(bin []byte) []struct{ page, bit int } {
	digest := h3.Sum(bin)
	var out []struct{ page, bit int }
	for i := 0; i+16 <= len(digest); i += 16 {
		var word uint64
		// Fold the 16-byte little-endian chunk into a 64-bit index space;
		// the original used a 128-bit modulus, which is unnecessary once
		// M comfortably fits in 64 bits.
		for j := 0; j < 8; j++ {
			word |= uint64(digest[i+j]) << (8 * j)
		}
		idx := int(word % uint64(SolBloomM))
		out = append(out, struct{ page, bit int }{idx / SolBloomPageSize, idx % SolBloomPageSize})
	}
	return out
}

func (b *SolBloom) Add(sol []byte) {
	for _, s := range segs(sol) {
		b.pages[s.page][s.bit/8] |= 1 << (s.bit % 8)
	}
}

// MaybeContains returns false only if sol is definitely new; true means
// "possibly seen before" (standard Bloom filter semantics).
func (b *SolBloom) MaybeContains(sol []byte) bool {
	for _, s := range segs(sol) {
		if b.pages[s.page][s.bit/8]&(1<<(s.bit%8)) == 0 {
			return false
		}
	}
	return true
}
