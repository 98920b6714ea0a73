package kv

import (
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/types"
)

// HashForwardLog computes mutations_hash for the current forward log
// (§4.1 step 6: mutations_hash = H3(encode(m))).
func (r *Reversible) HashForwardLog() h3.Hash {
	return types.HashMutations(r.forward)
}

func hashForwardLog(r *Reversible) h3.Hash { return r.HashForwardLog() }
