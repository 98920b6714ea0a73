package pow

import (
	"crypto/rand"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// ComputeFor searches for a valid solution for the given epoch, trying up
// to itrs fresh nonces and returning the first one whose hash meets the
// epoch's difficulty (§4.9 "compute loop").
func ComputeFor(epoch uint32, segmentVRHash [32]byte, solSk *bls.SecretKey, computorPk bls.PublicKey, itrs int) (*Sol, bool) {
	solPk := bls.PublicKeyFromSecret(solSk)
	pop := bls.Sign(solSk, solPk[:], bls.DSTPop)

	var sol Sol
	binaryPutEpoch(&sol, epoch)
	copy(sol[offSegmentVR:offSegmentVR+32], segmentVRHash[:])
	copy(sol[offSolPk:offSolPk+48], solPk[:])
	copy(sol[offPop:offPop+96], pop[:])
	copy(sol[offComputorPk:offComputorPk+48], computorPk[:])

	for i := 0; i < itrs; i++ {
		if _, err := rand.Read(sol[offNonce : offNonce+12]); err != nil {
			return nil, false
		}
		tensorC, _ := Tensormath(sol.Preamble())
		copy(sol[offTensor:], tensorC)
		if MeetsDifficulty(epoch, sol[:]) {
			out := sol
			return &out, true
		}
	}
	return nil, false
}

func binaryPutEpoch(sol *Sol, epoch uint32) {
	sol[0] = byte(epoch)
	sol[1] = byte(epoch >> 8)
	sol[2] = byte(epoch >> 16)
	sol[3] = byte(epoch >> 24)
}

// VerifyCache is the optional LRU from §9's Open Question resolution: a
// cache hit must never change the verification outcome, only skip
// recomputation. Keyed by (epoch, H3(sol)).
type VerifyCache struct {
	entries map[cacheKey]bool
	order   []cacheKey
	cap     int
}

type cacheKey struct {
	epoch uint32
	hash  h3.Hash
}

func NewVerifyCache(capacity int) *VerifyCache {
	return &VerifyCache{entries: make(map[cacheKey]bool), cap: capacity}
}

// VerifyWithCache returns the same answer Verify(sol, vrB3) would, using a
// cached verdict when available.
func (c *VerifyCache) VerifyWithCache(sol *Sol, vrB3 h3.Hash) bool {
	key := cacheKey{epoch: sol.Epoch(), hash: h3.Sum(sol[:])}
	if v, ok := c.entries[key]; ok {
		for i, k := range c.order {
			if k == key {
				c.order = append(append(c.order[:i:i], c.order[i+1:]...), key)
				break
			}
		}
		return v
	}
	v := Verify(sol, vrB3)
	c.insert(key, v)
	return v
}

func (c *VerifyCache) insert(key cacheKey, v bool) {
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.cap && c.cap > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = v
}
