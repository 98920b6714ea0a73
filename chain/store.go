// Package chain implements the entry store and tip-tracking of spec.md
// §4.11: entries keyed by hash with secondary indexes by height and slot,
// a temporal tip that follows the newest validly-applied entry, and a
// rooted tip that lags by a reorg horizon. It is the concrete collaborator
// that lets package producer's ChainTip and package txpool's ChainView be
// satisfied by one object wired up in cmd/amadeus-node.
package chain

import (
	"sync"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/state"
	"github.com/amadeus-network/amadeus-node/types"
)

// defaultReorgHorizon is how many heights the rooted tip lags behind the
// temporal tip absent any attestation-coverage signal (§4.11: "typically
// several entries; derived from attestation coverage").
const defaultReorgHorizon = 6

// Store holds the in-memory entry index plus temporal/rooted tip pointers.
// Applied mutation logs for each entry live in the Reversible KV layer
// (package kv); Store only tracks which entries exist and which is
// canonical, mirroring the sysconf:temporal_tip/rooted_tip keys §4.1 step 9
// writes into the reversible store itself.
type Store struct {
	mu sync.RWMutex

	r       *kv.Reversible
	applier *state.Applier

	byHash   map[h3.Hash]*types.Entry
	byHeight map[uint64][]h3.Hash
	bySlot   map[uint64][]h3.Hash

	temporalTip    h3.Hash
	temporalHeight uint64
	rootedTip      h3.Hash
	rootedHeight   uint64
	prunedHeight   uint64

	reorgHorizon uint64
}

// NewStore builds an entry store backed by r (the reversible KV layer
// trainer/gas/nonce/balance state lives in) and applier (for the
// ChainNonce/ChainBalance projections package txpool needs).
func NewStore(genesis *types.Entry, r *kv.Reversible, applier *state.Applier) *Store {
	s := &Store{
		r:            r,
		applier:      applier,
		byHash:       make(map[h3.Hash]*types.Entry),
		byHeight:     make(map[uint64][]h3.Hash),
		bySlot:       make(map[uint64][]h3.Hash),
		reorgHorizon: defaultReorgHorizon,
	}
	if genesis != nil {
		s.insertLocked(genesis)
		s.temporalTip = genesis.Hash
		s.temporalHeight = genesis.Header.Height
		s.rootedTip = genesis.Hash
		s.rootedHeight = genesis.Header.Height
	}
	return s
}

func (s *Store) insertLocked(e *types.Entry) {
	s.byHash[e.Hash] = e
	s.byHeight[e.Header.Height] = append(s.byHeight[e.Header.Height], e.Hash)
	s.bySlot[e.Header.Slot] = append(s.bySlot[e.Header.Slot], e.Hash)
}

// Insert records a newly-applied entry and, if it extends the current
// temporal tip, advances it (§4.11: "multiple entries at the same height
// can coexist; the temporal tip is updated to the newest validly applied
// entry").
func (s *Store) Insert(e *types.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[e.Header.PrevHash]; !ok && s.temporalHeight != 0 {
		return chainerr.New(chainerr.CodeUnknownEntry)
	}
	s.insertLocked(e)
	if e.Header.Height > s.temporalHeight || (e.Header.Height == s.temporalHeight && s.byHash[s.temporalTip] == nil) {
		s.temporalTip = e.Hash
		s.temporalHeight = e.Header.Height
	}
	return nil
}

// AdvanceRootedTip recomputes the rooted tip as the ancestor of the
// temporal tip at height temporalHeight-reorgHorizon (clamped to the
// pruned floor), the simplified stand-in for full attestation-coverage
// derivation.
func (s *Store) AdvanceRootedTip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.temporalHeight < s.reorgHorizon {
		return
	}
	target := s.temporalHeight - s.reorgHorizon
	if target <= s.rootedHeight {
		return
	}
	cur, ok := s.byHash[s.temporalTip]
	if !ok {
		return
	}
	for cur.Header.Height > target {
		prev, ok := s.byHash[cur.Header.PrevHash]
		if !ok {
			return
		}
		cur = prev
	}
	s.rootedTip = cur.Hash
	s.rootedHeight = cur.Header.Height
}

// Prune discards every entry at a height at or below keepAbove except
// ancestors of the rooted tip (§4.11: "pruning deletes all entries at
// heights <= pruned_hash_height except the rooted ancestor").
func (s *Store) Prune(keepAbove uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rootedAncestors := make(map[h3.Hash]bool)
	cur, ok := s.byHash[s.rootedTip]
	for ok && cur.Header.Height > 0 {
		rootedAncestors[cur.Hash] = true
		cur, ok = s.byHash[cur.Header.PrevHash]
	}
	for h := s.prunedHeight + 1; h <= keepAbove; h++ {
		remaining := s.byHeight[h][:0]
		for _, hash := range s.byHeight[h] {
			if rootedAncestors[hash] {
				remaining = append(remaining, hash)
				continue
			}
			delete(s.byHash, hash)
		}
		if len(remaining) == 0 {
			delete(s.byHeight, h)
		} else {
			s.byHeight[h] = remaining
		}
	}
	s.prunedHeight = keepAbove
}

func (s *Store) Get(hash h3.Hash) (*types.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byHash[hash]
	return e, ok
}

// CurrentEntry satisfies producer.ChainTip: the entry the producer builds
// its next candidate on top of.
func (s *Store) CurrentEntry() *types.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byHash[s.temporalTip]
}

func (s *Store) Tips() (temporalHeight, rootedHeight uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temporalHeight, s.rootedHeight
}

// Epoch satisfies producer.ChainTip (§4.1: epoch = height/epoch_interval).
func (s *Store) Epoch(height uint64) uint32 {
	return uint32(types.Epoch(height, bic.EpochInterval))
}

// TrainersForHeight satisfies producer.ChainTip by reading the trainer
// snapshot stored under that height (bic.TrainersForHeight). state.Applier
// does not write these snapshots: the only writers are the height-0 seed in
// cmd/amadeus-node and Epoch.slash_trainer rewriting an existing snapshot.
func (s *Store) TrainersForHeight(height uint64) []bls.PublicKey {
	return bic.TrainersForHeight(s.r, height)
}

// GasBalance satisfies producer.ChainTip.
func (s *Store) GasBalance(pk bls.PublicKey) int64 {
	return bic.GasBalance(s.r, pk)
}

// ChainNonce and ChainBalance satisfy txpool.ChainView by delegating to the
// Applier's own projections over the reversible store.
func (s *Store) ChainNonce(pk bls.PublicKey) types.Nonce {
	return s.applier.ChainNonce(pk)
}

func (s *Store) ChainBalance(pk bls.PublicKey, symbol string) int64 {
	return s.applier.ChainBalance(pk, symbol)
}

// ChainEpoch satisfies txpool.ChainView: the epoch of the current temporal
// tip, the projection txpool.GrabNextValid uses to reject stale submit_sol
// txs (§4.2).
func (s *Store) ChainEpoch() uint32 {
	s.mu.RLock()
	height := s.temporalHeight
	s.mu.RUnlock()
	return s.Epoch(height)
}
