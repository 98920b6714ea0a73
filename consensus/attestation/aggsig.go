// Package attestation implements §4.4 attestation aggregation: per-height
// trainer sets, bitmask-indexed BLS aggregate signatures, and the score
// function the producer uses to decide when an entry is rooted.
package attestation

import (
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/types"
)

// TrainerSet is the ordered pk list valid for a height range (§3).
type TrainerSet []bls.PublicKey

func (t TrainerSet) indexOf(pk bls.PublicKey) (int, bool) {
	for i, candidate := range t {
		if candidate == pk {
			return i, true
		}
	}
	return 0, false
}

// AggSig is a bitmask over a trainer set plus the aggregated BLS signature
// of every trainer whose bit is set.
type AggSig struct {
	Mask   []byte // bitset, len = ceil(len(trainers)/8)
	AggSig bls.Signature
}

func maskLen(trainers int) int {
	return (trainers + 7) / 8
}

func (a *AggSig) bitSet(i int) bool {
	if i/8 >= len(a.Mask) {
		return false
	}
	return a.Mask[i/8]&(1<<uint(i%8)) != 0
}

func (a *AggSig) setBit(i int) {
	byteIdx := i / 8
	for len(a.Mask) <= byteIdx {
		a.Mask = append(a.Mask, 0)
	}
	a.Mask[byteIdx] |= 1 << uint(i%8)
}

// New seeds an AggSig from a single attestation signature.
func New(trainers TrainerSet, pk bls.PublicKey, sig bls.Signature) (*AggSig, error) {
	idx, ok := trainers.indexOf(pk)
	if !ok {
		return nil, chainerr.New(chainerr.CodeUnknownTrainer)
	}
	agg := &AggSig{Mask: make([]byte, maskLen(len(trainers))), AggSig: sig}
	agg.setBit(idx)
	return agg, nil
}

// Add folds another trainer's signature into agg, idempotent on an
// already-set bit (§4.4).
func (a *AggSig) Add(trainers TrainerSet, pk bls.PublicKey, sig bls.Signature) error {
	idx, ok := trainers.indexOf(pk)
	if !ok {
		return chainerr.New(chainerr.CodeUnknownTrainer)
	}
	if a.bitSet(idx) {
		return nil
	}
	combined, err := bls.Aggregate([]bls.Signature{a.AggSig, sig})
	if err != nil {
		return err
	}
	a.AggSig = combined
	a.setBit(idx)
	return nil
}

// Unmask returns the trainer pks whose bit is set.
func (a *AggSig) Unmask(trainers TrainerSet) []bls.PublicKey {
	var out []bls.PublicKey
	for i, pk := range trainers {
		if a.bitSet(i) {
			out = append(out, pk)
		}
	}
	return out
}

// Score is Σ weights[pk] over signed bits, divided by |trainers|; a nil
// weights map defaults every trainer's weight to 1 (§4.4).
func Score(a *AggSig, trainers TrainerSet, weights map[bls.PublicKey]float64) float64 {
	if len(trainers) == 0 {
		return 0
	}
	var sum float64
	for i, pk := range trainers {
		if !a.bitSet(i) {
			continue
		}
		if weights == nil {
			sum += 1
			continue
		}
		w, ok := weights[pk]
		if !ok {
			w = 1
		}
		sum += w
	}
	return sum / float64(len(trainers))
}

// ChainLookup is the minimal view of chain state §4.4's record validation
// needs: the entry's height and the trainer set active for it.
type ChainLookup interface {
	EntryHeight(entryHash h3.Hash) (uint64, bool)
	ChainHeight() uint64
	TrainersForHeight(height uint64) TrainerSet
}

// Validate runs §4.4's "validation against chain" for a consensus record,
// and fills in Score on success.
func Validate(rec *types.ConsensusRecord, chain ChainLookup) error {
	height, ok := chain.EntryHeight(rec.EntryHash)
	if !ok {
		return chainerr.New(chainerr.CodeUnknownEntry)
	}
	if height > chain.ChainHeight() {
		return chainerr.New(chainerr.CodeEntryAheadOfChain)
	}
	trainers := chain.TrainersForHeight(height)
	agg := &AggSig{Mask: rec.Mask, AggSig: rec.AggSig}
	pks := agg.Unmask(trainers)
	if len(pks) == 0 {
		return chainerr.New(chainerr.CodeEmptyQuorumMask)
	}
	aggPk, err := bls.AggregatePublicKeys(pks)
	if err != nil {
		return err
	}
	msg := append(append([]byte{}, rec.EntryHash[:]...), rec.MutationsHash[:]...)
	if !bls.Verify(aggPk, rec.AggSig, msg, bls.DSTAtt) {
		return chainerr.New(chainerr.CodeInvalidAggregateSignature)
	}
	rec.Score = Score(agg, trainers, nil)
	rec.HasScore = true
	return nil
}

// MeetsQuorum reports whether a record's score clears the configured
// quorum threshold (§4.4: "score >= cfg.quorum/|T_h|"), rooted-tip gating
// for the producer (§4.13).
func MeetsQuorum(rec *types.ConsensusRecord, quorum int, trainerCount int) bool {
	if !rec.HasScore || trainerCount == 0 {
		return false
	}
	return rec.Score >= float64(quorum)/float64(trainerCount)
}
