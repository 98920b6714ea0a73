package bic

import (
	"encoding/binary"
	"fmt"

	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/pow"
)

// TrainersHeightKey is bic:epoch:trainers:height:<h> (§3 "Trainer set").
// Trainer sets are a snapshot computed at epoch boundaries and persisted;
// callers look these up rather than recomputing (§5).
func TrainersHeightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("bic:epoch:trainers:height:%d", height))
}

func encodeTrainerSet(pks []bls.PublicKey) []byte {
	out := make([]byte, 0, len(pks)*bls.PublicKeySize)
	for _, pk := range pks {
		out = append(out, pk[:]...)
	}
	return out
}

func decodeTrainerSet(raw []byte) []bls.PublicKey {
	n := len(raw) / bls.PublicKeySize
	out := make([]bls.PublicKey, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], raw[i*bls.PublicKeySize:(i+1)*bls.PublicKeySize])
	}
	return out
}

// TrainersForHeight loads the trainer set snapshot active at height.
func TrainersForHeight(r *kv.Reversible, height uint64) []bls.PublicKey {
	raw, existed, err := r.Get(TrainersHeightKey(height))
	if err != nil || !existed {
		return nil
	}
	return decodeTrainerSet(raw)
}

// SetTrainersForHeight persists an epoch-boundary trainer set snapshot.
func SetTrainersForHeight(r *kv.Reversible, height uint64, pks []bls.PublicKey) error {
	return r.Put(TrainersHeightKey(height), encodeTrainerSet(pks))
}

func gasBalanceKey(pk bls.PublicKey) []byte {
	return []byte(fmt.Sprintf("bic:epoch:trainer_gas:%x", pk[:]))
}

// SubmitSol validates a POW solution's epoch binding and credits the
// solving trainer's "execution gas" balance (Epoch.submit_sol, §4.1/§4.9).
// computorPk is the local trainer that relayed/produced the solution.
func SubmitSol(r *kv.Reversible, solArg []byte, currentEpoch uint32, vrB3 h3.Hash) error {
	if len(solArg) != pow.SolSize {
		return chainerr.New(chainerr.CodeInvalidFunction)
	}
	var sol pow.Sol
	copy(sol[:], solArg)
	if sol.Epoch() != currentEpoch {
		return chainerr.New(chainerr.CodeInvalidFunction)
	}
	if !pow.Verify(&sol, vrB3) {
		return chainerr.New(chainerr.CodeInvalidFunction)
	}
	var computorPk bls.PublicKey
	copy(computorPk[:], sol.ComputorPk())
	_, err := r.Increment(gasBalanceKey(computorPk), 1)
	return err
}

// GasBalance reads the trainer's accumulated solved-POW credits, which the
// producer (§4.13) checks before deciding whether it "has execution coins".
func GasBalance(r *kv.Reversible, pk bls.PublicKey) int64 {
	raw, existed, err := r.Get(gasBalanceKey(pk))
	if err != nil || !existed {
		return 0
	}
	return int64(binary.BigEndian.Uint64(raw))
}

// SlashTrainer removes pk from every trainers-for-height snapshot from
// fromHeight onward up to and including toHeight, the special-meeting-only
// built-in (§4.2: is_special_meeting_block requires Epoch.slash_trainer).
func SlashTrainer(r *kv.Reversible, pk bls.PublicKey, fromHeight, toHeight uint64) error {
	for h := fromHeight; h <= toHeight; h += EpochInterval {
		trainers := TrainersForHeight(r, h)
		if trainers == nil {
			continue
		}
		filtered := trainers[:0:0]
		for _, t := range trainers {
			if t != pk {
				filtered = append(filtered, t)
			}
		}
		if err := SetTrainersForHeight(r, h, filtered); err != nil {
			return err
		}
	}
	return nil
}
