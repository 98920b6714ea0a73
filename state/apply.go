// Package state implements §4.1's apply_entry: the pure state-transition
// function that folds an Entry's transactions into the reversible KV layer,
// producing mutation logs, receipts, and (when the local node trains the
// next slot) an attestation.
package state

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/log"
	"github.com/amadeus-network/amadeus-node/types"
)

const (
	defaultGasBudget = 10_000_000
	gasPriceInCents  = 100 // §4.1 step 4: exec_used*100 debited as AMA cents
)

// Env is the per-apply execution environment built from the entry header
// (§4.1 step 1), threaded through built-in and sandbox dispatch.
type Env struct {
	EntrySigner   bls.PublicKey
	EntryPrevHash h3.Hash
	Slot          uint64
	PrevSlot      int64
	Height        uint64
	Epoch         uint64
	VR            [96]byte
	VRB3          h3.Hash
	DR            h3.Hash
	GasBudget     int64
	Seed          h3.Hash

	TxSigner       bls.PublicKey
	TxHash         h3.Hash
	TxNonce        types.Nonce
	AccountOrigin  bls.PublicKey
	AccountCaller  bls.PublicKey
	AccountCurrent []byte

	// AttachedSymbol/AttachedAmount mirror the action's attachment (§4.1
	// step 4): set ahead of dispatch so bytecode can observe the transfer
	// applyOne already applied before invoking the callee.
	AttachedSymbol []byte
	AttachedAmount uint64
}

// TxResult is one tx's outcome within an applied entry.
type TxResult struct {
	TxHash    h3.Hash
	Error     *chainerr.Error // nil on success
	ExecUsed  int64
	ReturnVal []byte
}

// Sandbox is implemented by package vm; state doesn't import vm directly to
// avoid a dependency cycle (vm needs kv.Reversible and the env shape that
// lives here) — the apply loop is handed a Sandbox at construction time.
type Sandbox interface {
	Call(r *kv.Reversible, env *Env, bytecode []byte, function string, args [][]byte) (ret []byte, execUsed int64, err error)
}

// Applier runs apply_entry against one Reversible KV instance. Exactly one
// apply may be in flight at a time (mirrors kv.Reversible's own
// single-writer constraint, §5).
type Applier struct {
	r       *kv.Reversible
	sandbox Sandbox
	log     log.Logger

	epochInterval uint64
}

func NewApplier(r *kv.Reversible, sandbox Sandbox, epochInterval uint64) *Applier {
	if epochInterval == 0 {
		epochInterval = bic.EpochInterval
	}
	return &Applier{r: r, sandbox: sandbox, epochInterval: epochInterval, log: log.New("module", "state")}
}

// Result is everything apply_entry produces for one entry (§4.1).
type Result struct {
	MutationsHash h3.Hash
	Forward       []types.Mutation
	Reverse       []types.Mutation
	TxResults     []TxResult
	Attestation   *types.Attestation
}

// chainNonceKey / receiptKey are this node's own "chain:" bookkeeping keys;
// accountNonceIndexKey mirrors the secondary-index naming in §4.1 step 7
// ("tx_account_nonce:<signer>:<nonce20>:<tx_hash>").
func chainNonceKey(signer bls.PublicKey) []byte {
	return []byte(fmt.Sprintf("chain:nonce:%x", signer[:]))
}

func receiptKey(txHash h3.Hash) []byte {
	return []byte(fmt.Sprintf("chain:receipt:%x", txHash[:]))
}

func accountNonceIndexKey(signer bls.PublicKey, nonce types.Nonce, txHash h3.Hash) []byte {
	return []byte(fmt.Sprintf("tx_account_nonce:%x:%020s:%x", signer[:], nonce.String(), txHash[:]))
}

// Apply runs the full §4.1 algorithm against entry, given the trainer set
// the producer would use to decide whether to attest for height+1, and —
// if so — the local trainer's secret key to sign with (nil means "not a
// trainer here", skip step 8).
func (a *Applier) Apply(entry *types.Entry, trainersNextHeight []bls.PublicKey, localSk *bls.SecretKey) (*Result, error) {
	// Step 1: build E.
	env := &Env{
		EntrySigner:   entry.Header.Signer,
		EntryPrevHash: entry.Header.PrevHash,
		Slot:          entry.Header.Slot,
		PrevSlot:      entry.Header.PrevSlot,
		Height:        entry.Header.Height,
		Epoch:         types.Epoch(entry.Header.Height, a.epochInterval),
		VR:            entry.Header.VR,
		VRB3:          h3.Sum(entry.Header.VR[:]),
		DR:            entry.Header.DR,
		GasBudget:     defaultGasBudget,
	}

	// Step 3: clear per-entry mutation logs.
	a.r.BeginApply()

	results := make([]TxResult, 0, len(entry.Txs))

	for i, packed := range entry.Txs {
		tx, uerr := types.UnpackTx(packed)
		if uerr != nil {
			return nil, uerr
		}
		action := tx.Body.Actions[0]

		// Step 2: per-tx seed, exposed to the sandbox via seed_ptr so
		// contracts can derive pseudorandomness deterministically.
		env.Seed = h3.Sum(env.VR[:], tx.Hash[:], []byte(fmt.Sprintf("%d", 0)), []byte(fmt.Sprintf("%d", i)))
		_ = seedFloat(env.Seed)

		env.TxSigner = tx.Body.Signer
		env.TxHash = tx.Hash
		env.TxNonce = tx.Body.Nonce
		env.AccountOrigin = tx.Body.Signer
		env.AccountCaller = tx.Body.Signer
		env.AccountCurrent = action.Contract

		result := a.applyOne(env, tx, action)
		results = append(results, result)

		if err := a.r.Put(accountNonceIndexKey(tx.Body.Signer, tx.Body.Nonce, tx.Hash), []byte{1}); err != nil {
			return nil, err
		}
		if err := a.persistReceipt(entry.Hash, i, result); err != nil {
			return nil, err
		}
		if result.Error == nil {
			if err := a.bumpChainNonce(tx.Body.Signer, tx.Body.Nonce); err != nil {
				return nil, err
			}
		}
	}

	forward := append([]types.Mutation(nil), a.r.Forward()...)
	reverse := append([]types.Mutation(nil), a.r.Reverse()...)
	mutHash := types.HashMutations(forward)

	res := &Result{MutationsHash: mutHash, Forward: forward, Reverse: reverse, TxResults: results}

	// Step 8: attest if locally trained for height+1.
	if localSk != nil {
		localPk := bls.PublicKeyFromSecret(localSk)
		for _, pk := range trainersNextHeight {
			if pk == localPk {
				att := types.SignAttestation(localSk, entry.Hash, mutHash)
				res.Attestation = &att
				break
			}
		}
	}

	// Step 9: advance the temporal tip.
	if err := a.r.Put([]byte("sysconf:temporal_tip"), entry.Hash[:]); err != nil {
		return nil, err
	}
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], entry.Header.Height)
	if err := a.r.Put([]byte("sysconf:temporal_height"), heightBuf[:]); err != nil {
		return nil, err
	}

	return res, nil
}

// applyOne runs §4.1 step 4 for a single tx: attachment debit/credit,
// dispatch, and gas accounting. Structural tx errors were already ruled out
// by validation upstream; this only produces per-tx result codes.
//
// The attachment transfer runs before dispatch, unconditionally, and bails
// without ever invoking the callee if funds are short
// (original_source/rust/src/libs/bic/base.rs's call_tx_actions): a
// contract's own logic must be able to see (and spend) its attachment
// balance during the same call, and a call with an insufficient attachment
// must never run side effects that then get reverted.
func (a *Applier) applyOne(env *Env, tx *types.Tx, action types.Action) TxResult {
	preForward := len(a.r.Forward())
	preReverse := len(a.r.Reverse())

	var dest bls.PublicKey
	if action.ContractIsPubkey() {
		copy(dest[:], action.Contract)
	} else {
		copy(dest[:], []byte(action.ContractName())) // built-in names never collide with real pks
	}
	env.AttachedSymbol = action.AttachedSymbol
	env.AttachedAmount = action.AttachedAmount

	var execErr *chainerr.Error
	if action.HasAttachedAmount && action.AttachedAmount > 0 {
		execErr = toChainErr(bic.Transfer(a.r, tx.Body.Signer, dest, string(action.AttachedSymbol), int64(action.AttachedAmount)))
	}

	if execErr == nil {
		execErr = a.dispatch(env, action)
	}

	execUsed := types.ExecCost(len(tx.TxEncoded))

	if execErr != nil {
		// Revert only the action's own mutations (not the gas debit we're
		// about to apply), per §4.1 step 4 "on failure, revert m,m_rev but
		// still commit m_gas,m_gas_rev".
		undo := a.r.Reverse()[preReverse:]
		if rerr := a.r.Revert(undo); rerr != nil {
			a.log.Error("state: revert failed", "err", rerr)
		}
		a.r.TruncateTo(preForward, preReverse)
	}

	gasAMA := execUsed * gasPriceInCents
	_ = bic.Debit(a.r, tx.Body.Signer, "AMA", gasAMA)
	_ = bic.Credit(a.r, env.EntrySigner, "AMA", gasAMA)

	return TxResult{TxHash: tx.Hash, Error: execErr, ExecUsed: execUsed}
}

// dispatch routes to the sandbox when action.Contract is a deployed
// contract pk, otherwise to the built-in whitelist (§4.1 step 4).
func (a *Applier) dispatch(env *Env, action types.Action) *chainerr.Error {
	if action.ContractIsPubkey() {
		var pk bls.PublicKey
		copy(pk[:], action.Contract)
		if bls.ValidatePublicKey(pk[:]) && bic.HasBytecode(a.r, pk) {
			if a.sandbox == nil {
				return chainerr.New(chainerr.CodeAccountHasNoBytecode)
			}
			bytecode, _, err := bic.Bytecode(a.r, pk)
			if err != nil {
				return chainerr.Wrap(chainerr.CodeInvalidInstance, err)
			}
			_, _, serr := a.sandbox.Call(a.r, env, bytecode, action.Function, action.Args)
			return toChainErr(serr)
		}
		return chainerr.New(chainerr.CodeAccountHasNoBytecode)
	}

	switch action.ContractName() {
	case "Epoch":
		switch action.Function {
		case "submit_sol":
			if len(action.Args) == 0 {
				return chainerr.New(chainerr.CodeNoActions)
			}
			return toChainErr(bic.SubmitSol(a.r, action.Args[0], uint32(env.Epoch), env.VRB3))
		case "slash_trainer":
			if len(action.Args) < 1 || len(action.Args[0]) != bls.PublicKeySize {
				return chainerr.New(chainerr.CodeInvalidFunction)
			}
			var target bls.PublicKey
			copy(target[:], action.Args[0])
			return toChainErr(bic.SlashTrainer(a.r, target, env.Height, env.Height))
		}
	case "Coin":
		switch action.Function {
		case "transfer":
			if len(action.Args) < 2 || len(action.Args[0]) != bls.PublicKeySize {
				return chainerr.New(chainerr.CodeInvalidFunction)
			}
			var to bls.PublicKey
			copy(to[:], action.Args[0])
			amount := decodeAmount(action.Args[1])
			symbol := "AMA"
			if len(action.Args) >= 3 && len(action.Args[2]) > 0 {
				symbol = string(action.Args[2])
			} else if len(action.AttachedSymbol) > 0 {
				symbol = string(action.AttachedSymbol)
			}
			return toChainErr(bic.Transfer(a.r, env.TxSigner, to, symbol, amount))
		case "set_emission_address":
			if len(action.Args) < 1 || len(action.Args[0]) != bls.PublicKeySize {
				return chainerr.New(chainerr.CodeInvalidFunction)
			}
			var target bls.PublicKey
			copy(target[:], action.Args[0])
			return toChainErr(bic.SetEmissionAddress(a.r, env.TxSigner, target))
		}
	case "Contract":
		if action.Function == "deploy" {
			if len(action.Args) < 1 {
				return chainerr.New(chainerr.CodeInvalidFunction)
			}
			return toChainErr(bic.Deploy(a.r, env.TxSigner, action.Args[0]))
		}
	}
	return chainerr.New(chainerr.CodeInvalidFunction)
}

func decodeAmount(b []byte) int64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return int64(v)
}

func seedFloat(seed h3.Hash) float64 {
	bits := binary.LittleEndian.Uint64(seed[:8])
	return math.Float64frombits(bits)
}

func toChainErr(err error) *chainerr.Error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*chainerr.Error); ok {
		return ce
	}
	return chainerr.Wrap(chainerr.CodeInvalidFunction, err)
}

func (a *Applier) bumpChainNonce(signer bls.PublicKey, nonce types.Nonce) error {
	raw, existed, err := a.r.Get(chainNonceKey(signer))
	if err != nil {
		return err
	}
	var cur types.Nonce
	if existed {
		copy(cur[:], raw)
	}
	if nonce.Cmp(cur) <= 0 {
		return nil
	}
	return a.r.Put(chainNonceKey(signer), nonce.Bytes())
}

// ChainNonce reads the max successfully applied nonce for signer, the
// value txpool.ChainView needs (§4.5).
func (a *Applier) ChainNonce(signer bls.PublicKey) types.Nonce {
	raw, existed, err := a.r.Get(chainNonceKey(signer))
	if err != nil || !existed {
		return types.Nonce{}
	}
	var n types.Nonce
	copy(n[:], raw)
	return n
}

func (a *Applier) ChainBalance(pk bls.PublicKey, symbol string) int64 {
	bal, _ := bic.GetBalance(a.r, pk, symbol)
	return bal
}

func (a *Applier) persistReceipt(entryHash h3.Hash, indexStart int, result TxResult) error {
	status := byte(0)
	if result.Error != nil {
		status = 1
	}
	payload := make([]byte, 0, 64)
	payload = append(payload, entryHash[:]...)
	payload = append(payload, status)
	if result.Error != nil {
		payload = append(payload, []byte(result.Error.Code)...)
	}
	return a.r.Put(receiptKey(result.TxHash), payload)
}
