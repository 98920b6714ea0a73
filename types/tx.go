package types

import (
	"github.com/amadeus-network/amadeus-node/canonical"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// BuiltinWhitelist is the (contract, function) pairs §4.2 allows for
// built-in dispatch, independent of the sandboxed-bytecode path.
var BuiltinWhitelist = map[string]map[string]bool{
	"Epoch": {
		"submit_sol":         true,
		"slash_trainer":      true,
	},
	"Coin": {
		"transfer":              true,
		"set_emission_address":  true,
	},
	"Contract": {
		"deploy": true,
	},
}

// Action is the single call every current-epoch tx carries (§3).
type Action struct {
	Op       string
	Contract []byte // built-in name ("Epoch", "Coin", "Contract") or 48-byte pk
	Function string
	Args     [][]byte

	AttachedSymbol    []byte // nil => absent
	HasAttachedAmount bool
	AttachedAmount    uint64
}

func (a Action) hasAttachment() bool {
	return a.AttachedSymbol != nil || a.HasAttachedAmount
}

// ContractIsPubkey reports whether Contract looks like a raw 48-byte pk
// rather than a built-in name.
func (a Action) ContractIsPubkey() bool { return len(a.Contract) == bls.PublicKeySize }

func (a Action) ContractName() string { return string(a.Contract) }

// TxBody is the signer/nonce/actions payload that gets canonically encoded
// into Tx.TxEncoded and hashed/signed.
type TxBody struct {
	Signer  bls.PublicKey
	Nonce   Nonce
	Actions []Action
}

// Tx is the packed, on-wire transaction: {tx_encoded, hash, signature} per
// spec.md §9's resolution of the packed-envelope Open Question.
type Tx struct {
	TxEncoded []byte
	Hash      h3.Hash
	Signature bls.Signature
	Body      TxBody
}

func encodeAction(a Action) canonical.Term {
	entries := []canonical.MapEntry{
		{Key: canonical.Bytes([]byte("op")), Value: canonical.Bytes([]byte(a.Op))},
		{Key: canonical.Bytes([]byte("contract")), Value: canonical.Bytes(a.Contract)},
		{Key: canonical.Bytes([]byte("function")), Value: canonical.Bytes([]byte(a.Function))},
	}
	args := make([]canonical.Term, len(a.Args))
	for i, arg := range a.Args {
		args[i] = canonical.Bytes(arg)
	}
	entries = append(entries, canonical.MapEntry{Key: canonical.Bytes([]byte("args")), Value: canonical.List(args...)})
	if a.AttachedSymbol != nil {
		entries = append(entries, canonical.MapEntry{Key: canonical.Bytes([]byte("attached_symbol")), Value: canonical.Bytes(a.AttachedSymbol)})
	}
	if a.HasAttachedAmount {
		entries = append(entries, canonical.MapEntry{Key: canonical.Bytes([]byte("attached_amount")), Value: canonical.Int(int64(a.AttachedAmount))})
	}
	return canonical.Map(entries...)
}

func decodeAction(t canonical.Term) (Action, bool) {
	if t.Kind != canonical.KindMap {
		return Action{}, false
	}
	var a Action
	for _, e := range t.Map {
		key := string(e.Key.Bytes)
		switch key {
		case "op":
			a.Op = string(e.Value.Bytes)
		case "contract":
			a.Contract = append([]byte(nil), e.Value.Bytes...)
		case "function":
			a.Function = string(e.Value.Bytes)
		case "args":
			for _, item := range e.Value.List {
				a.Args = append(a.Args, append([]byte(nil), item.Bytes...))
			}
		case "attached_symbol":
			a.AttachedSymbol = append([]byte(nil), e.Value.Bytes...)
		case "attached_amount":
			a.HasAttachedAmount = true
			a.AttachedAmount = uint64(e.Value.Int)
		}
	}
	return a, true
}

// EncodeBody canonically encodes a TxBody; this is exactly TxEncoded.
func EncodeBody(body TxBody) []byte {
	actions := make([]canonical.Term, len(body.Actions))
	for i, a := range body.Actions {
		actions[i] = encodeAction(a)
	}
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("signer")), Value: canonical.Bytes(body.Signer[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("nonce")), Value: canonical.Bytes(body.Nonce.Bytes())},
		canonical.MapEntry{Key: canonical.Bytes([]byte("actions")), Value: canonical.List(actions...)},
	)
	return canonical.Encode(term)
}

// DecodeBody parses a canonically-encoded TxBody.
func DecodeBody(b []byte) (TxBody, bool) {
	term, rest, err := canonical.Decode(b)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return TxBody{}, false
	}
	var body TxBody
	for _, e := range term.Map {
		switch string(e.Key.Bytes) {
		case "signer":
			if len(e.Value.Bytes) != bls.PublicKeySize {
				return TxBody{}, false
			}
			copy(body.Signer[:], e.Value.Bytes)
		case "nonce":
			if len(e.Value.Bytes) != 16 {
				return TxBody{}, false
			}
			copy(body.Nonce[:], e.Value.Bytes)
		case "actions":
			for _, item := range e.Value.List {
				a, ok := decodeAction(item)
				if !ok {
					return TxBody{}, false
				}
				body.Actions = append(body.Actions, a)
			}
		}
	}
	return body, true
}

// normalizeAtoms mirrors the original node's TxPacked::normalize_atoms
// (original_source rust/src/libs/consensus/tx.rs): an attachment with a
// symbol but no amount gets amount 0. An amount without a symbol is left
// as is, and the "both or neither" check in Validate rejects it.
func normalizeAtoms(body *TxBody) {
	for i := range body.Actions {
		a := &body.Actions[i]
		if a.AttachedSymbol != nil && !a.HasAttachedAmount {
			a.HasAttachedAmount = true
			a.AttachedAmount = 0
		}
	}
}

// Pack renders the on-wire packed envelope.
func (tx *Tx) Pack() []byte {
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("tx_encoded")), Value: canonical.Bytes(tx.TxEncoded)},
		canonical.MapEntry{Key: canonical.Bytes([]byte("hash")), Value: canonical.Bytes(tx.Hash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signature")), Value: canonical.Bytes(tx.Signature[:])},
	)
	return canonical.Encode(term)
}

// UnpackTx decodes the packed envelope and the inner body, without running
// Validate (callers decide whether/when to validate).
func UnpackTx(packed []byte) (*Tx, *chainerr.Error) {
	term, rest, err := canonical.Decode(packed)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return nil, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	tx := &Tx{}
	var haveEncoded, haveHash, haveSig bool
	for _, e := range term.Map {
		switch string(e.Key.Bytes) {
		case "tx_encoded":
			tx.TxEncoded = append([]byte(nil), e.Value.Bytes...)
			haveEncoded = true
		case "hash":
			if len(e.Value.Bytes) != h3.Size {
				return nil, chainerr.New(chainerr.CodeInvalidHash)
			}
			copy(tx.Hash[:], e.Value.Bytes)
			haveHash = true
		case "signature":
			if len(e.Value.Bytes) != bls.SignatureSize {
				return nil, chainerr.New(chainerr.CodeInvalidSignature)
			}
			copy(tx.Signature[:], e.Value.Bytes)
			haveSig = true
		}
	}
	if !haveEncoded || !haveHash || !haveSig {
		return nil, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	body, ok := DecodeBody(tx.TxEncoded)
	if !ok {
		return nil, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	normalizeAtoms(&body)
	tx.Body = body
	return tx, nil
}

// Validate runs the ordered §4.2 checks, returning the first failing code.
func (tx *Tx) Validate(packed []byte, isSpecialMeetingBlock bool, txSizeLimit int) *chainerr.Error {
	if len(packed) >= txSizeLimit {
		return chainerr.New(chainerr.CodeTooLarge)
	}
	reEncoded := tx.Pack()
	if !bytesEqual(reEncoded, packed) {
		return chainerr.New(chainerr.CodeTxNotCanonical)
	}
	if h3.Sum(tx.TxEncoded) != tx.Hash {
		return chainerr.New(chainerr.CodeInvalidHash)
	}
	if !bls.Verify(tx.Body.Signer, tx.Signature, tx.Hash[:], bls.DSTTx) {
		return chainerr.New(chainerr.CodeInvalidSignature)
	}
	if tx.Body.Nonce.GreaterThan(MaxNonce) {
		return chainerr.New(chainerr.CodeNonceTooHigh)
	}
	if len(tx.Body.Actions) != 1 {
		return chainerr.New(chainerr.CodeActionsLengthMustBe1)
	}
	action := tx.Body.Actions[0]
	if action.Op != "call" {
		return chainerr.New(chainerr.CodeOpMustBeCall)
	}
	if !isWhitelistedOrPubkey(action) {
		return chainerr.New(chainerr.CodeInvalidContractOrFunction)
	}
	if isSpecialMeetingBlock {
		if action.ContractName() != "Epoch" || action.Function != "slash_trainer" {
			return chainerr.New(chainerr.CodeInvalidModuleForSpecialMeeting)
		}
	}
	if action.AttachedSymbol != nil {
		if len(action.AttachedSymbol) < 1 || len(action.AttachedSymbol) > 32 {
			return chainerr.New(chainerr.CodeAttachedSymbolWrongSize)
		}
	}
	if action.AttachedSymbol != nil && !action.HasAttachedAmount {
		return chainerr.New(chainerr.CodeAttachedAmountMustBeIncluded)
	}
	if action.HasAttachedAmount && action.AttachedSymbol == nil {
		return chainerr.New(chainerr.CodeAttachedSymbolMustBeIncluded)
	}
	return nil
}

func isWhitelistedOrPubkey(a Action) bool {
	if a.ContractIsPubkey() && bls.ValidatePublicKey(a.Contract) {
		return true
	}
	fns, ok := BuiltinWhitelist[a.ContractName()]
	if !ok {
		return false
	}
	return fns[a.Function]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ExecCost is the deterministic pricing function from §4.2:
// 3 + ((len(tx_encoded) + 32 + 96) / 256) * 3.
func ExecCost(txEncodedLen int) int64 {
	return 3 + int64((txEncodedLen+32+96)/256)*3
}

// BuildTx constructs and signs a new Tx, mirroring TxPacked::build in the
// original node.
func BuildTx(sk *bls.SecretKey, contract []byte, function string, args [][]byte, nonce Nonce, attachedSymbol []byte, attachedAmount uint64, hasAttachment bool) *Tx {
	signer := bls.PublicKeyFromSecret(sk)
	action := Action{
		Op:       "call",
		Contract: contract,
		Function: function,
		Args:     args,
	}
	if hasAttachment {
		action.AttachedSymbol = attachedSymbol
		action.HasAttachedAmount = true
		action.AttachedAmount = attachedAmount
	}
	body := TxBody{Signer: signer, Nonce: nonce, Actions: []Action{action}}
	encoded := EncodeBody(body)
	hash := h3.Sum(encoded)
	sig := bls.Sign(sk, hash[:], bls.DSTTx)
	return &Tx{TxEncoded: encoded, Hash: hash, Signature: sig, Body: body}
}
