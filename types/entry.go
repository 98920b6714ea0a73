package types

import (
	"github.com/amadeus-network/amadeus-node/canonical"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

const MaxTxsPerEntry = 100

// EntryHeader is the canonically-hashed half of an Entry (§3).
type EntryHeader struct {
	Slot     uint64
	Height   uint64
	PrevSlot int64 // -1 for genesis
	PrevHash h3.Hash
	Signer   bls.PublicKey
	DR       h3.Hash
	VR       [96]byte // BLS signature over the previous VR
	TxsHash  h3.Hash
}

// Entry is one block: header + body + top-level hash/signature.
type Entry struct {
	Header EntryHeader
	Txs    [][]byte // packed tx bytes, in order
	Mask   []byte   // non-nil for special-meeting aggregate-signed entries

	Hash      h3.Hash
	Signature bls.Signature // single-signer signature, or aggregate if Mask != nil
}

func encodeHeader(h EntryHeader) []byte {
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("slot")), Value: canonical.Int(int64(h.Slot))},
		canonical.MapEntry{Key: canonical.Bytes([]byte("height")), Value: canonical.Int(int64(h.Height))},
		canonical.MapEntry{Key: canonical.Bytes([]byte("prev_slot")), Value: canonical.Int(h.PrevSlot)},
		canonical.MapEntry{Key: canonical.Bytes([]byte("prev_hash")), Value: canonical.Bytes(h.PrevHash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signer")), Value: canonical.Bytes(h.Signer[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("dr")), Value: canonical.Bytes(h.DR[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("vr")), Value: canonical.Bytes(h.VR[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("txs_hash")), Value: canonical.Bytes(h.TxsHash[:])},
	)
	return canonical.Encode(term)
}

// ComputeHash hashes the entry header: hash = H3(encode(header)).
func (e *Entry) ComputeHash() h3.Hash {
	return h3.Sum(encodeHeader(e.Header))
}

// ComputeTxsHash hashes the concatenation of packed txs (§3/§4.3).
func ComputeTxsHash(txs [][]byte) h3.Hash {
	return h3.Sum(txs...)
}

// Sign finalizes Hash and Signature for a single-signer entry.
func (e *Entry) Sign(sk *bls.SecretKey) {
	e.Hash = e.ComputeHash()
	e.Signature = bls.Sign(sk, e.Hash[:], bls.DSTEntry)
}

// ValidateShape checks the structural invariants from §4.3 that don't
// require chain context: sizes, txs_hash, and per-tx validation.
func (e *Entry) ValidateShape(txSizeLimit int) *chainerr.Error {
	if len(e.Txs) > MaxTxsPerEntry {
		return chainerr.New(chainerr.CodeTooManyTxs)
	}
	if ComputeTxsHash(e.Txs) != e.Header.TxsHash {
		return chainerr.New(chainerr.CodeTxsHashInvalid)
	}
	isSpecial := e.Mask != nil
	for _, packed := range e.Txs {
		tx, err := UnpackTx(packed)
		if err != nil {
			return err
		}
		if verr := tx.Validate(packed, isSpecial, txSizeLimit); verr != nil {
			return verr
		}
	}
	return nil
}

// ValidateNext checks validate_next(cur, next) from §4.3: the hash chain,
// slot/height progression, and the VR/DR chain.
func ValidateNext(cur, next *Entry) *chainerr.Error {
	if next.Header.PrevHash != cur.Hash {
		return chainerr.New(chainerr.CodeInvalidHash)
	}
	if next.Header.PrevSlot != int64(cur.Header.Slot) {
		return chainerr.New(chainerr.CodeInvalidSlot)
	}
	if next.Header.Height != cur.Header.Height+1 {
		return chainerr.New(chainerr.CodeInvalidHeight)
	}
	if next.Header.DR != h3.Sum(cur.Header.DR[:]) {
		return chainerr.New(chainerr.CodeInvalidDR)
	}
	if !bls.Verify(next.Header.Signer, next.Header.VR, cur.Header.VR[:], bls.DSTVRF) {
		return chainerr.New(chainerr.CodeInvalidVR)
	}
	return nil
}

// ValidateSignature validates the top-level entry signature: a plain
// single-signer BLS signature when Mask is absent, or — when present — the
// caller must instead use the attestation package's aggregate-verification
// path (§4.4), since that requires the trainer set at this height.
func (e *Entry) ValidateSignature() *chainerr.Error {
	if e.Mask != nil {
		return nil // aggregate path, see consensus/attestation
	}
	if !bls.Verify(e.Header.Signer, e.Signature, e.Hash[:], bls.DSTEntry) {
		return chainerr.New(chainerr.CodeInvalidSignature)
	}
	return nil
}

// Epoch derives the epoch number for a height (§4.1: epoch = height/100_000).
func Epoch(height, epochInterval uint64) uint64 { return height / epochInterval }

// BuildNext produces the header skeleton for the next entry in sequence,
// mirroring Entry.build_next from §4.13's producer description. The caller
// fills Txs/Mask and signs.
func BuildNext(cur *Entry, signer bls.PublicKey, vr [96]byte) *Entry {
	next := &Entry{
		Header: EntryHeader{
			Slot:     cur.Header.Slot + 1,
			Height:   cur.Header.Height + 1,
			PrevSlot: int64(cur.Header.Slot),
			PrevHash: cur.Hash,
			Signer:   signer,
			DR:       h3.Sum(cur.Header.DR[:]),
			VR:       vr,
		},
	}
	return next
}

// Pack renders the whole entry — header fields, packed txs, mask, hash and
// signature — as a canonical map, the wire shape gossip's "entry" op
// carries (§4.8/§6).
func (e *Entry) Pack() []byte {
	txTerms := make([]canonical.Term, len(e.Txs))
	for i, tx := range e.Txs {
		txTerms[i] = canonical.Bytes(tx)
	}
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("slot")), Value: canonical.Int(int64(e.Header.Slot))},
		canonical.MapEntry{Key: canonical.Bytes([]byte("height")), Value: canonical.Int(int64(e.Header.Height))},
		canonical.MapEntry{Key: canonical.Bytes([]byte("prev_slot")), Value: canonical.Int(e.Header.PrevSlot)},
		canonical.MapEntry{Key: canonical.Bytes([]byte("prev_hash")), Value: canonical.Bytes(e.Header.PrevHash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signer")), Value: canonical.Bytes(e.Header.Signer[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("dr")), Value: canonical.Bytes(e.Header.DR[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("vr")), Value: canonical.Bytes(e.Header.VR[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("txs_hash")), Value: canonical.Bytes(e.Header.TxsHash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("txs")), Value: canonical.List(txTerms...)},
		canonical.MapEntry{Key: canonical.Bytes([]byte("mask")), Value: canonical.Bytes(e.Mask)},
		canonical.MapEntry{Key: canonical.Bytes([]byte("hash")), Value: canonical.Bytes(e.Hash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signature")), Value: canonical.Bytes(e.Signature[:])},
	)
	return canonical.Encode(term)
}

// UnpackEntry reverses Pack.
func UnpackEntry(b []byte) (*Entry, *chainerr.Error) {
	term, rest, err := canonical.Decode(b)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return nil, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	e := &Entry{}
	for _, entry := range term.Map {
		switch string(entry.Key.Bytes) {
		case "slot":
			e.Header.Slot = uint64(entry.Value.Int)
		case "height":
			e.Header.Height = uint64(entry.Value.Int)
		case "prev_slot":
			e.Header.PrevSlot = entry.Value.Int
		case "prev_hash":
			copy(e.Header.PrevHash[:], entry.Value.Bytes)
		case "signer":
			copy(e.Header.Signer[:], entry.Value.Bytes)
		case "dr":
			copy(e.Header.DR[:], entry.Value.Bytes)
		case "vr":
			copy(e.Header.VR[:], entry.Value.Bytes)
		case "txs_hash":
			copy(e.Header.TxsHash[:], entry.Value.Bytes)
		case "txs":
			e.Txs = make([][]byte, len(entry.Value.List))
			for i, item := range entry.Value.List {
				e.Txs[i] = append([]byte(nil), item.Bytes...)
			}
		case "mask":
			if len(entry.Value.Bytes) > 0 {
				e.Mask = append([]byte(nil), entry.Value.Bytes...)
			}
		case "hash":
			copy(e.Hash[:], entry.Value.Bytes)
		case "signature":
			copy(e.Signature[:], entry.Value.Bytes)
		}
	}
	return e, nil
}
