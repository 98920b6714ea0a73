package types

import (
	"github.com/amadeus-network/amadeus-node/canonical"
	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// Attestation is a trainer's vote that applying EntryHash yields
// MutationsHash (§3).
type Attestation struct {
	EntryHash     h3.Hash
	MutationsHash h3.Hash
	Signer        bls.PublicKey
	Signature     bls.Signature
}

// SignedMessage returns entry_hash||mutations_hash, the payload covered by
// Signature under bls.DSTAtt.
func (a Attestation) SignedMessage() []byte {
	msg := make([]byte, 0, h3.Size*2)
	msg = append(msg, a.EntryHash[:]...)
	msg = append(msg, a.MutationsHash[:]...)
	return msg
}

func SignAttestation(sk *bls.SecretKey, entryHash, mutationsHash h3.Hash) Attestation {
	a := Attestation{
		EntryHash:     entryHash,
		MutationsHash: mutationsHash,
		Signer:        bls.PublicKeyFromSecret(sk),
	}
	a.Signature = bls.Sign(sk, a.SignedMessage(), bls.DSTAtt)
	return a
}

func (a Attestation) Verify() bool {
	return bls.Verify(a.Signer, a.Signature, a.SignedMessage(), bls.DSTAtt)
}

// Pack/Unpack give Attestation a canonical wire form (scenario S3: a
// pack->unpack round trip must return byte-identical fields).
func (a Attestation) Pack() []byte {
	term := canonical.Map(
		canonical.MapEntry{Key: canonical.Bytes([]byte("entry_hash")), Value: canonical.Bytes(a.EntryHash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("mutations_hash")), Value: canonical.Bytes(a.MutationsHash[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signer")), Value: canonical.Bytes(a.Signer[:])},
		canonical.MapEntry{Key: canonical.Bytes([]byte("signature")), Value: canonical.Bytes(a.Signature[:])},
	)
	return canonical.Encode(term)
}

func UnpackAttestation(b []byte) (Attestation, *chainerr.Error) {
	term, rest, err := canonical.Decode(b)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return Attestation{}, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	var a Attestation
	for _, e := range term.Map {
		switch string(e.Key.Bytes) {
		case "entry_hash":
			if len(e.Value.Bytes) != h3.Size {
				return Attestation{}, chainerr.New(chainerr.CodeInvalidHash)
			}
			copy(a.EntryHash[:], e.Value.Bytes)
		case "mutations_hash":
			if len(e.Value.Bytes) != h3.Size {
				return Attestation{}, chainerr.New(chainerr.CodeInvalidHash)
			}
			copy(a.MutationsHash[:], e.Value.Bytes)
		case "signer":
			if len(e.Value.Bytes) != bls.PublicKeySize {
				return Attestation{}, chainerr.New(chainerr.CodeInvalidSignature)
			}
			copy(a.Signer[:], e.Value.Bytes)
		case "signature":
			if len(e.Value.Bytes) != bls.SignatureSize {
				return Attestation{}, chainerr.New(chainerr.CodeInvalidSignature)
			}
			copy(a.Signature[:], e.Value.Bytes)
		}
	}
	return a, nil
}

// ConsensusRecord is an aggregate attestation for one entry (§3).
type ConsensusRecord struct {
	EntryHash     h3.Hash
	MutationsHash h3.Hash
	Mask          []byte
	AggSig        bls.Signature
	Score         float64
	HasScore      bool
}

// Pack renders a ConsensusRecord as a canonical map, the wire shape the
// gossip "entry"/"consensus_bulk" ops carry it in (§4.8/§6). Score is only
// present when HasScore is set.
func (c ConsensusRecord) Pack() []byte {
	entries := []canonical.MapEntry{
		{Key: canonical.Bytes([]byte("entry_hash")), Value: canonical.Bytes(c.EntryHash[:])},
		{Key: canonical.Bytes([]byte("mutations_hash")), Value: canonical.Bytes(c.MutationsHash[:])},
		{Key: canonical.Bytes([]byte("mask")), Value: canonical.Bytes(c.Mask)},
		{Key: canonical.Bytes([]byte("agg_sig")), Value: canonical.Bytes(c.AggSig[:])},
	}
	if c.HasScore {
		entries = append(entries, canonical.MapEntry{
			Key: canonical.Bytes([]byte("score")), Value: canonical.Int(int64(c.Score * 1e9)),
		})
	}
	return canonical.Encode(canonical.Map(entries...))
}

// UnpackConsensusRecord reverses Pack.
func UnpackConsensusRecord(b []byte) (ConsensusRecord, *chainerr.Error) {
	term, rest, err := canonical.Decode(b)
	if err != nil || len(rest) != 0 || term.Kind != canonical.KindMap {
		return ConsensusRecord{}, chainerr.New(chainerr.CodeTxNotCanonical)
	}
	var c ConsensusRecord
	for _, e := range term.Map {
		switch string(e.Key.Bytes) {
		case "entry_hash":
			copy(c.EntryHash[:], e.Value.Bytes)
		case "mutations_hash":
			copy(c.MutationsHash[:], e.Value.Bytes)
		case "mask":
			if len(e.Value.Bytes) > 0 {
				c.Mask = append([]byte(nil), e.Value.Bytes...)
			}
		case "agg_sig":
			copy(c.AggSig[:], e.Value.Bytes)
		case "score":
			c.Score = float64(e.Value.Int) / 1e9
			c.HasScore = true
		}
	}
	return c, nil
}
