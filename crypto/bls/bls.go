// Package bls wraps github.com/supranational/blst for the domain-separated
// BLS12-381 signatures the spec requires (§3, §4.2-§4.4, §4.8): public keys
// live in G1 (48-byte compressed), signatures in G2 (96-byte compressed),
// and every signing/verification call is parameterized by an explicit
// domain-separation tag (DST) rather than a single fixed ciphersuite — the
// node needs one DST per purpose (ENTRY, TX, ATT, VRF, POP, NODE).
//
// The teacher's own beacon/light package uses
// github.com/protolambda/bls12-381-util for a single fixed-DST ciphersuite
// (see beacon/light/chain_test.go); this package goes one level lower,
// straight to blst, because the spec needs a variable DST per call — the
// higher-level wrapper bakes in the IETF POP ciphersuite DST, which only
// covers one of this node's six domains.
package bls

import (
	blst "github.com/supranational/blst/bindings/go"
)

const (
	PublicKeySize = 48
	SignatureSize = 96
	SeedSize      = 32
)

// Domain separation tags, one per spec.md purpose.
var (
	DSTEntry = []byte("AMADEUS_ENTRY_BLS12381G2_XMD:SHA-256_SSWU_RO_")
	DSTTx    = []byte("AMADEUS_TX_BLS12381G2_XMD:SHA-256_SSWU_RO_")
	DSTAtt   = []byte("AMADEUS_ATT_BLS12381G2_XMD:SHA-256_SSWU_RO_")
	DSTVRF   = []byte("AMADEUS_VRF_BLS12381G2_XMD:SHA-256_SSWU_RO_")
	DSTPop   = []byte("AMADEUS_POP_BLS12381G2_XMD:SHA-256_SSWU_RO_")
	DSTNode  = []byte("AMADEUS_NODE_BLS12381G2_XMD:SHA-256_SSWU_RO_")
)

type (
	SecretKey = blst.SecretKey
)

// PublicKey is a compressed G1 point, 48 bytes.
type PublicKey [PublicKeySize]byte

// Signature is a compressed G2 point, 96 bytes.
type Signature [SignatureSize]byte

// GenerateKey derives a secret key deterministically from a 32-byte seed
// (crypto/rand output for production use, a fixed vector in tests).
func GenerateKey(seed []byte) (*SecretKey, error) {
	if len(seed) < SeedSize {
		return nil, ErrInvalidSeed
	}
	sk := blst.KeyGen(seed[:SeedSize])
	if sk == nil {
		return nil, ErrInvalidSeed
	}
	return sk, nil
}

// PublicKeyFromSecret derives the compressed G1 public key for sk.
func PublicKeyFromSecret(sk *SecretKey) PublicKey {
	var pk PublicKey
	affine := new(blst.P1Affine).From(sk)
	copy(pk[:], affine.Compress())
	return pk
}

// ValidatePublicKey reports whether b decodes to a valid, group-checked G1
// point — used both by §4.2 tx validation (contract-as-pk case) and §4.1
// dispatch (is this action.contract a real pubkey with deployed bytecode).
func ValidatePublicKey(b []byte) bool {
	if len(b) != PublicKeySize {
		return false
	}
	affine := new(blst.P1Affine).Uncompress(b)
	if affine == nil {
		return false
	}
	return affine.KeyValidate()
}

// Sign produces a domain-separated signature over msg.
func Sign(sk *SecretKey, msg, dst []byte) Signature {
	sig := new(blst.P2Affine).Sign(sk, msg, dst)
	var out Signature
	copy(out[:], sig.Compress())
	return out
}

// Verify checks a single domain-separated signature.
func Verify(pk PublicKey, sig Signature, msg, dst []byte) bool {
	pkAffine := new(blst.P1Affine).Uncompress(pk[:])
	if pkAffine == nil || !pkAffine.KeyValidate() {
		return false
	}
	sigAffine := new(blst.P2Affine).Uncompress(sig[:])
	if sigAffine == nil {
		return false
	}
	return sigAffine.Verify(true, pkAffine, true, msg, dst)
}

// Aggregate combines signatures that may cover different messages/signers
// (§4.4 AggSig.aggsig accumulation); it does not itself verify anything.
func Aggregate(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return Signature{}, ErrZeroSizedInput
	}
	affines := make([]*blst.P2Affine, 0, len(sigs))
	for i := range sigs {
		a := new(blst.P2Affine).Uncompress(sigs[i][:])
		if a == nil {
			return Signature{}, ErrInvalidSignature
		}
		affines = append(affines, a)
	}
	var agg blst.P2Aggregate
	if !agg.Aggregate(affines, true) {
		return Signature{}, ErrInvalidSignature
	}
	var out Signature
	copy(out[:], agg.ToAffine().Compress())
	return out, nil
}

// AggregatePublicKeys sums public keys into one G1 point, used to build the
// aggregate verification key for a consensus record's mask (§4.4).
func AggregatePublicKeys(pks []PublicKey) (PublicKey, error) {
	if len(pks) == 0 {
		return PublicKey{}, ErrZeroSizedInput
	}
	affines := make([]*blst.P1Affine, 0, len(pks))
	for i := range pks {
		a := new(blst.P1Affine).Uncompress(pks[i][:])
		if a == nil {
			return PublicKey{}, ErrInvalidPoint
		}
		affines = append(affines, a)
	}
	var agg blst.P1Aggregate
	if !agg.Aggregate(affines, true) {
		return PublicKey{}, ErrInvalidPoint
	}
	var out PublicKey
	copy(out[:], agg.ToAffine().Compress())
	return out, nil
}

// VerifyAggregate verifies an aggregate signature against a single message
// under one aggregated public key — the shape §4.4 needs for consensus
// record validation: agg_pk = AggregatePublicKeys(unmask(...)), then one
// Verify call against entry_hash||mutations_hash.
func VerifyAggregate(aggPk PublicKey, aggSig Signature, msg, dst []byte) bool {
	return Verify(aggPk, aggSig, msg, dst)
}

// SharedSecret derives an ECDH-style shared secret on BLS12-381 G1 for the
// gossip transport's encrypted envelope (§4.8): scalar-multiply the peer's
// compressed G1 public key by our secret scalar. Both sides land on the
// same point since the pairing group is abelian under scalar
// multiplication, exactly like classic ECDH over any prime-order curve.
func SharedSecret(sk *SecretKey, peerPk PublicKey) ([]byte, error) {
	peerAffine := new(blst.P1Affine).Uncompress(peerPk[:])
	if peerAffine == nil {
		return nil, ErrInvalidPoint
	}
	scalarBytes := sk.Serialize()
	shared := new(blst.P1).FromAffine(peerAffine).Mult(scalarBytes, len(scalarBytes)*8)
	return shared.ToAffine().Compress(), nil
}
