// Package gossip implements the UDP transport of spec.md §4.8: signed
// single-datagram envelopes, plus the pieces of the Reed-Solomon-sharded
// AES-GCM-encrypted shape (shard header, sharding, shard cipher).
// Transport sends every payload as signed Reed-Solomon shards and does not
// encrypt them.
package gossip

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/amadeus-network/amadeus-node/chainerr"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// DefaultPort is the UDP port the transport listens on by default (§4.8).
const DefaultPort = 36969

// SignedEnvelope is the "signed, single-datagram" packet shape: {pk,
// signature, payload} where signature = BLS(sk, H3(pk||payload), DST_NODE).
type SignedEnvelope struct {
	Pk        bls.PublicKey
	Signature bls.Signature
	Payload   []byte
}

func SignEnvelope(sk *bls.SecretKey, payload []byte) SignedEnvelope {
	pk := bls.PublicKeyFromSecret(sk)
	msg := h3.Sum(pk[:], payload)
	return SignedEnvelope{Pk: pk, Signature: bls.Sign(sk, msg[:], bls.DSTNode), Payload: payload}
}

func (e SignedEnvelope) Verify() bool {
	msg := h3.Sum(e.Pk[:], e.Payload)
	return bls.Verify(e.Pk, e.Signature, msg[:], bls.DSTNode)
}

// Marshal renders {pk:48, signature:96, payload} as a flat byte string.
func (e SignedEnvelope) Marshal() []byte {
	out := make([]byte, 0, bls.PublicKeySize+bls.SignatureSize+len(e.Payload))
	out = append(out, e.Pk[:]...)
	out = append(out, e.Signature[:]...)
	out = append(out, e.Payload...)
	return out
}

func UnmarshalSignedEnvelope(b []byte) (SignedEnvelope, *chainerr.Error) {
	if len(b) < bls.PublicKeySize+bls.SignatureSize {
		return SignedEnvelope{}, chainerr.New(chainerr.CodeBadSize)
	}
	var e SignedEnvelope
	copy(e.Pk[:], b[:bls.PublicKeySize])
	copy(e.Signature[:], b[bls.PublicKeySize:bls.PublicKeySize+bls.SignatureSize])
	e.Payload = append([]byte(nil), b[bls.PublicKeySize+bls.SignatureSize:]...)
	return e, nil
}

// ShardHeader is the fixed-size prefix of the "encrypted, sharded" packet
// shape (§4.8): {pk:48, ts_nano:i128 BE, shard_index:u16, shard_total:u16,
// original_size:u32, version:[u8;3]}, followed by the AES-GCM ciphertext.
type ShardHeader struct {
	Pk           bls.PublicKey
	TsNano       [16]byte // i128 BE
	ShardIndex   uint16
	ShardTotal   uint16
	OriginalSize uint32
	Version      [3]byte
}

const shardHeaderSize = bls.PublicKeySize + 16 + 2 + 2 + 4 + 3

func (h ShardHeader) marshal() []byte {
	out := make([]byte, 0, shardHeaderSize)
	out = append(out, h.Pk[:]...)
	out = append(out, h.TsNano[:]...)
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], h.ShardIndex)
	out = append(out, u16[:]...)
	binary.BigEndian.PutUint16(u16[:], h.ShardTotal)
	out = append(out, u16[:]...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], h.OriginalSize)
	out = append(out, u32[:]...)
	out = append(out, h.Version[:]...)
	return out
}

func unmarshalShardHeader(b []byte) (ShardHeader, []byte, *chainerr.Error) {
	if len(b) < shardHeaderSize {
		return ShardHeader{}, nil, chainerr.New(chainerr.CodeBadSize)
	}
	var h ShardHeader
	off := 0
	copy(h.Pk[:], b[off:off+bls.PublicKeySize])
	off += bls.PublicKeySize
	copy(h.TsNano[:], b[off:off+16])
	off += 16
	h.ShardIndex = binary.BigEndian.Uint16(b[off:])
	off += 2
	h.ShardTotal = binary.BigEndian.Uint16(b[off:])
	off += 2
	h.OriginalSize = binary.BigEndian.Uint32(b[off:])
	off += 4
	copy(h.Version[:], b[off:off+3])
	off += 3
	return h, b[off:], nil
}

// deriveAESKey computes key = H3(shared_secret || ts_nano || iv), the
// per-packet key derivation of §4.8.
func deriveAESKey(sharedSecret []byte, tsNano [16]byte, iv []byte) [32]byte {
	return h3.Sum(sharedSecret, tsNano[:], iv)
}

// EncryptShardCipher AES-GCM-256-encrypts plaintext under a key derived
// from sharedSecret/tsNano, with the IV as the first 12 bytes of the
// returned cipher blob and the 16-byte tag immediately after (§4.8:
// "cipher = AES-GCM-256(IV=first 12B of cipher, TAG=next 16B, ...)").
func EncryptShardCipher(sharedSecret []byte, tsNano [16]byte, iv [12]byte, plaintext []byte) ([]byte, error) {
	key := deriveAESKey(sharedSecret, tsNano, iv[:])
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, iv[:], plaintext, nil)
	out := make([]byte, 0, 12+len(sealed))
	out = append(out, iv[:]...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptShardCipher reverses EncryptShardCipher.
func DecryptShardCipher(sharedSecret []byte, tsNano [16]byte, cipherBlob []byte) ([]byte, error) {
	if len(cipherBlob) < 12+16 {
		return nil, chainerr.New(chainerr.CodeBadSize)
	}
	iv := cipherBlob[:12]
	key := deriveAESKey(sharedSecret, tsNano, iv)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, cipherBlob[12:], nil)
}
