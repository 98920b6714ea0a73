package gossip

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/stretchr/testify/require"
)

func gossipKey(t *testing.T, b byte) *bls.SecretKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return sk
}

func TestSignedEnvelopeRoundTrip(t *testing.T) {
	sk := gossipKey(t, 1)
	env := SignEnvelope(sk, []byte("hello peer"))
	require.True(t, env.Verify())

	marshaled := env.Marshal()
	decoded, err := UnmarshalSignedEnvelope(marshaled)
	require.Nil(t, err)
	require.True(t, decoded.Verify())
	require.Equal(t, env.Payload, decoded.Payload)
}

func TestSignedEnvelopeRejectsTamperedPayload(t *testing.T) {
	sk := gossipKey(t, 2)
	env := SignEnvelope(sk, []byte("original"))
	env.Payload = []byte("tampered!")
	require.False(t, env.Verify())
}

func TestEncryptDecryptShardCipherRoundTrip(t *testing.T) {
	skA := gossipKey(t, 3)
	pkB := bls.PublicKeyFromSecret(gossipKey(t, 4))
	shared, err := bls.SharedSecret(skA, pkB)
	require.NoError(t, err)

	var iv [12]byte
	for i := range iv {
		iv[i] = byte(i)
	}
	var ts [16]byte
	ts[15] = 42

	plaintext := []byte("gossip payload contents")
	cipherBlob, err := EncryptShardCipher(shared, ts, iv, plaintext)
	require.NoError(t, err)

	decrypted, err := DecryptShardCipher(shared, ts, cipherBlob)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestShardEncodeAndReassemble(t *testing.T) {
	payload := make([]byte, shardSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	shards, dataShards, parityShards, err := EncodeShards(payload)
	require.NoError(t, err)
	require.Equal(t, dataShards+parityShards, len(shards))

	re := NewReassembler()
	pk := bls.PublicKeyFromSecret(gossipKey(t, 5))
	var ts [16]byte
	shardTotal := uint16(len(shards))

	var reconstructed []byte
	var done bool
	// Drop one data shard to exercise Reed-Solomon recovery via parity.
	for i, shard := range shards {
		if i == 0 {
			continue
		}
		header := ShardHeader{Pk: pk, TsNano: ts, ShardIndex: uint16(i), ShardTotal: shardTotal, OriginalSize: uint32(len(payload))}
		out, ok, err := re.Add(header, shard)
		require.NoError(t, err)
		if ok {
			reconstructed, done = out, true
			break
		}
	}
	require.True(t, done)
	require.Equal(t, payload, reconstructed)
}
