package types

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/stretchr/testify/require"
)

func TestAttestationPackUnpackRoundTrip(t *testing.T) {
	a := Attestation{
		EntryHash:     [32]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		MutationsHash: [32]byte{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
	}
	for i := range a.Signer {
		a.Signer[i] = 3
	}
	for i := range a.Signature {
		a.Signature[i] = 4
	}
	packed := a.Pack()
	got, err := UnpackAttestation(packed)
	require.Nil(t, err)
	require.Equal(t, a, got)
}

func TestAttestationSignVerify(t *testing.T) {
	sk := testKey(t, 20)
	entryHash := h3.Sum([]byte("entry"))
	mutHash := h3.Sum([]byte("mutations"))
	a := SignAttestation(sk, entryHash, mutHash)
	require.True(t, a.Verify())
}
