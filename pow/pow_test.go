package pow

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/stretchr/testify/require"
)

func key(t *testing.T, b byte) *bls.SecretKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return sk
}

func TestTensorVerifyAcceptsAndRejectsFlip(t *testing.T) {
	preamble := make([]byte, preambleSize)
	for i := range preamble {
		preamble[i] = byte(i)
	}
	tensorC := ComputeTensor(preamble)
	require.True(t, VerifyTensor(preamble, tensorC))

	flipped := append([]byte(nil), tensorC...)
	flipped[0] ^= 0xFF
	require.False(t, VerifyTensor(preamble, flipped))
}

func TestComputeForFindsSolutionAtLowDifficulty(t *testing.T) {
	solSk := key(t, 1)
	computorPk := bls.PublicKeyFromSecret(key(t, 2))
	vrB3 := h3.Sum([]byte("test"))

	sol, ok := ComputeFor(0, vrB3, solSk, computorPk, 20000)
	if !ok {
		t.Skip("difficulty not met within iteration budget on this run")
	}
	require.True(t, MeetsDifficulty(0, sol[:]))
}

func TestFreivaldsE260BindsToVR(t *testing.T) {
	preamble := make([]byte, preambleSize)
	for i := range preamble {
		preamble[i] = byte(i * 3)
	}
	vrB3 := h3.Sum([]byte("test"))
	var sol Sol
	copy(sol[:preambleSize], preamble)
	rest := append([]byte{}, sol[:offSegmentVR]...)
	rest = append(rest, sol[offSegmentVR+32:preambleSize]...)
	segHash := h3.Sum(vrB3[:], rest)
	copy(sol[offSegmentVR:offSegmentVR+32], segHash[:])

	require.True(t, FreivaldsE260(&sol, vrB3))

	otherVR := h3.Sum([]byte("other"))
	require.False(t, FreivaldsE260(&sol, otherVR))
}
