package bic

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, b byte) bls.PublicKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return bls.PublicKeyFromSecret(sk)
}

func TestTransferDebitsAndCredits(t *testing.T) {
	r := kv.NewReversible(kv.NewMemStore())
	alice, bob := testKey(t, 1), testKey(t, 2)
	require.NoError(t, Credit(r, alice, "AMA", 1000))

	require.NoError(t, Transfer(r, alice, bob, "AMA", 400))
	aliceBal, err := GetBalance(r, alice, "AMA")
	require.NoError(t, err)
	bobBal, err := GetBalance(r, bob, "AMA")
	require.NoError(t, err)
	require.EqualValues(t, 600, aliceBal)
	require.EqualValues(t, 400, bobBal)

	err = Transfer(r, alice, bob, "AMA", 10_000)
	require.Error(t, err)
}

func TestReservedSymbol(t *testing.T) {
	require.True(t, IsReservedSymbol([]byte("BTC")))
	require.True(t, IsReservedSymbol([]byte("AMAUSD")))
	require.False(t, IsReservedSymbol([]byte("FOO")))
}

func TestTrainersForHeightRoundTrip(t *testing.T) {
	r := kv.NewReversible(kv.NewMemStore())
	pks := []bls.PublicKey{testKey(t, 3), testKey(t, 4)}
	require.NoError(t, SetTrainersForHeight(r, 100_000, pks))
	got := TrainersForHeight(r, 100_000)
	require.Equal(t, pks, got)
}

func TestEmissionForEpochTapersAfterStart(t *testing.T) {
	early := EmissionForEpoch(10)
	require.Equal(t, ToFlat(baseEmissionPerEpoch), early)

	atStart := EmissionForEpoch(emissionStartEpoch)
	later := EmissionForEpoch(emissionStartEpoch + 1000)
	require.Greater(t, atStart, later)
}
