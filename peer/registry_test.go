package peer

import (
	"testing"
	"time"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/types"
	"github.com/stretchr/testify/require"
)

func peerKey(t *testing.T, b byte) *bls.SecretKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return sk
}

func TestUpsertRejectsStaleTimestamp(t *testing.T) {
	reg := NewRegistry()
	sk := peerKey(t, 1)
	now := time.Now()

	anrNew := types.SignANR(sk, types.ANR{Ts: uint64(now.Unix())})
	require.True(t, reg.Upsert(anrNew))

	anrOld := types.SignANR(sk, types.ANR{Ts: uint64(now.Add(-time.Hour).Unix())})
	require.False(t, reg.Upsert(anrOld))

	got, ok := reg.Get(anrNew.Pk)
	require.True(t, ok)
	require.Equal(t, anrNew.Ts, got.Ts)
}

func TestFreshAndPrune(t *testing.T) {
	reg := NewRegistry()
	sk := peerKey(t, 2)
	now := time.Now()

	stale := types.SignANR(sk, types.ANR{Ts: uint64(now.Add(-time.Hour).Unix())})
	reg.Upsert(stale)
	require.False(t, reg.Fresh(stale.Pk, now))

	reg.Prune(now)
	require.Equal(t, 0, reg.Len())
}

func TestRandomSampleBounded(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	for i := byte(1); i <= 5; i++ {
		sk := peerKey(t, i)
		reg.Upsert(types.SignANR(sk, types.ANR{Ts: uint64(now.Unix())}))
	}
	sample := reg.RandomSample(3)
	require.Len(t, sample, 3)
}
