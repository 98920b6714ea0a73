package attestation

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/types"
	"github.com/stretchr/testify/require"
)

func seedKey(t *testing.T, b byte) *bls.SecretKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return sk
}

func TestAggSigAddIsIdempotentAndAggregates(t *testing.T) {
	sk1, sk2, sk3 := seedKey(t, 1), seedKey(t, 2), seedKey(t, 3)
	pk1, pk2, pk3 := bls.PublicKeyFromSecret(sk1), bls.PublicKeyFromSecret(sk2), bls.PublicKeyFromSecret(sk3)
	trainers := TrainerSet{pk1, pk2, pk3}

	msg := []byte("entry||mutations")
	sig1 := bls.Sign(sk1, msg, bls.DSTAtt)
	sig2 := bls.Sign(sk2, msg, bls.DSTAtt)

	agg, err := New(trainers, pk1, sig1)
	require.NoError(t, err)

	require.NoError(t, agg.Add(trainers, pk1, sig1))
	firstAggSig := agg.AggSig

	require.NoError(t, agg.Add(trainers, pk2, sig2))
	require.NotEqual(t, firstAggSig, agg.AggSig)

	unmasked := agg.Unmask(trainers)
	require.ElementsMatch(t, []bls.PublicKey{pk1, pk2}, unmasked)

	aggPk, err := bls.AggregatePublicKeys(unmasked)
	require.NoError(t, err)
	require.True(t, bls.VerifyAggregate(aggPk, agg.AggSig, msg, bls.DSTAtt))

	score := Score(agg, trainers, nil)
	require.InDelta(t, 2.0/3.0, score, 1e-9)

	_ = pk3
}

type fakeChain struct {
	height   uint64
	trainers TrainerSet
}

func (f fakeChain) EntryHeight(h h3.Hash) (uint64, bool) { return 10, true }
func (f fakeChain) ChainHeight() uint64                  { return f.height }
func (f fakeChain) TrainersForHeight(height uint64) TrainerSet { return f.trainers }

func TestValidateConsensusRecord(t *testing.T) {
	sk1, sk2 := seedKey(t, 10), seedKey(t, 11)
	pk1, pk2 := bls.PublicKeyFromSecret(sk1), bls.PublicKeyFromSecret(sk2)
	trainers := TrainerSet{pk1, pk2}

	entryHash := h3.Sum([]byte("entry"))
	mutHash := h3.Sum([]byte("muts"))
	msg := append(append([]byte{}, entryHash[:]...), mutHash[:]...)

	sig1 := bls.Sign(sk1, msg, bls.DSTAtt)
	sig2 := bls.Sign(sk2, msg, bls.DSTAtt)
	agg, err := New(trainers, pk1, sig1)
	require.NoError(t, err)
	require.NoError(t, agg.Add(trainers, pk2, sig2))

	rec := &types.ConsensusRecord{
		EntryHash:     entryHash,
		MutationsHash: mutHash,
		Mask:          agg.Mask,
		AggSig:        agg.AggSig,
	}
	chain := fakeChain{height: 20, trainers: trainers}
	require.NoError(t, Validate(rec, chain))
	require.True(t, rec.HasScore)
	require.InDelta(t, 1.0, rec.Score, 1e-9)
	require.True(t, MeetsQuorum(rec, 2, len(trainers)))
	require.False(t, MeetsQuorum(rec, 3, len(trainers)))
}
