package chain

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/state"
	"github.com/amadeus-network/amadeus-node/types"
	"github.com/stretchr/testify/require"
)

func storeKey(t *testing.T, b byte) *bls.SecretKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return sk
}

type nopSandbox struct{}

func (nopSandbox) Call(r *kv.Reversible, env *state.Env, bytecode []byte, function string, args [][]byte) ([]byte, int64, error) {
	return nil, 0, nil
}

func buildChain(t *testing.T, n int) (*Store, []*types.Entry) {
	t.Helper()
	sk := storeKey(t, 1)
	pk := bls.PublicKeyFromSecret(sk)

	genesis := &types.Entry{Header: types.EntryHeader{Slot: 0, Height: 0, PrevSlot: -1, Signer: pk}}
	genesis.Sign(sk)

	r := kv.NewReversible(kv.NewMemStore())
	applier := state.NewApplier(r, nopSandbox{}, 100_000)
	store := NewStore(genesis, r, applier)

	entries := []*types.Entry{genesis}
	cur := genesis
	for i := 0; i < n; i++ {
		vr := bls.Sign(sk, cur.Header.VR[:], bls.DSTVRF)
		next := types.BuildNext(cur, pk, vr)
		next.Header.TxsHash = types.ComputeTxsHash(nil)
		next.Sign(sk)
		require.NoError(t, store.Insert(next))
		entries = append(entries, next)
		cur = next
	}
	return store, entries
}

func TestStoreAdvancesTemporalTip(t *testing.T) {
	store, entries := buildChain(t, 3)
	require.Equal(t, entries[len(entries)-1].Hash, store.CurrentEntry().Hash)
	temporal, _ := store.Tips()
	require.Equal(t, uint64(3), temporal)
}

func TestStoreRejectsOrphanEntry(t *testing.T) {
	store, _ := buildChain(t, 1)
	sk := storeKey(t, 2)
	pk := bls.PublicKeyFromSecret(sk)
	orphan := &types.Entry{Header: types.EntryHeader{Slot: 99, Height: 99, PrevSlot: 98, Signer: pk}}
	orphan.Sign(sk)
	require.Error(t, store.Insert(orphan))
}

func TestAdvanceRootedTipLagsByHorizon(t *testing.T) {
	store, entries := buildChain(t, defaultReorgHorizon+2)
	store.AdvanceRootedTip()
	_, rooted := store.Tips()
	require.Equal(t, entries[2].Header.Height, rooted)
}
