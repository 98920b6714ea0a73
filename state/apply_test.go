package state

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/kv"
	"github.com/amadeus-network/amadeus-node/types"
	"github.com/stretchr/testify/require"
)

func applierKey(t *testing.T, b byte) *bls.SecretKey {
	t.Helper()
	seed := make([]byte, bls.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	sk, err := bls.GenerateKey(seed)
	require.NoError(t, err)
	return sk
}

func buildGenesisLike(t *testing.T, signerSk *bls.SecretKey) *types.Entry {
	t.Helper()
	signer := bls.PublicKeyFromSecret(signerSk)
	e := &types.Entry{
		Header: types.EntryHeader{
			Slot:     0,
			Height:   0,
			PrevSlot: -1,
			Signer:   signer,
		},
	}
	e.Header.TxsHash = types.ComputeTxsHash(nil)
	e.Sign(signerSk)
	return e
}

func TestApplyEntryTransferSucceedsAndChargesGas(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	applier := NewApplier(r, nil, 100_000)

	trainerSk := applierKey(t, 1)
	aliceSk := applierKey(t, 2)
	bob := applierKey(t, 3)
	bobPk := bls.PublicKeyFromSecret(bob)

	require.NoError(t, bic.Credit(r, bls.PublicKeyFromSecret(aliceSk), "AMA", 1_000_000))

	entry := buildGenesisLike(t, trainerSk)

	tx := types.BuildTx(aliceSk, []byte("Coin"), "transfer", [][]byte{bobPk[:], {0, 0, 0, 0, 0, 0, 0, 100}}, types.NonceFromUint64(1), []byte("AMA"), 0, false)
	entry.Txs = [][]byte{tx.Pack()}
	entry.Header.TxsHash = types.ComputeTxsHash(entry.Txs)
	entry.Sign(trainerSk)

	result, err := applier.Apply(entry, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.TxResults, 1)
	require.Nil(t, result.TxResults[0].Error)

	bobBal, err := bic.GetBalance(r, bobPk, "AMA")
	require.NoError(t, err)
	require.EqualValues(t, 100, bobBal)

	nonce := applier.ChainNonce(bls.PublicKeyFromSecret(aliceSk))
	require.Equal(t, 0, nonce.Cmp(types.NonceFromUint64(1)))
}

func TestApplyEntryRevertsFailedAction(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	applier := NewApplier(r, nil, 100_000)

	trainerSk := applierKey(t, 4)
	aliceSk := applierKey(t, 5)
	bobPk := bls.PublicKeyFromSecret(applierKey(t, 6))

	// Alice holds only 10 AMA, less than the 100 this Coin.transfer moves,
	// so the action fails and its mutations are reverted. 10 is also below
	// the gas charge, so the gas debit fails as well.
	require.NoError(t, bic.Credit(r, bls.PublicKeyFromSecret(aliceSk), "AMA", 10))

	entry := buildGenesisLike(t, trainerSk)
	tx := types.BuildTx(aliceSk, []byte("Coin"), "transfer", [][]byte{bobPk[:], {0, 0, 0, 0, 0, 0, 0, 100}}, types.NonceFromUint64(1), []byte("AMA"), 0, false)
	entry.Txs = [][]byte{tx.Pack()}
	entry.Header.TxsHash = types.ComputeTxsHash(entry.Txs)
	entry.Sign(trainerSk)

	result, err := applier.Apply(entry, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.TxResults[0].Error)

	bobBal, _ := bic.GetBalance(r, bobPk, "AMA")
	require.EqualValues(t, 0, bobBal)
}

// recordingSandbox is a test double for state.Sandbox that records whether
// Call ran and what attachedBalance it observed on the dispatched account,
// so tests can tell the attached-amount transfer happened before dispatch
// rather than after.
type recordingSandbox struct {
	called            bool
	balanceAtDispatch int64
}

func (s *recordingSandbox) Call(r *kv.Reversible, env *Env, bytecode []byte, function string, args [][]byte) ([]byte, int64, error) {
	s.called = true
	bal, _ := bic.GetBalance(r, bls.PublicKey(env.AccountCurrent), "AMA")
	s.balanceAtDispatch = bal
	return nil, 0, nil
}

func TestApplyEntryAttachedAmountTransfersBeforeDispatch(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	sandbox := &recordingSandbox{}
	applier := NewApplier(r, sandbox, 100_000)

	trainerSk := applierKey(t, 7)
	aliceSk := applierKey(t, 8)
	contractSk := applierKey(t, 9)
	contractPk := bls.PublicKeyFromSecret(contractSk)

	require.NoError(t, bic.Credit(r, bls.PublicKeyFromSecret(aliceSk), "AMA", 1_000))
	require.NoError(t, bic.Deploy(r, contractPk, []byte("fake bytecode")))

	entry := buildGenesisLike(t, trainerSk)
	tx := types.BuildTx(aliceSk, contractPk[:], "run", nil, types.NonceFromUint64(1), []byte("AMA"), 100, true)
	entry.Txs = [][]byte{tx.Pack()}
	entry.Header.TxsHash = types.ComputeTxsHash(entry.Txs)
	entry.Sign(trainerSk)

	result, err := applier.Apply(entry, nil, nil)
	require.NoError(t, err)
	require.Nil(t, result.TxResults[0].Error)
	require.True(t, sandbox.called)

	// The attachment was already credited to the contract by the time
	// Call ran, not just by the time Apply returns.
	require.EqualValues(t, 100, sandbox.balanceAtDispatch)

	contractBal, err := bic.GetBalance(r, contractPk, "AMA")
	require.NoError(t, err)
	require.EqualValues(t, 100, contractBal)
}

func TestApplyEntryInsufficientAttachedAmountSkipsDispatch(t *testing.T) {
	store := kv.NewMemStore()
	r := kv.NewReversible(store)
	sandbox := &recordingSandbox{}
	applier := NewApplier(r, sandbox, 100_000)

	trainerSk := applierKey(t, 10)
	aliceSk := applierKey(t, 11)
	contractSk := applierKey(t, 12)
	contractPk := bls.PublicKeyFromSecret(contractSk)

	// Alice has no AMA at all, so the attachment debit must fail before
	// the contract is ever dispatched to.
	require.NoError(t, bic.Deploy(r, contractPk, []byte("fake bytecode")))

	entry := buildGenesisLike(t, trainerSk)
	tx := types.BuildTx(aliceSk, contractPk[:], "run", nil, types.NonceFromUint64(1), []byte("AMA"), 100, true)
	entry.Txs = [][]byte{tx.Pack()}
	entry.Header.TxsHash = types.ComputeTxsHash(entry.Txs)
	entry.Sign(trainerSk)

	result, err := applier.Apply(entry, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.TxResults[0].Error)
	require.False(t, sandbox.called)

	contractBal, _ := bic.GetBalance(r, contractPk, "AMA")
	require.EqualValues(t, 0, contractBal)
}
