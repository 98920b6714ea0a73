package types

import (
	"testing"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/stretchr/testify/require"
)

func makeGenesis(t *testing.T, sk *bls.SecretKey) *Entry {
	t.Helper()
	pk := bls.PublicKeyFromSecret(sk)
	e := &Entry{
		Header: EntryHeader{
			Slot:     0,
			Height:   0,
			PrevSlot: -1,
			Signer:   pk,
			DR:       h3.Sum([]byte("genesis-dr")),
			TxsHash:  ComputeTxsHash(nil),
		},
	}
	e.Sign(sk)
	return e
}

func TestEntryHashChainAndSignature(t *testing.T) {
	sk := testKey(t, 10)
	genesis := makeGenesis(t, sk)
	require.Nil(t, genesis.ValidateSignature())

	pk := bls.PublicKeyFromSecret(sk)
	vr := bls.Sign(sk, genesis.Header.VR[:], bls.DSTVRF)
	next := BuildNext(genesis, pk, vr)
	next.Header.TxsHash = ComputeTxsHash(nil)
	next.Sign(sk)

	require.Nil(t, ValidateNext(genesis, next))
	require.Nil(t, next.ValidateShape(1024*1024))
}

func TestValidateNextRejectsBadChain(t *testing.T) {
	sk := testKey(t, 11)
	genesis := makeGenesis(t, sk)
	pk := bls.PublicKeyFromSecret(sk)
	vr := bls.Sign(sk, genesis.Header.VR[:], bls.DSTVRF)
	next := BuildNext(genesis, pk, vr)
	next.Header.Height = 5 // corrupt
	next.Sign(sk)

	err := ValidateNext(genesis, next)
	require.NotNil(t, err)
	require.Equal(t, "invalid_height", string(err.Code))
}

func TestTxsHashMismatchRejected(t *testing.T) {
	sk := testKey(t, 12)
	e := makeGenesis(t, sk)
	e.Txs = [][]byte{[]byte("not-really-a-tx")}
	e.Sign(sk)
	err := e.ValidateShape(1024 * 1024)
	require.NotNil(t, err)
	require.Equal(t, "txs_hash_invalid", string(err.Code))
}
