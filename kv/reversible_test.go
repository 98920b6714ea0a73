package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutRevertRestoresState(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Put([]byte("existing"), []byte("v0")))

	rv := NewReversible(store)
	rv.BeginApply()
	require.NoError(t, rv.Put([]byte("existing"), []byte("v1")))
	require.NoError(t, rv.Put([]byte("new-key"), []byte("v2")))
	_, err := rv.Increment([]byte("counter"), 5)
	require.NoError(t, err)

	require.NoError(t, rv.Revert(rv.Reverse()))

	v, ok, _ := store.Get([]byte("existing"))
	require.True(t, ok)
	require.Equal(t, "v0", string(v))

	_, ok, _ = store.Get([]byte("new-key"))
	require.False(t, ok)

	_, ok, _ = store.Get([]byte("counter"))
	require.False(t, ok)
}

func TestSetBitIdempotent(t *testing.T) {
	store := NewMemStore()
	rv := NewReversible(store)
	rv.BeginApply()

	set, err := rv.SetBit([]byte("bits"), 3, 1)
	require.NoError(t, err)
	require.True(t, set)

	set, err = rv.SetBit([]byte("bits"), 3, 1)
	require.NoError(t, err)
	require.False(t, set) // already set, no-op

	require.NoError(t, rv.Revert(rv.Reverse()))
	_, ok, _ := store.Get([]byte("bits"))
	require.False(t, ok)
}

func TestHashMutationsOrderSensitive(t *testing.T) {
	store := NewMemStore()
	rv := NewReversible(store)
	rv.BeginApply()
	require.NoError(t, rv.Put([]byte("a"), []byte("1")))
	require.NoError(t, rv.Put([]byte("b"), []byte("2")))
	h1 := hashForwardLog(rv)

	store2 := NewMemStore()
	rv2 := NewReversible(store2)
	rv2.BeginApply()
	require.NoError(t, rv2.Put([]byte("b"), []byte("2")))
	require.NoError(t, rv2.Put([]byte("a"), []byte("1")))
	h2 := hashForwardLog(rv2)

	require.NotEqual(t, h1, h2)
}
