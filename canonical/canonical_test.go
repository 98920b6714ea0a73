package canonical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	cases := []Term{
		Nil(),
		Bool(true),
		Bool(false),
		Int(0),
		Int(1234567),
		Int(-1234567),
		Bytes([]byte("hello world")),
		Bytes(nil),
	}
	for _, term := range cases {
		enc := Encode(term)
		got, ok := Validate(enc)
		require.True(t, ok)
		require.Equal(t, term.Kind, got.Kind)
		if term.Kind == KindInt {
			require.Equal(t, term.Int, got.Int)
		}
		if term.Kind == KindBytes {
			require.Equal(t, term.Bytes, got.Bytes)
		}
	}
}

func TestRoundTripListAndMap(t *testing.T) {
	m := Map(
		MapEntry{Key: Bytes([]byte("b")), Value: Int(2)},
		MapEntry{Key: Bytes([]byte("a")), Value: Int(1)},
	)
	l := List(Int(1), Bytes([]byte("x")), m)

	enc := Encode(l)
	got, ok := Validate(enc)
	require.True(t, ok)
	require.Equal(t, KindList, got.Kind)
	require.Len(t, got.List, 3)

	// Map keys must come back sorted by their own encoding, regardless of
	// construction order.
	decodedMap := got.List[2]
	require.Equal(t, KindMap, decodedMap.Kind)
	require.Equal(t, "a", string(decodedMap.Map[0].Key.Bytes))
	require.Equal(t, "b", string(decodedMap.Map[1].Key.Bytes))
}

func TestMutationBreaksValidate(t *testing.T) {
	term := List(Int(1), Bytes([]byte("payload")))
	enc := Encode(term)
	mutated := append([]byte(nil), enc...)
	mutated[len(mutated)-1] ^= 0xFF
	_, ok := Validate(mutated)
	require.False(t, ok)
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := Decode([]byte{5, 10, 1, 2})
	require.Error(t, err)
}
