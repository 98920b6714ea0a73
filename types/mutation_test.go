package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMutationLogHashDeterministic(t *testing.T) {
	log := []Mutation{
		PutMutation([]byte("k1"), []byte("v1")),
		SetBitMutation([]byte("k2"), 3, 8),
		DeleteMutation([]byte("k3")),
	}
	h1 := HashMutations(log)
	h2 := HashMutations(log)
	require.Equal(t, h1, h2)

	reordered := []Mutation{log[1], log[0], log[2]}
	require.NotEqual(t, h1, HashMutations(reordered))
}
