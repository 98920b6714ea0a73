package bls

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func seed(b byte) []byte {
	s := make([]byte, SeedSize)
	for i := range s {
		s[i] = b
	}
	return s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	sk, err := GenerateKey(seed(1))
	require.NoError(t, err)
	pk := PublicKeyFromSecret(sk)
	msg := []byte("apply_entry mutations_hash placeholder")

	sig := Sign(sk, msg, DSTAtt)
	require.True(t, Verify(pk, sig, msg, DSTAtt))

	// Wrong DST must not verify (domain separation).
	require.False(t, Verify(pk, sig, msg, DSTTx))

	// Mutated message must not verify.
	require.False(t, Verify(pk, sig, append(bytes.Clone(msg), 0), DSTAtt))
}

func TestValidatePublicKey(t *testing.T) {
	sk, err := GenerateKey(seed(2))
	require.NoError(t, err)
	pk := PublicKeyFromSecret(sk)
	require.True(t, ValidatePublicKey(pk[:]))

	garbage := make([]byte, PublicKeySize)
	require.False(t, ValidatePublicKey(garbage))
	require.False(t, ValidatePublicKey(garbage[:10]))
}

func TestAggregateIdempotence(t *testing.T) {
	sk1, _ := GenerateKey(seed(3))
	sk2, _ := GenerateKey(seed(4))
	pk1 := PublicKeyFromSecret(sk1)
	pk2 := PublicKeyFromSecret(sk2)
	msg := []byte("entry_hash||mutations_hash")

	sig1 := Sign(sk1, msg, DSTAtt)
	sig2 := Sign(sk2, msg, DSTAtt)

	agg, err := Aggregate([]Signature{sig1, sig2})
	require.NoError(t, err)

	aggPk, err := AggregatePublicKeys([]PublicKey{pk1, pk2})
	require.NoError(t, err)

	require.True(t, VerifyAggregate(aggPk, agg, msg, DSTAtt))
}

func TestSharedSecretAgreement(t *testing.T) {
	skA, _ := GenerateKey(seed(5))
	skB, _ := GenerateKey(seed(6))
	pkA := PublicKeyFromSecret(skA)
	pkB := PublicKeyFromSecret(skB)

	sharedFromA, err := SharedSecret(skA, pkB)
	require.NoError(t, err)
	sharedFromB, err := SharedSecret(skB, pkA)
	require.NoError(t, err)
	require.Equal(t, sharedFromA, sharedFromB)
}
