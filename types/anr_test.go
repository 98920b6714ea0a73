package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestANRSignPackUnpack(t *testing.T) {
	sk := testKey(t, 30)
	a := ANR{IP4: [4]byte{127, 0, 0, 1}, Port: DefaultPort, Version: "v1.0.0", Ts: uint64(time.Now().Unix())}
	signed := SignANR(sk, a)
	packed := signed.Pack()
	require.LessOrEqual(t, len(packed), MaxANRSize)

	got, err := UnpackANR(packed, time.Now())
	require.Nil(t, err)
	require.Equal(t, signed.Pk, got.Pk)
	require.Equal(t, signed.Port, got.Port)
}

func TestANRStaleTimestampRejected(t *testing.T) {
	sk := testKey(t, 31)
	old := time.Now().Add(-time.Hour)
	a := ANR{IP4: [4]byte{10, 0, 0, 1}, Port: DefaultPort, Version: "v1.0.0", Ts: uint64(old.Unix())}
	signed := SignANR(sk, a)
	packed := signed.Pack()

	_, err := UnpackANR(packed, time.Now())
	require.NotNil(t, err)
}
