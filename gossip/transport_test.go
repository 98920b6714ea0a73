package gossip

import (
	"net"
	"testing"
	"time"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/stretchr/testify/require"
)

func TestTransportSendReceiveRoundTrip(t *testing.T) {
	skA := gossipKey(t, 10)
	skB := gossipKey(t, 11)

	tA, err := Listen("127.0.0.1:0", skA)
	require.NoError(t, err)
	defer tA.Close()
	tB, err := Listen("127.0.0.1:0", skB)
	require.NoError(t, err)
	defer tB.Close()

	received := make(chan []byte, 1)
	go tB.ReceiveLoop(func(senderPk bls.PublicKey, src *net.UDPAddr, payload []byte) {
		received <- payload
	})

	dst := tB.LocalAddr().(*net.UDPAddr)
	payload := []byte("hello from node A")
	require.NoError(t, tA.Send(dst, payload))

	select {
	case got := <-received:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reassembled payload")
	}
}
