package gossip

import (
	"net"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/log"
)

// seenCacheBytes bounds the anti-replay cache's memory footprint; fastcache
// evicts the oldest entries once it fills rather than growing unbounded.
const seenCacheBytes = 4 << 20

// maxDatagram is comfortably under the common internet MTU, matching
// shardSize plus header/envelope overhead.
const maxDatagram = 1500

// gcInterval governs how often the reassembler drops timed-out partial
// transfers.
const gcInterval = 2 * time.Second

// Transport moves signed, sharded, Reed-Solomon-coded envelopes over UDP:
// Send erasure-codes a payload and signs each shard as a SignedEnvelope
// (shards travel unencrypted; EncryptShardCipher is not applied here); the
// receive loop authenticates each datagram, drops already-seen ones via a
// bounded fastcache dedup set, reassembles, and hands whole payloads to a
// callback.
type Transport struct {
	conn *net.UDPConn
	sk   *bls.SecretKey
	log  log.Logger

	reassembler *Reassembler
	seen        *fastcache.Cache
}

// Listen opens a UDP socket on addr (e.g. ":36969") for gossip traffic.
func Listen(addr string, sk *bls.SecretKey) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Transport{
		conn:        conn,
		sk:          sk,
		log:         log.New("module", "gossip"),
		reassembler: NewReassembler(),
		seen:        fastcache.New(seenCacheBytes),
	}, nil
}

func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

func (t *Transport) Close() error { return t.conn.Close() }

// Send erasure-codes plaintext into shards, signs each as an envelope, and
// fires them at dst. Shard loss tolerance comes from the Reed-Solomon
// parity shards EncodeShards adds, not from retransmission.
func (t *Transport) Send(dst *net.UDPAddr, plaintext []byte) error {
	shards, dataShards, parityShards, err := EncodeShards(plaintext)
	if err != nil {
		return err
	}
	localPk := bls.PublicKeyFromSecret(t.sk)
	total := uint16(dataShards + parityShards)
	var ts [16]byte
	nowNano := time.Now().UnixNano()
	for i := 15; i >= 8; i-- {
		ts[i] = byte(nowNano)
		nowNano >>= 8
	}

	for i, shard := range shards {
		header := ShardHeader{
			Pk:           localPk,
			TsNano:       ts,
			ShardIndex:   uint16(i),
			ShardTotal:   total,
			OriginalSize: uint32(len(plaintext)),
		}
		packet := append(header.marshal(), shard...)
		env := SignEnvelope(t.sk, packet)
		if _, err := t.conn.WriteToUDP(env.Marshal(), dst); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveLoop blocks reading datagrams until the socket closes, handing
// fully-reassembled, signature-verified payloads to onPayload.
func (t *Transport) ReceiveLoop(onPayload func(senderPk bls.PublicKey, src *net.UDPAddr, payload []byte)) {
	gcTicker := time.NewTicker(gcInterval)
	defer gcTicker.Stop()
	go func() {
		for range gcTicker.C {
			t.reassembler.GC(time.Now())
		}
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		env, envErr := UnmarshalSignedEnvelope(append([]byte(nil), buf[:n]...))
		if envErr != nil || !env.Verify() {
			continue
		}
		if t.seen.Has(env.Signature[:]) {
			continue // duplicate datagram, already processed
		}
		t.seen.Set(env.Signature[:], nil)
		header, shard, hdrErr := unmarshalShardHeader(env.Payload)
		if hdrErr != nil {
			continue
		}
		payload, ok, addErr := t.reassembler.Add(header, shard)
		if addErr != nil || !ok {
			continue
		}
		onPayload(header.Pk, src, payload)
	}
}
