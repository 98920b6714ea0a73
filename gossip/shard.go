package gossip

import (
	"sync"
	"time"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/klauspost/reedsolomon"
)

// shardSize is chosen to keep each UDP datagram MTU-safe after the fixed
// header and encryption overhead (§4.8 "shard_size ≈ MTU-safe").
const shardSize = 1200

// reassemblyTTL is how long an in-flight reassembly key is kept before
// being GC'd (§4.8: "keys older than 8s are GC'd").
const reassemblyTTL = 8 * time.Second

// EncodeShards splits plaintext into data_shards = shard_total/2 data
// shards plus an equal number of parity shards via Reed-Solomon (§4.8).
func EncodeShards(plaintext []byte) ([][]byte, int, int, error) {
	dataShards := (len(plaintext) + shardSize - 1) / shardSize
	if dataShards < 1 {
		dataShards = 1
	}
	parityShards := dataShards

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, 0, 0, err
	}
	shards, err := enc.Split(plaintext)
	if err != nil {
		return nil, 0, 0, err
	}
	if err := enc.Encode(shards); err != nil {
		return nil, 0, 0, err
	}
	return shards, dataShards, parityShards, nil
}

// reassemblyKey identifies one in-flight multi-shard message (§4.8: "per
// key (pk, ts_nano, shard_total)").
type reassemblyKey struct {
	pk         bls.PublicKey
	tsNano     [16]byte
	shardTotal uint16
}

type reassemblyState struct {
	shards       [][]byte
	present      []bool
	dataShards   int
	parityShards int
	originalSize uint32
	receivedAt   time.Time
	spent        bool
}

// Reassembler accumulates shards per key and decodes once enough arrive,
// marking the key "spent" so late shards are dropped (§4.8).
type Reassembler struct {
	mu      sync.Mutex
	pending map[reassemblyKey]*reassemblyState
}

func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[reassemblyKey]*reassemblyState)}
}

// Add ingests one shard; once data_shards distinct shards have arrived for
// a key, it reconstructs and returns the original payload.
func (re *Reassembler) Add(header ShardHeader, shard []byte) ([]byte, bool, error) {
	key := reassemblyKey{pk: header.Pk, tsNano: header.TsNano, shardTotal: header.ShardTotal}

	re.mu.Lock()
	defer re.mu.Unlock()

	st, ok := re.pending[key]
	if !ok {
		half := int(header.ShardTotal) / 2
		if half < 1 {
			half = 1
		}
		st = &reassemblyState{
			shards:       make([][]byte, header.ShardTotal),
			present:      make([]bool, header.ShardTotal),
			dataShards:   half,
			parityShards: half,
			originalSize: header.OriginalSize,
			receivedAt:   time.Now(),
		}
		re.pending[key] = st
	}
	if st.spent || int(header.ShardIndex) >= len(st.shards) {
		return nil, false, nil
	}
	st.shards[header.ShardIndex] = shard
	st.present[header.ShardIndex] = true

	count := 0
	for _, p := range st.present {
		if p {
			count++
		}
	}
	if count < st.dataShards {
		return nil, false, nil
	}

	enc, err := reedsolomon.New(st.dataShards, st.parityShards)
	if err != nil {
		return nil, false, err
	}
	if err := enc.Reconstruct(st.shards); err != nil {
		return nil, false, err
	}
	out := make([]byte, 0, int(st.originalSize))
	for _, s := range st.shards[:st.dataShards] {
		out = append(out, s...)
	}
	if len(out) > int(st.originalSize) {
		out = out[:st.originalSize]
	}
	st.spent = true
	return out, true, nil
}

// GC drops reassembly state older than reassemblyTTL.
func (re *Reassembler) GC(now time.Time) {
	re.mu.Lock()
	defer re.mu.Unlock()
	for k, st := range re.pending {
		if now.Sub(st.receivedAt) > reassemblyTTL {
			delete(re.pending, k)
		}
	}
}
