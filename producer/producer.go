// Package producer implements the "computor" loop of spec.md §4.13: once a
// second, compute proof-of-useful-work for the current epoch and, when the
// local node is the slot trainer for height+1, produce the next entry.
package producer

import (
	"context"
	"time"

	"github.com/amadeus-network/amadeus-node/bic"
	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/log"
	"github.com/amadeus-network/amadeus-node/pow"
	"github.com/amadeus-network/amadeus-node/txpool"
	"github.com/amadeus-network/amadeus-node/types"
)

// Role is the node's participation mode, the §4.13 trichotomy.
type Role int

const (
	RoleDefault Role = iota
	RoleTrainerWithGas
	RoleTrainerWithoutGas
)

// ChainTip is the minimal view of chain state the producer needs: the
// current entry to build on, its epoch/vr, and the trainer set for the
// next height.
type ChainTip interface {
	CurrentEntry() *types.Entry
	Epoch(height uint64) uint32
	TrainersForHeight(height uint64) []bls.PublicKey
	GasBalance(pk bls.PublicKey) int64
}

// Broadcaster is how the producer pushes its outputs onto the gossip
// transport, kept as an interface to avoid importing package gossip (which
// would create a cycle back through the node wiring layer).
type Broadcaster interface {
	BroadcastTx(packed []byte)
	BroadcastSol(sol []byte)
	BroadcastEntry(entry *types.Entry)
}

// TxPool is the subset of *txpool.Pool the producer needs.
type TxPool interface {
	Insert(packedTxs [][]byte)
	GrabNextValid(n int, view txpool.ChainView) [][]byte
}

const (
	entriesPerTick  = 100 // §4.13 produce_entry uses grab_next_valid(100)
	computeIterations = 200_000
)

// Computor runs the §4.13 1Hz loop.
type Computor struct {
	sk          *bls.SecretKey
	chain       ChainTip
	broadcaster Broadcaster
	pool        TxPool
	poolView    txpool.ChainView
	epochInterval uint64
	log         log.Logger

	role Role
}

func NewComputor(sk *bls.SecretKey, chain ChainTip, broadcaster Broadcaster, pool TxPool, poolView txpool.ChainView, epochInterval uint64) *Computor {
	return &Computor{
		sk: sk, chain: chain, broadcaster: broadcaster, pool: pool, poolView: poolView,
		epochInterval: epochInterval, log: log.New("module", "producer"),
	}
}

// Run blocks, ticking once a second until ctx is canceled.
func (c *Computor) Run(ctx context.Context, inSync func() bool) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if inSync != nil && !inSync() {
				continue
			}
			c.tick()
		}
	}
}

func (c *Computor) tick() {
	cur := c.chain.CurrentEntry()
	if cur == nil {
		return
	}
	localPk := bls.PublicKeyFromSecret(c.sk)
	epoch := c.chain.Epoch(cur.Header.Height)
	segmentVRHash := hashVR(cur.Header.VR)

	nextHeightTrainers := c.chain.TrainersForHeight(cur.Header.Height + 1)
	isNextTrainer := containsPk(nextHeightTrainers, localPk)
	hasGas := c.chain.GasBalance(localPk) > 0

	switch {
	case isNextTrainer && hasGas:
		c.role = RoleTrainerWithGas
	case isNextTrainer:
		c.role = RoleTrainerWithoutGas
	default:
		c.role = RoleDefault
	}

	sol, ok := pow.ComputeFor(epoch, segmentVRHash, c.sk, localPk, computeIterations)
	if ok {
		switch c.role {
		case RoleTrainerWithGas:
			tx := types.BuildTx(c.sk, []byte("Epoch"), "submit_sol", [][]byte{sol[:]}, types.NonceFromUint64(uint64(time.Now().UnixNano())), nil, 0, false)
			packed := tx.Pack()
			c.pool.Insert([][]byte{packed})
			c.broadcaster.BroadcastTx(packed)
		default:
			c.broadcaster.BroadcastSol(sol[:])
		}
	}

	if isNextTrainer {
		c.produceEntry(cur, nextHeightTrainers)
	}
}

func (c *Computor) produceEntry(cur *types.Entry, trainers []bls.PublicKey) {
	localPk := bls.PublicKeyFromSecret(c.sk)
	vr := bls.Sign(c.sk, cur.Header.VR[:], bls.DSTVRF)
	next := types.BuildNext(cur, localPk, vr)
	packedTxs := c.pool.GrabNextValid(entriesPerTick, c.poolView)
	next.Txs = packedTxs
	next.Header.TxsHash = types.ComputeTxsHash(packedTxs)
	next.Sign(c.sk)
	c.broadcaster.BroadcastEntry(next)
}

func containsPk(set []bls.PublicKey, pk bls.PublicKey) bool {
	for _, p := range set {
		if p == pk {
			return true
		}
	}
	return false
}

func hashVR(vr [96]byte) [32]byte {
	return h3.Sum(vr[:])
}

var _ = bic.EpochInterval // producer's epoch math defers to bic's constant; kept for documentation
