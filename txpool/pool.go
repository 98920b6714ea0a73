package txpool

import (
	"sort"
	"sync"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
	"github.com/amadeus-network/amadeus-node/log"
	"github.com/amadeus-network/amadeus-node/metrics"
	"github.com/amadeus-network/amadeus-node/pow"
	"github.com/amadeus-network/amadeus-node/types"
)

// ChainView is the read-only projection of chain state the pool needs to
// order and admit transactions (§4.5): per-signer nonce/balance and the
// current epoch, all supplied by the state machine (C8) rather than the
// pool reaching into storage itself.
type ChainView interface {
	ChainNonce(pk bls.PublicKey) types.Nonce
	ChainBalance(pk bls.PublicKey, symbol string) int64
	ChainEpoch() uint32
}

type poolKey struct {
	nonce types.Nonce
	hash  h3.Hash
}

// Pool is the per-signer nonce/balance-aware admission queue of §4.5.
type Pool struct {
	mu  sync.Mutex
	txs map[poolKey]*types.Tx

	giftedSol map[h3.Hash]uint32 // H3(sol) -> epoch seen
	bloom     *SolBloom

	log log.Logger
}

func NewPool(logger log.Logger) *Pool {
	if logger == nil {
		logger = log.New("module", "txpool")
	}
	return &Pool{
		txs:       make(map[poolKey]*types.Tx),
		giftedSol: make(map[h3.Hash]uint32),
		bloom:     NewSolBloom(),
		log:       logger,
	}
}

// Insert unpacks and admits each packed tx, idempotent on (nonce, hash).
func (p *Pool) Insert(packedTxs [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, packed := range packedTxs {
		tx, err := types.UnpackTx(packed)
		if err != nil {
			p.log.Debug("txpool: rejecting unparsable tx", "err", err)
			continue
		}
		key := poolKey{nonce: tx.Body.Nonce, hash: tx.Hash}
		if _, exists := p.txs[key]; exists {
			continue
		}
		p.txs[key] = tx
	}
	metrics.NewGauge("txpool.size").Update(int64(len(p.txs)))
}

// DeletePacked removes the pool entries corresponding to the given packed
// txs (used once an entry carrying them has been applied).
func (p *Pool) DeletePacked(packedTxs [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, packed := range packedTxs {
		tx, err := types.UnpackTx(packed)
		if err != nil {
			continue
		}
		delete(p.txs, poolKey{nonce: tx.Body.Nonce, hash: tx.Hash})
	}
	metrics.NewGauge("txpool.size").Update(int64(len(p.txs)))
}

// sortedBySignerThenNonce returns pool entries sorted first by signer (to
// let the caller track a running per-signer projection) and then by nonce
// ascending within each signer — the order §4.5/§8 property 8 requires.
func (p *Pool) sortedBySignerThenNonce() []*types.Tx {
	out := make([]*types.Tx, 0, len(p.txs))
	for _, tx := range p.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Body.Signer, out[j].Body.Signer
		for k := 0; k < len(si); k++ {
			if si[k] != sj[k] {
				return si[k] < sj[k]
			}
		}
		return out[i].Body.Nonce.Cmp(out[j].Body.Nonce) < 0
	})
	return out
}

const feeReserve = 1 * 10_000_000 // to_cents(1), see bic.ToCents

// GrabNextValid returns up to n packed txs in non-decreasing (signer,
// nonce) order, dropping stale/underfunded/malformed ones along the way,
// without mutating the pool (§4.5).
func (p *Pool) GrabNextValid(n int, view ChainView) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	sorted := p.sortedBySignerThenNonce()
	projectedNonce := make(map[bls.PublicKey]types.Nonce)
	projectedBalance := make(map[bls.PublicKey]int64)
	seeded := make(map[bls.PublicKey]bool)

	out := make([][]byte, 0, n)
	epoch := view.ChainEpoch()

	for _, tx := range sorted {
		if len(out) >= n {
			break
		}
		signer := tx.Body.Signer
		if !seeded[signer] {
			projectedNonce[signer] = view.ChainNonce(signer)
			projectedBalance[signer] = view.ChainBalance(signer, "AMA")
			seeded[signer] = true
		}
		if tx.Body.Nonce.Cmp(projectedNonce[signer]) <= 0 {
			continue
		}
		cost := types.ExecCost(len(tx.TxEncoded)) + feeReserve
		if projectedBalance[signer]-cost < 0 {
			continue
		}
		if len(tx.Body.Actions) == 1 && tx.Body.Actions[0].Function == "submit_sol" {
			args := tx.Body.Actions[0].Args
			if len(args) == 0 || len(args[0]) != pow.SolSize {
				continue
			}
			if !solEpochMatches(args[0], epoch) {
				continue
			}
		}
		projectedNonce[signer] = tx.Body.Nonce
		projectedBalance[signer] -= cost
		out = append(out, tx.Pack())
	}
	return out
}

func solEpochMatches(solArg []byte, epoch uint32) bool {
	if len(solArg) < 4 {
		return false
	}
	got := uint32(solArg[0]) | uint32(solArg[1])<<8 | uint32(solArg[2])<<16 | uint32(solArg[3])<<24
	return got == epoch
}

// PurgeStale removes every tx whose nonce or sol-epoch is no longer valid
// against the current chain state.
func (p *Pool) PurgeStale(view ChainView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	epoch := view.ChainEpoch()
	for key, tx := range p.txs {
		chainNonce := view.ChainNonce(tx.Body.Signer)
		if tx.Body.Nonce.Cmp(chainNonce) <= 0 {
			delete(p.txs, key)
			continue
		}
		if len(tx.Body.Actions) == 1 && tx.Body.Actions[0].Function == "submit_sol" {
			args := tx.Body.Actions[0].Args
			if len(args) == 0 || !solEpochMatches(args[0], epoch) {
				delete(p.txs, key)
			}
		}
	}
	metrics.NewGauge("txpool.size").Update(int64(len(p.txs)))
}

// LowestNonce / HighestNonce serve peer inspection (§4.5).
func (p *Pool) LowestNonce(pk bls.PublicKey) (types.Nonce, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extremeNonce(pk, true)
}

func (p *Pool) HighestNonce(pk bls.PublicKey) (types.Nonce, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extremeNonce(pk, false)
}

func (p *Pool) extremeNonce(pk bls.PublicKey, lowest bool) (types.Nonce, int, bool) {
	var best types.Nonce
	found := false
	count := 0
	for _, tx := range p.txs {
		if tx.Body.Signer != pk {
			continue
		}
		count++
		if !found {
			best = tx.Body.Nonce
			found = true
			continue
		}
		if lowest && tx.Body.Nonce.Cmp(best) < 0 {
			best = tx.Body.Nonce
		}
		if !lowest && tx.Body.Nonce.Cmp(best) > 0 {
			best = tx.Body.Nonce
		}
	}
	return best, count, found
}

// AddGiftedSol dedups an externally-gifted POW solution (§4.5/§4.8 "sol"
// op); returns false if it was already cached.
func (p *Pool) AddGiftedSol(sol []byte, epoch uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := h3.Sum(sol)
	if p.bloom.MaybeContains(sol) {
		// Bloom says "maybe seen"; the exact map check is authoritative —
		// the bloom filter is only a prefilter.
		if _, seen := p.giftedSol[h]; seen {
			return false
		}
	}
	p.giftedSol[h] = epoch
	p.bloom.Add(sol)
	return true
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}
