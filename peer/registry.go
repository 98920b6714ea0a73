// Package peer implements the Active Node Record registry of spec.md §3/
// §4.8/§4.12: a freshness-windowed, signature-verified table of known
// peers, guarded for concurrent reader/writer access the way the gossip
// transport's receive loop and the producer's peers_v2 handler both need.
package peer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/amadeus-network/amadeus-node/crypto/bls"
	"github.com/amadeus-network/amadeus-node/types"
)

// Registry holds the most-recently-seen ANR per pk, pruning stale entries
// against the §3 ±10 minute freshness window.
type Registry struct {
	mu    sync.RWMutex
	byPk  map[bls.PublicKey]types.ANR
	seenAt map[bls.PublicKey]time.Time
}

func NewRegistry() *Registry {
	return &Registry{byPk: make(map[bls.PublicKey]types.ANR), seenAt: make(map[bls.PublicKey]time.Time)}
}

// Upsert stores anr if it is newer than any record already held for its pk
// (monotonic timestamp, the usual gossip dedup rule), returning whether it
// was actually applied.
func (r *Registry) Upsert(anr types.ANR) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byPk[anr.Pk]
	if ok && existing.Ts >= anr.Ts {
		return false
	}
	r.byPk[anr.Pk] = anr
	r.seenAt[anr.Pk] = time.Now()
	return true
}

func (r *Registry) Get(pk bls.PublicKey) (types.ANR, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	anr, ok := r.byPk[pk]
	return anr, ok
}

// Fresh reports whether pk's record is within the freshness window as of
// now.
func (r *Registry) Fresh(pk bls.PublicKey, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	anr, ok := r.byPk[pk]
	if !ok {
		return false
	}
	ts := time.Unix(int64(anr.Ts), 0)
	return !ts.Before(now.Add(-types.FreshnessWindow)) && !ts.After(now.Add(types.FreshnessWindow))
}

// Prune removes every record outside the freshness window.
func (r *Registry) Prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pk, anr := range r.byPk {
		ts := time.Unix(int64(anr.Ts), 0)
		if ts.Before(now.Add(-types.FreshnessWindow)) {
			delete(r.byPk, pk)
			delete(r.seenAt, pk)
		}
	}
}

// RandomSample returns up to n random verified ANRs, the §4.8 "peers_v2"
// response shape.
func (r *Registry) RandomSample(n int) []types.ANR {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]types.ANR, 0, len(r.byPk))
	for _, anr := range r.byPk {
		all = append(all, anr)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPk)
}
