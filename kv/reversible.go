package kv

import (
	"encoding/binary"

	"github.com/amadeus-network/amadeus-node/types"
)

// Reversible wraps a Store with the per-entry forward/reverse mutation
// logging of spec.md §4.7. Exactly one entry-apply may be in flight per
// Reversible at a time (§5: "single-writer per entry-apply"); it is not
// safe for concurrent use across goroutines.
type Reversible struct {
	store   Store
	forward []types.Mutation
	reverse []types.Mutation
}

func NewReversible(store Store) *Reversible {
	return &Reversible{store: store}
}

// BeginApply clears the per-entry logs ahead of applying a new entry
// (§4.1 step 3).
func (r *Reversible) BeginApply() {
	r.forward = r.forward[:0]
	r.reverse = r.reverse[:0]
}

func (r *Reversible) Forward() []types.Mutation { return r.forward }
func (r *Reversible) Reverse() []types.Mutation { return r.reverse }

// TruncateTo drops any forward/reverse log entries recorded after the given
// lengths — used when a tx's action fails and its own mutations must be
// reverted from state *and* struck from the logs, while the gas debit
// recorded right after stays (§4.1 step 4: "on failure, revert m,m_rev but
// still commit m_gas,m_gas_rev").
func (r *Reversible) TruncateTo(forwardLen, reverseLen int) {
	r.forward = r.forward[:forwardLen]
	r.reverse = r.reverse[:reverseLen]
}

// Get is a read-only passthrough; reads never touch the mutation logs.
func (r *Reversible) Get(key []byte) ([]byte, bool, error) {
	return r.store.Get(key)
}

// Iterator is a read-only passthrough to the underlying store's ordered
// iteration, used by storage_kv_get_prev/get_next (§4.6).
func (r *Reversible) Iterator(lower, upper []byte) (Iterator, error) {
	return r.store.Iterator(lower, upper)
}

// Put writes val at key, logging Put{k,v} forward and either
// Put{k,v0}/Delete{k} reverse depending on whether the key previously
// existed.
func (r *Reversible) Put(key, val []byte) error {
	v0, existed, err := r.store.Get(key)
	if err != nil {
		return err
	}
	if err := r.store.Put(key, val); err != nil {
		return err
	}
	r.forward = append(r.forward, types.PutMutation(key, val))
	if existed {
		r.reverse = append(r.reverse, types.PutMutation(key, v0))
	} else {
		r.reverse = append(r.reverse, types.DeleteMutation(key))
	}
	return nil
}

// Increment reads an 8-byte big-endian integer at key (0 if absent), adds
// delta, and writes the result back, logging it as a Put (forward) against
// the value that existed before the increment (reverse).
func (r *Reversible) Increment(key []byte, delta int64) (int64, error) {
	raw, existed, err := r.store.Get(key)
	if err != nil {
		return 0, err
	}
	var cur int64
	if existed {
		cur = int64(binary.BigEndian.Uint64(raw))
	}
	next := cur + delta
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(next))
	if err := r.store.Put(key, buf[:]); err != nil {
		return 0, err
	}
	r.forward = append(r.forward, types.PutMutation(key, buf[:]))
	if existed {
		r.reverse = append(r.reverse, types.PutMutation(key, raw))
	} else {
		r.reverse = append(r.reverse, types.DeleteMutation(key))
	}
	return next, nil
}

// Delete removes key if present, logging Delete{k} forward and
// Put{k,v0} reverse. A delete of an absent key is a no-op (no log entries).
func (r *Reversible) Delete(key []byte) error {
	v0, existed, err := r.store.Get(key)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}
	if err := r.store.Delete(key); err != nil {
		return err
	}
	r.forward = append(r.forward, types.DeleteMutation(key))
	r.reverse = append(r.reverse, types.PutMutation(key, v0))
	return nil
}

// SetBit sets bit number `bit` of the value at key (creating a `size`-byte
// zero value on first use). Returns false without mutating anything if the
// bit was already set (§4.7). The reverse log gets ClearBit{k,bit}, or
// Delete{k} when the key did not exist before.
func (r *Reversible) SetBit(key []byte, bit, size uint32) (bool, error) {
	raw, existed, err := r.store.Get(key)
	if err != nil {
		return false, err
	}
	buf := make([]byte, size)
	if existed {
		copy(buf, raw)
	}
	byteIdx, bitIdx := bit/8, bit%8
	if int(byteIdx) >= len(buf) {
		return false, nil
	}
	if buf[byteIdx]&(1<<bitIdx) != 0 {
		return false, nil // already set, no-op
	}
	buf[byteIdx] |= 1 << bitIdx
	if err := r.store.Put(key, buf); err != nil {
		return false, err
	}
	r.forward = append(r.forward, types.SetBitMutation(key, bit, size))
	if existed {
		r.reverse = append(r.reverse, types.ClearBitMutation(key, bit))
	} else {
		r.reverse = append(r.reverse, types.DeleteMutation(key))
	}
	return true, nil
}

// ClearBit clears bit number `bit` of the value at key.
func (r *Reversible) ClearBit(key []byte, bit uint32) error {
	raw, existed, err := r.store.Get(key)
	if err != nil || !existed {
		return err
	}
	byteIdx, bitIdx := bit/8, bit%8
	if int(byteIdx) >= len(raw) {
		return nil
	}
	if raw[byteIdx]&(1<<bitIdx) == 0 {
		return nil
	}
	raw[byteIdx] &^= 1 << bitIdx
	if err := r.store.Put(key, raw); err != nil {
		return err
	}
	r.forward = append(r.forward, types.ClearBitMutation(key, bit))
	r.reverse = append(r.reverse, types.SetBitMutation(key, bit, uint32(len(raw))))
	return nil
}

// Revert applies a reverse log in reverse order, restoring the pre-apply
// state exactly (spec.md §8 property 5). Unlike Put/Delete/SetBit/ClearBit,
// Revert does not itself append to the forward/reverse logs — it is
// replaying an already-recorded log, not producing a new one.
func (r *Reversible) Revert(reverseLog []types.Mutation) error {
	for i := len(reverseLog) - 1; i >= 0; i-- {
		if err := r.applyRaw(reverseLog[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reversible) applyRaw(m types.Mutation) error {
	switch m.Op {
	case types.OpPut:
		return r.store.Put(m.Key, m.Val)
	case types.OpDelete:
		return r.store.Delete(m.Key)
	case types.OpSetBit:
		raw, existed, err := r.store.Get(m.Key)
		if err != nil {
			return err
		}
		buf := make([]byte, m.Size)
		if existed {
			copy(buf, raw)
		}
		byteIdx, bitIdx := m.Bit/8, m.Bit%8
		if int(byteIdx) < len(buf) {
			buf[byteIdx] |= 1 << bitIdx
		}
		return r.store.Put(m.Key, buf)
	case types.OpClearBit:
		raw, existed, err := r.store.Get(m.Key)
		if err != nil || !existed {
			return err
		}
		byteIdx, bitIdx := m.Bit/8, m.Bit%8
		if int(byteIdx) < len(raw) {
			raw[byteIdx] &^= 1 << bitIdx
		}
		return r.store.Put(m.Key, raw)
	default:
		return nil
	}
}
