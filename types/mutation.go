package types

import (
	"github.com/amadeus-network/amadeus-node/canonical"
	"github.com/amadeus-network/amadeus-node/crypto/h3"
)

// MutationOp tags one of the four mutation kinds (§3).
type MutationOp byte

const (
	OpPut MutationOp = iota
	OpDelete
	OpSetBit
	OpClearBit
)

// Mutation is one entry in the forward (m) or reverse (m_rev) log.
type Mutation struct {
	Op   MutationOp
	Key  []byte
	Val  []byte // Put: new value. SetBit/ClearBit unused.
	Bit  uint32 // SetBit/ClearBit
	Size uint32 // SetBit: size in bytes of the backing value on first use
}

func PutMutation(key, val []byte) Mutation    { return Mutation{Op: OpPut, Key: key, Val: val} }
func DeleteMutation(key []byte) Mutation      { return Mutation{Op: OpDelete, Key: key} }
func SetBitMutation(key []byte, bit, size uint32) Mutation {
	return Mutation{Op: OpSetBit, Key: key, Bit: bit, Size: size}
}
func ClearBitMutation(key []byte, bit uint32) Mutation {
	return Mutation{Op: OpClearBit, Key: key, Bit: bit}
}

func encodeMutation(m Mutation) canonical.Term {
	entries := []canonical.MapEntry{
		{Key: canonical.Bytes([]byte("op")), Value: canonical.Int(int64(m.Op))},
		{Key: canonical.Bytes([]byte("key")), Value: canonical.Bytes(m.Key)},
	}
	switch m.Op {
	case OpPut:
		entries = append(entries, canonical.MapEntry{Key: canonical.Bytes([]byte("val")), Value: canonical.Bytes(m.Val)})
	case OpSetBit:
		entries = append(entries,
			canonical.MapEntry{Key: canonical.Bytes([]byte("bit")), Value: canonical.Int(int64(m.Bit))},
			canonical.MapEntry{Key: canonical.Bytes([]byte("size")), Value: canonical.Int(int64(m.Size))},
		)
	case OpClearBit:
		entries = append(entries, canonical.MapEntry{Key: canonical.Bytes([]byte("bit")), Value: canonical.Int(int64(m.Bit))})
	}
	return canonical.Map(entries...)
}

// EncodeMutationLog produces the canonical byte form of an ordered
// mutation log, preserving insertion order (the log is a List, not a Map,
// so sorting never reorders entries — §4.7/§5 "mutation logs preserve
// insertion order").
func EncodeMutationLog(log []Mutation) []byte {
	items := make([]canonical.Term, len(log))
	for i, m := range log {
		items[i] = encodeMutation(m)
	}
	return canonical.Encode(canonical.List(items...))
}

// HashMutations computes mutations_hash = H3(encode(m)).
func HashMutations(log []Mutation) h3.Hash {
	return h3.Sum(EncodeMutationLog(log))
}
