// Package canonical implements the tagged-sum wire value language described
// in spec.md §6: nil/bool/int/bytes/list/map with a single canonical
// encoding, so that equality and hashing over the value are unambiguous.
// It is a direct port of the original node's vanilla term serializer
// (rust/src/libs/misc/vanillaser.rs in the retrieval pack), which is the
// source spec.md's wire-protocol table was distilled from.
package canonical

import (
	"errors"
	"fmt"
	"sort"
)

// Kind tags the variant of a Term.
type Kind byte

const (
	KindNil Kind = iota
	KindTrue
	KindFalse
	KindInt
	_ // tag 4 is unused in the original encoding
	KindBytes
	KindList
	KindMap
)

// Term is the single tagged-sum value type every canonical message is built
// from. Exactly one of the typed fields is meaningful, selected by Kind.
type Term struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Term
	Map   []MapEntry // key-sorted; see Sort
}

// MapEntry is one key/value pair of a canonical map, kept as a sorted slice
// (rather than a Go map) so that encoding order — and therefore hashing and
// equality — is deterministic without re-sorting on every read.
type MapEntry struct {
	Key   Term
	Value Term
}

func Nil() Term           { return Term{Kind: KindNil} }
func Bool(b bool) Term {
	if b {
		return Term{Kind: KindTrue}
	}
	return Term{Kind: KindFalse}
}
func Int(v int64) Term       { return Term{Kind: KindInt, Int: v} }
func Bytes(b []byte) Term    { return Term{Kind: KindBytes, Bytes: b} }
func List(items ...Term) Term { return Term{Kind: KindList, List: items} }

// Map builds a canonical map term, sorting entries by encoded key.
func Map(entries ...MapEntry) Term {
	t := Term{Kind: KindMap, Map: entries}
	sortMap(t.Map)
	return t
}

func sortMap(entries []MapEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return compareBytes(Encode(entries[i].Key), Encode(entries[j].Key)) < 0
	})
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Encode renders a Term into its canonical byte form.
func Encode(t Term) []byte {
	var acc []byte
	acc = encodeInto(t, acc)
	return acc
}

func encodeInto(t Term, acc []byte) []byte {
	switch t.Kind {
	case KindNil:
		return append(acc, 0)
	case KindTrue:
		return append(acc, 1)
	case KindFalse:
		return append(acc, 2)
	case KindInt:
		acc = append(acc, 3)
		return encodeVarint(t.Int, acc)
	case KindBytes:
		acc = append(acc, 5)
		acc = encodeVarint(int64(len(t.Bytes)), acc)
		return append(acc, t.Bytes...)
	case KindList:
		acc = append(acc, 6)
		acc = encodeVarint(int64(len(t.List)), acc)
		for _, item := range t.List {
			acc = encodeInto(item, acc)
		}
		return acc
	case KindMap:
		acc = append(acc, 7)
		acc = encodeVarint(int64(len(t.Map)), acc)
		for _, e := range t.Map {
			acc = encodeInto(e.Key, acc)
			acc = encodeInto(e.Value, acc)
		}
		return acc
	default:
		panic(fmt.Sprintf("canonical: unknown kind %d", t.Kind))
	}
}

func encodeVarint(i int64, acc []byte) []byte {
	sign := byte(0)
	abs := uint64(i)
	if i < 0 {
		sign = 1
		abs = uint64(-i)
	}
	var buf [8]byte
	for j := 0; j < 8; j++ {
		buf[j] = byte(abs >> (8 * (7 - j)))
	}
	firstNonZero := 7
	for j := 0; j < 8; j++ {
		if buf[j] != 0 {
			firstNonZero = j
			break
		}
	}
	payload := buf[firstNonZero:]
	acc = append(acc, (sign<<7)|byte(len(payload)))
	return append(acc, payload...)
}

var (
	ErrEmpty       = errors.New("canonical: empty input")
	ErrTruncated   = errors.New("canonical: truncated input")
	ErrUnknownTag  = errors.New("canonical: unknown type tag")
)

// Decode parses one Term from the front of b, returning the remainder.
func Decode(b []byte) (Term, []byte, error) {
	if len(b) == 0 {
		return Term{}, nil, ErrEmpty
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case 0:
		return Term{Kind: KindNil}, rest, nil
	case 1:
		return Term{Kind: KindTrue}, rest, nil
	case 2:
		return Term{Kind: KindFalse}, rest, nil
	case 3:
		v, rest2, err := decodeVarint(rest)
		if err != nil {
			return Term{}, nil, err
		}
		return Term{Kind: KindInt, Int: v}, rest2, nil
	case 5:
		n, rest2, err := decodeVarint(rest)
		if err != nil {
			return Term{}, nil, err
		}
		if n < 0 || int64(len(rest2)) < n {
			return Term{}, nil, ErrTruncated
		}
		return Term{Kind: KindBytes, Bytes: append([]byte(nil), rest2[:n]...)}, rest2[n:], nil
	case 6:
		n, rest2, err := decodeVarint(rest)
		if err != nil {
			return Term{}, nil, err
		}
		items := make([]Term, 0, n)
		for i := int64(0); i < n; i++ {
			var item Term
			item, rest2, err = Decode(rest2)
			if err != nil {
				return Term{}, nil, err
			}
			items = append(items, item)
		}
		return Term{Kind: KindList, List: items}, rest2, nil
	case 7:
		n, rest2, err := decodeVarint(rest)
		if err != nil {
			return Term{}, nil, err
		}
		entries := make([]MapEntry, 0, n)
		for i := int64(0); i < n; i++ {
			var k, v Term
			k, rest2, err = Decode(rest2)
			if err != nil {
				return Term{}, nil, err
			}
			v, rest2, err = Decode(rest2)
			if err != nil {
				return Term{}, nil, err
			}
			entries = append(entries, MapEntry{Key: k, Value: v})
		}
		return Term{Kind: KindMap, Map: entries}, rest2, nil
	default:
		return Term{}, nil, ErrUnknownTag
	}
}

func decodeVarint(b []byte) (int64, []byte, error) {
	if len(b) == 0 {
		return 0, nil, ErrTruncated
	}
	first, rest := b[0], b[1:]
	sign := first >> 7
	n := int(first & 0x7F)
	if len(rest) < n {
		return 0, nil, ErrTruncated
	}
	payload, rest2 := rest[:n], rest[n:]
	var buf [8]byte
	copy(buf[8-n:], payload)
	var v uint64
	for _, bb := range buf {
		v = (v << 8) | uint64(bb)
	}
	if sign == 1 {
		return -int64(v), rest2, nil
	}
	return int64(v), rest2, nil
}

// Validate reports whether b is a canonical encoding of some Term: it must
// decode fully (no trailing bytes) and re-encoding the result must
// reproduce b exactly byte-for-byte (property 2 in spec.md §8).
func Validate(b []byte) (Term, bool) {
	t, rest, err := Decode(b)
	if err != nil || len(rest) != 0 {
		return Term{}, false
	}
	if compareBytes(Encode(t), b) != 0 {
		return Term{}, false
	}
	return t, true
}
