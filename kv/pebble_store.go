package kv

import (
	"github.com/cockroachdb/pebble"
)

// PebbleStore is the primary Store backend, grounded on the teacher's own
// choice of KV engine (go.mod carries github.com/cockroachdb/pebble as its
// default database since the LevelDB deprecation).
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (s *PebbleStore) Put(key, val []byte) error {
	return s.db.Set(key, val, pebble.Sync)
}

func (s *PebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

func (s *PebbleStore) Iterator(lower, upper []byte) (Iterator, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

type pebbleIterator struct {
	it *pebble.Iterator
}

func (p *pebbleIterator) First() bool { return p.it.First() }
func (p *pebbleIterator) Next() bool  { return p.it.Next() }
func (p *pebbleIterator) Valid() bool { return p.it.Valid() }
func (p *pebbleIterator) Key() []byte { return append([]byte(nil), p.it.Key()...) }
func (p *pebbleIterator) Value() []byte {
	return append([]byte(nil), p.it.Value()...)
}
func (p *pebbleIterator) Close() error { return p.it.Close() }
