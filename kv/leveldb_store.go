package kv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is the alternate backend offered alongside Pebble —
// archival nodes that want the simpler, well-understood LSM of LevelDB
// (goleveldb is in the teacher's go.mod) can select it instead of Pebble
// without touching any caller of the Store interface.
type LevelDBStore struct {
	db *leveldb.DB
}

func OpenLevelDB(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *LevelDBStore) Put(key, val []byte) error { return s.db.Put(key, val, nil) }
func (s *LevelDBStore) Delete(key []byte) error    { return s.db.Delete(key, nil) }

func (s *LevelDBStore) Iterator(lower, upper []byte) (Iterator, error) {
	rng := &util.Range{Start: lower, Limit: upper}
	return &levelIterator{it: s.db.NewIterator(rng, nil)}, nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

type levelIterator struct {
	it iterator.Iterator
}

func (l *levelIterator) First() bool    { return l.it.First() }
func (l *levelIterator) Next() bool     { return l.it.Next() }
func (l *levelIterator) Valid() bool    { return l.it.Valid() }
func (l *levelIterator) Key() []byte    { return append([]byte(nil), l.it.Key()...) }
func (l *levelIterator) Value() []byte  { return append([]byte(nil), l.it.Value()...) }
func (l *levelIterator) Close() error   { l.it.Release(); return nil }
