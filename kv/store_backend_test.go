package kv

import "testing"

func testStoreBasics(t *testing.T, s Store) {
	t.Helper()
	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := s.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get after Put = %q, %v, %v", v, ok, err)
	}
	if err := s.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get([]byte("a")); ok {
		t.Fatal("key still present after Delete")
	}
}

func TestPebbleStoreBasics(t *testing.T) {
	s, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	defer s.Close()
	testStoreBasics(t, s)
}

func TestLevelDBStoreBasics(t *testing.T) {
	s, err := OpenLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLevelDB: %v", err)
	}
	defer s.Close()
	testStoreBasics(t, s)
}
