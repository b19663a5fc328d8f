package lstore

import (
	"bytes"
	"testing"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar"
)

func newTestStore() *storeImpl {
	return NewLocalStore(func() hash.HashDB {
		return cedar.NewCedarDB(nil)
	}).(*storeImpl)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s := newTestStore()
	defer s.db.Close()

	created, err := s.Set(0, "user:1", "name", []byte("alice"), hash.SetOptions{})
	if err != nil || !created {
		t.Fatalf("Set failed: created=%v err=%v", created, err)
	}

	val, version, ok, err := s.Get(0, "user:1", "name")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(val, []byte("alice")) || version != 1 {
		t.Errorf("Expected alice/1, got %s/%d", val, version)
	}

	if _, _, ok, _ := s.Get(0, "user:1", "missing"); ok {
		t.Error("Missing field should report ok=false without an error")
	}
}

func TestLocalStoreErrorTaxonomy(t *testing.T) {
	s := newTestStore()
	defer s.db.Close()

	if _, err := s.Set(0, "k", "f", []byte("v"), hash.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := s.Set(0, "k", "f", []byte("v2"), hash.SetOptions{
		Version: hash.VerOp{Mode: hash.VerEq, Value: 99},
	})
	if !hash.IsConflict(err) {
		t.Errorf("Stale write should surface a conflict, got %v", err)
	}

	if _, err := s.IncrBy(0, "k", "f", 1, hash.IncrOptions{}); !hash.IsTypeMismatch(err) {
		t.Errorf("Increment on text should surface a type mismatch, got %v", err)
	}
}

func TestLocalStoreExpiry(t *testing.T) {
	s := newTestStore()
	defer s.db.Close()

	if _, err := s.Set(0, "k", "f", []byte("v"), hash.SetOptions{TTL: 30 * time.Millisecond}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := s.TTL(0, "k", "f")
	if err != nil || ttl <= 0 {
		t.Fatalf("Expected a positive TTL, got %d (%v)", ttl, err)
	}

	time.Sleep(40 * time.Millisecond)

	if ok, _ := s.Exists(0, "k", "f"); ok {
		t.Error("Field should be gone after its TTL elapsed")
	}
	if ttl, _ := s.TTL(0, "k", "f"); ttl != hash.TTLNoKey {
		t.Errorf("TTL after key expiry should be %d, got %d", hash.TTLNoKey, ttl)
	}
}

func TestLocalStoreKeyspace(t *testing.T) {
	s := newTestStore()
	defer s.db.Close()

	if _, err := s.Set(0, "old", "f", []byte("v"), hash.SetOptions{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.RenameKey(0, "old", "new"); err != nil {
		t.Fatalf("RenameKey failed: %v", err)
	}
	if ok, _ := s.Exists(0, "new", "f"); !ok {
		t.Error("Field should be reachable under the new key name")
	}

	if err := s.MoveKey(0, 1, "new"); err != nil {
		t.Fatalf("MoveKey failed: %v", err)
	}
	if ok, _ := s.Exists(1, "new", "f"); !ok {
		t.Error("Field should be reachable in the destination namespace")
	}

	info, err := s.GetDBInfo()
	if err != nil || info.DbType != hash.ImplCedar {
		t.Errorf("GetDBInfo returned %+v (%v)", info, err)
	}
}
