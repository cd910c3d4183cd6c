package checklifecycle

import (
	"testing"
	"time"
)

func TestStorePutGetDelete(t *testing.T) {
	s := NewStore()
	key := Key("acme/widgets", 7, "sha1", "hash1")

	if _, ok := s.Get(key); ok {
		t.Fatal("expected miss before Put")
	}

	s.Put(key, 42, "hash1")
	entry, ok := s.Get(key)
	if !ok || entry.CheckID != 42 {
		t.Fatalf("Get() = %+v, %v, want CheckID 42", entry, ok)
	}

	s.Delete(key)
	if _, ok := s.Get(key); ok {
		t.Fatal("expected miss after Delete")
	}
}

func TestStoreReapExpired(t *testing.T) {
	s := NewStore()
	key := Key("acme/widgets", 7, "sha1", "hash1")
	s.Put(key, 1, "hash1")
	s.entries[key] = Entry{CheckID: 1, PolicyHash: "hash1", StoredAt: time.Now().Add(-2 * time.Hour)}

	removed := s.ReapExpired(time.Hour)
	if removed != 1 {
		t.Errorf("ReapExpired() removed = %d, want 1", removed)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestKeyDistinguishesPolicyHash(t *testing.T) {
	a := Key("acme/widgets", 7, "sha1", "hash1")
	b := Key("acme/widgets", 7, "sha1", "hash2")
	if a == b {
		t.Error("Key() should differ when policy hash differs")
	}
}
