package relay

import (
	"testing"
	"time"
)

func TestInMemoryUseStore_Claim(t *testing.T) {
	store := NewInMemoryUseStore()
	rec := UseRecord{Nonce: "n1", ExpiresAt: time.Now().Add(time.Minute)}

	if store.Claim(rec) {
		t.Error("first claim should not report loaded")
	}
	if !store.Claim(rec) {
		t.Error("second claim should report loaded")
	}
	if store.Len() != 1 {
		t.Errorf("Len: got %d want 1", store.Len())
	}
}

func TestInMemoryUseStore_Prune(t *testing.T) {
	store := NewInMemoryUseStore()
	now := time.Unix(1_700_000_000, 0)
	store.Claim(UseRecord{Nonce: "old", ExpiresAt: now.Add(-time.Second)})
	store.Claim(UseRecord{Nonce: "edge", ExpiresAt: now})
	store.Claim(UseRecord{Nonce: "live", ExpiresAt: now.Add(time.Second)})

	if n := store.Prune(now); n != 2 {
		t.Errorf("Prune: removed %d want 2", n)
	}
	if store.Len() != 1 {
		t.Errorf("Len after prune: got %d want 1", store.Len())
	}
	if !store.Claim(UseRecord{Nonce: "live", ExpiresAt: now.Add(time.Second)}) {
		t.Error("live record should survive prune")
	}
}
