package relay

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// UseStore is the persistence abstraction for redeemed nonces.
// Implementations must make Claim atomic: of any number of concurrent claims
// for the same nonce, exactly one reports loaded == false.
type UseStore interface {
	Claim(rec UseRecord) (loaded bool)
	Prune(now time.Time) int
	Len() int
}

// InMemoryUseStore is a UseStore backed by a concurrent map.
type InMemoryUseStore struct {
	records *xsync.MapOf[string, UseRecord]
}

// NewInMemoryUseStore returns a new empty in-memory store.
func NewInMemoryUseStore() *InMemoryUseStore {
	return &InMemoryUseStore{
		records: xsync.NewMapOf[string, UseRecord](),
	}
}

// Claim implements UseStore.Claim.
func (s *InMemoryUseStore) Claim(rec UseRecord) bool {
	_, loaded := s.records.LoadOrStore(rec.Nonce, rec)
	return loaded
}

// Prune implements UseStore.Prune. Records whose token has expired at now are
// removed; a token past expiry fails verification anyway.
func (s *InMemoryUseStore) Prune(now time.Time) int {
	removed := 0
	s.records.Range(func(nonce string, rec UseRecord) bool {
		if !now.Before(rec.ExpiresAt) {
			s.records.Delete(nonce)
			removed++
		}
		return true
	})
	return removed
}

// Len implements UseStore.Len.
func (s *InMemoryUseStore) Len() int {
	return s.records.Size()
}
