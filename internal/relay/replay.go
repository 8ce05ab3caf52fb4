package relay

import (
	"context"
	"log/slog"
	"time"
)

// ReplayGuard records redeemed token nonces so each is honoured at most once.
// It is safe for concurrent use.
type ReplayGuard struct {
	store UseStore
	now   func() time.Time
}

// NewReplayGuard constructs a guard with a default in-memory store.
func NewReplayGuard() *ReplayGuard {
	return NewReplayGuardWithStore(NewInMemoryUseStore())
}

// NewReplayGuardWithStore constructs a guard that uses the given UseStore.
func NewReplayGuardWithStore(store UseStore) *ReplayGuard {
	return &ReplayGuard{store: store, now: time.Now}
}

// TryRedeem atomically marks nonce as used. Exactly one caller per nonce
// observes Granted.
func (g *ReplayGuard) TryRedeem(nonce string, expiresAt time.Time) Redemption {
	if g.store.Claim(UseRecord{Nonce: nonce, ExpiresAt: expiresAt}) {
		return AlreadyUsed
	}
	return Granted
}

// Sweep removes records for tokens that have expired at now and returns the
// number removed.
func (g *ReplayGuard) Sweep(now time.Time) int {
	return g.store.Prune(now)
}

// Len returns the number of live use records.
func (g *ReplayGuard) Len() int {
	return g.store.Len()
}

// Run sweeps every interval until ctx is done.
func (g *ReplayGuard) Run(ctx context.Context, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(g.now()); n > 0 {
				log.Debug("swept used tokens", "removed", n, "remaining", g.Len())
			}
		}
	}
}
