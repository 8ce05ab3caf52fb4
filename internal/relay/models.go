package relay

import (
	"encoding/hex"
	"net/url"
	"time"
)

// Channel is one upstream stream the relay is allowed to serve.
// Channels are loaded once at startup and never mutated.
type Channel struct {
	Key         string
	PlaylistURL *url.URL
	BaseURL     *url.URL          // relative references resolve against this
	Headers     map[string]string // sent with every upstream request for this channel
	MaxRPS      int               // upstream request cap, 0 for none
}

// NonceSize is the number of random bytes in every token nonce.
const NonceSize = 16

// Claims is the decoded content of an access token.
type Claims struct {
	Channel   string
	Client    string // empty when the token is not bound to a client
	Resource  []byte // digest of the bound reference, empty when unbound
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     [NonceSize]byte
}

// NonceID returns the nonce in the form used as the replay key.
func (c Claims) NonceID() string {
	return hex.EncodeToString(c.Nonce[:])
}

// UseRecord marks a nonce as redeemed until its token expires.
type UseRecord struct {
	Nonce     string
	ExpiresAt time.Time
}

// Redemption is the outcome of ReplayGuard.TryRedeem.
type Redemption int

const (
	Granted Redemption = iota
	AlreadyUsed
)

func (r Redemption) String() string {
	if r == Granted {
		return "granted"
	}
	return "already_used"
}

// ReplayPolicy selects how many times a token may be redeemed.
type ReplayPolicy string

const (
	// PolicySingle mints one token per reference and allows one redemption.
	PolicySingle ReplayPolicy = "single"
	// PolicyShared mints one token per playlist fetch and allows any number
	// of redemptions until it expires.
	PolicyShared ReplayPolicy = "shared"
)

// ParseReplayPolicy maps a config value to a policy, defaulting to PolicySingle.
func ParseReplayPolicy(s string) ReplayPolicy {
	if ReplayPolicy(s) == PolicyShared {
		return PolicyShared
	}
	return PolicySingle
}
