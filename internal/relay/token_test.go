package relay

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, ttl time.Duration, opts ...CodecOption) *Codec {
	t.Helper()
	c, err := NewCodec([]byte("test-secret"), ttl, opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestCodec_roundTrip(t *testing.T) {
	c := newTestCodec(t, 2*time.Minute)

	token, minted := c.Mint("tsports", "203.0.113.7", "seg1.ts")
	claims, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Channel != "tsports" || claims.Client != "203.0.113.7" {
		t.Errorf("claims: got %+v", claims)
	}
	if claims.Nonce != minted.Nonce {
		t.Error("nonce changed in round trip")
	}
	if claims.ExpiresAt.UnixMilli() != minted.ExpiresAt.UnixMilli() {
		t.Errorf("expiry: got %v want %v", claims.ExpiresAt, minted.ExpiresAt)
	}
	if !claims.BoundTo("seg1.ts") || claims.BoundTo("seg2.ts") {
		t.Error("resource binding not preserved")
	}
}

func TestCodec_unboundToken(t *testing.T) {
	c := newTestCodec(t, time.Minute)
	token, _ := c.Mint("tsports", "", "")
	claims, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Client != "" || len(claims.Resource) != 0 {
		t.Errorf("expected unbound claims, got %+v", claims)
	}
	if !claims.BoundTo("anything.ts") {
		t.Error("unbound token should permit any reference")
	}
}

func TestCodec_distinctNonces(t *testing.T) {
	c := newTestCodec(t, time.Minute)
	seen := make(map[string]bool)
	for range 100 {
		token, claims := c.Mint("a", "", "")
		if seen[token] || seen[claims.NonceID()] {
			t.Fatal("duplicate token or nonce")
		}
		seen[token] = true
		seen[claims.NonceID()] = true
	}
}

func TestCodec_tamper(t *testing.T) {
	c := newTestCodec(t, time.Minute)
	token, _ := c.Mint("tsports", "198.51.100.1", "seg1.ts")
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		t.Fatal(err)
	}

	for i := range raw {
		mod := append([]byte(nil), raw...)
		mod[i] ^= 0x01
		_, err := c.Verify(tokenEncoding.EncodeToString(mod))
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("byte %d flipped: expected forbidden, got %v", i, err)
		}
	}

	t.Run("truncated", func(t *testing.T) {
		if _, err := c.Verify(token[:len(token)-4]); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		for _, tok := range []string{"", "!!!", "abc", "not a token"} {
			if _, err := c.Verify(tok); !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("%q: expected malformed, got %v", tok, err)
			}
		}
	})
}

func TestCodec_otherSecret(t *testing.T) {
	a := newTestCodec(t, time.Minute)
	b, err := NewCodec([]byte("another-secret"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := a.Mint("tsports", "", "")
	if _, err := b.Verify(token); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestCodec_expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, time.Second, WithClock(func() time.Time { return now }))

	token, _ := c.Mint("tsports", "", "")
	if _, err := c.Verify(token); err != nil {
		t.Fatalf("fresh token: %v", err)
	}

	now = now.Add(2 * time.Second)
	claims, err := c.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if claims.Channel != "tsports" {
		t.Errorf("expired token should still report claims, got %+v", claims)
	}
}

func TestNewCodec_invalid(t *testing.T) {
	if _, err := NewCodec(nil, time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewCodec([]byte("s"), 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}
