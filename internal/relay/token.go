package relay

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	tokenVersion   = 1
	macSize        = sha256.Size
	resourceSize   = 16
	keyDerivation  = "hls-relay token mac v1"
	timestampsSize = 16
)

// Raw URL-safe base64 without padding; strict so that every token has exactly
// one valid spelling.
var tokenEncoding = base64.RawURLEncoding.Strict()

// Codec mints and verifies self-contained access tokens. It holds no mutable
// state and is safe for concurrent use.
//
// Wire form: base64url(payload || HMAC-SHA256(payload)) where payload is
//
//	version(1) | uvarint len + channel | uvarint len + client |
//	uvarint len + resource digest | issued_at ms (8, BE) | expires_at ms (8, BE) | nonce(16)
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec derives the MAC key from secret and returns a Codec issuing tokens
// valid for ttl.
func NewCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyDerivation)), key); err != nil {
		return nil, err
	}
	c := &Codec{key: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL is the lifetime of every minted token.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// ResourceDigest is the value stored in a token bound to the reference file.
func ResourceDigest(file string) []byte {
	sum := sha256.Sum256([]byte(file))
	return sum[:resourceSize]
}

// BoundTo reports whether the claims permit fetching file.
// Tokens without a resource digest permit any reference.
func (c Claims) BoundTo(file string) bool {
	if len(c.Resource) == 0 {
		return true
	}
	return hmac.Equal(c.Resource, ResourceDigest(file))
}

// Mint issues a token for channel. client and resource are optional; when set
// the token only verifies for that client and that reference.
func (c *Codec) Mint(channel, client, resource string) (string, Claims) {
	issued := c.now()
	claims := Claims{
		Channel:   channel,
		Client:    client,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(c.ttl),
	}
	if resource != "" {
		claims.Resource = ResourceDigest(resource)
	}
	rand.Read(claims.Nonce[:])

	payload := encodeClaims(claims)
	return tokenEncoding.EncodeToString(append(payload, c.sign(payload)...)), claims
}

// Verify checks the signature and expiry of token and returns its claims.
// It never consults any store. Expired tokens return their claims together
// with ErrTokenExpired.
func (c *Codec) Verify(token string) (Claims, error) {
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil || len(raw) <= macSize {
		return Claims{}, ErrTokenMalformed
	}
	payload, sig := raw[:len(raw)-macSize], raw[len(raw)-macSize:]
	if !hmac.Equal(sig, c.sign(payload)) {
		return Claims{}, ErrTokenSignature
	}
	claims, ok := decodeClaims(payload)
	if !ok {
		return Claims{}, ErrTokenMalformed
	}
	if !c.now().Before(claims.ExpiresAt) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (c *Codec) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encodeClaims(cl Claims) []byte {
	buf := make([]byte, 0, 1+3*binary.MaxVarintLen16+len(cl.Channel)+len(cl.Client)+len(cl.Resource)+timestampsSize+NonceSize+macSize)
	buf = append(buf, tokenVersion)
	buf = appendField(buf, []byte(cl.Channel))
	buf = appendField(buf, []byte(cl.Client))
	buf = appendField(buf, cl.Resource)
	buf = binary.BigEndian.AppendUint64(buf, uint64(cl.IssuedAt.UnixMilli()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(cl.ExpiresAt.UnixMilli()))
	return append(buf, cl.Nonce[:]...)
}

func appendField(buf, field []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(field)))
	return append(buf, field...)
}

func decodeClaims(b []byte) (Claims, bool) {
	var cl Claims
	if len(b) == 0 || b[0] != tokenVersion {
		return cl, false
	}
	b = b[1:]

	var channel, client, resource []byte
	var ok bool
	if channel, b, ok = readField(b); !ok {
		return cl, false
	}
	if client, b, ok = readField(b); !ok {
		return cl, false
	}
	if resource, b, ok = readField(b); !ok {
		return cl, false
	}
	if len(resource) != 0 && len(resource) != resourceSize {
		return cl, false
	}
	if len(b) != timestampsSize+NonceSize {
		return cl, false
	}

	cl.Channel = string(channel)
	cl.Client = string(client)
	if len(resource) > 0 {
		cl.Resource = append([]byte(nil), resource...)
	}
	cl.IssuedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(b[0:8])))
	cl.ExpiresAt = time.UnixMilli(int64(binary.BigEndian.Uint64(b[8:16])))
	copy(cl.Nonce[:], b[16:])
	return cl, true
}

func readField(b []byte) (field, rest []byte, ok bool) {
	n, size := binary.Uvarint(b)
	if size <= 0 || n > uint64(len(b)-size) {
		return nil, nil, false
	}
	end := size + int(n)
	return b[size:end], b[end:], true
}
