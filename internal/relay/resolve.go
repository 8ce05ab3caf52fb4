package relay

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveReference turns a playlist reference into an absolute upstream URL.
// Absolute references pass through, protocol-relative ones take the scheme of
// base, and anything else resolves against base.
func ResolveReference(base *url.URL, ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidReference, u.Redacted())
	}
	return u, nil
}

// rewritable reports whether ref points at something the relay can serve.
// References with other schemes (data:, skd:) are left alone.
func rewritable(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return false
	}
	return u.Scheme == "" || u.Scheme == "http" || u.Scheme == "https"
}

// decodeFile undoes a second layer of percent-encoding on values that are
// still encoded URLs or paths after query decoding. Other values, including
// references that legitimately contain escapes, are returned unchanged.
func decodeFile(file string) string {
	lower := strings.ToLower(file)
	if !strings.HasPrefix(lower, "http%3a") && !strings.HasPrefix(lower, "https%3a") && !strings.HasPrefix(lower, "%2f") {
		return file
	}
	if dec, err := url.QueryUnescape(file); err == nil {
		return dec
	}
	return file
}
