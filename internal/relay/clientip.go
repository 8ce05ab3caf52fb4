package relay

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIdentity returns the address a token is bound to. X-Forwarded-For is
// honoured only when trustForwarded is set, since any client can send it.
// Address binding is a weak deterrent: clients behind one NAT share an
// identity, and a client that changes networks loses its tokens.
func ClientIdentity(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return normalizeAddr(first)
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeAddr(host)
}

func normalizeAddr(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.Unmap().WithZone("").String()
}
