package relay

import (
	"errors"
	"fmt"
)

// Request-level errors. Handlers map them to status codes with errors.Is;
// the more specific variants wrap their class so a single check suffices.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrForbidden           = errors.New("forbidden")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidReference    = errors.New("invalid reference")

	ErrUpstreamTimeout = fmt.Errorf("%w: timeout", ErrUpstreamUnavailable)

	ErrTokenMalformed   = fmt.Errorf("%w: malformed token", ErrForbidden)
	ErrTokenSignature   = fmt.Errorf("%w: bad token signature", ErrForbidden)
	ErrTokenExpired     = fmt.Errorf("%w: token expired", ErrForbidden)
	ErrChannelMismatch  = fmt.Errorf("%w: token issued for another channel", ErrForbidden)
	ErrClientMismatch   = fmt.Errorf("%w: token bound to another client", ErrForbidden)
	ErrResourceMismatch = fmt.Errorf("%w: token bound to another reference", ErrForbidden)
	ErrTokenReplayed    = fmt.Errorf("%w: token already used", ErrForbidden)
)
