package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"hls-relay/internal/platform/upstream"
)

// forwardedHeaders are copied from the upstream response to the client.
var forwardedHeaders = []string{"Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"}

// SegmentConfig controls the segment relay.
type SegmentConfig struct {
	Policy        ReplayPolicy
	Timeout       time.Duration // time allowed until upstream response headers arrive
	RewriteNested bool
}

// SegmentRequest is one redemption attempt.
type SegmentRequest struct {
	Channel string
	File    string // reference as carried in the query string
	Token   string
	Client  string
	Range   string
}

// Segment is an open upstream response ready to be relayed. Exactly one of
// Body and Nested is set. Callers must Close it.
type Segment struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
	Nested *RewriteResult
	URL    *url.URL

	cancel context.CancelCauseFunc
}

// Close releases the upstream connection.
func (s *Segment) Close() error {
	var err error
	if s.Body != nil {
		err = s.Body.Close()
	}
	if s.cancel != nil {
		s.cancel(nil)
	}
	return err
}

// SegmentRelay redeems tokens and opens the referenced upstream resource.
type SegmentRelay struct {
	registry *Registry
	codec    *Codec
	guard    *ReplayGuard
	fetcher  Fetcher
	rewriter *Rewriter
	cfg      SegmentConfig
	log      *slog.Logger
}

// NewSegmentRelay returns a SegmentRelay. rewriter may be nil when nested
// playlists are relayed as raw bytes.
func NewSegmentRelay(registry *Registry, codec *Codec, guard *ReplayGuard, fetcher Fetcher, rewriter *Rewriter, cfg SegmentConfig, log *slog.Logger) *SegmentRelay {
	if cfg.Policy == "" {
		cfg.Policy = PolicySingle
	}
	return &SegmentRelay{
		registry: registry,
		codec:    codec,
		guard:    guard,
		fetcher:  fetcher,
		rewriter: rewriter,
		cfg:      cfg,
		log:      log,
	}
}

// Authorize validates req and, under the single policy, consumes its token.
// Checks run in order: channel, parameters, signature and expiry, channel
// binding, client binding, reference binding, replay.
func (sr *SegmentRelay) Authorize(req SegmentRequest) (Channel, Claims, error) {
	ch, ok := sr.registry.Lookup(req.Channel)
	if !ok {
		return Channel{}, Claims{}, ErrUnknownChannel
	}
	if req.File == "" || req.Token == "" {
		return Channel{}, Claims{}, ErrBadRequest
	}

	claims, err := sr.codec.Verify(req.Token)
	if err != nil {
		return Channel{}, Claims{}, err
	}
	if claims.Channel != ch.Key {
		return Channel{}, Claims{}, ErrChannelMismatch
	}
	if claims.Client != "" && claims.Client != req.Client {
		return Channel{}, Claims{}, ErrClientMismatch
	}
	if !claims.BoundTo(req.File) {
		return Channel{}, Claims{}, ErrResourceMismatch
	}
	if sr.cfg.Policy == PolicySingle {
		if sr.guard.TryRedeem(claims.NonceID(), claims.ExpiresAt) == AlreadyUsed {
			return Channel{}, Claims{}, ErrTokenReplayed
		}
	}
	return ch, claims, nil
}

// Open authorizes req and fetches the referenced resource. The token is
// consumed even if the upstream fetch then fails.
func (sr *SegmentRelay) Open(ctx context.Context, req SegmentRequest) (*Segment, error) {
	ch, claims, err := sr.Authorize(req)
	if err != nil {
		return nil, err
	}

	target, err := ResolveReference(ch.BaseURL, decodeFile(req.File))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	if sr.cfg.Timeout > 0 {
		timer := time.AfterFunc(sr.cfg.Timeout, func() { cancel(ErrUpstreamTimeout) })
		defer timer.Stop()
	}

	resp, err := sr.fetcher.Get(ctx, upstream.Request{
		URL:     target.String(),
		Headers: ch.Headers,
		Range:   req.Range,
		Referer: ch.PlaylistURL.String(),
		LimitBy: ch.Key,
	})
	if err != nil {
		cause := context.Cause(ctx)
		cancel(nil)
		if errors.Is(cause, ErrUpstreamTimeout) {
			return nil, upstreamError(context.DeadlineExceeded)
		}
		return nil, upstreamError(err)
	}

	seg := &Segment{
		Status: resp.StatusCode,
		Header: make(http.Header),
		URL:    target,
		cancel: cancel,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		seg.URL = resp.Request.URL
	}

	ct := resp.Header.Get("Content-Type")
	if sr.cfg.RewriteNested && sr.rewriter != nil && IsPlaylist(ct, seg.URL) {
		defer resp.Body.Close()
		text, err := readPlaylist(resp.Body)
		if err != nil {
			seg.Close()
			return nil, err
		}
		res := sr.rewriter.RewriteNested(ch, claims.Client, text, seg.URL)
		sr.log.Debug("nested playlist rewritten",
			slog.String("channel", ch.Key),
			slog.String("upstream", seg.URL.Redacted()),
			slog.Int("tokens", res.Tokens))
		seg.Status = http.StatusOK
		seg.Nested = &res
		seg.Header.Set("Content-Type", PlaylistContentType)
		return seg, nil
	}

	if ct == "" {
		ct = ContentTypeFor(seg.URL)
	}
	seg.Header.Set("Content-Type", ct)
	for _, h := range forwardedHeaders {
		if v := resp.Header.Get(h); v != "" {
			seg.Header.Set(h, v)
		}
	}
	seg.Body = resp.Body
	return seg, nil
}
