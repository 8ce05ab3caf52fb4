package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"hls-relay/internal/platform/upstream"
)

// MaxPlaylistBytes bounds every playlist body read into memory.
const MaxPlaylistBytes = 4 << 20

const playlistCacheSize = 1024

// Fetcher performs upstream GETs. *upstream.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, r upstream.Request) (*http.Response, error)
}

// RewriterConfig controls playlist fetching and token issuance.
type RewriterConfig struct {
	Policy        ReplayPolicy
	PublicBaseURL string        // prefix of emitted segment URLs, "" for root-relative
	Timeout       time.Duration // upstream playlist fetch bound
	CacheTTL      time.Duration // 0 disables the playlist cache
}

// RewriteResult is a rewritten playlist.
type RewriteResult struct {
	Body   string
	Tokens int    // tokens minted for this body
	Type   string // "master", "media" or "unknown"
	Cached bool   // upstream body came from the cache
}

// Rewriter fetches channel playlists and points every reference at the
// segment endpoint with a fresh token.
type Rewriter struct {
	registry *Registry
	codec    *Codec
	fetcher  Fetcher
	cfg      RewriterConfig
	cache    *playlistCache
	log      *slog.Logger
}

// NewRewriter returns a Rewriter. An empty policy means PolicySingle.
func NewRewriter(registry *Registry, codec *Codec, fetcher Fetcher, cfg RewriterConfig, log *slog.Logger) *Rewriter {
	if cfg.Policy == "" {
		cfg.Policy = PolicySingle
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Rewriter{
		registry: registry,
		codec:    codec,
		fetcher:  fetcher,
		cfg:      cfg,
		cache:    newPlaylistCache(cfg.CacheTTL, playlistCacheSize),
		log:      log,
	}
}

// Policy returns the replay policy tokens are minted under.
func (rw *Rewriter) Policy() ReplayPolicy {
	return rw.cfg.Policy
}

// Rewrite fetches the playlist of channel key and rewrites it for client.
// No token is minted when the fetch fails.
func (rw *Rewriter) Rewrite(ctx context.Context, key, client string) (RewriteResult, error) {
	ch, ok := rw.registry.Lookup(key)
	if !ok {
		return RewriteResult{}, ErrUnknownChannel
	}

	text, hit := rw.cache.get(ch.Key)
	if !hit {
		var err error
		if text, err = rw.fetchPlaylist(ctx, ch); err != nil {
			return RewriteResult{}, err
		}
		rw.cache.set(ch.Key, text)
	}

	res := rw.rewrite(ch, client, text, ch.BaseURL, false)
	res.Cached = hit
	return res, nil
}

// RewriteNested rewrites a sub-playlist served through the segment endpoint.
// References are resolved against playlistURL and emitted as absolute URLs.
func (rw *Rewriter) RewriteNested(ch Channel, client, text string, playlistURL *url.URL) RewriteResult {
	return rw.rewrite(ch, client, text, playlistURL, true)
}

func (rw *Rewriter) fetchPlaylist(ctx context.Context, ch Channel) (string, error) {
	if rw.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rw.cfg.Timeout)
		defer cancel()
	}

	resp, err := rw.fetcher.Get(ctx, upstream.Request{
		URL:     ch.PlaylistURL.String(),
		Headers: ch.Headers,
		Referer: ch.PlaylistURL.String(),
		LimitBy: ch.Key,
	})
	if err != nil {
		return "", upstreamError(err)
	}
	defer resp.Body.Close()

	body, err := readPlaylist(resp.Body)
	if err != nil {
		return "", err
	}
	if !HasHeader(body) {
		return "", fmt.Errorf("%w: %s is not an HLS playlist", ErrUpstreamUnavailable, ch.PlaylistURL.Redacted())
	}
	return body, nil
}

// readPlaylist reads at most MaxPlaylistBytes from r.
func readPlaylist(r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxPlaylistBytes+1))
	if err != nil {
		return "", upstreamError(err)
	}
	if len(body) > MaxPlaylistBytes {
		return "", fmt.Errorf("%w: playlist larger than %d bytes", ErrUpstreamUnavailable, MaxPlaylistBytes)
	}
	return string(body), nil
}

// upstreamError maps a transport failure onto the relay error classes.
func upstreamError(err error) error {
	if upstream.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

func (rw *Rewriter) rewrite(ch Channel, client, text string, base *url.URL, absolute bool) RewriteResult {
	p := ParsePlaylist(text)

	var shared string
	tokens := 0
	mint := func(file string) string {
		if rw.cfg.Policy == PolicyShared {
			if shared == "" {
				shared, _ = rw.codec.Mint(ch.Key, client, "")
				tokens++
			}
			return shared
		}
		token, _ := rw.codec.Mint(ch.Key, client, file)
		tokens++
		return token
	}

	p.Rewrite(func(ref string) (string, bool) {
		if !rewritable(ref) {
			return "", false
		}
		resolved, err := ResolveReference(base, ref)
		if err != nil {
			rw.log.Warn("leaving unresolvable reference", "channel", ch.Key, "ref", ref, "error", err)
			return "", false
		}
		file := ref
		if absolute {
			file = resolved.String()
		}
		return rw.segmentURL(ch.Key, file, mint(file)), true
	})

	return RewriteResult{
		Body:   p.String(),
		Tokens: tokens,
		Type:   playlistType(text),
	}
}

func (rw *Rewriter) segmentURL(channel, file, token string) string {
	return rw.cfg.PublicBaseURL + "/segment/" + url.PathEscape(channel) +
		"?file=" + url.QueryEscape(file) + "&token=" + token
}

// playlistType classifies text as a master or media playlist.
func playlistType(text string) string {
	_, listType, err := m3u8.DecodeFrom(bufio.NewReader(strings.NewReader(text)), false)
	if err != nil {
		return "unknown"
	}
	switch listType {
	case m3u8.MASTER:
		return "master"
	case m3u8.MEDIA:
		return "media"
	}
	return "unknown"
}

