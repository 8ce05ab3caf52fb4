package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"hls-relay/internal/platform/compress"
	"hls-relay/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const copyBufferSize = 32 << 10

var copyBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// HandlerConfig holds request-level switches.
type HandlerConfig struct {
	TrustForwardedFor bool // take the client address from X-Forwarded-For
	BindClientIP      bool // bind minted tokens to the client address
	GzipPlaylists     bool
}

// Handler exposes the relay HTTP endpoints using go-chi.
type Handler struct {
	registry *Registry
	codec    *Codec
	rewriter *Rewriter
	segments *SegmentRelay
	cfg      HandlerConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(registry *Registry, codec *Codec, rewriter *Rewriter, segments *SegmentRelay, cfg HandlerConfig, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		registry: registry,
		codec:    codec,
		rewriter: rewriter,
		segments: segments,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Mount registers the relay routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/healthz", h.Healthz)
	if h.cfg.GzipPlaylists {
		r.With(compress.Gzip(h.log)).Get("/live/{channel}", h.GetPlaylist)
	} else {
		r.Get("/live/{channel}", h.GetPlaylist)
	}
	r.Get("/segment/{channel}", h.GetSegment)
	r.Get("/token/{channel}", h.GetToken)
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"playlist": "/live/{channel}",
		"segment":  "/segment/{channel}?file=&token=",
		"token":    "/token/{channel}",
		"health":   "/healthz",
		"metrics":  "/metrics",
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": h.registry.Keys(), "endpoints": endpoints})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

// GetPlaylist handles GET /live/{channel}.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "channel")

	res, err := h.rewriter.Rewrite(r.Context(), key, h.tokenClient(r))
	if err != nil {
		if !errors.Is(err, ErrUnknownChannel) {
			h.observeFetch("playlist", err)
		}
		h.writeError(w, r, err)
		return
	}
	if res.Cached {
		h.observeFetchOutcome("playlist", "cached")
	} else {
		h.observeFetch("playlist", nil)
	}

	h.log.Debug("playlist rewritten",
		slog.String("channel", key),
		slog.String("type", res.Type),
		slog.Int("tokens", res.Tokens),
		slog.Bool("cached", res.Cached))
	h.writePlaylist(w, res)
}

// GetSegment handles GET /segment/{channel}?file=&token=.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	req := SegmentRequest{
		Channel: chi.URLParam(r, "channel"),
		File:    queryParam(r, "file"),
		Token:   queryParam(r, "token"),
		Client:  ClientIdentity(r, h.cfg.TrustForwardedFor),
		Range:   r.Header.Get("Range"),
	}

	seg, err := h.segments.Open(r.Context(), req)
	if result := redemptionResult(err); result != "" && h.metrics != nil {
		h.metrics.IncRedemption(result)
	}
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) {
			h.observeFetch("segment", err)
		}
		h.writeError(w, r, err)
		return
	}
	defer seg.Close()
	h.observeFetch("segment", nil)

	if seg.Nested != nil {
		h.writePlaylist(w, *seg.Nested)
		return
	}

	for k, vs := range seg.Header {
		w.Header()[k] = vs
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(seg.Status)

	n, err := streamBody(w, seg.Body)
	if h.metrics != nil {
		h.metrics.AddRelayedBytes(n)
	}
	if err != nil {
		h.log.Warn("segment relay interrupted",
			slog.String("channel", req.Channel),
			slog.String("upstream", seg.URL.Redacted()),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()))
		// the status line is already sent; drop the connection so the
		// client sees a truncated body instead of a short success
		panic(http.ErrAbortHandler)
	}
}

// GetToken handles GET /token/{channel}. The token is not bound to a
// reference and may be redeemed for any file of the channel.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "channel")
	if _, ok := h.registry.Lookup(key); !ok {
		h.writeError(w, r, ErrUnknownChannel)
		return
	}

	token, _ := h.codec.Mint(key, h.tokenClient(r), "")
	if h.metrics != nil {
		h.metrics.AddTokensMinted(1)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(h.codec.TTL().Seconds()),
	})
}

func (h *Handler) tokenClient(r *http.Request) string {
	if !h.cfg.BindClientIP {
		return ""
	}
	return ClientIdentity(r, h.cfg.TrustForwardedFor)
}

func (h *Handler) writePlaylist(w http.ResponseWriter, res RewriteResult) {
	if h.metrics != nil {
		h.metrics.AddTokensMinted(res.Tokens)
		h.metrics.IncManifestRewritten(res.Type)
	}
	w.Header().Set("Content-Type", PlaylistContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, res.Body)
}

// writeError maps err onto a status code. The body is the status text only.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, ErrUnknownChannel):
		status = http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= 500 {
		h.log.Warn("request failed", attrs...)
	} else {
		h.log.Debug("request rejected", attrs...)
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) observeFetch(kind string, err error) {
	switch {
	case err == nil:
		h.observeFetchOutcome(kind, "ok")
	case errors.Is(err, ErrUpstreamTimeout):
		h.observeFetchOutcome(kind, "timeout")
	default:
		h.observeFetchOutcome(kind, "error")
	}
}

func (h *Handler) observeFetchOutcome(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.IncUpstreamFetch(kind, outcome)
	}
}

// redemptionResult labels the outcome of a segment request for metrics.
// Requests rejected before a token is examined return "".
func redemptionResult(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrInvalidReference):
		return Granted.String()
	case errors.Is(err, ErrTokenReplayed):
		return AlreadyUsed.String()
	case errors.Is(err, ErrForbidden):
		return "rejected"
	}
	return ""
}

// streamBody copies src to w, flushing after every write so the client
// receives bytes as they arrive from upstream.
func streamBody(w http.ResponseWriter, src io.Reader) (int64, error) {
	bufp := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(bufp)
	buf := *bufp

	rc := http.NewResponseController(w)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, ferr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// queryParam returns the decoded query value name. Pairs that fail to
// decode as a whole are dropped by url.ParseQuery, so the raw query is
// scanned as a fallback and the undecoded value used when unescaping fails.
func queryParam(r *http.Request, name string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if k != name {
			continue
		}
		if dec, err := url.QueryUnescape(v); err == nil {
			return dec
		}
		return v
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
