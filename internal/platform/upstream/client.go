// Package upstream is the outbound HTTP client used to reach origin CDNs.
// It sets identifying headers, bounds redirects and applies optional
// per-key rate limits.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"
)

// DefaultMaxRedirects is used when Options.MaxRedirects is zero.
const DefaultMaxRedirects = 5

// ErrTooManyRedirects is returned when an upstream exceeds the redirect bound.
var ErrTooManyRedirects = errors.New("too many redirects")

// StatusError reports a non-2xx upstream response. The body has already been closed.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.Code)
}

// Options configures a Client.
type Options struct {
	UserAgent    string
	MaxRedirects int
	Transport    http.RoundTripper // nil uses a tuned default transport
}

// Request describes one upstream GET.
type Request struct {
	URL     string
	Headers map[string]string // per-channel headers, override the defaults
	Range   string            // forwarded verbatim when set
	Referer string            // default Referer, overridden by Headers
	LimitBy string            // rate limiter key, usually the channel
}

// Client wraps http.Client to set headers and enforce limits on every request.
type Client struct {
	http      *http.Client
	userAgent string
	limiters  *xsync.MapOf[string, ratelimit.Limiter]
}

// New builds a Client. The http.Client has no overall timeout; callers bound
// each request with a context deadline.
func New(opts Options) *Client {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		limiters:  xsync.NewMapOf[string, ratelimit.Limiter](),
	}
}

// SetRateLimit caps requests made with Request.LimitBy == key to rps per second.
// rps <= 0 removes the limit.
func (c *Client) SetRateLimit(key string, rps int) {
	if rps <= 0 {
		c.limiters.Delete(key)
		return
	}
	c.limiters.Store(key, ratelimit.New(rps, ratelimit.WithoutSlack))
}

// Get performs the request. On a 2xx (or 206) response the caller owns the body.
// Any other status is returned as *StatusError with the body closed.
func (c *Client) Get(ctx context.Context, r Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, r)

	if r.LimitBy != "" {
		if l, ok := c.limiters.Load(r.LimitBy); ok {
			if err := take(ctx, l); err != nil {
				return nil, err
			}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: r.URL}
	}
	return resp, nil
}

// take waits for a limiter slot or until ctx is done. A slot granted after
// ctx is done is wasted.
func take(ctx context.Context, l ratelimit.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		l.Take()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setHeaders(req *http.Request, r Request) {
	req.Header.Set("Accept", "*/*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if r.Referer != "" {
		req.Header.Set("Referer", r.Referer)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Range != "" {
		req.Header.Set("Range", r.Range)
	}
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
