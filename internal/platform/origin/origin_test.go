package origin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestGuard(t *testing.T) {
	h := Guard("https://player.example.com")(ok)

	tests := []struct {
		name    string
		origin  string
		referer string
		want    int
	}{
		{"no_headers", "", "", http.StatusOK},
		{"allowed_origin", "https://player.example.com", "", http.StatusOK},
		{"allowed_referer", "", "https://player.example.com/watch?id=1", http.StatusOK},
		{"foreign_origin", "https://evil.example.net", "", http.StatusForbidden},
		{"foreign_referer", "", "https://evil.example.net/page", http.StatusForbidden},
		{"origin_checked_before_referer", "https://evil.example.net", "https://player.example.com/", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/live/demo", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestGuard_empty_allows_all(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	Guard("")(ok).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCORS_allowed_origin_header(t *testing.T) {
	h := CORS("https://player.example.com")(ok)
	req := httptest.NewRequest(http.MethodGet, "/live/demo", nil)
	req.Header.Set("Origin", "https://player.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://player.example.com" {
		t.Errorf("expected allow-origin header, got %q", got)
	}
}

func TestCORS_preflight_methods(t *testing.T) {
	h := CORS("https://player.example.com")(ok)
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "https://player.example.com"},
		{http.MethodHead, ""},
		{http.MethodPost, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/segment/demo", nil)
			req.Header.Set("Origin", "https://player.example.com")
			req.Header.Set("Access-Control-Request-Method", tt.method)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("allow-origin: got %q want %q", got, tt.want)
			}
		})
	}
}
