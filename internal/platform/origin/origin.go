// Package origin restricts browser access to a single configured origin.
package origin

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS returns CORS middleware limited to allowed. An empty allowed origin
// permits any origin. Only GET is advertised: a HEAD on /segment would
// redeem a single-use token without delivering the body.
func CORS(allowed string) func(http.Handler) http.Handler {
	origins := []string{"*"}
	if allowed != "" {
		origins = []string{allowed}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Range", "Accept", "Origin"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		MaxAge:         300,
	})
}

// Guard rejects requests whose Origin (or, failing that, Referer) header is
// present and does not start with allowed. Requests carrying neither header,
// such as players outside a browser, pass through. This is a convenience
// filter: both headers are client controlled.
func Guard(allowed string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowed == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			from := r.Header.Get("Origin")
			if from == "" {
				from = r.Header.Get("Referer")
			}
			if from != "" && !strings.HasPrefix(from, allowed) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
