// Package shield is the ambient HTTP middleware for the service: API
// security headers, a body cap for the JSON endpoints, HEAD handling,
// and per-request trace ids with a scoped logger.
//
// Usage, applied by cmd/vaultfs around the API router:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack() {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"strings"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// maxJSONBody caps the JSON request bodies (link, annotations,
// extract_status, tombstone). Their payloads are small; anything near
// this limit is malformed or hostile.
const maxJSONBody = 1 << 20

// Stack returns the service's middleware in order: HeadToGet →
// APIHeaders → JSONBodyLimit → Trace.
func Stack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		APIHeaders,
		JSONBodyLimit(maxJSONBody),
		Trace,
	}
}

// HeadToGet converts HEAD requests to GET so route handlers registered
// with r.Get() answer 200 instead of 405; net/http strips the response
// body for HEAD on its own.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// APIHeaders sets the response headers for a JSON-and-blob API with no
// HTML surface: nothing served here may be scripted, framed, or
// content-sniffed. nosniff also keeps browsers from second-guessing the
// Content-Type on downloads.
func APIHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// JSONBodyLimit caps request bodies on the JSON endpoints. Multipart
// uploads are exempt: the ingest pipeline streams them to disk rather
// than buffering.
func JSONBodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
