package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/vaultfs/internal/kit"
)

// Trace tags each request with a short random trace id, echoes it in
// X-Trace-ID, and scopes a logger carrying the id, method, and path
// under LoggerKey for handlers to pick up.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b [6]byte
		rand.Read(b[:])
		traceID := hex.EncodeToString(b[:])

		w.Header().Set("X-Trace-ID", traceID)
		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		logger.Info("request")

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger returns the request-scoped logger installed by Trace, or
// slog.Default outside a traced request.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
