package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/vefmedia/vef/internal/observability"
)

// Recovery recovers from handler panics, logs them and returns a 500. It
// uses the request-scoped logger placed on the context by the logging
// middleware, falling back to the default logger.
func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger := observability.LoggerFromContext(r.Context())
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
