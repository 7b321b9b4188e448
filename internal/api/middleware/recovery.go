package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/attrition/internal/api/response"
	"github.com/kiranshivaraju/attrition/internal/metrics"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR. The request body
// is never logged.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			metrics.HTTPPanics.Inc()
			slog.Error("panic recovered",
				"error", rv,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", ClientIP(r),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
