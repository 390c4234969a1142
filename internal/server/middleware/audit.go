package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"account-mirror/internal/audit"
)

// Audit records an audit entry after each authenticated, state-changing request.
// Anonymous flows (registration, login) are audited by their services, which know the outcome.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if logger == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				return
			}
			accountID, ok := GetAccountID(r.Context())
			if !ok || rec.status >= 400 {
				return
			}
			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			ar := audit.ParseRoute(r.Method, pattern)
			logger.LogEvent(r.Context(), accountID, ar.Action, ar.Resource, "")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
