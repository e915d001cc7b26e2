package middleware

import (
	"net/http"

	"ssi-migration-bridge/internal/audit"
)

// Audit records an audit log entry after each authenticated request, naming
// the action and resource derived from the route. Writes are best-effort and
// never fail the request. skipPaths suppresses noisy routes (health checks).
//
// Flow-level events (login, connect_wallet, issue_credential) are audited by
// the orchestrator itself with richer metadata; this middleware covers the
// administrative surface.
func Audit(logger audit.AuditLogger, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if logger == nil || skipPaths[r.URL.Path] {
				return
			}
			subject := Subject(r.Context())
			if subject == "" {
				return
			}
			ar := audit.ParseRoute(r.Method, r.URL.Path)
			logger.LogEvent(r.Context(), subject, ar.Action, ar.Resource, "")
		})
	}
}
