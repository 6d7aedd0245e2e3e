package http

import (
	"net/http"

	"idecide/internal/audit"
)

// AuditTrail queues request-level audit events through the background worker
// so the admin surface does not pay store latency per request.
type AuditTrail struct {
	Publisher *audit.Publisher
	Inbox     chan<- audit.Event
}

// auditAdmin records every state-changing staff request after it completes.
func (a *AuditTrail) auditAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if a == nil || a.Publisher == nil || r.Method == http.MethodGet {
			return
		}
		a.Publisher.EmitAsync(r.Context(), a.Inbox, audit.Event{
			Action: audit.ActionAdminAccess,
			Detail: r.Method + " " + r.URL.Path,
		})
	})
}
