package api

import (
	"log/slog"
	"net/http"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess        AuditEvent = "login_success"
	AuditLoginDenied         AuditEvent = "login_denied"
	AuditLoginTransportError AuditEvent = "login_transport_error"
	AuditLoginRateLimited    AuditEvent = "login_rate_limited"
	AuditSyncFailure         AuditEvent = "sync_failure"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes one structured audit entry. Passwords never reach this
// method; usernames and outcomes do.
func (al *auditLogger) log(event AuditEvent, r *http.Request, args ...any) {
	attrs := append([]any{
		"event", string(event),
		"remote_addr", r.RemoteAddr,
	}, args...)
	al.logger.InfoContext(r.Context(), "audit", attrs...)
}
