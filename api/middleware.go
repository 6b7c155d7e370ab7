package api

import (
	"context"
	"net/http"

	"github.com/authgate/authgate/auth"
	"github.com/authgate/authgate/directory"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity set by
// BasicAuthMiddleware.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// BasicAuthMiddleware enforces HTTP basic authentication against the
// directory. The response to every failure is the same generic 401
// challenge; the audit log carries the detail. On success the resolved
// identity is placed on the request context and the user record is
// synchronized.
func (a *API) BasicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username == "" || password == "" {
			a.audit.log(AuditLoginDenied, r, "reason", "missing credentials")
			writeUnauthorized(w)
			return
		}

		if blocked, retryAfter := a.rateLimiter.check(username); blocked {
			a.audit.log(AuditLoginRateLimited, r, "user", username)
			writeRateLimited(w, retryAfter)
			return
		}

		res := a.resolver.Resolve(r.Context(), username, password)
		switch res.Outcome {
		case directory.OutcomeAuthenticated:
			a.rateLimiter.recordSuccess(username)
		case directory.OutcomeDenied:
			a.rateLimiter.recordFailure(username)
			a.audit.log(AuditLoginDenied, r, "user", username)
			writeUnauthorized(w)
			return
		case directory.OutcomeTransportError:
			// Not counted against the caller: the directory was
			// unreachable, not the credentials wrong.
			a.audit.log(AuditLoginTransportError, r, "user", username)
			writeUnauthorized(w)
			return
		default:
			writeUnauthorized(w)
			return
		}

		if err := a.sync.Sync(r.Context(), res.Identity); err != nil {
			a.audit.log(AuditSyncFailure, r, "user", username, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		a.audit.log(AuditLoginSuccess, r, "user", username, "admin", res.Identity.IsAdmin)

		ctx := context.WithValue(r.Context(), identityKey, res.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
