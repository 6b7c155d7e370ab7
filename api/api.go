// Package api exposes the HTTP surface: basic-auth enforcement backed
// by the directory resolver, identity introspection, and the CA
// certificate download.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/authgate/authgate/auth"
	"github.com/authgate/authgate/directory"
)

// CredentialResolver authenticates a username/password pair and
// classifies the caller. Satisfied by *directory.Resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, username, password string) directory.Result
}

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	resolver    CredentialResolver
	sync        *auth.Synchronizer
	caPEM       []byte
	rateLimiter *loginRateLimiter
	audit       *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithCACertificate publishes the given PEM bundle at /api/v1/ca.pem.
// Used when the server runs on a startup-generated certificate chain so
// clients can fetch the trust anchor.
func WithCACertificate(pem []byte) Option {
	return func(a *API) {
		a.caPEM = pem
	}
}

// WithLoginRateLimit overrides the default failed-login backoff
// threshold and window. A zero limit disables the limiter.
func WithLoginRateLimit(limit int, window time.Duration) Option {
	return func(a *API) {
		a.rateLimiter = newLoginRateLimiter(limit, window)
	}
}

// New creates a new API instance.
func New(resolver CredentialResolver, sync *auth.Synchronizer, opts ...Option) *API {
	a := &API{
		resolver: resolver,
		sync:     sync,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rateLimiter == nil {
		a.rateLimiter = newLoginRateLimiter(defaultMaxFailures, defaultWindow)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.BasicAuthMiddleware)
		r.Get("/whoami", a.WhoAmI)
		r.Get("/ca.pem", a.CACertificate)
	})

	return r
}
