package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/authgate/authgate/auth"
)

// Outcome classifies the result of a resolution attempt. Denied and
// TransportError both surface to the end user as a generic authentication
// failure; the distinction exists for logs and callers only.
type Outcome int

const (
	// OutcomeDenied means the credentials were rejected or no configured
	// group matched. Expected, retryable with different credentials.
	OutcomeDenied Outcome = iota
	// OutcomeAuthenticated means the bind succeeded and a configured
	// group matched.
	OutcomeAuthenticated
	// OutcomeTransportError means the directory could not be reached or
	// the search failed at the protocol level.
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "denied"
	}
}

// Result is the outcome of one resolution attempt. The identity is
// unauthenticated unless Outcome is OutcomeAuthenticated.
type Result struct {
	Outcome  Outcome
	Identity auth.Identity
}

// AttributeSource selects where the group identifier is read from in a
// search result entry. Directory servers differ on whether they surface
// it as the entry's own DN or inside the attribute set, so this is a
// configuration choice rather than a hard-coded branch.
type AttributeSource string

const (
	// SourceEntry reads the entry's top-level distinguished name.
	SourceEntry AttributeSource = "entry"
	// SourceAttributes reads the entry's attribute values. Single-valued
	// and multi-valued representations are equivalent.
	SourceAttributes AttributeSource = "attributes"
)

// ParseAttributeSource maps a configuration string to an AttributeSource.
// The empty string means entry.
func ParseAttributeSource(s string) (AttributeSource, error) {
	switch s {
	case "", string(SourceEntry):
		return SourceEntry, nil
	case string(SourceAttributes):
		return SourceAttributes, nil
	default:
		return "", fmt.Errorf("unknown group attribute source %q", s)
	}
}

// Config holds the process-wide directory settings. It is read once at
// startup and never mutated afterwards.
type Config struct {
	// URI is the directory endpoint, e.g. ldaps://ldap.example.com/dc=example,dc=com.
	URI string
	// CACertFile optionally points at a PEM CA bundle for TLS validation.
	CACertFile string
	// TLSVerify is the certificate verification level.
	TLSVerify TLSVerify
	// BindDNTemplate is a format string with one %s placeholder that the
	// RDN-escaped username is substituted into, e.g.
	// "uid=%s,ou=people,dc=example,dc=com".
	BindDNTemplate string
	// GroupSearchBaseDN is the subtree root for the group search.
	GroupSearchBaseDN string
	// GroupSearchFilter is a format string with one %s placeholder that
	// the filter-escaped bind DN is substituted into.
	GroupSearchFilter string
	// GroupAttribute is the attribute carrying the group identifier.
	GroupAttribute string
	// GroupAttributeSource selects where GroupAttribute is read from.
	GroupAttributeSource AttributeSource
	// AdminGroupDN grants the admin role. Admin strictly outranks user.
	AdminGroupDN string
	// UserGroupDN grants the regular user role.
	UserGroupDN string
}

// Validate checks the parts of the configuration that must fail at
// startup rather than per request.
func (c Config) Validate() error {
	if _, err := ParseURI(c.URI); err != nil {
		return err
	}
	if err := validateTemplate("bind DN", c.BindDNTemplate); err != nil {
		return err
	}
	return validateTemplate("group search filter", c.GroupSearchFilter)
}

func validateTemplate(name, tpl string) error {
	if strings.Count(tpl, "%s") != 1 || strings.Count(tpl, "%") != 1 {
		return fmt.Errorf("%s template %q must contain exactly one %%s placeholder", name, tpl)
	}
	return nil
}

// Conn is the subset of the LDAP connection used by the resolver. It is
// satisfied by *ldap.Conn and by test fakes.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// DialFunc establishes a directory connection for one resolution attempt.
type DialFunc func(ctx context.Context) (Conn, error)

// Resolver authenticates credentials against the directory and evaluates
// group membership. The URI is parsed and the TLS context built once at
// construction; each Resolve call acquires and releases its own
// connection.
type Resolver struct {
	cfg       Config
	target    Target
	tlsConfig *tls.Config
	dial      DialFunc
	logger    *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDialer replaces the connection dialer. Used by tests to supply a
// fake directory.
func WithDialer(dial DialFunc) ResolverOption {
	return func(r *Resolver) { r.dial = dial }
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver validates cfg, resolves the directory target, and returns
// a Resolver. Configuration errors are fatal here, at startup, so they
// can never surface per request.
func NewResolver(cfg Config, opts ...ResolverOption) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := ParseURI(cfg.URI)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		cfg:    cfg,
		target: target,
		logger: slog.New(slog.DiscardHandler),
	}
	if target.TLS || cfg.CACertFile != "" {
		r.tlsConfig, err = buildTLSConfig(target.Host, cfg.CACertFile, cfg.TLSVerify)
		if err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dial == nil {
		r.dial = r.dialDirectory
	}
	r.logger = r.logger.With("component", "directory")
	return r, nil
}

// Target returns the resolved directory endpoint.
func (r *Resolver) Target() Target {
	return r.target
}

// dialDirectory is the production dialer: ldaps targets negotiate TLS on
// connect, plaintext targets upgrade via StartTLS when a CA certificate
// is configured.
func (r *Resolver) dialDirectory(_ context.Context) (Conn, error) {
	var opts []ldap.DialOpt
	if r.target.TLS {
		opts = append(opts, ldap.DialWithTLSConfig(r.tlsConfig))
	}
	conn, err := ldap.DialURL(r.target.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing directory %s: %w", r.target.Addr(), err)
	}
	if !r.target.TLS && r.tlsConfig != nil {
		if err := conn.StartTLS(r.tlsConfig); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("starting TLS with %s: %w", r.target.Addr(), err)
		}
	}
	return conn, nil
}

// Resolve binds to the directory with the user's credentials, searches
// for group memberships, and classifies the result. Credential failures
// and protocol failures are outcomes, not errors: the caller always gets
// a Result, and anything that is not Authenticated carries an
// unauthenticated identity.
func (r *Resolver) Resolve(ctx context.Context, username, password string) Result {
	denied := Result{Outcome: OutcomeDenied, Identity: auth.Identity{Name: username}}

	escaped := ldap.EscapeDN(norm.NFC.String(username))
	bindDN := fmt.Sprintf(r.cfg.BindDNTemplate, escaped)

	conn, err := r.dial(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "directory connection failed", "user", username, "error", err)
		return Result{Outcome: OutcomeTransportError, Identity: auth.Identity{Name: username}}
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Bind(bindDN, password); err != nil {
		r.logger.WarnContext(ctx, "directory bind rejected", "user", username, "error", err)
		return denied
	}

	filter := fmt.Sprintf(r.cfg.GroupSearchFilter, ldap.EscapeFilter(bindDN))
	req := ldap.NewSearchRequest(
		r.cfg.GroupSearchBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{r.cfg.GroupAttribute},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		r.logger.WarnContext(ctx, "group search failed", "user", username, "error", err)
		return Result{Outcome: OutcomeTransportError, Identity: auth.Identity{Name: username}}
	}

	// Admin strictly dominates: scan all entries for the admin group
	// before considering the user group.
	for _, entry := range res.Entries {
		for _, candidate := range r.candidateValues(entry) {
			if candidate == r.cfg.AdminGroupDN {
				r.logger.InfoContext(ctx, "authenticated as admin", "user", username)
				return Result{
					Outcome:  OutcomeAuthenticated,
					Identity: auth.Identity{Name: username, IsAdmin: true},
				}
			}
		}
	}
	for _, entry := range res.Entries {
		for _, candidate := range r.candidateValues(entry) {
			if candidate == r.cfg.UserGroupDN {
				r.logger.InfoContext(ctx, "authenticated as user", "user", username)
				return Result{
					Outcome:  OutcomeAuthenticated,
					Identity: auth.Identity{Name: username, IsUser: true},
				}
			}
		}
	}

	r.logger.WarnContext(ctx, "no authorized group membership", "user", username)
	return denied
}

// candidateValues extracts the group identifier candidates from one
// search result entry according to the configured source.
func (r *Resolver) candidateValues(entry *ldap.Entry) []string {
	if r.cfg.GroupAttributeSource == SourceAttributes {
		return entry.GetAttributeValues(r.cfg.GroupAttribute)
	}
	return []string{entry.DN}
}
