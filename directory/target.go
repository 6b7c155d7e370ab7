// Package directory resolves HTTP basic-auth credentials against an
// LDAP/Active-Directory server: it binds with a templated identity,
// searches for group memberships, and classifies the result into an
// admin/user/unauthenticated identity.
package directory

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// Default directory ports when the URI does not carry one.
const (
	defaultPlainPort = 389
	defaultTLSPort   = 636
)

// Target is a directory endpoint resolved from a connection URI.
type Target struct {
	Host   string
	Port   int
	TLS    bool
	BaseDN string
}

// Addr returns the host:port form of the target.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// URL returns the ldap:// or ldaps:// form of the target, suitable for
// the go-ldap dialer.
func (t Target) URL() string {
	scheme := "ldap"
	if t.TLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s", scheme, t.Addr())
}

// ParseURI resolves a directory URI of the form scheme://host[:port]/baseDN
// into a Target. ldap:// URIs default to port 389 without TLS, ldaps:// to
// port 636 with TLS; an explicit port always wins.
func ParseURI(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parsing directory URI %q: %w", raw, err)
	}

	var target Target
	switch u.Scheme {
	case "ldap":
		target.TLS = false
	case "ldaps":
		target.TLS = true
	default:
		return Target{}, fmt.Errorf("directory URI %q: unsupported scheme %q", raw, u.Scheme)
	}

	target.Host = u.Hostname()
	if target.Host == "" {
		return Target{}, fmt.Errorf("directory URI %q: missing host", raw)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Target{}, fmt.Errorf("directory URI %q: invalid port %q", raw, p)
		}
		target.Port = port
	} else if target.TLS {
		target.Port = defaultTLSPort
	} else {
		target.Port = defaultPlainPort
	}

	if len(u.Path) > 1 {
		target.BaseDN = u.Path[1:]
	}
	return target, nil
}

// TLSVerify is the certificate verification level applied to directory
// TLS connections.
type TLSVerify int

const (
	// TLSVerifyRequired rejects connections whose server certificate does
	// not chain to a trusted CA. This is the default.
	TLSVerifyRequired TLSVerify = iota
	// TLSVerifyOptional negotiates TLS but does not fail on an untrusted
	// server certificate.
	TLSVerifyOptional
	// TLSVerifyNone performs no certificate verification.
	TLSVerifyNone
)

// ParseTLSVerify maps the configuration strings none/optional/required to
// a TLSVerify level. The empty string means required.
func ParseTLSVerify(s string) (TLSVerify, error) {
	switch s {
	case "", "required":
		return TLSVerifyRequired, nil
	case "optional":
		return TLSVerifyOptional, nil
	case "none":
		return TLSVerifyNone, nil
	default:
		return 0, fmt.Errorf("unknown TLS verification level %q", s)
	}
}

func (v TLSVerify) String() string {
	switch v {
	case TLSVerifyOptional:
		return "optional"
	case TLSVerifyNone:
		return "none"
	default:
		return "required"
	}
}

// buildTLSConfig constructs the TLS client configuration for a directory
// target. caFile, when non-empty, is loaded as the trust anchor set. In a
// TLS client the optional level cannot be expressed separately from none,
// so both skip chain verification; required is the default.
func buildTLSConfig(host, caFile string, verify TLSVerify) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
	if verify != TLSVerifyRequired {
		cfg.InsecureSkipVerify = true
	}
	if caFile != "" {
		pemBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate %q: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("CA certificate %q: no certificates found", caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
