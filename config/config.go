// Package config loads and validates the authgate configuration. The
// configuration is read once at startup into an immutable struct and
// passed into the components that need it; nothing reads the
// environment after startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authgate/authgate/directory"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Directory DirectoryConfig `yaml:"directory"`
}

// ServerConfig controls the HTTPS listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // default ":8443"
	TLSCert         string        `yaml:"tls_cert"`         // PEM certificate path; empty = generate at startup
	TLSKey          string        `yaml:"tls_key"`          // PEM key path
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default 10s
	LoginRateLimit  int           `yaml:"login_rate_limit"` // failed attempts per window per user; 0 = disabled
	LoginRateWindow time.Duration `yaml:"login_rate_window"`
}

// StoreConfig selects and configures the user store backend.
type StoreConfig struct {
	Backend  string `yaml:"backend"` // memory, bbolt, postgres, redis
	Path     string `yaml:"path"`    // bbolt database file
	DSN      string `yaml:"dsn"`     // postgres connection string
	Addr     string `yaml:"addr"`    // redis host:port
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DirectoryConfig mirrors directory.Config in YAML form.
type DirectoryConfig struct {
	URI                  string `yaml:"uri"`
	CACertFile           string `yaml:"ca_cert_file"`
	TLSVerify            string `yaml:"tls_verify"` // required, optional, none
	BindDNTemplate       string `yaml:"bind_dn_template"`
	GroupSearchBaseDN    string `yaml:"group_search_base_dn"`
	GroupSearchFilter    string `yaml:"group_search_filter"`
	GroupAttribute       string `yaml:"group_attribute"`
	GroupAttributeSource string `yaml:"group_attribute_source"` // entry or attributes
	AdminGroupDN         string `yaml:"admin_group_dn"`
	UserGroupDN          string `yaml:"user_group_dn"`
}

// Store backends accepted by StoreConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendBbolt    = "bbolt"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8443",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			LoginRateLimit:  10,
			LoginRateWindow: time.Minute,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Directory: DirectoryConfig{
			TLSVerify:            "required",
			GroupAttributeSource: string(directory.SourceEntry),
		},
	}
}

// Load reads the YAML config at path, applies defaults and environment
// fallbacks, and validates the result. An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills directory settings from LDAP_* environment variables.
// The config file takes precedence; the variables cover container
// deployments that configure through the environment only.
func (c *Config) applyEnv() {
	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			if v := os.Getenv(key); v != "" {
				*dst = v
			}
		}
	}
	setIfEmpty(&c.Directory.URI, "LDAP_URI")
	setIfEmpty(&c.Directory.CACertFile, "LDAP_CA")
	setIfEmpty(&c.Directory.BindDNTemplate, "LDAP_LOOKUP_BIND")
	setIfEmpty(&c.Directory.GroupSearchBaseDN, "LDAP_GROUP_SEARCH_BASE_DN")
	setIfEmpty(&c.Directory.GroupSearchFilter, "LDAP_GROUP_SEARCH_FILTER")
	setIfEmpty(&c.Directory.GroupAttribute, "LDAP_GROUP_ATTRIBUTE")
	setIfEmpty(&c.Directory.AdminGroupDN, "LDAP_GROUP_ADMIN_DN")
	setIfEmpty(&c.Directory.UserGroupDN, "LDAP_GROUP_USER_DN")
	if v := os.Getenv("LDAP_TLS_VERIFY"); v != "" && c.Directory.TLSVerify == "required" {
		c.Directory.TLSVerify = v
	}
	if v := os.Getenv("LDAP_GROUP_ATTRIBUTE_SOURCE"); v != "" && c.Directory.GroupAttributeSource == string(directory.SourceEntry) {
		c.Directory.GroupAttributeSource = v
	}
}

// Validate rejects configurations that must fail at startup rather
// than on the first request.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendBbolt:
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the bbolt backend")
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Store.Addr == "" {
			return fmt.Errorf("config: store.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("config: server.tls_cert and server.tls_key must be set together")
	}

	dirCfg, err := c.DirectoryConfig()
	if err != nil {
		return err
	}
	return dirCfg.Validate()
}

// DirectoryConfig converts the YAML directory section into the
// resolver's configuration type.
func (c *Config) DirectoryConfig() (directory.Config, error) {
	verify, err := directory.ParseTLSVerify(c.Directory.TLSVerify)
	if err != nil {
		return directory.Config{}, fmt.Errorf("config: %w", err)
	}
	source, err := directory.ParseAttributeSource(c.Directory.GroupAttributeSource)
	if err != nil {
		return directory.Config{}, fmt.Errorf("config: %w", err)
	}
	return directory.Config{
		URI:                  c.Directory.URI,
		CACertFile:           c.Directory.CACertFile,
		TLSVerify:            verify,
		BindDNTemplate:       c.Directory.BindDNTemplate,
		GroupSearchBaseDN:    c.Directory.GroupSearchBaseDN,
		GroupSearchFilter:    c.Directory.GroupSearchFilter,
		GroupAttribute:       c.Directory.GroupAttribute,
		GroupAttributeSource: source,
		AdminGroupDN:         c.Directory.AdminGroupDN,
		UserGroupDN:          c.Directory.UserGroupDN,
	}, nil
}
