package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/directory"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want directory.Target
	}{
		{
			name: "explicit port without TLS",
			uri:  "ldap://directory.test:3890/dc=example,dc=test",
			want: directory.Target{Host: "directory.test", Port: 3890, TLS: false, BaseDN: "dc=example,dc=test"},
		},
		{
			name: "ldaps defaults to 636",
			uri:  "ldaps://directory.test/dc=example,dc=test",
			want: directory.Target{Host: "directory.test", Port: 636, TLS: true, BaseDN: "dc=example,dc=test"},
		},
		{
			name: "ldap defaults to 389",
			uri:  "ldap://directory.test",
			want: directory.Target{Host: "directory.test", Port: 389},
		},
		{
			name: "ldaps with explicit port",
			uri:  "ldaps://directory.test:10636",
			want: directory.Target{Host: "directory.test", Port: 10636, TLS: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := directory.ParseURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"unsupported scheme", "http://directory.test"},
		{"missing host", "ldap://"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := directory.ParseURI(tt.uri)
			assert.Error(t, err)
		})
	}
}

func TestTargetURL(t *testing.T) {
	target, err := directory.ParseURI("ldaps://directory.test/dc=example,dc=test")
	require.NoError(t, err)
	assert.Equal(t, "ldaps://directory.test:636", target.URL())
	assert.Equal(t, "directory.test:636", target.Addr())

	target, err = directory.ParseURI("ldap://directory.test:3890")
	require.NoError(t, err)
	assert.Equal(t, "ldap://directory.test:3890", target.URL())
}

func TestParseTLSVerify(t *testing.T) {
	tests := []struct {
		in      string
		want    directory.TLSVerify
		wantErr bool
	}{
		{"", directory.TLSVerifyRequired, false},
		{"required", directory.TLSVerifyRequired, false},
		{"optional", directory.TLSVerifyOptional, false},
		{"none", directory.TLSVerifyNone, false},
		{"always", 0, true},
	}
	for _, tt := range tests {
		t.Run("level "+tt.in, func(t *testing.T) {
			got, err := directory.ParseTLSVerify(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttributeSource(t *testing.T) {
	src, err := directory.ParseAttributeSource("")
	require.NoError(t, err)
	assert.Equal(t, directory.SourceEntry, src)

	src, err = directory.ParseAttributeSource("attributes")
	require.NoError(t, err)
	assert.Equal(t, directory.SourceAttributes, src)

	_, err = directory.ParseAttributeSource("nested")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := directory.Config{
		URI:               "ldap://directory.test/dc=example,dc=test",
		BindDNTemplate:    "uid=%s,ou=people,dc=example,dc=test",
		GroupSearchFilter: "(&(objectclass=groupOfUniqueNames)(uniquemember=%s))",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*directory.Config)
	}{
		{"bad URI", func(c *directory.Config) { c.URI = "smtp://directory.test" }},
		{"no placeholder in bind template", func(c *directory.Config) { c.BindDNTemplate = "uid=admin,ou=people" }},
		{"two placeholders in bind template", func(c *directory.Config) { c.BindDNTemplate = "uid=%s,ou=%s" }},
		{"no placeholder in filter", func(c *directory.Config) { c.GroupSearchFilter = "(objectclass=*)" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewResolver_BadCACertFile(t *testing.T) {
	_, err := directory.NewResolver(directory.Config{
		URI:               "ldaps://directory.test/dc=example,dc=test",
		CACertFile:        "/does/not/exist.pem",
		BindDNTemplate:    "uid=%s,ou=people,dc=example,dc=test",
		GroupSearchFilter: "(uniquemember=%s)",
	})
	assert.Error(t, err)
}
