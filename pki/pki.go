// Package pki implements the certificate issuance chain used to provision
// TLS material for authgate deployments: a self-signed root Certificate
// Authority and CA-signed server certificates carrying server-auth
// extensions. Key pairs are RSA, signatures are SHA-256/RSA, and issued
// material is serialized as PEM (<path>.crt / <path>.key, PKCS#1 key
// format, unencrypted).
package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrNotGenerated is returned when Store is called on a CA that has not
	// generated its certificate and key yet.
	ErrNotGenerated = errors.New("certificate and key not generated")

	// ErrNoCSR is returned when SignWithCA is called before GenerateCSR.
	ErrNoCSR = errors.New("certificate signing request not generated")

	// ErrNotSigned is returned when Store is called on a server certificate
	// that has not been signed by a CA yet.
	ErrNotSigned = errors.New("certificate not signed")
)

// ---------------------------------------------------------------------------
// Defaults and shared options
// ---------------------------------------------------------------------------

const (
	// DefaultKeySize is the RSA modulus size used when no override is given.
	DefaultKeySize = 2048

	// DefaultValidity is the certificate validity period used when no
	// override is given.
	DefaultValidity = 24 * time.Hour

	// clockSkewBackdate is subtracted from the issuance time so freshly
	// issued certificates validate on hosts whose clocks lag the issuer.
	clockSkewBackdate = 5 * time.Minute
)

// Subject identifies the entity a certificate is issued to. The same
// construction is used for a CA (where subject equals issuer) and for
// server certificates.
type Subject struct {
	CommonName   string
	Organization string
	OrgUnit      string
}

func (s Subject) name() pkix.Name {
	return pkix.Name{
		CommonName:         s.CommonName,
		Organization:       []string{s.Organization},
		OrganizationalUnit: []string{s.OrgUnit},
	}
}

type issuerOptions struct {
	keySize  int
	validity time.Duration
}

// Option overrides issuance parameters shared by the CA and server
// certificate issuers.
type Option func(*issuerOptions)

// WithKeySize sets the RSA modulus size in bits.
func WithKeySize(bits int) Option {
	return func(o *issuerOptions) { o.keySize = bits }
}

// WithValidity sets the certificate validity period.
func WithValidity(d time.Duration) Option {
	return func(o *issuerOptions) { o.validity = d }
}

func applyOptions(opts []Option) issuerOptions {
	o := issuerOptions{keySize: DefaultKeySize, validity: DefaultValidity}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// validityWindow returns the backdated [notBefore, notAfter] pair for a
// certificate issued now.
func validityWindow(validity time.Duration) (time.Time, time.Time) {
	notBefore := time.Now().UTC().Add(-clockSkewBackdate)
	return notBefore, notBefore.Add(validity)
}

// ---------------------------------------------------------------------------
// Serial numbers and key identifiers
// ---------------------------------------------------------------------------

// newSerialNumber returns a serial derived from a 128-bit random value.
// Uniqueness per issuer is probabilistic, not enforced by a counter.
func newSerialNumber() *big.Int {
	u := uuid.New()
	return new(big.Int).SetBytes(u[:])
}

// subjectKeyID computes the RFC 5280 key identifier: the SHA-1 digest of
// the subjectPublicKey BIT STRING from the SubjectPublicKeyInfo encoding.
func subjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	var decoded struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spki, &decoded); err != nil {
		return nil, fmt.Errorf("decoding public key info: %w", err)
	}
	sum := sha1.Sum(decoded.PublicKey.Bytes)
	return sum[:], nil
}

// ---------------------------------------------------------------------------
// PEM serialization
// ---------------------------------------------------------------------------

func encodePEM(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

// storePEM writes certDER to <path>.crt and the PKCS#1 encoding of key to
// <path>.key. Existing files are overwritten; a failed write may leave a
// truncated file behind, so callers retrying must overwrite rather than
// append.
func storePEM(path string, certDER []byte, key *rsa.PrivateKey) error {
	if err := os.WriteFile(path+".crt", encodePEM("CERTIFICATE", certDER), 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	keyPEM := encodePEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
	if err := os.WriteFile(path+".key", keyPEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}
