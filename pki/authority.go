package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// CertificateAuthority generates a self-signed root CA certificate and
// holds its key pair for signing server certificates. The key material
// exists only in memory until Store is called; no revocation or rotation
// is modeled.
type CertificateAuthority struct {
	subject Subject
	opts    issuerOptions
	cert    *x509.Certificate
	certDER []byte
	key     *rsa.PrivateKey
}

// NewCertificateAuthority returns a CA issuer for the given subject.
// Generate must be called before the CA can sign or be stored.
func NewCertificateAuthority(subject Subject, opts ...Option) *CertificateAuthority {
	return &CertificateAuthority{subject: subject, opts: applyOptions(opts)}
}

// Generate creates the CA's RSA key pair and self-signed certificate.
// The certificate carries BasicConstraints(CA, critical), KeyUsage
// keyCertSign|cRLSign (critical) and matching subject/authority key
// identifiers, since subject and issuer are the same entity.
func (ca *CertificateAuthority) Generate() error {
	key, err := rsa.GenerateKey(rand.Reader, ca.opts.keySize)
	if err != nil {
		return fmt.Errorf("generating CA key: %w", err)
	}

	ski, err := subjectKeyID(key.Public())
	if err != nil {
		return fmt.Errorf("computing CA key identifier: %w", err)
	}

	name := ca.subject.name()
	notBefore, notAfter := validityWindow(ca.opts.validity)

	template := &x509.Certificate{
		SerialNumber:          newSerialNumber(),
		Subject:               name,
		Issuer:                name,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          ski,
		AuthorityKeyId:        ski,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return fmt.Errorf("creating CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return fmt.Errorf("parsing CA certificate: %w", err)
	}

	ca.key = key
	ca.cert = cert
	ca.certDER = derBytes
	return nil
}

// Certificate returns the generated CA certificate, or nil before Generate.
func (ca *CertificateAuthority) Certificate() *x509.Certificate {
	return ca.cert
}

// CertificatePEM returns the PEM encoding of the CA certificate, or an
// empty slice before Generate.
func (ca *CertificateAuthority) CertificatePEM() []byte {
	if ca.certDER == nil {
		return nil
	}
	return encodePEM("CERTIFICATE", ca.certDER)
}

// Store writes the CA certificate to <path>.crt and the unencrypted
// private key to <path>.key. It returns ErrNotGenerated if Generate has
// not been called.
func (ca *CertificateAuthority) Store(path string) error {
	if ca.cert == nil || ca.key == nil {
		return ErrNotGenerated
	}
	return storePEM(path, ca.certDER, ca.key)
}
