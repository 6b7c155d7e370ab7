package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"
)

// Extension OIDs handled explicitly during CSR construction and signing.
var (
	oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}

	oidServerAuth = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	oidClientAuth = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
)

// ServerCertificate issues a CA-signed leaf certificate for TLS server
// authentication. Its lifecycle only moves forward: GenerateCSR, then
// SignWithCA, then Store. Calling a step out of order fails with an
// invalid-state error.
type ServerCertificate struct {
	subject Subject
	opts    issuerOptions
	key     *rsa.PrivateKey
	csr     *x509.CertificateRequest
	cert    *x509.Certificate
	certDER []byte
}

// NewServerCertificate returns a server certificate issuer for the given
// subject.
func NewServerCertificate(subject Subject, opts ...Option) *ServerCertificate {
	return &ServerCertificate{subject: subject, opts: applyOptions(opts)}
}

// GenerateCSR creates a fresh RSA key pair (independent of any CA key) and
// a certificate signing request self-signed with it. The CSR requests the
// Subject Alternative Names needed for local development and wildcard
// binds — the common name, localhost, and the loopback/any addresses —
// plus BasicConstraints(!CA), a server KeyUsage set and an Extended Key
// Usage of serverAuth and clientAuth, all critical.
func (sc *ServerCertificate) GenerateCSR() error {
	key, err := rsa.GenerateKey(rand.Reader, sc.opts.keySize)
	if err != nil {
		return fmt.Errorf("generating server key: %w", err)
	}

	requested, err := requestedExtensions()
	if err != nil {
		return fmt.Errorf("building CSR extensions: %w", err)
	}

	template := &x509.CertificateRequest{
		Subject: sc.subject.name(),
		DNSNames: []string{
			sc.subject.CommonName,
			"localhost",
		},
		IPAddresses: []net.IP{
			net.ParseIP("127.0.0.1"),
			net.ParseIP("::1"),
			net.ParseIP("0.0.0.0"),
		},
		ExtraExtensions:    requested,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return fmt.Errorf("creating CSR: %w", err)
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return fmt.Errorf("parsing CSR: %w", err)
	}

	sc.key = key
	sc.csr = csr
	return nil
}

// requestedExtensions builds the non-SAN extensions carried in the CSR.
// The SAN extension is marshaled by the x509 package from the request
// template's DNSNames/IPAddresses fields.
func requestedExtensions() ([]pkix.Extension, error) {
	// BasicConstraints SEQUENCE with cA defaulted to FALSE.
	basicConstraints, err := asn1.Marshal(struct{}{})
	if err != nil {
		return nil, err
	}

	// digitalSignature(0), contentCommitment(1), keyEncipherment(2),
	// dataEncipherment(3).
	keyUsage, err := asn1.Marshal(asn1.BitString{Bytes: []byte{0xf0}, BitLength: 4})
	if err != nil {
		return nil, err
	}

	extKeyUsage, err := asn1.Marshal([]asn1.ObjectIdentifier{oidServerAuth, oidClientAuth})
	if err != nil {
		return nil, err
	}

	return []pkix.Extension{
		{Id: oidBasicConstraints, Critical: true, Value: basicConstraints},
		{Id: oidKeyUsage, Critical: true, Value: keyUsage},
		{Id: oidExtKeyUsage, Critical: true, Value: extKeyUsage},
	}, nil
}

// CSR returns the generated signing request, or nil before GenerateCSR.
func (sc *ServerCertificate) CSR() *x509.CertificateRequest {
	return sc.csr
}

// SignWithCA builds the leaf certificate from the CSR and signs it with
// the CA's key. Every requested extension is carried over except
// BasicConstraints — the signer decides the trust-chain role, not the
// requester — and an Authority Key Identifier derived from the CA's
// public key is appended.
func (sc *ServerCertificate) SignWithCA(ca *CertificateAuthority) error {
	if sc.csr == nil {
		return ErrNoCSR
	}
	if ca.cert == nil || ca.key == nil {
		return ErrNotGenerated
	}

	notBefore, notAfter := validityWindow(sc.opts.validity)

	template := &x509.Certificate{
		SerialNumber:       newSerialNumber(),
		Subject:            sc.csr.Subject,
		NotBefore:          notBefore,
		NotAfter:           notAfter,
		AuthorityKeyId:     ca.cert.SubjectKeyId,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	for _, ext := range sc.csr.Extensions {
		if ext.Id.Equal(oidBasicConstraints) {
			continue
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ext)
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, ca.cert, sc.csr.PublicKey, ca.key)
	if err != nil {
		return fmt.Errorf("signing server certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return fmt.Errorf("parsing server certificate: %w", err)
	}

	sc.cert = cert
	sc.certDER = derBytes
	return nil
}

// Certificate returns the signed leaf certificate, or nil before SignWithCA.
func (sc *ServerCertificate) Certificate() *x509.Certificate {
	return sc.cert
}

// TLSCertificate returns the signed certificate and private key as a
// tls.Certificate ready for use in a tls.Config.
func (sc *ServerCertificate) TLSCertificate() (tls.Certificate, error) {
	if sc.cert == nil {
		return tls.Certificate{}, ErrNotSigned
	}
	return tls.Certificate{
		Certificate: [][]byte{sc.certDER},
		PrivateKey:  sc.key,
		Leaf:        sc.cert,
	}, nil
}

// Store writes the signed certificate to <path>.crt and the server's own
// unencrypted private key to <path>.key. It returns ErrNotSigned if
// SignWithCA has not been called.
func (sc *ServerCertificate) Store(path string) error {
	if sc.cert == nil || sc.key == nil {
		return ErrNotSigned
	}
	return storePEM(path, sc.certDER, sc.key)
}
