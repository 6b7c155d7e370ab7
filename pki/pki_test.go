package pki_test

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/pki"
)

// testKeySize keeps RSA generation fast in tests. Production defaults to
// 2048 via pki.DefaultKeySize.
const testKeySize = 1024

var (
	oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidAuthorityKeyID   = asn1.ObjectIdentifier{2, 5, 29, 35}
)

func newTestCA(t *testing.T) *pki.CertificateAuthority {
	t.Helper()
	ca := pki.NewCertificateAuthority(pki.Subject{
		CommonName:   "AuthGate Test CA",
		Organization: "AuthGate",
		OrgUnit:      "Testing",
	}, pki.WithKeySize(testKeySize))
	require.NoError(t, ca.Generate())
	return ca
}

func newSignedServerCert(t *testing.T, ca *pki.CertificateAuthority) *pki.ServerCertificate {
	t.Helper()
	sc := pki.NewServerCertificate(pki.Subject{
		CommonName:   "server.example.test",
		Organization: "AuthGate",
		OrgUnit:      "Testing",
	}, pki.WithKeySize(testKeySize))
	require.NoError(t, sc.GenerateCSR())
	require.NoError(t, sc.SignWithCA(ca))
	return sc
}

func TestCertificateAuthority_Generate(t *testing.T) {
	ca := newTestCA(t)
	cert := ca.Certificate()
	require.NotNil(t, cert)

	// Self-signed: issuer equals subject, and the signature verifies with
	// the certificate's own embedded public key.
	assert.Equal(t, cert.Subject.String(), cert.Issuer.String())
	assert.NoError(t, cert.CheckSignatureFrom(cert))

	assert.True(t, cert.IsCA)
	assert.True(t, cert.BasicConstraintsValid)
	assert.Equal(t, x509.KeyUsageCertSign|x509.KeyUsageCRLSign, cert.KeyUsage)
	assert.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
	assert.NotEmpty(t, cert.SubjectKeyId)
	assert.Equal(t, cert.SubjectKeyId, cert.AuthorityKeyId)

	assert.Equal(t, "AuthGate Test CA", cert.Subject.CommonName)
	assert.Equal(t, []string{"AuthGate"}, cert.Subject.Organization)
	assert.Equal(t, []string{"Testing"}, cert.Subject.OrganizationalUnit)
}

func TestCertificateAuthority_ValidityBackdated(t *testing.T) {
	ca := newTestCA(t)
	cert := ca.Certificate()

	// NotBefore is backdated by five minutes to absorb clock skew.
	now := time.Now().UTC()
	assert.True(t, cert.NotBefore.Before(now.Add(-4*time.Minute)))
	assert.True(t, cert.NotBefore.After(now.Add(-6*time.Minute)))
	assert.Equal(t, pki.DefaultValidity, cert.NotAfter.Sub(cert.NotBefore))
}

func TestCertificateAuthority_StoreBeforeGenerate(t *testing.T) {
	ca := pki.NewCertificateAuthority(pki.Subject{CommonName: "never generated"})
	assert.ErrorIs(t, ca.Store(t.TempDir()+"/ca"), pki.ErrNotGenerated)
}

func TestCertificateAuthority_Store(t *testing.T) {
	ca := newTestCA(t)
	path := t.TempDir() + "/ca"
	require.NoError(t, ca.Store(path))

	certPEM, err := os.ReadFile(path + ".crt")
	require.NoError(t, err)
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)
	parsed, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, ca.Certificate().SerialNumber, parsed.SerialNumber)

	// Key is unencrypted PKCS#1 and matches the certificate's public key.
	keyPEM, err := os.ReadFile(path + ".key")
	require.NoError(t, err)
	block, _ = pem.Decode(keyPEM)
	require.NotNil(t, block)
	assert.Equal(t, "RSA PRIVATE KEY", block.Type)
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed.PublicKey.(*rsa.PublicKey)))

	info, err := os.Stat(path + ".key")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestServerCertificate_GenerateCSR(t *testing.T) {
	sc := pki.NewServerCertificate(pki.Subject{
		CommonName:   "server.example.test",
		Organization: "AuthGate",
		OrgUnit:      "Testing",
	}, pki.WithKeySize(testKeySize))
	require.NoError(t, sc.GenerateCSR())

	csr := sc.CSR()
	require.NotNil(t, csr)
	// Possession proof: the CSR is self-signed with the requester's key.
	assert.NoError(t, csr.CheckSignature())

	assert.ElementsMatch(t, []string{"server.example.test", "localhost"}, csr.DNSNames)
	require.Len(t, csr.IPAddresses, 3)
	ips := make([]string, 0, 3)
	for _, ip := range csr.IPAddresses {
		ips = append(ips, ip.String())
	}
	assert.ElementsMatch(t, []string{"127.0.0.1", "::1", "0.0.0.0"}, ips)
}

func TestServerCertificate_SignWithCA(t *testing.T) {
	ca := newTestCA(t)
	sc := newSignedServerCert(t, ca)

	cert := sc.Certificate()
	require.NotNil(t, cert)

	// Trust chain: issuer is the CA's subject and the signature verifies
	// against the CA's public key.
	assert.Equal(t, ca.Certificate().Subject.String(), cert.Issuer.String())
	assert.NoError(t, cert.CheckSignatureFrom(ca.Certificate()))

	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment|
		x509.KeyUsageKeyEncipherment|x509.KeyUsageDataEncipherment, cert.KeyUsage)
	assert.ElementsMatch(t,
		[]x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		cert.ExtKeyUsage)
	assert.Contains(t, cert.DNSNames, "server.example.test")
	assert.Contains(t, cert.DNSNames, "localhost")

	// The signer replaces the requested trust-chain role: no CA flag.
	assert.False(t, cert.IsCA)

	// Authority Key Identifier links the leaf to the signing CA.
	assert.Equal(t, ca.Certificate().SubjectKeyId, cert.AuthorityKeyId)
}

func TestServerCertificate_ExtensionTransfer(t *testing.T) {
	ca := newTestCA(t)
	sc := newSignedServerCert(t, ca)

	csrOIDs := make(map[string]bool)
	for _, ext := range sc.CSR().Extensions {
		csrOIDs[ext.Id.String()] = true
	}
	require.True(t, csrOIDs[oidBasicConstraints.String()])

	certOIDs := make(map[string]bool)
	for _, ext := range sc.Certificate().Extensions {
		certOIDs[ext.Id.String()] = true
	}

	// Certificate extensions are the CSR's minus BasicConstraints, plus
	// exactly one added AuthorityKeyIdentifier.
	assert.False(t, certOIDs[oidBasicConstraints.String()])
	assert.True(t, certOIDs[oidAuthorityKeyID.String()])
	delete(csrOIDs, oidBasicConstraints.String())
	delete(certOIDs, oidAuthorityKeyID.String())
	assert.Equal(t, csrOIDs, certOIDs)
}

func TestServerCertificate_VerifiesAgainstCAPool(t *testing.T) {
	ca := newTestCA(t)
	sc := newSignedServerCert(t, ca)

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate())
	_, err := sc.Certificate().Verify(x509.VerifyOptions{
		Roots:   roots,
		DNSName: "localhost",
	})
	assert.NoError(t, err)
}

func TestServerCertificate_StateMachine(t *testing.T) {
	ca := newTestCA(t)
	sc := pki.NewServerCertificate(pki.Subject{CommonName: "server"},
		pki.WithKeySize(testKeySize))

	// Only forward transitions are legal.
	assert.ErrorIs(t, sc.SignWithCA(ca), pki.ErrNoCSR)
	assert.ErrorIs(t, sc.Store(t.TempDir()+"/server"), pki.ErrNotSigned)

	require.NoError(t, sc.GenerateCSR())
	assert.ErrorIs(t, sc.Store(t.TempDir()+"/server"), pki.ErrNotSigned)

	require.NoError(t, sc.SignWithCA(ca))
	assert.NoError(t, sc.Store(t.TempDir()+"/server"))
}

func TestSignWithCA_UnsignedCA(t *testing.T) {
	sc := pki.NewServerCertificate(pki.Subject{CommonName: "server"},
		pki.WithKeySize(testKeySize))
	require.NoError(t, sc.GenerateCSR())

	ca := pki.NewCertificateAuthority(pki.Subject{CommonName: "never generated"})
	assert.ErrorIs(t, sc.SignWithCA(ca), pki.ErrNotGenerated)
}

func TestSerialNumbersDoNotCollide(t *testing.T) {
	ca := newTestCA(t)

	seen := make(map[string]bool)
	seen[ca.Certificate().SerialNumber.String()] = true
	for i := 0; i < 8; i++ {
		sc := newSignedServerCert(t, ca)
		serial := sc.Certificate().SerialNumber.String()
		assert.False(t, seen[serial], "serial %s issued twice", serial)
		seen[serial] = true
	}
}

func TestTLSCertificate(t *testing.T) {
	ca := newTestCA(t)
	sc := newSignedServerCert(t, ca)

	tlsCert, err := sc.TLSCertificate()
	require.NoError(t, err)
	require.Len(t, tlsCert.Certificate, 1)
	assert.NotNil(t, tlsCert.PrivateKey)
	assert.NotNil(t, tlsCert.Leaf)

	_, err = pki.NewServerCertificate(pki.Subject{CommonName: "x"}).TLSCertificate()
	assert.ErrorIs(t, err, pki.ErrNotSigned)
}

func TestStore_ServerWritesOwnKey(t *testing.T) {
	ca := newTestCA(t)
	sc := newSignedServerCert(t, ca)

	path := t.TempDir() + "/server"
	require.NoError(t, sc.Store(path))

	keyPEM, err := os.ReadFile(path + ".key")
	require.NoError(t, err)
	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	// The stored key is the server's, not the CA's.
	leafPub := sc.Certificate().PublicKey.(*rsa.PublicKey)
	assert.True(t, key.PublicKey.Equal(leafPub))
	caPub := ca.Certificate().PublicKey.(*rsa.PublicKey)
	assert.False(t, key.PublicKey.Equal(caPub))
}

func TestSubjectAltNamesSurviveSigning(t *testing.T) {
	ca := newTestCA(t)
	sc := newSignedServerCert(t, ca)

	cert := sc.Certificate()
	ips := make([]net.IP, len(cert.IPAddresses))
	copy(ips, cert.IPAddresses)
	require.Len(t, ips, 3)
}
