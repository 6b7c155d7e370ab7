package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/authgate/authgate/pki"
)

var (
	caCN   string
	caOrg  string
	caOU   string
	caPath string

	srvCN   string
	srvOrg  string
	srvOU   string
	srvPath string

	keySize  int
	validity time.Duration
)

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Generate a CA and a CA-signed server certificate",
	Long: `Generates a self-signed certificate authority and a server certificate
signed by it, then writes both as PEM pairs (<path>.crt / <path>.key).
The server certificate carries SANs for its common name, localhost and
the loopback addresses, so it is directly usable for local TLS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []pki.Option{
			pki.WithKeySize(keySize),
			pki.WithValidity(validity),
		}

		ca := pki.NewCertificateAuthority(pki.Subject{
			CommonName:   caCN,
			Organization: caOrg,
			OrgUnit:      caOU,
		}, opts...)
		if err := ca.Generate(); err != nil {
			return fmt.Errorf("failed to generate CA: %w", err)
		}
		if err := ca.Store(caPath); err != nil {
			return fmt.Errorf("failed to store CA: %w", err)
		}
		fmt.Printf("CA certificate written to %s.crt (key: %s.key)\n", caPath, caPath)

		srv := pki.NewServerCertificate(pki.Subject{
			CommonName:   srvCN,
			Organization: srvOrg,
			OrgUnit:      srvOU,
		}, opts...)
		if err := srv.GenerateCSR(); err != nil {
			return fmt.Errorf("failed to generate server CSR: %w", err)
		}
		if err := srv.SignWithCA(ca); err != nil {
			return fmt.Errorf("failed to sign server certificate: %w", err)
		}
		if err := srv.Store(srvPath); err != nil {
			return fmt.Errorf("failed to store server certificate: %w", err)
		}
		fmt.Printf("Server certificate written to %s.crt (key: %s.key)\n", srvPath, srvPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gencertCmd)

	gencertCmd.Flags().StringVar(&caCN, "ca-cn", "authgate Test CA", "CA common name")
	gencertCmd.Flags().StringVar(&caOrg, "ca-org", "authgate", "CA organization")
	gencertCmd.Flags().StringVar(&caOU, "ca-ou", "Server-SSL-Test", "CA organizational unit")
	gencertCmd.Flags().StringVar(&caPath, "ca-path", "./ca", "CA output path (without extension)")

	gencertCmd.Flags().StringVar(&srvCN, "srv-cn", "server", "Server common name")
	gencertCmd.Flags().StringVar(&srvOrg, "srv-org", "authgate", "Server organization")
	gencertCmd.Flags().StringVar(&srvOU, "srv-ou", "Server-SSL-Test", "Server organizational unit")
	gencertCmd.Flags().StringVar(&srvPath, "srv-path", "./server", "Server certificate output path (without extension)")

	gencertCmd.Flags().IntVar(&keySize, "key-size", pki.DefaultKeySize, "RSA key size in bits")
	gencertCmd.Flags().DurationVar(&validity, "validity", pki.DefaultValidity, "Certificate validity period")
}
