package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/psantana5/smartworking/pkg/tls"
)

func newCertCmd() *cobra.Command {
	certCmd := &cobra.Command{
		Use:   "cert",
		Short: "TLS certificate helpers",
	}

	var certFile, keyFile, commonName string
	var hosts []string
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a self-signed certificate for the API listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range []string{certFile, keyFile} {
				if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
					return fmt.Errorf("failed to create %s: %w", filepath.Dir(f), err)
				}
			}
			if err := tls.GenerateSelfSignedCert(certFile, keyFile, commonName, hosts...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", certFile, keyFile)
			return nil
		},
	}
	generateCmd.Flags().StringVar(&certFile, "cert", "certs/server.crt", "certificate output path")
	generateCmd.Flags().StringVar(&keyFile, "key", "certs/server.key", "private key output path")
	generateCmd.Flags().StringVar(&commonName, "cn", "smartworking", "certificate common name")
	generateCmd.Flags().StringSliceVar(&hosts, "hosts", nil, "extra IP addresses or hostnames for the certificate SANs")

	certCmd.AddCommand(generateCmd)
	return certCmd
}
