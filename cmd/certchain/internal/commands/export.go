package commands

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/pki"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// ExportCmd bundles a leaf key, its certificate and the root CA into a PKCS#12 file.
type ExportCmd struct {
	Cert     string `help:"Path to the leaf certificate." required:"" type:"existingfile"`
	Key      string `help:"Path to the leaf private key." required:"" type:"existingfile"`
	CA       string `name:"ca" help:"Path to the root CA certificate." type:"existingfile"`
	Out      string `help:"Path to write the PKCS#12 bundle to." required:"" type:"path"`
	Password string `help:"Password protecting the bundle." env:"CERTCHAIN_EXPORT_PASSWORD"`
}

// Run executes the export command
func (cmd *ExportCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)

	cert, err := pki.LoadCertificate(cmd.Cert)
	if err != nil {
		return err
	}

	keyPEM, err := os.ReadFile(cmd.Key)
	if err != nil {
		return fmt.Errorf("%w: failed to read private key: %w", pki.ErrIO, err)
	}

	key, err := pki.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Key, err)
	}

	if err := pki.VerifyKeyPair(cert, key); err != nil {
		return fmt.Errorf("%s: %w", cmd.Key, err)
	}

	var caCerts []*x509.Certificate
	if cmd.CA != "" {
		ca, err := pki.LoadCertificate(cmd.CA)
		if err != nil {
			return err
		}
		if err := cert.CheckSignatureFrom(ca); err != nil {
			return fmt.Errorf("%w: certificate is not signed by %s: %w", pki.ErrConfig, cmd.CA, err)
		}
		caCerts = append(caCerts, ca)
	}

	pfx, err := pkcs12.Modern.Encode(key, cert, caCerts, cmd.Password)
	if err != nil {
		return fmt.Errorf("%w: failed to encode PKCS#12 bundle: %w", pki.ErrSigning, err)
	}

	if err := os.MkdirAll(filepath.Dir(cmd.Out), 0755); err != nil {
		return fmt.Errorf("%w: failed to create output directory: %w", pki.ErrIO, err)
	}

	if err := os.WriteFile(cmd.Out, pfx, 0600); err != nil {
		return fmt.Errorf("%w: failed to write PKCS#12 bundle: %w", pki.ErrIO, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("path", cmd.Out).
		Str("subject", cert.Subject.String()).
		Int("ca_certs", len(caCerts)).
		Msg("exported PKCS#12 bundle")

	fmt.Fprintf(globals.stdout(), "PKCS#12 bundle written to %s\n", cmd.Out)

	return nil
}
