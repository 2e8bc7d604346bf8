package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/issuer"
	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/policy"
)

// IssueFixedCmd issues a chain from an existing openssl.cnf and v3.ext,
// writing rootCA.* and leaf.* files.
type IssueFixedCmd struct {
	ConfigDir string        `help:"Directory containing openssl.cnf and v3.ext." default:"." type:"path"`
	OutputDir string        `help:"Directory to write certificates to." default:"." type:"path"`
	Days      int           `help:"Validity period for the leaf certificate in days." default:"3650"`
	RootDays  int           `help:"Validity period for the root certificate in days." default:"1024"`
	KeyBits   int           `help:"RSA key size, overrides default_bits from openssl.cnf."`
	Timeout   time.Duration `help:"Timeout for each key generation and signing step." default:"2m"`
	Base64    bool          `name:"base64" help:"Also write DER and base64 files."`
}

// Run executes the issue-fixed command
func (cmd *IssueFixedCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)
	ctx, runID := withRunID(ctx)

	if err := checkValidity(cmd.Days, cmd.RootDays); err != nil {
		return err
	}

	if cmd.KeyBits != 0 {
		if err := checkKeyBits(cmd.KeyBits); err != nil {
			return err
		}
	}

	cfgPath := filepath.Join(cmd.ConfigDir, policy.OpenSSLConfigFile)
	extPath := filepath.Join(cmd.ConfigDir, policy.ExtFileName)

	cfg, err := policy.LoadOpenSSLConfig(cfgPath)
	if err != nil {
		return err
	}

	if !cfg.CAExtensions {
		return fmt.Errorf("%w: %s: missing [ v3_ca ] section", pki.ErrConfig, cfgPath)
	}

	ext, err := policy.LoadExtFile(extPath)
	if err != nil {
		return err
	}

	req, err := fixedRequest(cfg, ext, cmd.Days, cmd.RootDays)
	if err != nil {
		return err
	}

	iss := issuer.New()
	iss.KeyBits = cfg.DefaultBits
	if cmd.KeyBits > 0 {
		iss.KeyBits = cmd.KeyBits
	}
	iss.StepTimeout = cmd.Timeout

	zerolog.Ctx(ctx).Info().
		Str("config", cfgPath).
		Str("extfile", extPath).
		Str("subject", cfg.Subject.Name().String()).
		Int("key_bits", iss.KeyBits).
		Msg("issuing certificate chain from configuration")

	res, err := iss.Run(ctx, req, issuer.RunOptions{
		OutputDir: cmd.OutputDir,
		Layout:    issuer.FixedLayout(),
		Encoded:   cmd.Base64,
		Overwrite: true,
	})
	if err != nil {
		return err
	}

	recordToLedger(ctx, cmd.OutputDir, res, runID, "")

	printIssueSummary(globals.stdout(), cmd.OutputDir, res, cmd.Base64)

	return nil
}

// fixedRequest builds the profiles for the fixed flow: the configuration's
// subject for both certificates, the extension file's policy for the leaf.
func fixedRequest(cfg *policy.OpenSSLConfig, ext *policy.ExtFile, leafDays, rootDays int) (issuer.IssueRequest, error) {
	if err := checkKeyBits(cfg.DefaultBits); err != nil {
		return issuer.IssueRequest{}, err
	}

	root := policy.Root(cfg.Subject, rootDays)
	root.SignatureAlgorithm = cfg.SignatureAlgorithm

	leaf := policy.Leaf(cfg.Subject, cfg.RequestDNSNames, leafDays)
	leaf.SignatureAlgorithm = cfg.SignatureAlgorithm
	leaf = ext.Apply(leaf)

	req := issuer.IssueRequest{Root: root, Leaf: leaf}

	if err := req.Root.Validate(); err != nil {
		return issuer.IssueRequest{}, fmt.Errorf("root profile: %w", err)
	}
	if err := req.Leaf.Validate(); err != nil {
		return issuer.IssueRequest{}, fmt.Errorf("leaf profile: %w", err)
	}

	return req, nil
}
