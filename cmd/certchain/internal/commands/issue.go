package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/issuer"
	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/policy"
	"github.com/wolfeidau/certchain/internal/store"
	"github.com/wolfeidau/certchain/internal/store/memory"
)

// IssueCmd issues a root CA and a leaf certificate for a domain.
type IssueCmd struct {
	Domain             string        `help:"The domain name for the leaf certificate." required:"" env:"CERTCHAIN_DOMAIN"`
	Country            string        `help:"Country Name (C)." default:"SG" env:"CERTCHAIN_COUNTRY"`
	State              string        `help:"State or Province Name (ST)." default:"Singapore" env:"CERTCHAIN_STATE"`
	Locality           string        `help:"Locality Name (L)." default:"Singapore" env:"CERTCHAIN_LOCALITY"`
	Organization       string        `help:"Organization Name (O)." default:"Erfi Corp" env:"CERTCHAIN_ORGANIZATION"`
	OrganizationalUnit string        `name:"organizational_unit" help:"Organizational Unit Name (OU)." default:"Erfi Proxy" env:"CERTCHAIN_ORGANIZATIONAL_UNIT"`
	Days               int           `help:"Validity period for the leaf certificate in days." default:"3650"`
	RootDays           int           `help:"Validity period for the root certificate in days." default:"1024"`
	KeyBits            int           `help:"RSA key size for generated keys." default:"4096"`
	OutputDir          string        `help:"Directory to write certificates to." default:"." type:"path" env:"CERTCHAIN_OUTPUT_DIR"`
	Timeout            time.Duration `help:"Timeout for each key generation and signing step." default:"2m"`
	ReuseRoot          bool          `help:"Sign the leaf with the root CA already in the output directory."`
	NoBase64           bool          `name:"no-base64" help:"Skip writing DER and base64 files."`
	EmitConfig         bool          `help:"Also write the equivalent openssl.cnf and v3.ext files."`
	DryRun             bool          `help:"Issue into a temporary directory and report what would be written without touching the output directory."`
}

// Run executes the issue command
func (cmd *IssueCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)
	ctx, runID := withRunID(ctx)

	domain, err := pki.NormalizeDomain(cmd.Domain)
	if err != nil {
		return err
	}

	if err := checkKeyBits(cmd.KeyBits); err != nil {
		return err
	}

	if err := checkValidity(cmd.Days, cmd.RootDays); err != nil {
		return err
	}

	if cmd.DryRun && cmd.ReuseRoot {
		return fmt.Errorf("%w: --dry-run cannot be combined with --reuse-root", pki.ErrConfig)
	}

	dn := pki.DistinguishedName{
		Country:            cmd.Country,
		State:              cmd.State,
		Locality:           cmd.Locality,
		Organization:       cmd.Organization,
		OrganizationalUnit: cmd.OrganizationalUnit,
		CommonName:         domain,
	}

	req := issuer.IssueRequest{
		Root: policy.Root(dn, cmd.RootDays),
		Leaf: policy.Leaf(dn, []string{domain}, cmd.Days),
	}

	iss := issuer.New()
	iss.KeyBits = cmd.KeyBits
	iss.StepTimeout = cmd.Timeout

	zerolog.Ctx(ctx).Info().
		Str("domain", domain).
		Str("output_dir", cmd.OutputDir).
		Bool("reuse_root", cmd.ReuseRoot).
		Bool("dry_run", cmd.DryRun).
		Msg("issuing certificate chain")

	outputDir := cmd.OutputDir
	if cmd.DryRun {
		outputDir, err = os.MkdirTemp("", "certchain-dry-run-*")
		if err != nil {
			return fmt.Errorf("%w: failed to create dry run directory: %w", pki.ErrIO, err)
		}
		defer os.RemoveAll(outputDir)
	}

	res, err := iss.Run(ctx, req, issuer.RunOptions{
		OutputDir:  outputDir,
		Layout:     issuer.PrefixedLayout(domain),
		Encoded:    !cmd.NoBase64,
		ReuseRoot:  cmd.ReuseRoot,
		Overwrite:  true,
		EmitConfig: cmd.EmitConfig,
	})
	if err != nil {
		return err
	}

	if cmd.DryRun {
		return cmd.reportDryRun(ctx, globals.stdout(), res, runID, domain)
	}

	recordToLedger(ctx, cmd.OutputDir, res, runID, domain)

	printIssueSummary(globals.stdout(), cmd.OutputDir, res, !cmd.NoBase64)

	return nil
}

func printIssueSummary(w io.Writer, dir string, res *issuer.Result, encoded bool) {
	paths := res.Layout.In(dir)

	if encoded {
		fmt.Fprintf(w, "Base64-encoded DER content written to %s:\n%s\n\n", paths.LeafBase64, res.Leaf.Base64)
		fmt.Fprintf(w, "Base64-encoded DER content written to %s:\n%s\n\n", paths.RootBase64, res.Root.Base64)
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "Certificate chain issued")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "\nSubject:    %s\n", res.Chain.Leaf.Subject.String())
	fmt.Fprintf(w, "DNS names:  %s\n", strings.Join(res.Chain.Leaf.DNSNames, ", "))
	fmt.Fprintf(w, "Serial:     %s\n", strings.ToUpper(res.Chain.Leaf.SerialNumber.Text(16)))
	fmt.Fprintf(w, "Not after:  %s\n\n", res.Chain.Leaf.NotAfter.Format(time.RFC3339))

	fmt.Fprintln(w, "Files written:")
	for _, p := range res.Paths {
		fmt.Fprintf(w, "  %s\n", filepath.Base(p))
	}

	if encoded {
		fmt.Fprintf(w, "\nLeaf Certificate Base64 DER written to %s\n", paths.LeafBase64)
		fmt.Fprintf(w, "Root CA Certificate Base64 DER written to %s\n", paths.RootBase64)
	}
}

// reportDryRun records the run in an in-memory ledger and prints the files
// and ledger rows a real run would have produced.
func (cmd *IssueCmd) reportDryRun(ctx context.Context, w io.Writer, res *issuer.Result, runID, domain string) error {
	certStore := memory.NewCertificateStore()

	if err := recordChain(ctx, certStore, res, runID, domain); err != nil {
		return err
	}

	certs, err := certStore.List(ctx, store.ListCertificatesOptions{IncludeExpired: true})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Dry run: nothing was written to %s.\n\n", cmd.OutputDir)
	fmt.Fprintln(w, "Files that would be written:")
	for _, p := range res.Paths {
		fmt.Fprintf(w, "  %s\n", filepath.Join(cmd.OutputDir, filepath.Base(p)))
	}
	fmt.Fprintln(w)

	return printCertificates(w, certs)
}
