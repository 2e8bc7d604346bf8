package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/certchain/internal/store"
	"github.com/wolfeidau/certchain/internal/store/file"
)

// ListCmd prints the certificates recorded in an output directory's ledger.
type ListCmd struct {
	OutputDir      string `help:"Directory containing the issuance ledger." default:"." type:"path"`
	Domain         string `help:"Only list certificates for this domain."`
	Role           string `help:"Only list certificates with this role." enum:",root,leaf" default:""`
	IncludeExpired bool   `help:"Include expired certificates."`
	Limit          int    `help:"Maximum number of certificates to list (0 = no limit)." default:"0"`
}

// Run executes the list command
func (cmd *ListCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)

	certStore := file.NewCertificateStore(cmd.OutputDir)

	certs, err := certStore.List(ctx, store.ListCertificatesOptions{
		Domain:         cmd.Domain,
		Role:           store.Role(cmd.Role),
		IncludeExpired: cmd.IncludeExpired,
		Limit:          cmd.Limit,
	})
	if err != nil {
		return err
	}

	out := globals.stdout()

	if len(certs) == 0 {
		fmt.Fprintf(out, "No certificates found in %s.\n", certStore.Path())
		return nil
	}

	return printCertificates(out, certs)
}

func printCertificates(out io.Writer, certs []*store.CertMetadata) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tDOMAIN\tSERIAL\tFINGERPRINT\tISSUED\tEXPIRES\tPATH")
	for _, cert := range certs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			cert.Role,
			cert.Domain,
			cert.SerialNumber,
			cert.Fingerprint,
			cert.IssuedAt.Format(time.DateOnly),
			cert.ExpiresAt.Format(time.DateOnly),
			cert.Path,
		)
	}

	return w.Flush()
}
