package commands

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/policy"
	"github.com/wolfeidau/certchain/internal/store"
)

// InspectCmd prints a certificate's identity and validity window.
type InspectCmd struct {
	Path         string        `arg:"" help:"Path to a PEM certificate."`
	RotateWithin time.Duration `help:"Report rotation when the certificate expires within this window." default:"168h"`
	FailOnRotate bool          `help:"Exit non-zero when the certificate is missing, expired or due for rotation."`
}

// ErrRotationDue is returned by inspect --fail-on-rotate.
var ErrRotationDue = errors.New("certificate rotation due")

type certStatus string

const (
	statusValid   certStatus = "valid"
	statusRotate  certStatus = "rotate"
	statusExpired certStatus = "expired"
	statusMissing certStatus = "missing"
)

// rotationCheck is the state of one certificate relative to a rotation window.
type rotationCheck struct {
	Cert          *x509.Certificate
	Status        certStatus
	DaysRemaining int
}

func (c rotationCheck) due() bool {
	return c.Status != statusValid
}

// Run executes the inspect command
func (cmd *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogging(ctx, globals)

	out := globals.stdout()
	fmt.Fprintf(out, "Path:            %s\n", cmd.Path)

	cert, err := pki.LoadCertificate(cmd.Path)
	if err != nil {
		// a missing certificate is due for issuance when checking rotation
		if cmd.FailOnRotate && errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "Status:          %s\n", statusMissing)
			return fmt.Errorf("%w: %w", ErrRotationDue, err)
		}
		return err
	}

	check := checkRotation(cert, cmd.RotateWithin, time.Now())
	printRotationCheck(out, check)

	if cmd.FailOnRotate && check.due() {
		return fmt.Errorf("%w: %s is %s", ErrRotationDue, cmd.Path, check.Status)
	}

	return nil
}

// checkRotation reports whether cert is expired at now or expires within window.
func checkRotation(cert *x509.Certificate, window time.Duration, now time.Time) rotationCheck {
	remaining := cert.NotAfter.Sub(now)

	check := rotationCheck{
		Cert:          cert,
		Status:        statusValid,
		DaysRemaining: int(remaining.Hours() / 24),
	}

	switch {
	case remaining < 0:
		check.Status = statusExpired
	case remaining < window:
		check.Status = statusRotate
	}

	return check
}

func printRotationCheck(w io.Writer, c rotationCheck) {
	cert := c.Cert
	fmt.Fprintf(w, "Subject:         %s\n", cert.Subject.String())
	fmt.Fprintf(w, "Issuer:          %s\n", cert.Issuer.String())
	fmt.Fprintf(w, "Serial:          %s\n", strings.ToUpper(cert.SerialNumber.Text(16)))
	fmt.Fprintf(w, "Fingerprint:     %s\n", store.Fingerprint(cert.Raw))
	fmt.Fprintf(w, "CA:              %t\n", cert.IsCA)
	fmt.Fprintf(w, "Key usage:       %s\n", policy.FormatKeyUsage(cert.KeyUsage))
	if len(cert.DNSNames) > 0 {
		fmt.Fprintf(w, "DNS names:       %s\n", strings.Join(cert.DNSNames, ", "))
	}
	fmt.Fprintf(w, "Not before:      %s\n", cert.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(w, "Not after:       %s\n", cert.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(w, "Days remaining:  %d\n", c.DaysRemaining)
	fmt.Fprintf(w, "Status:          %s\n", c.Status)
}
