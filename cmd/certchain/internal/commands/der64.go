package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/pki"
)

// Der64Cmd converts a PEM certificate to DER and prints it base64 encoded.
type Der64Cmd struct {
	Pem string `help:"Path to the PEM certificate. Prompted for when omitted."`
	Der string `help:"Path to write the DER certificate to. Prompted for when omitted."`
}

// Run executes the der64 command
func (cmd *Der64Cmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)

	in := bufio.NewReader(globals.stdin())
	out := globals.stdout()

	pemPath := cmd.Pem
	if pemPath == "" {
		p, err := prompt(in, out, "Enter the path to the PEM file: ")
		if err != nil {
			return err
		}
		pemPath = p
	}

	derPath := cmd.Der
	if derPath == "" {
		p, err := prompt(in, out, "Enter the path to the DER file: ")
		if err != nil {
			return err
		}
		derPath = p
	}

	if pemPath == "" {
		return fmt.Errorf("%w: a PEM file path is required", pki.ErrConfig)
	}

	var (
		encoded string
		err     error
	)
	if derPath == "" {
		encoded, err = pki.ConvertAndEncode(pemPath)
	} else {
		encoded, err = pki.ConvertFile(pemPath, derPath)
	}
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().
		Str("pem", pemPath).
		Str("der", derPath).
		Int("length", len(encoded)).
		Msg("certificate encoded")

	fmt.Fprintln(out, encoded)

	return nil
}

// prompt writes label and reads one line. End of input yields an empty answer.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)

	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: failed to read input: %w", pki.ErrIO, err)
	}

	return strings.TrimSpace(line), nil
}
