package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/certchain/internal/logger"
	"github.com/wolfeidau/certchain/internal/pki"
)

type Globals struct {
	Debug   bool
	LogJSON bool
	Version string

	// Stdin and Stdout default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

func (g *Globals) stdin() io.Reader {
	if g.Stdin == nil {
		return os.Stdin
	}
	return g.Stdin
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// setupLogging configures the global logger and attaches it to ctx.
func setupLogging(ctx context.Context, globals *Globals) context.Context {
	log.Logger = logger.Setup(globals.Debug, globals.LogJSON)
	return log.Logger.WithContext(ctx)
}

// withRunID tags every log line of an issuance run with a fresh identifier.
func withRunID(ctx context.Context) (context.Context, string) {
	runID := newRunID()
	l := zerolog.Ctx(ctx).With().Str("run_id", runID).Logger()
	return l.WithContext(ctx), runID
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// minKeyBits is the smallest RSA modulus accepted for generated keys.
const minKeyBits = 2048

// checkValidity rejects validity periods that would not produce a usable window.
func checkValidity(leafDays, rootDays int) error {
	if leafDays <= 0 {
		return fmt.Errorf("%w: leaf validity must be at least one day, got %d", pki.ErrConfig, leafDays)
	}
	if rootDays <= 0 {
		return fmt.Errorf("%w: root validity must be at least one day, got %d", pki.ErrConfig, rootDays)
	}
	return nil
}

func checkKeyBits(bits int) error {
	if bits < minKeyBits {
		return fmt.Errorf("%w: key size must be at least %d bits, got %d", pki.ErrConfig, minKeyBits, bits)
	}
	return nil
}
