package commands

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/issuer"
	"github.com/wolfeidau/certchain/internal/store"
	"github.com/wolfeidau/certchain/internal/store/file"
)

// recordChain registers the root and leaf of a committed run in the output
// directory's ledger. A root that is already registered is skipped.
func recordChain(ctx context.Context, certStore store.CertificateStore, res *issuer.Result, runID, domain string) error {
	paths := res.Layout

	entries := []struct {
		cert *x509.Certificate
		role store.Role
		path string
	}{
		{res.Chain.Root, store.RoleRoot, paths.RootCert},
		{res.Chain.Leaf, store.RoleLeaf, paths.LeafCert},
	}

	for _, e := range entries {
		meta := store.NewCertMetadataFromX509(e.cert, e.role)
		meta.RunID = runID
		meta.Path = e.path
		if domain != "" {
			meta.Domain = domain
		}

		err := certStore.Register(ctx, meta)
		if errors.Is(err, store.ErrCertAlreadyExists) && e.role == store.RoleRoot {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to register %s certificate: %w", e.role, err)
		}
	}

	return nil
}

// recordToLedger writes the run to dir's ledger. Failures are logged rather
// than returned since the chain itself is already on disk.
func recordToLedger(ctx context.Context, dir string, res *issuer.Result, runID, domain string) {
	certStore := file.NewCertificateStore(dir)

	if err := recordChain(ctx, certStore, res, runID, domain); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", certStore.Path()).Msg("failed to update issuance ledger")
		return
	}

	zerolog.Ctx(ctx).Debug().Str("path", certStore.Path()).Msg("issuance ledger updated")
}
