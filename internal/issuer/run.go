package issuer

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/artifact"
	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/policy"
)

// RunOptions controls where and how a chain is persisted.
type RunOptions struct {
	OutputDir string
	Layout    Layout

	// Encoded also writes DER files and their base64 text.
	Encoded bool

	// ReuseRoot signs the leaf with the root already present in OutputDir
	// instead of creating a new one.
	ReuseRoot bool

	// Overwrite allows existing files in OutputDir to be replaced.
	Overwrite bool

	// EmitConfig also writes the openssl configuration and extension file
	// describing the profiles that were signed.
	EmitConfig bool
}

// Result describes a persisted chain.
type Result struct {
	Chain *Chain
	Root  pki.Encoded
	Leaf  pki.Encoded

	// RootProfile and LeafProfile are the policies the chain was signed with.
	RootProfile policy.Profile
	LeafProfile policy.Profile

	// Paths lists every file moved into the output directory.
	Paths  []string
	Layout Layout
}

// Run issues a chain and writes it to opts.OutputDir. Files are staged in a
// temporary directory that is removed on every exit path; nothing reaches the
// output directory unless every step succeeds.
func (i *Issuer) Run(ctx context.Context, req IssueRequest, opts RunOptions) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	staging, err := artifact.NewStaging(opts.OutputDir, artifact.WithOverwrite(opts.Overwrite))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pki.ErrIO, err)
	}
	defer func() {
		if err := staging.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to clean up staging directory")
		}
	}()

	var chain *Chain

	if opts.ReuseRoot {
		paths := opts.Layout.In(opts.OutputDir)

		signer, err := pki.NewFileSigner(paths.RootKey, paths.RootCert)
		if err != nil {
			return nil, err
		}

		logger.Info().
			Str("path_cert", signer.CertPath()).
			Str("path_key", signer.KeyPath()).
			Msg("signing with existing root")

		chain, err = i.IssueLeaf(ctx, signer, req.Leaf, pki.NewSerialFile(paths.RootSerial))
		if err != nil {
			return nil, err
		}
	} else {
		serialPath, err := staging.Adopt(opts.Layout.RootSerial, 0644)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", pki.ErrIO, err)
		}

		req.Serials = pki.NewSerialFile(serialPath)

		chain, err = i.IssueChain(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		Chain:  chain,
		Root:   pki.EncodeCertificate(chain.Root),
		Leaf:   pki.EncodeCertificate(chain.Leaf),
		Layout: opts.Layout,

		RootProfile: req.Root,
		LeafProfile: req.Leaf,
	}

	if err := stageChain(staging, res, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", pki.ErrIO, err)
	}

	res.Paths, err = staging.Commit()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pki.ErrIO, err)
	}

	logger.Info().
		Str("output_dir", opts.OutputDir).
		Int("files", len(res.Paths)).
		Msg("chain written")

	return res, nil
}

type stagedFile struct {
	name string
	data []byte
	perm fs.FileMode
}

func stageChain(staging *artifact.Staging, res *Result, opts RunOptions) error {
	chain := res.Chain
	l := opts.Layout

	leafKeyPEM, err := pki.MarshalPrivateKeyPEM(chain.LeafKey)
	if err != nil {
		return err
	}

	files := []stagedFile{
		{l.LeafKey, leafKeyPEM, 0600},
		{l.LeafCSR, pki.CertificateRequestPEM(chain.LeafCSR), 0644},
		{l.LeafCert, pki.CertificatePEM(chain.Leaf), 0644},
	}

	if !opts.ReuseRoot {
		rootKeyPEM, err := pki.MarshalPrivateKeyPEM(chain.RootKey)
		if err != nil {
			return err
		}

		files = append(files,
			stagedFile{l.RootKey, rootKeyPEM, 0600},
			stagedFile{l.RootCert, pki.CertificatePEM(chain.Root), 0644},
		)
	}

	if opts.Encoded {
		files = append(files,
			stagedFile{l.LeafDER, res.Leaf.DER, 0644},
			stagedFile{l.LeafBase64, []byte(res.Leaf.Base64), 0644},
			stagedFile{l.RootDER, res.Root.DER, 0644},
			stagedFile{l.RootBase64, []byte(res.Root.Base64), 0644},
		)
	}

	if opts.EmitConfig {
		bits := chain.LeafKey.N.BitLen()

		cnf, err := policy.RenderConfig(res.RootProfile, res.LeafProfile, bits)
		if err != nil {
			return err
		}

		ext, err := policy.RenderExtFile(res.LeafProfile)
		if err != nil {
			return err
		}

		files = append(files,
			stagedFile{l.Config, []byte(cnf), 0644},
			stagedFile{l.ExtFile, []byte(ext), 0644},
		)
	}

	for _, f := range files {
		if err := staging.WriteFile(f.name, f.data, f.perm); err != nil {
			return err
		}
	}

	return nil
}
