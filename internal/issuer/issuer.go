// Package issuer implements the root CA and leaf certificate issuance workflow.
package issuer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/certchain/internal/pki"
	"github.com/wolfeidau/certchain/internal/policy"
)

// DefaultStepTimeout bounds each key generation and signing step.
const DefaultStepTimeout = 2 * time.Minute

// Issuer creates certificate chains.
type Issuer struct {
	// KeyBits is the RSA modulus size for generated keys.
	KeyBits int

	// StepTimeout bounds each key generation and signing step.
	StepTimeout time.Duration

	// Now returns the issuance time.
	Now func() time.Time
}

// New returns an Issuer with 4096 bit keys and the default step timeout.
func New() *Issuer {
	return &Issuer{
		KeyBits:     pki.DefaultKeyBits,
		StepTimeout: DefaultStepTimeout,
		Now:         time.Now,
	}
}

// IssueRequest describes the chain to issue.
type IssueRequest struct {
	Root policy.Profile
	Leaf policy.Profile

	// Serials hands out the leaf serial number. When nil a random serial is used.
	Serials *pki.SerialFile
}

// NewIssueRequest builds the request for a root and a leaf that share dn, with
// domain as the leaf's subject alternative name. leafDays of zero uses the default.
func NewIssueRequest(dn pki.DistinguishedName, domain string, leafDays int) IssueRequest {
	if leafDays == 0 {
		leafDays = policy.DefaultLeafDays
	}

	return IssueRequest{
		Root: policy.Root(dn, policy.DefaultRootDays),
		Leaf: policy.Leaf(dn, []string{domain}, leafDays),
	}
}

// Chain is the result of an issuance run: the trust anchor and the end-entity
// certificate it signed.
type Chain struct {
	Root    *x509.Certificate
	RootKey *rsa.PrivateKey // nil when the root was loaded through a signer

	Leaf    *x509.Certificate
	LeafKey *rsa.PrivateKey
	LeafCSR *x509.CertificateRequest
}

// Verify checks that the leaf chains to the root for its first DNS name.
func (c *Chain) Verify(at time.Time) error {
	if err := c.Leaf.CheckSignatureFrom(c.Root); err != nil {
		return fmt.Errorf("%w: leaf is not signed by root: %w", pki.ErrSigning, err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(c.Root)

	opts := x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: at,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if len(c.Leaf.DNSNames) > 0 {
		opts.DNSName = c.Leaf.DNSNames[0]
	}

	if _, err := c.Leaf.Verify(opts); err != nil {
		return fmt.Errorf("%w: chain verification failed: %w", pki.ErrSigning, err)
	}

	return nil
}

// IssueChain generates a root key, self-signs the root certificate, generates
// a leaf key and CSR and signs the leaf with the root.
func (i *Issuer) IssueChain(ctx context.Context, req IssueRequest) (*Chain, error) {
	if err := req.Root.Validate(); err != nil {
		return nil, fmt.Errorf("root profile: %w", err)
	}
	if err := req.Leaf.Validate(); err != nil {
		return nil, fmt.Errorf("leaf profile: %w", err)
	}

	root, rootKey, err := i.CreateRoot(ctx, req.Root)
	if err != nil {
		return nil, err
	}

	signer, err := pki.NewKeySigner(root, rootKey)
	if err != nil {
		return nil, err
	}

	leaf, err := i.IssueLeaf(ctx, signer, req.Leaf, req.Serials)
	if err != nil {
		return nil, err
	}

	leaf.Root = root
	leaf.RootKey = rootKey

	return leaf, nil
}

// CreateRoot generates a key pair and a self-signed CA certificate for p.
func (i *Issuer) CreateRoot(ctx context.Context, p policy.Profile) (*x509.Certificate, *rsa.PrivateKey, error) {
	if !p.IsCA {
		return nil, nil, fmt.Errorf("%w: root profile is not a CA profile", pki.ErrConfig)
	}

	logger := zerolog.Ctx(ctx)

	key, err := step(ctx, i, "generate root key", func(ctx context.Context) (*rsa.PrivateKey, error) {
		return pki.GenerateKey(ctx, i.keyBits())
	})
	if err != nil {
		return nil, nil, err
	}

	serial, err := pki.RandomSerial()
	if err != nil {
		return nil, nil, err
	}

	ski, err := pki.SubjectKeyID(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", pki.ErrSigning, err)
	}

	template := p.Template(serial, &key.PublicKey, i.now())
	template.SubjectKeyId = ski
	template.AuthorityKeyId = ski

	root, err := step(ctx, i, "sign root certificate", func(ctx context.Context) (*x509.Certificate, error) {
		der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create root certificate: %w", pki.ErrSigning, err)
		}
		return x509.ParseCertificate(der)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info().
		Str("subject", root.Subject.String()).
		Str("serial_number", root.SerialNumber.Text(16)).
		Time("not_after", root.NotAfter).
		Msg("issued root certificate")

	return root, key, nil
}

// IssueLeaf generates a leaf key and CSR for p and signs it with signer. When
// serials is nil a random serial number is used.
func (i *Issuer) IssueLeaf(ctx context.Context, signer pki.CASigner, p policy.Profile, serials *pki.SerialFile) (*Chain, error) {
	if p.IsCA {
		return nil, fmt.Errorf("%w: leaf profile must not be a CA profile", pki.ErrConfig)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("leaf profile: %w", err)
	}

	logger := zerolog.Ctx(ctx)

	caCert, err := signer.GetCACertificate()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load CA certificate: %w", pki.ErrSigning, err)
	}

	key, err := step(ctx, i, "generate leaf key", func(ctx context.Context) (*rsa.PrivateKey, error) {
		return pki.GenerateKey(ctx, i.keyBits())
	})
	if err != nil {
		return nil, err
	}

	csr, err := step(ctx, i, "create leaf csr", func(ctx context.Context) (*x509.CertificateRequest, error) {
		return createCSR(p, key)
	})
	if err != nil {
		return nil, err
	}

	serial, err := nextSerial(ctx, serials)
	if err != nil {
		return nil, err
	}

	ski, err := pki.SubjectKeyID(csr.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pki.ErrSigning, err)
	}

	template := p.Template(serial, csr.PublicKey, i.now())
	template.Subject = csr.Subject
	template.DNSNames = csr.DNSNames
	template.IPAddresses = csr.IPAddresses
	template.SubjectKeyId = ski
	// set explicitly: when leaf and root share a subject x509 treats the
	// template as self-issued and would omit the authority key identifier
	template.AuthorityKeyId = caCert.SubjectKeyId

	leaf, err := step(ctx, i, "sign leaf certificate", func(ctx context.Context) (*x509.Certificate, error) {
		der, err := signer.SignCertificate(template)
		if err != nil {
			return nil, fmt.Errorf("failed to create leaf certificate: %w", err)
		}

		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse leaf certificate: %w", pki.ErrSigning, err)
		}

		if err := cert.CheckSignatureFrom(caCert); err != nil {
			return nil, fmt.Errorf("%w: leaf signature does not verify: %w", pki.ErrSigning, err)
		}

		return cert, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("subject", leaf.Subject.String()).
		Str("issuer", leaf.Issuer.String()).
		Strs("dns_names", leaf.DNSNames).
		Str("serial_number", leaf.SerialNumber.Text(16)).
		Time("not_after", leaf.NotAfter).
		Msg("issued leaf certificate")

	return &Chain{
		Root:    caCert,
		Leaf:    leaf,
		LeafKey: key,
		LeafCSR: csr,
	}, nil
}

func createCSR(p policy.Profile, key *rsa.PrivateKey) (*x509.CertificateRequest, error) {
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:            p.Subject.Name(),
		DNSNames:           p.DNSNames,
		IPAddresses:        p.IPAddresses,
		SignatureAlgorithm: p.SignatureAlgorithm,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create certificate request: %w", pki.ErrSigning, err)
	}

	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate request: %w", pki.ErrSigning, err)
	}

	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: certificate request signature invalid: %w", pki.ErrSigning, err)
	}

	return csr, nil
}

func nextSerial(ctx context.Context, serials *pki.SerialFile) (*big.Int, error) {
	if serials == nil {
		return pki.RandomSerial()
	}
	return serials.Next(ctx)
}

// step runs fn under the issuer's step timeout. fn keeps running in the
// background if the deadline passes; its result is discarded.
func step[T any](ctx context.Context, i *Issuer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, i.stepTimeout())
	defer cancel()

	type result struct {
		value T
		err   error
	}

	started := time.Now()
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value: value, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		res.err = fmt.Errorf("%w: %s: %w", pki.ErrSigning, name, ctx.Err())
	case res = <-done:
	}

	logger := zerolog.Ctx(ctx)
	if res.err != nil {
		logger.Error().Err(res.err).Str("step", name).Dur("duration", time.Since(started)).Msg("issuance step failed")
		if !errors.Is(res.err, pki.ErrSigning) && !errors.Is(res.err, pki.ErrIO) && !errors.Is(res.err, pki.ErrConfig) {
			res.err = fmt.Errorf("%w: %s: %w", pki.ErrSigning, name, res.err)
		}
		var zero T
		return zero, res.err
	}

	logger.Debug().Str("step", name).Dur("duration", time.Since(started)).Msg("issuance step completed")

	return res.value, nil
}

func (i *Issuer) keyBits() int {
	if i.KeyBits <= 0 {
		return pki.DefaultKeyBits
	}
	return i.KeyBits
}

func (i *Issuer) stepTimeout() time.Duration {
	if i.StepTimeout <= 0 {
		return DefaultStepTimeout
	}
	return i.StepTimeout
}

// now returns the issuance time truncated to the second precision certificates carry.
func (i *Issuer) now() time.Time {
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	return now().UTC().Truncate(time.Second)
}
