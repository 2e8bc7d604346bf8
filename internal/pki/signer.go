package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// CASigner signs certificate templates with a CA key.
// Implementations include KeySigner (in-memory root) and FileSigner (root loaded from disk).
type CASigner interface {
	// SignCertificate signs a certificate template and returns the DER-encoded certificate bytes.
	// The template must be fully populated, including PublicKey.
	SignCertificate(template *x509.Certificate) ([]byte, error)

	// GetCACertificate returns the CA certificate used as the issuer.
	GetCACertificate() (*x509.Certificate, error)
}

// KeySigner implements CASigner with a CA key held in memory.
type KeySigner struct {
	caKey  *rsa.PrivateKey
	caCert *x509.Certificate
}

// NewKeySigner creates a signer for a CA certificate and its matching key.
func NewKeySigner(caCert *x509.Certificate, caKey *rsa.PrivateKey) (*KeySigner, error) {
	if err := VerifyKeyPair(caCert, caKey); err != nil {
		return nil, fmt.Errorf("CA key and certificate do not match: %w", err)
	}

	if !caCert.IsCA {
		return nil, fmt.Errorf("%w: certificate %q is not a CA", ErrConfig, caCert.Subject.String())
	}

	return &KeySigner{caKey: caKey, caCert: caCert}, nil
}

// SignCertificate signs a certificate template using the CA private key.
// Returns DER-encoded certificate bytes.
func (s *KeySigner) SignCertificate(template *x509.Certificate) ([]byte, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, s.caCert, template.PublicKey, s.caKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return der, nil
}

// GetCACertificate returns the CA certificate.
func (s *KeySigner) GetCACertificate() (*x509.Certificate, error) {
	return s.caCert, nil
}

// VerifyKeyPair checks that a certificate's public key matches a private key
func VerifyKeyPair(cert *x509.Certificate, key *rsa.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("%w: private key is nil", ErrConfig)
	}

	certPubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate public key is not RSA", ErrConfig)
	}

	if !key.PublicKey.Equal(certPubKey) {
		return fmt.Errorf("%w: public keys do not match", ErrConfig)
	}

	return nil
}
