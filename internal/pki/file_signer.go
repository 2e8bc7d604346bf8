package pki

import (
	"fmt"
	"os"
)

// FileSigner implements CASigner using a CA key and certificate stored as PEM files,
// for example a root produced by an earlier issuance run.
type FileSigner struct {
	*KeySigner
	caKeyPath  string
	caCertPath string
}

// NewFileSigner creates a new FileSigner from PEM-encoded key and certificate files.
// The caKeyPath must point to a PKCS#8 or PKCS#1 RSA private key.
// The caCertPath must point to a PEM-encoded X.509 CA certificate.
func NewFileSigner(caKeyPath, caCertPath string) (*FileSigner, error) {
	keyData, err := os.ReadFile(caKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CA key file: %w", ErrIO, err)
	}

	caKey, err := ParsePrivateKeyPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("CA key %s: %w", caKeyPath, err)
	}

	certData, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CA cert file: %w", ErrIO, err)
	}

	caCert, err := ParseCertificatePEM(certData)
	if err != nil {
		return nil, fmt.Errorf("CA cert %s: %w", caCertPath, err)
	}

	signer, err := NewKeySigner(caCert, caKey)
	if err != nil {
		return nil, err
	}

	return &FileSigner{
		KeySigner:  signer,
		caKeyPath:  caKeyPath,
		caCertPath: caCertPath,
	}, nil
}

// CertPath returns the path the CA certificate was loaded from.
func (s *FileSigner) CertPath() string {
	return s.caCertPath
}

// KeyPath returns the path the CA key was loaded from.
func (s *FileSigner) KeyPath() string {
	return s.caKeyPath
}
