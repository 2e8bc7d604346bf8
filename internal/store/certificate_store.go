package store

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"time"

	"github.com/mr-tron/base58"
)

// Role identifies a certificate's position in an issued chain
type Role string

const (
	RoleRoot Role = "root"
	RoleLeaf Role = "leaf"
)

// CertMetadata represents metadata about an issued certificate
type CertMetadata struct {
	SerialNumber string    `json:"serial_number"`
	Role         Role      `json:"role"`
	Domain       string    `json:"domain,omitempty"`
	Fingerprint  string    `json:"fingerprint"`
	SubjectDN    string    `json:"subject_dn"`
	IssuerDN     string    `json:"issuer_dn"`
	IsCA         bool      `json:"is_ca"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RunID        string    `json:"run_id,omitempty"`
	Path         string    `json:"path,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// Expired reports whether the certificate is past its validity window at t.
func (c *CertMetadata) Expired(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// CertificateStore records the certificates issued into an output directory
type CertificateStore interface {
	// Get retrieves certificate metadata by fingerprint
	Get(ctx context.Context, fingerprint string) (*CertMetadata, error)

	// GetBySerial retrieves certificates with the given hex serial number.
	// Serials are only unique per issuing root, so more than one may match.
	GetBySerial(ctx context.Context, serialNumber string) ([]*CertMetadata, error)

	// Register stores certificate metadata
	Register(ctx context.Context, cert *CertMetadata) error

	// List returns registered certificates ordered by issue time
	List(ctx context.Context, opts ListCertificatesOptions) ([]*CertMetadata, error)
}

// ListCertificatesOptions specifies filters for listing certificates
type ListCertificatesOptions struct {
	Domain         string // Filter by domain (empty = all)
	Role           Role   // Filter by role (empty = all)
	IncludeExpired bool   // Include expired certs (default: false)
	Limit          int    // Max results (0 = no limit)
}

// Match reports whether cert passes the filters at time now.
func (o ListCertificatesOptions) Match(cert *CertMetadata, now time.Time) bool {
	if o.Domain != "" && cert.Domain != o.Domain {
		return false
	}
	if o.Role != "" && cert.Role != o.Role {
		return false
	}
	if !o.IncludeExpired && cert.Expired(now) {
		return false
	}
	return true
}

// Errors
var (
	ErrCertNotFound      = errors.New("certificate not found")
	ErrCertAlreadyExists = errors.New("certificate already exists")
)

// Fingerprint returns the base58 encoded SHA-256 of a certificate's DER bytes
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base58.Encode(sum[:])
}

// NewCertMetadataFromX509 creates CertMetadata from an X.509 certificate
func NewCertMetadataFromX509(cert *x509.Certificate, role Role) *CertMetadata {
	domain := cert.Subject.CommonName
	if len(cert.DNSNames) > 0 {
		domain = cert.DNSNames[0]
	}

	return &CertMetadata{
		SerialNumber: cert.SerialNumber.Text(16),
		Role:         role,
		Domain:       domain,
		Fingerprint:  Fingerprint(cert.Raw),
		SubjectDN:    cert.Subject.String(),
		IssuerDN:     cert.Issuer.String(),
		IsCA:         cert.IsCA,
		IssuedAt:     cert.NotBefore,
		ExpiresAt:    cert.NotAfter,
	}
}
