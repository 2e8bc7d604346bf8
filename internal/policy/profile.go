package policy

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/wolfeidau/certchain/internal/pki"
)

// Validity defaults in days.
const (
	DefaultRootDays = 1024
	DefaultLeafDays = 3650
)

// Key usages applied when a profile does not override them.
const (
	RootKeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	LeafKeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment |
		x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment
)

// Profile is the structured signing policy for one certificate: who it names,
// whether it is a CA, what its key may be used for and how long it is valid.
type Profile struct {
	Subject            pki.DistinguishedName
	DNSNames           []string
	IPAddresses        []net.IP
	IsCA               bool
	KeyUsage           x509.KeyUsage
	Days               int
	SignatureAlgorithm x509.SignatureAlgorithm
}

// Root returns the self-signed CA profile for dn, valid for days.
func Root(dn pki.DistinguishedName, days int) Profile {
	return Profile{
		Subject:            dn,
		IsCA:               true,
		KeyUsage:           RootKeyUsage,
		Days:               days,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
}

// Leaf returns the end-entity profile for dn. When dnsNames is empty the
// common name is used as the only subject alternative name.
func Leaf(dn pki.DistinguishedName, dnsNames []string, days int) Profile {
	if len(dnsNames) == 0 && dn.CommonName != "" {
		dnsNames = []string{dn.CommonName}
	}

	return Profile{
		Subject:            dn,
		DNSNames:           dnsNames,
		IsCA:               false,
		KeyUsage:           LeafKeyUsage,
		Days:               days,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
}

// Validate checks the subject, validity window and subject alternative names.
func (p Profile) Validate() error {
	if err := p.Subject.Validate(); err != nil {
		return err
	}

	if p.Days <= 0 {
		return fmt.Errorf("%w: validity must be at least one day, got %d", pki.ErrConfig, p.Days)
	}

	if p.IsCA && p.KeyUsage&x509.KeyUsageCertSign == 0 {
		return fmt.Errorf("%w: CA profile must allow certificate signing", pki.ErrConfig)
	}

	if !p.IsCA && len(p.DNSNames) == 0 && len(p.IPAddresses) == 0 {
		return fmt.Errorf("%w: leaf profile requires at least one subject alternative name", pki.ErrConfig)
	}

	for _, name := range p.DNSNames {
		if _, err := pki.NormalizeDomain(name); err != nil {
			return err
		}
	}

	return nil
}

// NotAfter returns the end of the validity window for a certificate issued at now.
func (p Profile) NotAfter(now time.Time) time.Time {
	return now.AddDate(0, 0, p.Days)
}

// Template builds the certificate template for this profile. Key identifiers
// are left to the caller since they depend on the issuer.
func (p Profile) Template(serial *big.Int, pub crypto.PublicKey, now time.Time) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          serial,
		Subject:               p.Subject.Name(),
		NotBefore:             now,
		NotAfter:              p.NotAfter(now),
		KeyUsage:              p.KeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  p.IsCA,
		DNSNames:              p.DNSNames,
		IPAddresses:           p.IPAddresses,
		SignatureAlgorithm:    p.SignatureAlgorithm,
		PublicKey:             pub,
	}
}

// SignatureAlgorithmFor maps an openssl digest name to the RSA signature algorithm.
func SignatureAlgorithmFor(digest string) (x509.SignatureAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(digest)) {
	case "", "sha256", "default":
		return x509.SHA256WithRSA, nil
	case "sha384":
		return x509.SHA384WithRSA, nil
	case "sha512":
		return x509.SHA512WithRSA, nil
	default:
		return x509.UnknownSignatureAlgorithm, fmt.Errorf("%w: unsupported digest %q", pki.ErrConfig, digest)
	}
}

func digestName(alg x509.SignatureAlgorithm) string {
	switch alg {
	case x509.SHA384WithRSA:
		return "sha384"
	case x509.SHA512WithRSA:
		return "sha512"
	default:
		return "sha256"
	}
}
