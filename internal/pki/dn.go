package pki

import (
	"crypto/x509/pkix"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// DistinguishedName identifies the subject of both certificates in a chain.
type DistinguishedName struct {
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
	CommonName         string
}

// Name converts the DN into the pkix form used in certificate templates.
// Empty attributes are omitted.
func (dn DistinguishedName) Name() pkix.Name {
	name := pkix.Name{CommonName: dn.CommonName}
	if dn.Country != "" {
		name.Country = []string{dn.Country}
	}
	if dn.State != "" {
		name.Province = []string{dn.State}
	}
	if dn.Locality != "" {
		name.Locality = []string{dn.Locality}
	}
	if dn.Organization != "" {
		name.Organization = []string{dn.Organization}
	}
	if dn.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{dn.OrganizationalUnit}
	}
	return name
}

// Validate rejects DNs without a common name and attribute values that
// contain control characters or section brackets.
func (dn DistinguishedName) Validate() error {
	if strings.TrimSpace(dn.CommonName) == "" {
		return fmt.Errorf("%w: common name is required", ErrConfig)
	}

	fields := []struct {
		name, value string
	}{
		{"country", dn.Country},
		{"state", dn.State},
		{"locality", dn.Locality},
		{"organization", dn.Organization},
		{"organizational_unit", dn.OrganizationalUnit},
		{"common_name", dn.CommonName},
	}

	for _, f := range fields {
		if strings.ContainsAny(f.value, "[]") || strings.ContainsFunc(f.value, unicode.IsControl) {
			return fmt.Errorf("%w: %s contains invalid characters: %q", ErrConfig, f.name, f.value)
		}
	}

	if dn.Country != "" && len(dn.Country) != 2 {
		return fmt.Errorf("%w: country must be a two letter code: %q", ErrConfig, dn.Country)
	}

	return nil
}

// NormalizeDomain validates a DNS name and returns its lower-case ASCII form.
// Internationalized names are converted to punycode.
func NormalizeDomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return "", fmt.Errorf("%w: domain is required", ErrConfig)
	}

	// wildcard SANs are valid for a leaf; validate the remainder
	rest, wildcard := strings.CutPrefix(domain, "*.")

	ascii, err := idna.Lookup.ToASCII(rest)
	if err != nil {
		return "", fmt.Errorf("%w: invalid domain %q: %w", ErrConfig, domain, err)
	}

	if wildcard {
		ascii = "*." + ascii
	}

	return ascii, nil
}

// Subdomain returns the leftmost label of a domain, used to prefix output files.
// A wildcard label is spelled out so file names never contain a glob character.
func Subdomain(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	if label == "*" {
		return "wildcard"
	}
	return label
}
