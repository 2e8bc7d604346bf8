package pki

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// Encoded is the transport view of a certificate: its DER bytes and their
// base64 text (standard alphabet, no line wrapping).
type Encoded struct {
	DER    []byte
	Base64 string
}

// EncodeCertificate returns the DER and base64 forms of a certificate.
func EncodeCertificate(cert *x509.Certificate) Encoded {
	return Encoded{
		DER:    cert.Raw,
		Base64: base64.StdEncoding.EncodeToString(cert.Raw),
	}
}

// LoadCertificate reads and parses a PEM certificate file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read certificate: %w", ErrIO, err)
	}

	cert, err := ParseCertificatePEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cert, nil
}

// ConvertAndEncode converts the PEM certificate at pemPath to DER and
// returns the base64 encoding of the DER bytes.
func ConvertAndEncode(pemPath string) (string, error) {
	cert, err := LoadCertificate(pemPath)
	if err != nil {
		return "", err
	}

	return EncodeCertificate(cert).Base64, nil
}

// ConvertFile converts the PEM certificate at pemPath to DER, writes the DER
// bytes to derPath and returns their base64 encoding.
func ConvertFile(pemPath, derPath string) (string, error) {
	cert, err := LoadCertificate(pemPath)
	if err != nil {
		return "", err
	}

	enc := EncodeCertificate(cert)

	// #nosec G306 - certificates are public
	if err := os.WriteFile(derPath, enc.DER, 0644); err != nil {
		return "", fmt.Errorf("%w: failed to write DER file: %w", ErrIO, err)
	}

	return enc.Base64, nil
}

// DecodeBase64Certificate parses base64 DER text back into a certificate.
// Surrounding whitespace and line breaks are ignored.
func DecodeBase64Certificate(text string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", ErrDecode, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %w", ErrDecode, err)
	}

	return cert, nil
}
