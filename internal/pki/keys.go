package pki

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505 - RFC 5280 key identifier method 1, not used for signatures
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
)

// DefaultKeyBits is the RSA modulus size for both root and leaf keys.
const DefaultKeyBits = 4096

// PEM block types written by this package.
const (
	BlockCertificate        = "CERTIFICATE"
	BlockCertificateRequest = "CERTIFICATE REQUEST"
	BlockPrivateKey         = "PRIVATE KEY"
	BlockRSAPrivateKey      = "RSA PRIVATE KEY"
)

// GenerateKey creates an RSA key pair. Key generation cannot be interrupted,
// so a cancelled context returns early and the pending key is discarded.
func GenerateKey(ctx context.Context, bits int) (*rsa.PrivateKey, error) {
	type result struct {
		key *rsa.PrivateKey
		err error
	}

	done := make(chan result, 1)
	go func() {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		done <- result{key: key, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: key generation aborted: %w", ErrSigning, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: failed to generate %d bit key: %w", ErrSigning, bits, res.err)
		}
		return res.key, nil
	}
}

// RandomSerial returns a random positive 128 bit serial number.
func RandomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate serial number: %w", ErrSigning, err)
	}
	// zero is not a valid serial
	return serial.Add(serial, big.NewInt(1)), nil
}

// SubjectKeyID computes the key identifier as the SHA-1 of the
// subjectPublicKey bit string (RFC 5280 section 4.2.1.2 method 1).
func SubjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	var info struct {
		Algorithm        pkix.AlgorithmIdentifier
		SubjectPublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spki, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	sum := sha1.Sum(info.SubjectPublicKey.Bytes) // #nosec G401
	return sum[:], nil
}

// MarshalPrivateKeyPEM encodes an RSA key as PKCS#8 PEM, the format
// written by current openssl genrsa.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: BlockPrivateKey, Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes an RSA private key in PKCS#8 or PKCS#1 PEM form.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode private key PEM", ErrDecode)
	}

	switch block.Type {
	case BlockRSAPrivateKey:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse private key: %w", ErrDecode, err)
		}
		return key, nil
	case BlockPrivateKey:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse private key: %w", ErrDecode, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is not RSA (got %T)", ErrDecode, parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrDecode, block.Type)
	}
}

// CertificatePEM encodes a certificate as PEM.
func CertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: BlockCertificate, Bytes: cert.Raw})
}

// CertificateRequestPEM encodes a CSR as PEM.
func CertificateRequestPEM(csr *x509.CertificateRequest) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: BlockCertificateRequest, Bytes: csr.Raw})
}

// ParseCertificatePEM decodes the first certificate in PEM data.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode certificate PEM", ErrDecode)
	}

	if block.Type != BlockCertificate {
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrDecode, block.Type)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %w", ErrDecode, err)
	}

	return cert, nil
}
