package pki

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testKeyBits = 2048

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := GenerateKey(context.Background(), testKeyBits)
	require.NoError(t, err)
	return key
}

// newTestCert self-signs a certificate for key.
func newTestCert(t *testing.T, key *rsa.PrivateKey, isCA bool) *x509.Certificate {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(4242),
		Subject:               pkix.Name{CommonName: "example.com", Organization: []string{"Erfi Corp"}},
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, 30),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		DNSNames:              []string{"example.com"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return cert
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}
