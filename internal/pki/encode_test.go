package pki

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertAndEncode(t *testing.T) {
	dir := t.TempDir()
	cert := newTestCert(t, newTestKey(t), true)
	pemPath := writeFile(t, dir, "leaf.pem", CertificatePEM(cert))

	encoded, err := ConvertAndEncode(pemPath)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cert.Raw), encoded)
	assert.NotContains(t, encoded, "\n")

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, cert.Raw, decoded)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	cert := newTestCert(t, newTestKey(t), false)
	pemPath := writeFile(t, dir, "leaf.pem", CertificatePEM(cert))
	derPath := filepath.Join(dir, "leaf.der")

	encoded, err := ConvertFile(pemPath, derPath)
	require.NoError(t, err)

	der, err := os.ReadFile(derPath)
	require.NoError(t, err)
	assert.Equal(t, cert.Raw, der)

	info, err := os.Stat(derPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	parsed, err := DecodeBase64Certificate(encoded)
	require.NoError(t, err)
	assert.Equal(t, cert.Subject.String(), parsed.Subject.String())
	assert.Equal(t, cert.Issuer.String(), parsed.Issuer.String())
	assert.Equal(t, 0, cert.SerialNumber.Cmp(parsed.SerialNumber))
	assert.True(t, cert.NotBefore.Equal(parsed.NotBefore))
	assert.True(t, cert.NotAfter.Equal(parsed.NotAfter))
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	cert := newTestCert(t, newTestKey(t), false)
	pemPath := writeFile(t, dir, "leaf.pem", CertificatePEM(cert))

	t.Run("missing pem is an io error", func(t *testing.T) {
		_, err := ConvertAndEncode(filepath.Join(dir, "missing.pem"))
		require.ErrorIs(t, err, ErrIO)
	})

	t.Run("non pem input is a decode error", func(t *testing.T) {
		path := writeFile(t, dir, "junk.pem", []byte("hello world"))
		_, err := ConvertAndEncode(path)
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("private key is a decode error", func(t *testing.T) {
		keyPEM, err := MarshalPrivateKeyPEM(newTestKey(t))
		require.NoError(t, err)
		path := writeFile(t, dir, "leaf.key", keyPEM)

		_, err = ConvertFile(path, filepath.Join(dir, "leaf.der"))
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("unwritable der path is an io error", func(t *testing.T) {
		_, err := ConvertFile(pemPath, filepath.Join(dir, "missing", "leaf.der"))
		require.ErrorIs(t, err, ErrIO)
	})
}

func TestDecodeBase64Certificate(t *testing.T) {
	cert := newTestCert(t, newTestKey(t), false)
	enc := EncodeCertificate(cert)

	t.Run("wrapped text", func(t *testing.T) {
		var wrapped strings.Builder
		for i := 0; i < len(enc.Base64); i += 64 {
			end := min(i+64, len(enc.Base64))
			wrapped.WriteString(enc.Base64[i:end])
			wrapped.WriteString("\n")
		}

		parsed, err := DecodeBase64Certificate("  " + wrapped.String())
		require.NoError(t, err)
		assert.Equal(t, enc.DER, parsed.Raw)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := DecodeBase64Certificate("!!!")
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("not a certificate", func(t *testing.T) {
		_, err := DecodeBase64Certificate(base64.StdEncoding.EncodeToString([]byte("nope")))
		require.ErrorIs(t, err, ErrDecode)
	})
}
