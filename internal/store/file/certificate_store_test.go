package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/certchain/internal/store"
)

func TestCertificateStore_MissingLedgerIsEmpty(t *testing.T) {
	st := NewCertificateStore(t.TempDir())

	certs, err := st.List(context.Background(), store.ListCertificatesOptions{IncludeExpired: true})
	require.NoError(t, err)
	assert.Empty(t, certs)

	_, err = os.Stat(st.Path())
	assert.True(t, os.IsNotExist(err), "listing must not create the ledger")
}

func TestCertificateStore_RegisterPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := NewCertificateStore(dir)
	require.NoError(t, st.Register(ctx, &store.CertMetadata{
		SerialNumber: "1A2B",
		Role:         store.RoleLeaf,
		Domain:       "api.example.com",
		Fingerprint:  "fp-leaf",
		SubjectDN:    "CN=api.example.com",
		IssuedAt:     issued,
		ExpiresAt:    issued.AddDate(10, 0, 0),
		RunID:        "run-1",
	}))

	info, err := os.Stat(filepath.Join(dir, LedgerFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, LedgerFile+".tmp"))
	assert.True(t, os.IsNotExist(err))

	// a fresh store reads what the first one wrote
	reopened := NewCertificateStore(dir)
	cert, err := reopened.Get(ctx, "fp-leaf")
	require.NoError(t, err)
	assert.Equal(t, "1A2B", cert.SerialNumber)
	assert.Equal(t, "run-1", cert.RunID)
	assert.True(t, issued.Equal(cert.IssuedAt))

	bySerial, err := reopened.GetBySerial(ctx, "1A2B")
	require.NoError(t, err)
	require.Len(t, bySerial, 1)
}

func TestCertificateStore_Duplicate(t *testing.T) {
	st := NewCertificateStore(t.TempDir())
	ctx := context.Background()

	cert := &store.CertMetadata{Fingerprint: "fp", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, st.Register(ctx, cert))
	require.ErrorIs(t, st.Register(ctx, cert), store.ErrCertAlreadyExists)
}

func TestCertificateStore_NotFound(t *testing.T) {
	st := NewCertificateStore(t.TempDir())
	ctx := context.Background()

	_, err := st.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrCertNotFound)

	_, err = st.GetBySerial(ctx, "FF")
	require.ErrorIs(t, err, store.ErrCertNotFound)
}

func TestCertificateStore_List(t *testing.T) {
	st := NewCertificateStore(t.TempDir())
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	require.NoError(t, st.Register(ctx, &store.CertMetadata{Fingerprint: "leaf", Role: store.RoleLeaf, IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, st.Register(ctx, &store.CertMetadata{Fingerprint: "root", Role: store.RoleRoot, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, st.Register(ctx, &store.CertMetadata{Fingerprint: "old", Role: store.RoleLeaf, IssuedAt: now.Add(-72 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))

	certs, err := st.List(ctx, store.ListCertificatesOptions{})
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "root", certs[0].Fingerprint)
	assert.Equal(t, "leaf", certs[1].Fingerprint)

	certs, err = st.List(ctx, store.ListCertificatesOptions{Role: store.RoleLeaf, IncludeExpired: true})
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "old", certs[0].Fingerprint)
}

func TestCertificateStore_CorruptLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFile), []byte("{not json"), 0600))

	_, err := NewCertificateStore(dir).List(context.Background(), store.ListCertificatesOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse ledger")
}
