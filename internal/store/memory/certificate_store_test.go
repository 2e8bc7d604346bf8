package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/certchain/internal/store"
)

func TestNewCertificateStore(t *testing.T) {
	store := NewCertificateStore()
	require.NotNil(t, store)
}

func TestCertificateStore_Register(t *testing.T) {
	t.Run("register new certificate", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := &store.CertMetadata{
			SerialNumber: "1234567890abcdef",
			Role:         store.RoleLeaf,
			Domain:       "api.example.com",
			Fingerprint:  "abc123def456",
			SubjectDN:    "CN=api.example.com",
			IssuedAt:     time.Now(),
			ExpiresAt:    time.Now().Add(365 * 24 * time.Hour),
		}

		err := st.Register(ctx, cert)
		require.NoError(t, err)
	})

	t.Run("register duplicate certificate returns error", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := &store.CertMetadata{
			SerialNumber: "1234567890abcdef",
			Role:         store.RoleLeaf,
			Fingerprint:  "abc123def456",
			IssuedAt:     time.Now(),
			ExpiresAt:    time.Now().Add(365 * 24 * time.Hour),
		}

		require.NoError(t, st.Register(ctx, cert))

		err := st.Register(ctx, cert)
		require.Error(t, err)
		require.Equal(t, store.ErrCertAlreadyExists, err)
	})

	t.Run("register certificate with description", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := &store.CertMetadata{
			SerialNumber: "1234567890abcdef",
			Role:         store.RoleRoot,
			Fingerprint:  "abc123def456",
			SubjectDN:    "CN=example.com",
			IssuedAt:     time.Now(),
			ExpiresAt:    time.Now().Add(365 * 24 * time.Hour),
			Description:  "Proxy trust anchor",
		}

		require.NoError(t, st.Register(ctx, cert))

		retrieved, err := st.Get(ctx, "abc123def456")
		require.NoError(t, err)
		require.Equal(t, "Proxy trust anchor", retrieved.Description)
	})
}

func TestCertificateStore_Get(t *testing.T) {
	t.Run("get existing certificate by fingerprint", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := &store.CertMetadata{
			SerialNumber: "01",
			Role:         store.RoleLeaf,
			Fingerprint:  "fp-1",
			IssuedAt:     time.Now(),
			ExpiresAt:    time.Now().Add(time.Hour),
		}
		require.NoError(t, st.Register(ctx, cert))

		retrieved, err := st.Get(ctx, "fp-1")
		require.NoError(t, err)
		require.Equal(t, "01", retrieved.SerialNumber)
		require.Equal(t, store.RoleLeaf, retrieved.Role)
	})

	t.Run("get non-existent certificate returns error", func(t *testing.T) {
		st := NewCertificateStore()

		_, err := st.Get(context.Background(), "missing")
		require.Equal(t, store.ErrCertNotFound, err)
	})

	t.Run("modifying returned certificate does not affect store", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		require.NoError(t, st.Register(ctx, &store.CertMetadata{
			SerialNumber: "01",
			Fingerprint:  "fp-1",
			Domain:       "example.com",
			ExpiresAt:    time.Now().Add(time.Hour),
		}))

		retrieved, err := st.Get(ctx, "fp-1")
		require.NoError(t, err)
		retrieved.Domain = "changed.example.com"

		again, err := st.Get(ctx, "fp-1")
		require.NoError(t, err)
		require.Equal(t, "example.com", again.Domain)
	})
}

func TestCertificateStore_GetBySerial(t *testing.T) {
	st := NewCertificateStore()
	ctx := context.Background()

	// serials are only unique per root
	require.NoError(t, st.Register(ctx, &store.CertMetadata{SerialNumber: "1000", Fingerprint: "fp-a", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, st.Register(ctx, &store.CertMetadata{SerialNumber: "1000", Fingerprint: "fp-b", ExpiresAt: time.Now().Add(time.Hour)}))

	certs, err := st.GetBySerial(ctx, "1000")
	require.NoError(t, err)
	require.Len(t, certs, 2)

	_, err = st.GetBySerial(ctx, "2000")
	require.Equal(t, store.ErrCertNotFound, err)
}

func TestCertificateStore_List(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	newStore := func(t *testing.T) *CertificateStore {
		st := NewCertificateStore()
		st.now = func() time.Time { return now }

		certs := []*store.CertMetadata{
			{SerialNumber: "03", Role: store.RoleLeaf, Domain: "b.example.com", Fingerprint: "fp-3", IssuedAt: now.Add(-1 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			{SerialNumber: "01", Role: store.RoleRoot, Domain: "a.example.com", Fingerprint: "fp-1", IssuedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			{SerialNumber: "02", Role: store.RoleLeaf, Domain: "a.example.com", Fingerprint: "fp-2", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			{SerialNumber: "04", Role: store.RoleLeaf, Domain: "a.example.com", Fingerprint: "fp-4", IssuedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour)},
		}
		for _, c := range certs {
			require.NoError(t, st.Register(ctx, c))
		}
		return st
	}

	t.Run("lists unexpired certificates in issue order", func(t *testing.T) {
		certs, err := newStore(t).List(ctx, store.ListCertificatesOptions{})
		require.NoError(t, err)
		require.Len(t, certs, 3)
		require.Equal(t, "fp-1", certs[0].Fingerprint)
		require.Equal(t, "fp-2", certs[1].Fingerprint)
		require.Equal(t, "fp-3", certs[2].Fingerprint)
	})

	t.Run("includes expired certificates when asked", func(t *testing.T) {
		certs, err := newStore(t).List(ctx, store.ListCertificatesOptions{IncludeExpired: true})
		require.NoError(t, err)
		require.Len(t, certs, 4)
		require.Equal(t, "fp-4", certs[0].Fingerprint)
	})

	t.Run("filters by domain and role", func(t *testing.T) {
		certs, err := newStore(t).List(ctx, store.ListCertificatesOptions{Domain: "a.example.com", Role: store.RoleLeaf})
		require.NoError(t, err)
		require.Len(t, certs, 1)
		require.Equal(t, "fp-2", certs[0].Fingerprint)
	})

	t.Run("applies limit", func(t *testing.T) {
		certs, err := newStore(t).List(ctx, store.ListCertificatesOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, certs, 2)
	})

	t.Run("empty store returns empty list", func(t *testing.T) {
		certs, err := NewCertificateStore().List(ctx, store.ListCertificatesOptions{})
		require.NoError(t, err)
		require.Empty(t, certs)
	})
}
