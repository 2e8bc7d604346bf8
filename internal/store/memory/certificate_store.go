package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfeidau/certchain/internal/store"
)

// CertificateStore is an in-memory implementation of CertificateStore for dry runs and testing
type CertificateStore struct {
	mu            sync.RWMutex
	certs         map[string]*store.CertMetadata   // indexed by fingerprint
	certsBySerial map[string][]*store.CertMetadata // indexed by serial number
	now           func() time.Time
}

// NewCertificateStore creates a new in-memory certificate store
func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		certs:         make(map[string]*store.CertMetadata),
		certsBySerial: make(map[string][]*store.CertMetadata),
		now:           time.Now,
	}
}

// Get retrieves certificate metadata by fingerprint
func (s *CertificateStore) Get(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certs[fingerprint]
	if !exists {
		return nil, store.ErrCertNotFound
	}

	// Return a copy to avoid external modifications
	return copyCert(cert), nil
}

// GetBySerial retrieves certificates with the given serial number
func (s *CertificateStore) GetBySerial(ctx context.Context, serialNumber string) ([]*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	certs, exists := s.certsBySerial[serialNumber]
	if !exists {
		return nil, store.ErrCertNotFound
	}

	result := make([]*store.CertMetadata, len(certs))
	for i, cert := range certs {
		result[i] = copyCert(cert)
	}

	return result, nil
}

// Register stores certificate metadata
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.Fingerprint]; exists {
		return store.ErrCertAlreadyExists
	}

	stored := copyCert(cert)

	s.certs[cert.Fingerprint] = stored
	s.certsBySerial[cert.SerialNumber] = append(s.certsBySerial[cert.SerialNumber], stored)

	return nil
}

// List returns registered certificates ordered by issue time
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	result := []*store.CertMetadata{}

	for _, cert := range s.certs {
		if !opts.Match(cert, now) {
			continue
		}
		result = append(result, copyCert(cert))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].Fingerprint < result[j].Fingerprint
		}
		return result[i].IssuedAt.Before(result[j].IssuedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// copyCert creates a copy of a certificate metadata
func copyCert(cert *store.CertMetadata) *store.CertMetadata {
	c := *cert
	return &c
}
