// Package file stores the issuance ledger as a JSON document in the output directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/certchain/internal/store"
)

// LedgerFile is the name of the ledger document inside the output directory.
const LedgerFile = "issued.json"

// ledger is the on-disk document.
type ledger struct {
	Version      int                   `json:"version"`
	Certificates []*store.CertMetadata `json:"certificates"`
}

// CertificateStore persists certificate metadata to a JSON file. Writes are
// atomic: the document is written to a temp file and renamed over the old one.
type CertificateStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewCertificateStore returns a store backed by dir/issued.json. The file is
// created on the first Register.
func NewCertificateStore(dir string) *CertificateStore {
	return &CertificateStore{
		path: filepath.Join(dir, LedgerFile),
		now:  time.Now,
	}
}

// Path returns the ledger file path.
func (s *CertificateStore) Path() string {
	return s.path
}

// Get retrieves certificate metadata by fingerprint
func (s *CertificateStore) Get(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, cert := range doc.Certificates {
		if cert.Fingerprint == fingerprint {
			return cert, nil
		}
	}

	return nil, store.ErrCertNotFound
}

// GetBySerial retrieves certificates with the given serial number
func (s *CertificateStore) GetBySerial(ctx context.Context, serialNumber string) ([]*store.CertMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	var result []*store.CertMetadata
	for _, cert := range doc.Certificates {
		if cert.SerialNumber == serialNumber {
			result = append(result, cert)
		}
	}

	if len(result) == 0 {
		return nil, store.ErrCertNotFound
	}

	return result, nil
}

// Register appends certificate metadata to the ledger
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	for _, existing := range doc.Certificates {
		if existing.Fingerprint == cert.Fingerprint {
			return store.ErrCertAlreadyExists
		}
	}

	c := *cert
	doc.Certificates = append(doc.Certificates, &c)

	if err := s.save(doc); err != nil {
		return err
	}

	log.Debug().
		Str("path", s.path).
		Str("fingerprint", cert.Fingerprint).
		Str("role", string(cert.Role)).
		Msg("certificate registered")

	return nil
}

// List returns registered certificates ordered by issue time
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := []*store.CertMetadata{}
	for _, cert := range doc.Certificates {
		if opts.Match(cert, now) {
			result = append(result, cert)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].IssuedAt.Before(result[j].IssuedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// load reads the ledger; a missing file is an empty ledger.
func (s *CertificateStore) load() (*ledger, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &ledger{Version: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var doc ledger
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}

	return &doc, nil
}

// save writes the ledger atomically.
func (s *CertificateStore) save(doc *ledger) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	// Write to temp file first
	tempPath := s.path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	return nil
}
