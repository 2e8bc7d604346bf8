// Package artifact writes the files of an issuance run atomically: everything
// is staged in a temporary directory next to the destination and only moved
// into place once the whole run has succeeded.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
)

var (
	// ErrCommitted is returned when files are added to a staging area after Commit.
	ErrCommitted = errors.New("staging area already committed")

	// ErrFileExists is returned by Commit when a destination exists and overwriting is disabled.
	ErrFileExists = errors.New("destination file already exists")
)

// Staging is a temporary directory inside the output directory. It must be
// released with Close on every path, including after Commit.
type Staging struct {
	dir       string
	outputDir string
	files     map[string]fs.FileMode
	committed bool
	overwrite bool
}

// Option configures a Staging area.
type Option func(*Staging)

// WithOverwrite allows Commit to replace existing destination files.
func WithOverwrite(overwrite bool) Option {
	return func(s *Staging) {
		s.overwrite = overwrite
	}
}

// NewStaging creates a staging directory inside outputDir, creating outputDir if needed.
func NewStaging(outputDir string, opts ...Option) (*Staging, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	dir, err := os.MkdirTemp(outputDir, ".certchain-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	s := &Staging{
		dir:       dir,
		outputDir: outputDir,
		files:     make(map[string]fs.FileMode),
		overwrite: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	log.Debug().Str("dir", dir).Msg("staging directory created")

	return s, nil
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string {
	return s.dir
}

// WriteFile stages a file. name must be a plain file name.
func (s *Staging) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if s.committed {
		return ErrCommitted
	}

	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), data, perm); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}

	s.files[name] = perm

	return nil
}

// Adopt returns the staging path for name so another writer can create the
// file there; it is moved into place by Commit like any staged file.
func (s *Staging) Adopt(name string, perm fs.FileMode) (string, error) {
	if s.committed {
		return "", ErrCommitted
	}

	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	s.files[name] = perm

	return filepath.Join(s.dir, name), nil
}

// Files returns the staged file names in sorted order.
func (s *Staging) Files() []string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commit moves every staged file into the output directory and returns the
// destination paths. A failed rename leaves already moved files in place.
func (s *Staging) Commit() ([]string, error) {
	if s.committed {
		return nil, ErrCommitted
	}

	names := s.Files()

	if !s.overwrite {
		for _, name := range names {
			dest := filepath.Join(s.outputDir, name)
			if _, err := os.Stat(dest); err == nil {
				return nil, fmt.Errorf("%w: %s", ErrFileExists, dest)
			}
		}
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		dest := filepath.Join(s.outputDir, name)
		src := filepath.Join(s.dir, name)
		if err := os.Chmod(src, s.files[name]); err != nil {
			return paths, fmt.Errorf("failed to set permissions on %s: %w", name, err)
		}
		if err := os.Rename(src, dest); err != nil {
			return paths, fmt.Errorf("failed to move %s into place: %w", name, err)
		}
		paths = append(paths, dest)
	}

	s.committed = true

	return paths, nil
}

// Close removes the staging directory and anything left in it.
func (s *Staging) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove staging directory: %w", err)
	}
	return nil
}
