package pki

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

var errSerialLocked = errors.New("serial file is locked")

// SerialFile hands out certificate serial numbers for a CA. The file holds the
// last issued serial as hex, the format openssl writes for -CAcreateserial.
type SerialFile struct {
	Path string

	// LockTimeout bounds how long Next waits for another writer to release the lock.
	LockTimeout time.Duration

	// StaleLockAge is the age after which a lock file is assumed to belong to
	// a process that died while holding it, and is removed.
	StaleLockAge time.Duration
}

// DefaultStaleLockAge is far longer than a serial reservation ever holds the lock.
const DefaultStaleLockAge = 5 * time.Minute

// NewSerialFile returns a SerialFile stored at path.
func NewSerialFile(path string) *SerialFile {
	return &SerialFile{Path: path, LockTimeout: 30 * time.Second, StaleLockAge: DefaultStaleLockAge}
}

// Next reserves and returns the next serial number. An exclusive lock file is
// held while the counter is read, incremented and rewritten.
func (s *SerialFile) Next(ctx context.Context) (*big.Int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.read()
	if err != nil {
		return nil, err
	}

	next := new(big.Int).Add(current, big.NewInt(1))

	if err := s.write(next); err != nil {
		return nil, err
	}

	log.Debug().Str("path", s.Path).Str("serial", next.Text(16)).Msg("reserved serial number")

	return next, nil
}

// Current returns the last issued serial without reserving a new one.
// A missing file is reported as ErrIO wrapping os.ErrNotExist.
func (s *SerialFile) Current() (*big.Int, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read serial file: %w", ErrIO, err)
	}
	return parseSerial(data)
}

func (s *SerialFile) lock(ctx context.Context) (func(), error) {
	lockPath := s.Path + ".lock"

	acquire := func() (*os.File, error) {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			return f, nil
		}
		if errors.Is(err, os.ErrExist) {
			s.breakStaleLock(lockPath)
			return nil, errSerialLocked
		}
		return nil, backoff.Permanent(fmt.Errorf("%w: failed to create serial lock: %w", ErrIO, err))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	f, err := backoff.Retry(ctx, acquire,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		if errors.Is(err, ErrIO) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to lock %s, remove it if no other issuer is running: %w", ErrIO, lockPath, err)
	}

	return func() {
		f.Close()
		if err := os.Remove(lockPath); err != nil {
			log.Warn().Err(err).Str("path", lockPath).Msg("failed to remove serial lock")
		}
	}, nil
}

// breakStaleLock removes lockPath when it is older than the stale lock age.
func (s *SerialFile) breakStaleLock(lockPath string) {
	age := s.StaleLockAge
	if age <= 0 {
		age = DefaultStaleLockAge
	}

	info, err := os.Stat(lockPath)
	if err != nil || time.Since(info.ModTime()) < age {
		return
	}

	holder, _ := os.ReadFile(lockPath)

	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", lockPath).Msg("failed to remove stale serial lock")
		return
	}

	log.Warn().
		Str("path", lockPath).
		Str("holder_pid", strings.TrimSpace(string(holder))).
		Time("modified", info.ModTime()).
		Msg("removed stale serial lock")
}

func (s *SerialFile) read() (*big.Int, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		// 63 bits keeps the first serial positive and leaves room to increment
		start, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate initial serial: %w", ErrSigning, err)
		}
		return start, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read serial file: %w", ErrIO, err)
	}

	return parseSerial(data)
}

func (s *SerialFile) write(serial *big.Int) error {
	text := strings.ToUpper(serial.Text(16))
	if len(text)%2 == 1 {
		text = "0" + text
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to write serial file: %w", ErrIO, err)
	}

	if _, err := tmp.WriteString(text + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: failed to write serial file: %w", ErrIO, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: failed to write serial file: %w", ErrIO, err)
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: failed to save serial file: %w", ErrIO, err)
	}

	return nil
}

func parseSerial(data []byte) (*big.Int, error) {
	text := strings.TrimSpace(string(data))
	serial, ok := new(big.Int).SetString(text, 16)
	if !ok || serial.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid serial file contents %q", ErrDecode, text)
	}
	return serial, nil
}
