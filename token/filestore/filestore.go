// Package filestore keeps the credential pair in a file so it outlives the
// process. The file is written with mode 0600 inside a 0700 directory and can
// optionally be sealed with a NaCl secretbox key.
//
// Storage failures never reach the caller. The store logs them, marks itself
// degraded and keeps serving from memory.
package filestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errUnseal = errors.New("credential file could not be unsealed")

// Store is a token.Store backed by a file.
type Store struct {
	path     string
	key      *[32]byte
	mem      *token.MemoryStore
	mu       sync.Mutex // serialises file writes
	degraded bool
	logger   zerolog.Logger
}

var _ token.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithSealKey seals the file contents with the given secretbox key.
func WithSealKey(key *[32]byte) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens the store at path, loading whatever credentials the file holds.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		mem:    token.NewMemoryStore(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	values, err := s.read()
	if err != nil {
		s.markDegraded(err, "failed to read credential file")
		return s
	}
	for kind, value := range values {
		s.mem.Save(kind, value)
	}
	return s
}

func (s *Store) Save(kind token.Kind, value string) {
	s.mem.Save(kind, value)
	s.persist()
}

func (s *Store) Load(kind token.Kind) (string, bool) {
	return s.mem.Load(kind)
}

func (s *Store) Clear() {
	s.mem.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.markDegradedLocked(err, "failed to remove credential file")
	}
}

// Degraded reports whether a storage failure has left the store memory-only.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) persist() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(s.mem.Snapshot()); err != nil {
		s.markDegradedLocked(err, "failed to write credential file")
	}
}

func (s *Store) read() (map[token.Kind]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	if s.key != nil {
		if data, err = s.open(data); err != nil {
			return nil, err
		}
	}

	var values map[token.Kind]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return values, nil
}

func (s *Store) write(values map[token.Kind]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if s.key != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	directory := filepath.Dir(s.path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("creating credential directory %s: %w", directory, err)
	}

	tmp, err := os.CreateTemp(directory, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", directory, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.key), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errUnseal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, errUnseal
	}
	return plain, nil
}

func (s *Store) markDegraded(err error, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDegradedLocked(err, msg)
}

func (s *Store) markDegradedLocked(err error, msg string) {
	s.degraded = true
	s.logger.Warn().Err(err).Str("path", s.path).Msg(msg + ", continuing in memory")
}
