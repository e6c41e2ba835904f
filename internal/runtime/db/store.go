// Package db persists the original bytecode of oracle scripts.
package db

import (
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/owasm-vm/owasmvm/types"
)

// ErrNotFound is returned when no code is stored under a checksum.
var ErrNotFound = errors.New("code not found")

const dbName = "oracle_scripts"

// codePrefix namespaces code entries within the database.
var codePrefix = []byte("code/")

// Store is a goroutine-safe code store keyed by checksum. It stores the
// bytes as submitted, before instrumentation, so the same script can be
// re-instrumented under another configuration.
type Store struct {
	db dbm.DB
}

// New wraps an existing database.
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

// Open opens the store below dir, or an in-memory store when dir is empty.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return New(dbm.NewMemDB()), nil
	}
	db, err := dbm.NewDB(dbName, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open code store in %s: %w", dir, err)
	}
	return New(db), nil
}

func codeKey(checksum types.Checksum) []byte {
	return append(append([]byte{}, codePrefix...), checksum[:]...)
}

// Save stores code and returns its checksum. Saving the same code twice is a no-op.
func (s *Store) Save(code []byte) (types.Checksum, error) {
	checksum := types.NewChecksumFromCode(code)
	key := codeKey(checksum)
	has, err := s.db.Has(key)
	if err != nil {
		return types.Checksum{}, fmt.Errorf("failed to look up %s: %w", checksum, err)
	}
	if has {
		return checksum, nil
	}
	if err := s.db.SetSync(key, code); err != nil {
		return types.Checksum{}, fmt.Errorf("failed to store %s: %w", checksum, err)
	}
	return checksum, nil
}

// Load returns the code stored under checksum.
func (s *Store) Load(checksum types.Checksum) ([]byte, error) {
	code, err := s.db.Get(codeKey(checksum))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", checksum, err)
	}
	if code == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, checksum)
	}
	return append([]byte{}, code...), nil
}

// Has reports whether code is stored under checksum.
func (s *Store) Has(checksum types.Checksum) (bool, error) {
	return s.db.Has(codeKey(checksum))
}

// Delete removes the code stored under checksum.
func (s *Store) Delete(checksum types.Checksum) error {
	return s.db.DeleteSync(codeKey(checksum))
}

// Checksums lists the stored scripts in key order.
func (s *Store) Checksums() ([]types.Checksum, error) {
	it, err := s.db.Iterator(codePrefix, prefixEnd(codePrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []types.Checksum
	for ; it.Valid(); it.Next() {
		cs, err := types.NewChecksum(it.Key()[len(codePrefix):])
		if err != nil {
			return nil, fmt.Errorf("corrupt key %x: %w", it.Key(), err)
		}
		out = append(out, cs)
	}
	return out, it.Error()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// prefixEnd returns the end key for prefix iteration
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
