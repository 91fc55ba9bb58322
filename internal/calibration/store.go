package calibration

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

var (
	forwardKey  = []byte("calibration/forward")
	backwardKey = []byte("calibration/backward")
)

// Store persists the identities of the last calibration across sessions
type Store struct {
	db *badger.DB
}

// OpenStore opens the store in dir, creating it if needed.
// An empty dir keeps the identities in memory only.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration store: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the remembered identities; unknown roles are empty
func (s *Store) Load() (Identities, error) {
	var ids Identities
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if ids.Forward, err = get(txn, forwardKey); err != nil {
			return err
		}
		ids.Backward, err = get(txn, backwardKey)
		return err
	})
	if err != nil {
		return Identities{}, fmt.Errorf("failed to load calibration: %w", err)
	}
	return ids, nil
}

// Save remembers ids, replacing what was stored before
func (s *Store) Save(ids Identities) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := set(txn, forwardKey, ids.Forward); err != nil {
			return err
		}
		return set(txn, backwardKey, ids.Backward)
	})
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func get(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func set(txn *badger.Txn, key []byte, value string) error {
	if value == "" {
		return txn.Delete(key)
	}
	return txn.Set(key, []byte(value))
}
