// Package badger implements snapshot storage on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/marmos91/gridinv/pkg/store/cache"
)

// keyPrefix namespaces snapshot keys so the database can hold other data.
const keyPrefix = "inv:"

// BadgerCacheStore stores snapshots in an embedded BadgerDB, one key per
// owner. Badger transactions give atomic replacement.
type BadgerCacheStore struct {
	db *badger.DB
}

// BadgerCacheStoreConfig holds BadgerDB-specific options.
type BadgerCacheStoreConfig struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`

	// Compression enables zstd value compression; snapshots of large
	// inventories compress well
	Compression bool `mapstructure:"compression"`

	// BadgerOptions overrides everything above when set
	BadgerOptions *badger.Options
}

// NewBadgerCacheStore opens (or creates) a Badger-backed cache.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Database location and tuning
//
// Returns:
//   - *BadgerCacheStore: Open store, to be closed with Close
//   - error: Returns error if the database cannot be opened
func NewBadgerCacheStore(ctx context.Context, config BadgerCacheStoreConfig) (*BadgerCacheStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			if config.DBPath == "" {
				return nil, fmt.Errorf("badger cache: db_path is required")
			}
			opts = badger.DefaultOptions(config.DBPath)
		}

		opts = opts.WithLoggingLevel(badger.WARNING)
		if config.Compression {
			opts = opts.WithCompression(options.ZSTD)
		} else {
			opts = opts.WithCompression(options.None)
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerCacheStore{db: db}, nil
}

func snapshotKey(owner uuid.UUID) []byte {
	return []byte(keyPrefix + owner.String())
}

// Save implements cache.Store.
func (s *BadgerCacheStore) Save(ctx context.Context, owner uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(owner), data); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
}

// Load implements cache.Store.
func (s *BadgerCacheStore) Load(ctx context.Context, owner uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(owner))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, nil
}

// Delete implements cache.Store.
func (s *BadgerCacheStore) Delete(ctx context.Context, owner uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(owner))
	})
}

// Owners lists the owners that have a stored snapshot.
func (s *BadgerCacheStore) Owners(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var owners []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			id, err := uuid.Parse(key[len(keyPrefix):])
			if err != nil {
				continue
			}
			owners = append(owners, id)
		}
		return nil
	})
	return owners, err
}

// Close implements cache.Store.
func (s *BadgerCacheStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
