// Package badger stores approval records on disk.
package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
)

const (
	keyPrefixRecord      = "approval:"
	keyPrefixSessionKey  = "sessionkey:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval = 5 * time.Minute
)

type Store struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ store.ApprovalStore = (*Store)(nil)

// New opens the database at dataPath and starts value log GC.
func New(dataPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &zapLogger{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.gcCancel = cancel
	s.gcWg.Add(1)
	go s.runGC(ctx)

	logger.Sugar().Infow("approval store opened", "path", absPath)
	return s, nil
}

func (s *Store) initSchema() error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		var existing string
		if err := item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}
		if existing != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

func (s *Store) runGC(ctx context.Context) {
	defer s.gcWg.Done()
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				s.logger.Sugar().Warnw("badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func recordKey(id uuid.UUID) []byte {
	return []byte(keyPrefixRecord + id.String())
}

func sessionKeyPrefix(sessionKey common.Address) string {
	return keyPrefixSessionKey + strings.ToLower(sessionKey.Hex()) + ":"
}

func indexKey(r *store.Record) []byte {
	return []byte(sessionKeyPrefix(r.SessionKey) + r.Id.String())
}

func (s *Store) Save(record *store.Record) error {
	if err := store.Validate(record); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	data, err := store.MarshalRecord(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		// The session key of an existing record may have changed.
		if previous, err := getRecord(txn, record.Id); err == nil {
			if err := txn.Delete(indexKey(previous)); err != nil {
				return err
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := txn.Set(recordKey(record.Id), data); err != nil {
			return err
		}
		return txn.Set(indexKey(record), nil)
	})
}

func getRecord(txn *badgerdb.Txn, id uuid.UUID) (*store.Record, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := item.Value(func(val []byte) error {
		data = append([]byte{}, val...)
		return nil
	}); err != nil {
		return nil, err
	}
	return store.UnmarshalRecord(data)
}

func (s *Store) Load(id uuid.UUID) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	var record *store.Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return record, nil
}

func (s *Store) ListBySessionKey(sessionKey common.Address) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	prefix := sessionKeyPrefix(sessionKey)
	records := make([]*store.Record, 0)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id, err := uuid.Parse(strings.TrimPrefix(string(it.Item().Key()), prefix))
			if err != nil {
				s.logger.Sugar().Warnw("malformed index key, skipping", "key", string(it.Item().Key()))
				continue
			}
			record, err := getRecord(txn, id)
			if err != nil {
				return fmt.Errorf("failed to read record %s: %w", id, err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	sortByCreation(records)
	return records, nil
}

func (s *Store) List() ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	records := make([]*store.Record, 0)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var data []byte
			if err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			}); err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}
			record, err := store.UnmarshalRecord(data)
			if err != nil {
				s.logger.Sugar().Warnw("failed to unmarshal record, skipping", "key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	sortByCreation(records)
	return records, nil
}

func (s *Store) MarkRevoked(id uuid.UUID, at time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		at = at.UTC()
		record.RevokedAt = &at
		data, err := store.MarshalRecord(record)
		if err != nil {
			return err
		}
		return txn.Set(recordKey(id), data)
	})
}

func (s *Store) Delete(id uuid.UUID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		record, err := getRecord(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(record)); err != nil {
			return err
		}
		return txn.Delete(recordKey(id))
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.gcCancel()
	s.gcWg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	s.logger.Sugar().Info("approval store closed")
	return nil
}

func (s *Store) HealthCheck() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err != nil {
			return fmt.Errorf("schema version not readable: %w", err)
		}
		return nil
	})
}

func sortByCreation(records []*store.Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
