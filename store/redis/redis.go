// Package redis stores approval records in Redis, for owners running the
// tooling on more than one host.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
)

const (
	keyPrefixRecord      = "kernel:approval:"
	keyPrefixSessionKey  = "kernel:sessionkey:"
	keySetRecords        = "kernel:approvals:index"
	keySchemaVersion     = "kernel:metadata:schema_version"
	currentSchemaVersion = "v1"

	defaultTimeout = 5 * time.Second
)

type Config struct {
	// Address is host:port.
	Address  string
	Password string
	DB       int
	// KeyPrefix is prepended to every key, e.g. "myapp:".
	KeyPrefix string
}

type Store struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ store.ApprovalStore = (*Store)(nil)

// New connects to Redis and checks the schema version.
func New(cfg *Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	s := &Store{client: client, logger: logger, keyPrefix: cfg.KeyPrefix}
	if err := s.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Sugar().Infow("approval store connected", "address", cfg.Address, "db", cfg.DB)
	return s, nil
}

func (s *Store) key(key string) string {
	return s.keyPrefix + key
}

func (s *Store) recordKey(id uuid.UUID) string {
	return s.key(keyPrefixRecord + id.String())
}

func (s *Store) sessionKeySet(sessionKey common.Address) string {
	return s.key(keyPrefixSessionKey + strings.ToLower(sessionKey.Hex()))
}

func (s *Store) initSchema(ctx context.Context) error {
	schemaKey := s.key(keySchemaVersion)
	existing, err := s.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return s.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existing != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}
	return nil
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
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	data, err := store.MarshalRecord(record)
	if err != nil {
		return err
	}
	previous, err := s.load(ctx, record.Id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	if previous != nil && previous.SessionKey != record.SessionKey {
		pipe.SRem(ctx, s.sessionKeySet(previous.SessionKey), record.Id.String())
	}
	pipe.Set(ctx, s.recordKey(record.Id), data, 0)
	pipe.SAdd(ctx, s.key(keySetRecords), record.Id.String())
	pipe.SAdd(ctx, s.sessionKeySet(record.SessionKey), record.Id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save record %s: %w", record.Id, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, id uuid.UUID) (*store.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return store.UnmarshalRecord(data)
}

func (s *Store) Load(id uuid.UUID) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return s.load(ctx, id)
}

func (s *Store) ListBySessionKey(sessionKey common.Address) ([]*store.Record, error) {
	return s.list(s.sessionKeySet(sessionKey))
}

func (s *Store) List() ([]*store.Record, error) {
	return s.list(s.key(keySetRecords))
}

// list reads every record whose id is in the index set.
func (s *Store) list(indexKey string) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	records := make([]*store.Record, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(keyPrefixRecord + id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	for i, val := range values {
		if val == nil {
			// Stale index entry.
			s.client.SRem(ctx, indexKey, ids[i])
			continue
		}
		data, ok := val.(string)
		if !ok {
			s.logger.Sugar().Warnw("unexpected value type for record", "key", keys[i])
			continue
		}
		record, err := store.UnmarshalRecord([]byte(data))
		if err != nil {
			s.logger.Sugar().Warnw("failed to unmarshal record, skipping", "key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *Store) MarkRevoked(id uuid.UUID, at time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	record, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	at = at.UTC()
	record.RevokedAt = &at
	data, err := store.MarshalRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.recordKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(id uuid.UUID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	record, err := s.load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(id))
	pipe.SRem(ctx, s.key(keySetRecords), id.String())
	pipe.SRem(ctx, s.sessionKeySet(record.SessionKey), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
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
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	if _, err := s.client.Get(ctx, s.key(keySchemaVersion)).Result(); err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
