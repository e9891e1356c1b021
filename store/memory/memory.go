package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
)

// Store keeps records in memory. Records are copied in and out.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*store.Record
	closed  bool
}

var _ store.ApprovalStore = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[uuid.UUID]*store.Record)}
}

func (m *Store) Save(record *store.Record) error {
	if err := store.Validate(record); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	m.records[record.Id] = record.Copy()
	return nil
}

func (m *Store) Load(id uuid.UUID) (*store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, store.ErrClosed
	}
	r, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Copy(), nil
}

func (m *Store) ListBySessionKey(sessionKey common.Address) ([]*store.Record, error) {
	return m.list(func(r *store.Record) bool { return r.SessionKey == sessionKey })
}

func (m *Store) List() ([]*store.Record, error) {
	return m.list(func(*store.Record) bool { return true })
}

func (m *Store) list(match func(*store.Record) bool) ([]*store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, store.ErrClosed
	}
	result := make([]*store.Record, 0)
	for _, r := range m.records {
		if match(r) {
			result = append(result, r.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) MarkRevoked(id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	r, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	at = at.UTC()
	r.RevokedAt = &at
	return nil
}

func (m *Store) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	delete(m.records, id)
	return nil
}

func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}

func (m *Store) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return store.ErrClosed
	}
	return nil
}
