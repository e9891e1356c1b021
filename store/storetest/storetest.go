// Package storetest checks that an ApprovalStore implementation behaves
// like the others.
package storetest

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
)

// NewRecord returns a record for sessionKey created at the given offset
// from a fixed instant.
func NewRecord(sessionKey common.Address, offset time.Duration) *store.Record {
	return &store.Record{
		Id:         uuid.New(),
		Label:      "test",
		ChainId:    31337,
		Account:    common.HexToAddress("0x00000000000000000000000000000000000acc00"),
		SessionKey: sessionKey,
		Approval:   "eyJ2ZXJzaW9uIjoxfQ==",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset),
	}
}

func assertSameRecord(t *testing.T, want, got *store.Record) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Id, got.Id)
	assert.Equal(t, want.Label, got.Label)
	assert.Equal(t, want.ChainId, got.ChainId)
	assert.Equal(t, want.Account, got.Account)
	assert.Equal(t, want.SessionKey, got.SessionKey)
	assert.Equal(t, want.Approval, got.Approval)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created at %s, want %s", got.CreatedAt, want.CreatedAt)
	assert.Equal(t, want.Revoked(), got.Revoked())
}

// Run exercises every operation of the store returned by open. Each subtest
// gets its own store.
func Run(t *testing.T, open func(t *testing.T) store.ApprovalStore) {
	alice := common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	t.Run("save and load", func(t *testing.T) {
		s := open(t)
		record := NewRecord(alice, 0)
		require.NoError(t, s.Save(record))

		loaded, err := s.Load(record.Id)
		require.NoError(t, err)
		assertSameRecord(t, record, loaded)

		// Returned records are copies.
		loaded.Label = "changed"
		again, err := s.Load(record.Id)
		require.NoError(t, err)
		assert.Equal(t, "test", again.Label)
	})

	t.Run("load missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Load(uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save rejects invalid records", func(t *testing.T) {
		s := open(t)
		assert.Error(t, s.Save(nil))
		noId := NewRecord(alice, 0)
		noId.Id = uuid.Nil
		assert.Error(t, s.Save(noId))
		assert.Error(t, s.Save(NewRecord(common.Address{}, 0)))
	})

	t.Run("list by session key", func(t *testing.T) {
		s := open(t)
		second := NewRecord(alice, time.Hour)
		first := NewRecord(alice, 0)
		other := NewRecord(bob, 0)
		for _, r := range []*store.Record{second, first, other} {
			require.NoError(t, s.Save(r))
		}

		records, err := s.ListBySessionKey(alice)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.Id, records[0].Id)
		assert.Equal(t, second.Id, records[1].Id)

		all, err := s.List()
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.ListBySessionKey(common.HexToAddress("0x0000000000000000000000000000000000000c0c"))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("overwrite moves index", func(t *testing.T) {
		s := open(t)
		record := NewRecord(alice, 0)
		require.NoError(t, s.Save(record))
		record.SessionKey = bob
		require.NoError(t, s.Save(record))

		records, err := s.ListBySessionKey(alice)
		require.NoError(t, err)
		assert.Empty(t, records)
		records, err = s.ListBySessionKey(bob)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("mark revoked", func(t *testing.T) {
		s := open(t)
		record := NewRecord(alice, 0)
		require.NoError(t, s.Save(record))
		at := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.MarkRevoked(record.Id, at))

		loaded, err := s.Load(record.Id)
		require.NoError(t, err)
		require.True(t, loaded.Revoked())
		assert.True(t, at.Equal(*loaded.RevokedAt))

		assert.ErrorIs(t, s.MarkRevoked(uuid.New(), at), store.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		record := NewRecord(alice, 0)
		require.NoError(t, s.Save(record))
		require.NoError(t, s.Delete(record.Id))
		require.NoError(t, s.Delete(record.Id))

		_, err := s.Load(record.Id)
		assert.ErrorIs(t, err, store.ErrNotFound)
		records, err := s.ListBySessionKey(alice)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("concurrent saves", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Save(NewRecord(alice, time.Duration(i)*time.Second)))
			}(i)
		}
		wg.Wait()
		records, err := s.ListBySessionKey(alice)
		require.NoError(t, err)
		assert.Len(t, records, 20)
	})

	t.Run("close", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.HealthCheck())
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.HealthCheck(), store.ErrClosed)
		assert.ErrorIs(t, s.Save(NewRecord(alice, 0)), store.ErrClosed)
		_, err := s.Load(uuid.New())
		assert.ErrorIs(t, err, store.ErrClosed)
		_, err = s.List()
		assert.ErrorIs(t, err, store.ErrClosed)
	})
}
