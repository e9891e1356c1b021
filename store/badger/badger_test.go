package badger

import (
	"testing"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/internal/logger"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store/storetest"
)

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ApprovalStore {
		s, err := New(t.TempDir(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	s, err := New(dir, testLogger)
	require.NoError(t, err)
	record := storetest.NewRecord(common.Address{1}, 0)
	require.NoError(t, s.Save(record))
	require.NoError(t, s.Close())

	s, err = New(dir, testLogger)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	loaded, err := s.Load(record.Id)
	require.NoError(t, err)
	assert.Equal(t, record.Approval, loaded.Approval)
	records, err := s.ListBySessionKey(record.SessionKey)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBadgerStore_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, s.Close())

	_, err = New(dir, nil)
	assert.ErrorContains(t, err, "unsupported schema version")
}
