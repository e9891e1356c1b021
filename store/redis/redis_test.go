package redis

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/store/storetest"
)

// requireRedis skips unless REDIS_TEST_ADDRESS points at a server. Each
// store gets its own key prefix in DB 15.
func requireRedis(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	s, err := New(&Config{
		Address:   addr,
		DB:        15,
		KeyPrefix: "test:" + uuid.NewString() + ":",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ApprovalStore {
		return requireRedis(t)
	})
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
	_, err = New(&Config{}, nil)
	assert.Error(t, err)
}

func TestNewUnreachable(t *testing.T) {
	_, err := New(&Config{Address: "127.0.0.1:1"}, nil)
	assert.ErrorContains(t, err, "failed to connect")
}
