package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

func TestNewRecord(t *testing.T) {
	addrs := kernel.DefaultAddresses()
	sessionKey, err := aasdk.GenerateSigner()
	require.NoError(t, err)
	perm := permission.New(sessionKey.Address(), permission.NewSudoPolicy(addrs.SudoPolicy))
	validatorData, err := perm.ValidatorData()
	require.NoError(t, err)
	approval := &aasdk.Approval{
		Version:       1,
		ChainId:       8453,
		EntryPoint:    addrs.EntryPoint,
		EnableNonce:   1,
		ValidatorData: validatorData,
		SelectorData:  kernel.DefaultSelectorData(),
	}

	record, err := NewRecord(approval, addrs, "agent")
	require.NoError(t, err)
	assert.Equal(t, sessionKey.Address(), record.SessionKey)
	assert.Equal(t, uint64(8453), record.ChainId)
	assert.False(t, record.Revoked())
	require.NoError(t, Validate(record))

	decoded, err := record.Decode()
	require.NoError(t, err)
	assert.Equal(t, approval.ValidatorData, decoded.ValidatorData)

	data, err := MarshalRecord(record)
	require.NoError(t, err)
	parsed, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record.Id, parsed.Id)
	assert.True(t, record.CreatedAt.Equal(parsed.CreatedAt))
}

func TestRecordCopy(t *testing.T) {
	at := time.Now()
	record := &Record{RevokedAt: &at}
	cp := record.Copy()
	*cp.RevokedAt = at.Add(time.Hour)
	assert.True(t, record.RevokedAt.Equal(at))
}

func TestUnmarshalRecordRejects(t *testing.T) {
	_, err := UnmarshalRecord(nil)
	assert.Error(t, err)
	_, err = UnmarshalRecord([]byte("{"))
	assert.Error(t, err)
}
