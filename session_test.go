package aasdk

import (
	"encoding/base64"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

func testApproval(t *testing.T) (*Approval, common.Address) {
	t.Helper()
	addrs := kernel.DefaultAddresses()
	sessionKey := common.HexToAddress("0x0000000000000000000000000000000000005e55")
	perm := permission.New(sessionKey, permission.NewSudoPolicy(addrs.SudoPolicy))
	perm.SignerModule = addrs.ECDSASigner
	validatorData, err := perm.ValidatorData()
	require.NoError(t, err)
	return &Approval{
		Version:         approvalVersion,
		ChainId:         8453,
		EntryPoint:      addrs.EntryPoint,
		Account:         common.HexToAddress("0x00000000000000000000000000000000000acc00"),
		Owner:           common.HexToAddress("0x000000000000000000000000000000000000000f"),
		EnableNonce:     1,
		ValidatorData:   validatorData,
		SelectorData:    kernel.DefaultSelectorData(),
		EnableSignature: make([]byte, 65),
	}, sessionKey
}

func TestApprovalSerialization(t *testing.T) {
	approval, sessionKey := testApproval(t)
	serialized, err := SerializeApproval(approval)
	require.NoError(t, err)

	parsed, err := DeserializeApproval(serialized)
	require.NoError(t, err)
	assert.Equal(t, approval, parsed)

	key, err := parsed.SessionKey(kernel.DefaultAddresses())
	require.NoError(t, err)
	assert.Equal(t, sessionKey, key)

	raw, err := base64.StdEncoding.DecodeString(serialized)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"enableNonce":1`)
}

func TestApprovalIds(t *testing.T) {
	approval, _ := testApproval(t)
	pid := approval.PermissionId()
	assert.Equal(t, crypto.Keccak256(approval.ValidatorData)[:4], pid[:])

	vId := approval.ValidationId()
	assert.Equal(t, kernel.ValidationTypePermission, vId.Type())
	assert.Equal(t, pid[:], vId[1:5])
}

func TestDeserializeApprovalRejects(t *testing.T) {
	for _, input := range []string{
		"",
		"%%%",
		base64.StdEncoding.EncodeToString([]byte("{")),
		base64.StdEncoding.EncodeToString([]byte(`{"version":2}`)),
	} {
		_, err := DeserializeApproval(input)
		assert.ErrorIs(t, err, ErrInvalidApproval, input)
	}
}
