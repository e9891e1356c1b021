package permission

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/nft"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

var (
	addrs      = kernel.DefaultAddresses()
	nftAddress = nft.ContractAddress
	smartAcct  = common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	sessionKey = common.HexToAddress("0x5e55105e55105e55105e55105e55105e55105e55")
)

func nftABI(t *testing.T) *abi.ABI {
	t.Helper()
	parsed, err := nft.NFTMetaData.GetAbi()
	require.NoError(t, err)
	return parsed
}

func mintCall(t *testing.T, to common.Address) kernel.Call {
	t.Helper()
	data, err := nftABI(t).Pack("mint", to)
	require.NoError(t, err)
	return kernel.Call{To: nftAddress, Value: big.NewInt(0), Data: data}
}

func mintOnlyToAccount(t *testing.T) *CallPolicy {
	t.Helper()
	perm, err := NewCallPermission(nftAddress, nftABI(t), "mint", big.NewInt(0), Arg(Equal, smartAcct))
	require.NoError(t, err)
	policy, err := NewCallPolicy(addrs.CallPolicy, perm)
	require.NoError(t, err)
	return policy
}

func TestCallPolicy_Check(t *testing.T) {
	policy := mintOnlyToAccount(t)

	tests := []struct {
		name    string
		call    kernel.Call
		wantErr bool
	}{
		{"mint to account", mintCall(t, smartAcct), false},
		{"mint to someone else", mintCall(t, sessionKey), true},
		{"wrong target", func() kernel.Call {
			c := mintCall(t, smartAcct)
			c.To = sessionKey
			return c
		}(), true},
		{"value above limit", func() kernel.Call {
			c := mintCall(t, smartAcct)
			c.Value = big.NewInt(1)
			return c
		}(), true},
		{"wrong call type", func() kernel.Call {
			c := mintCall(t, smartAcct)
			c.CallType = kernel.CallTypeDelegateCall
			return c
		}(), true},
		{"plain transfer", kernel.Call{To: nftAddress, Value: big.NewInt(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.call)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPolicyViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSudoPolicy_AllowsEverything(t *testing.T) {
	sudo := NewSudoPolicy(addrs.SudoPolicy)
	calls := []kernel.Call{
		{To: sessionKey, Value: big.NewInt(1e18)},
		{To: nftAddress, Data: []byte{0xde, 0xad, 0xbe, 0xef}},
		{To: smartAcct, CallType: kernel.CallTypeDelegateCall, Data: []byte{1}},
	}
	for _, c := range calls {
		assert.NoError(t, sudo.Check(c))
	}
	assert.Empty(t, sudo.Data())
}

func TestParamRule_Operators(t *testing.T) {
	word := func(v int64) [32]byte {
		var w [32]byte
		big.NewInt(v).FillBytes(w[:])
		return w
	}
	callData := func(v int64) []byte {
		w := word(v)
		return append([]byte{0, 0, 0, 0}, w[:]...)
	}

	tests := []struct {
		op     ParamOperator
		params [][32]byte
		arg    int64
		pass   bool
	}{
		{Equal, [][32]byte{word(5)}, 5, true},
		{Equal, [][32]byte{word(5)}, 6, false},
		{GreaterThan, [][32]byte{word(5)}, 6, true},
		{GreaterThan, [][32]byte{word(5)}, 5, false},
		{LessThan, [][32]byte{word(5)}, 4, true},
		{GreaterThanOrEqual, [][32]byte{word(5)}, 5, true},
		{LessThanOrEqual, [][32]byte{word(5)}, 6, false},
		{NotEqual, [][32]byte{word(5)}, 6, true},
		{OneOf, [][32]byte{word(1), word(2), word(3)}, 2, true},
		{OneOf, [][32]byte{word(1), word(2), word(3)}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			err := ParamRule{Condition: tt.op, Params: tt.params}.Check(callData(tt.arg))
			if tt.pass {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPolicyViolation)
			}
		})
	}

	err := ParamRule{Condition: Equal, Offset: 32, Params: [][32]byte{word(1)}}.Check(callData(1))
	assert.ErrorIs(t, err, ErrPolicyViolation)

	for _, offset := range []uint64{^uint64(0), ^uint64(0) - 19, ^uint64(0) - 35} {
		assert.NotPanics(t, func() {
			err := ParamRule{Condition: Equal, Offset: offset, Params: [][32]byte{word(1)}}.Check(callData(1))
			assert.ErrorIs(t, err, ErrPolicyViolation)
		}, "offset %d", offset)
	}
	err = ParamRule{Condition: Equal, Params: [][32]byte{word(1)}}.Check([]byte{0, 0})
	assert.ErrorIs(t, err, ErrPolicyViolation)
}

func TestNewCallPermission_Errors(t *testing.T) {
	parsed := nftABI(t)

	_, err := NewCallPermission(nftAddress, parsed, "burn", nil)
	assert.Error(t, err)

	_, err = NewCallPermission(nftAddress, parsed, "mint", nil, Arg(Equal, smartAcct), Arg(Equal, smartAcct))
	assert.Error(t, err)

	_, err = NewCallPermission(nftAddress, parsed, "mint", nil, Arg(Equal, smartAcct, sessionKey))
	assert.Error(t, err)

	perm, err := NewCallPermission(nftAddress, parsed, "mint", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, perm.Rules)
	assert.Equal(t, int64(0), perm.ValueLimit.Int64())
}

func TestPermission_EncodeDecode(t *testing.T) {
	perm := New(sessionKey, mintOnlyToAccount(t))
	data, err := perm.ValidatorData()
	require.NoError(t, err)

	id, err := perm.ID()
	require.NoError(t, err)
	var want [4]byte
	copy(want[:], crypto.Keccak256(data)[:4])
	assert.Equal(t, want, id)

	decoded, err := DecodePermission(data, addrs)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, decoded.Signer)
	require.Len(t, decoded.Policies, 1)

	callPolicy, ok := decoded.Policies[0].(*CallPolicy)
	require.True(t, ok)
	require.Len(t, callPolicy.Permissions(), 1)
	assert.Equal(t, nftAddress, callPolicy.Permissions()[0].Target)

	// the decoded permission keeps the restriction
	assert.NoError(t, decoded.Check(mintCall(t, smartAcct)))
	assert.ErrorIs(t, decoded.Check(mintCall(t, sessionKey)), ErrPolicyViolation)

	decodedId, err := decoded.ID()
	require.NoError(t, err)
	assert.Equal(t, id, decodedId)
}

func TestPermission_IDDependsOnPolicies(t *testing.T) {
	sudoID, err := New(sessionKey, NewSudoPolicy(addrs.SudoPolicy)).ID()
	require.NoError(t, err)
	callID, err := New(sessionKey, mintOnlyToAccount(t)).ID()
	require.NoError(t, err)
	assert.NotEqual(t, sudoID, callID)

	otherKeyID, err := New(smartAcct, NewSudoPolicy(addrs.SudoPolicy)).ID()
	require.NoError(t, err)
	assert.NotEqual(t, sudoID, otherKeyID)
}

func TestDecodePermission_Rejects(t *testing.T) {
	_, err := DecodePermission([]byte{0x01, 0x02}, addrs)
	assert.ErrorIs(t, err, ErrInvalidPermission)

	unknown := New(sessionKey, NewSudoPolicy(common.HexToAddress("0x0000000000000000000000000000000000000bad")))
	data, err := unknown.ValidatorData()
	require.NoError(t, err)
	_, err = DecodePermission(data, addrs)
	assert.ErrorIs(t, err, ErrInvalidPermission)

	_, err = New(sessionKey).ValidatorData()
	assert.Error(t, err)
}
