package aasdk

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleUserOp() *UserOperation {
	op := NewUserOpWithDefault(common.HexToAddress("0x1111111111111111111111111111111111111111"), []byte{0xe9, 0xae, 0x5c, 0x53})
	op.Nonce = big.NewInt(7)
	op.Signature = []byte{0x01, 0x02}
	op.Factory = common.HexToAddress("0x2222222222222222222222222222222222222222")
	op.FactoryData = []byte{0xaa}
	return op
}

func TestUserOperationBody(t *testing.T) {
	op := sampleUserOp()
	body := op.ToBody()
	assert.Equal(t, "0x7", body["nonce"])
	assert.Equal(t, "0xe9ae5c53", body["callData"])
	assert.Equal(t, "0x2222222222222222222222222222222222222222", body["factory"])
	assert.NotContains(t, body, "paymaster")

	parsed, err := UserOperationFromBody(body)
	require.NoError(t, err)
	assert.Equal(t, body, parsed.ToBody())
	assert.Equal(t, 0, op.Nonce.Cmp(parsed.Nonce))
	assert.Equal(t, op.FactoryData, parsed.FactoryData)

	t.Run("paymaster fields", func(t *testing.T) {
		sponsored := op.Copy()
		sponsored.Factory = common.Address{}
		sponsored.FactoryData = nil
		sponsored.Paymaster = common.HexToAddress("0x3333333333333333333333333333333333333333")
		sponsored.PaymasterData = []byte{0xbb}
		sponsored.PaymasterVerificationGasLimit = big.NewInt(1000)
		sponsored.PaymasterPostOpGasLimit = big.NewInt(10)

		body := sponsored.ToBody()
		assert.NotContains(t, body, "factory")
		parsed, err := UserOperationFromBody(body)
		require.NoError(t, err)
		assert.Equal(t, body, parsed.ToBody())
		assert.Equal(t, sponsored.Paymaster, parsed.Paymaster)
	})
}

func TestUserOperationFromBodyErrors(t *testing.T) {
	valid := sampleUserOp().ToBody()
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"no sender", func(b map[string]string) { delete(b, "sender") }},
		{"no nonce", func(b map[string]string) { delete(b, "nonce") }},
		{"bad sender", func(b map[string]string) { b["sender"] = "0x12" }},
		{"bad nonce", func(b map[string]string) { b["nonce"] = "7" }},
		{"bad call data", func(b map[string]string) { b["callData"] = "0xzz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := make(map[string]string, len(valid))
			for k, v := range valid {
				body[k] = v
			}
			tt.mutate(body)
			_, err := UserOperationFromBody(body)
			assert.Error(t, err)
		})
	}
}

func TestUserOperationCopy(t *testing.T) {
	op := sampleUserOp()
	cp := op.Copy()
	cp.Nonce.SetInt64(8)
	cp.CallData[0] = 0x00
	assert.Equal(t, int64(7), op.Nonce.Int64())
	assert.Equal(t, byte(0xe9), op.CallData[0])
}

func TestPackUserOperation(t *testing.T) {
	op := sampleUserOp()
	packed := PackUserOperation(op)
	assert.Equal(t, append(op.Factory.Bytes(), op.FactoryData...), packed.InitCode)
	assert.Empty(t, packed.PaymasterAndData)
	assert.Equal(t, PackInt(op.VerificationGasLimit, op.CallGasLimit), common.Hash(packed.AccountGasLimits))

	op.Paymaster = common.HexToAddress("0x3333333333333333333333333333333333333333")
	op.PaymasterVerificationGasLimit = big.NewInt(1)
	op.PaymasterPostOpGasLimit = big.NewInt(2)
	op.PaymasterData = []byte{0xcc}
	packed = PackUserOperation(op)
	require.Len(t, packed.PaymasterAndData, PaymasterDataOffset+1)
	assert.Equal(t, op.Paymaster.Bytes(), packed.PaymasterAndData[:PaymasterValidationGasOffset])
	assert.Equal(t, byte(1), packed.PaymasterAndData[PaymasterPostOpGasOffset-1])
	assert.Equal(t, byte(2), packed.PaymasterAndData[PaymasterDataOffset-1])
}

func TestUserOpHash(t *testing.T) {
	op := sampleUserOp()
	entryPoint := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	hash, err := UserOpHash(op, entryPoint, big.NewInt(1))
	require.NoError(t, err)

	// The signature is not part of the hash.
	signed := op.Copy()
	signed.Signature = []byte{0xff}
	again, err := UserOpHash(signed, entryPoint, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	otherChain, err := UserOpHash(op, entryPoint, big.NewInt(2))
	require.NoError(t, err)
	assert.NotEqual(t, hash, otherChain)

	bumped := op.Copy()
	bumped.Nonce.SetInt64(8)
	other, err := UserOpHash(bumped, entryPoint, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestPackInt(t *testing.T) {
	packed := PackInt(big.NewInt(1), big.NewInt(2))
	assert.Equal(t, common.HexToHash("0x0000000000000000000000000000000100000000000000000000000000000002"), packed)
	assert.Panics(t, func() { PackInt(nil, big.NewInt(1)) })
}

func TestUserOpReceiptTxHash(t *testing.T) {
	var missing *UserOpReceipt
	assert.Equal(t, common.Hash{}, missing.TxHash())
	assert.Equal(t, common.Hash{}, (&UserOpReceipt{Success: true}).TxHash())

	hash := common.HexToHash("0xabcdef")
	receipt := &UserOpReceipt{Receipt: &TxReceipt{TransactionHash: hash}}
	assert.Equal(t, hash, receipt.TxHash())
}
