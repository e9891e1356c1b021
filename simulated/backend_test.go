package simulated

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/nft"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

var oneEther = big.NewInt(1e18)

type testAccount struct {
	owner    *aasdk.LocalSigner
	address  common.Address
	initData []byte
}

func newTestAccount(t *testing.T, b *Backend) *testAccount {
	t.Helper()
	owner, err := aasdk.GenerateSigner()
	require.NoError(t, err)
	initData, err := kernel.InitializeData(b.Addresses(), owner.Address())
	require.NoError(t, err)
	return &testAccount{
		owner:    owner,
		address:  b.AccountAddress(initData, kernel.Salt(0)),
		initData: initData,
	}
}

func mintData(t *testing.T, to common.Address) []byte {
	t.Helper()
	parsed, err := nft.NFTMetaData.GetAbi()
	require.NoError(t, err)
	data, err := parsed.Pack("mint", to)
	require.NoError(t, err)
	return data
}

// rootOp builds an unsigned operation validated by the owner.
func (a *testAccount) rootOp(t *testing.T, b *Backend, seq uint64, calls ...kernel.Call) *aasdk.UserOperation {
	t.Helper()
	callData, err := kernel.EncodeExecute(calls...)
	require.NoError(t, err)
	op := aasdk.NewUserOpWithDefault(a.address, callData)
	key := kernel.NewValidatorNonceKey(kernel.ValidationModeDefault, kernel.ValidationTypeRoot, b.Addresses().ECDSAValidator)
	op.Nonce = new(big.Int).Or(new(big.Int).Lsh(key.Big(), 64), new(big.Int).SetUint64(seq))
	if !b.IsDeployed(a.address) {
		op.Factory = b.Addresses().MetaFactory
		op.FactoryData, err = kernel.FactoryData(b.Addresses(), a.initData, kernel.Salt(0))
		require.NoError(t, err)
	}
	return op
}

func (a *testAccount) sign(t *testing.T, b *Backend, op *aasdk.UserOperation) {
	t.Helper()
	hash, err := aasdk.UserOpHash(op, b.Addresses().EntryPoint, b.ChainId())
	require.NoError(t, err)
	op.Signature, err = a.owner.SignMessage(hash.Bytes())
	require.NoError(t, err)
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewDefaultBackend()
	require.NoError(t, err)
	return b
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var rpcErr *rpcError
	require.True(t, errors.As(err, &rpcErr), "expected rpc error, got %v", err)
	assert.Equal(t, code, rpcErr.ErrorCode(), rpcErr.Error())
}

func TestRootOperationDeploysAndMints(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	b.Fund(acct.address, oneEther)

	op := acct.rootOp(t, b, 0, kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)})
	acct.sign(t, b, op)
	hash, err := b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)

	assert.True(t, b.IsDeployed(acct.address))
	receipt := b.receipts[hash]
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
	assert.NotEqual(t, common.Hash{}, receipt.Receipt.TransactionHash)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, nft.ContractAddress, receipt.Logs[0].Address)
	require.Len(t, receipt.Receipt.Logs, 2)
	assert.Equal(t, b.Addresses().EntryPoint, receipt.Receipt.Logs[1].Address)
	assert.Equal(t, hash, receipt.Receipt.Logs[1].Topics[1])

	contract, ok := b.Contract(nft.ContractAddress)
	require.True(t, ok)
	assert.Equal(t, uint64(1), contract.(*NFT).BalanceOf(acct.address))
	assert.Equal(t, -1, b.Balance(acct.address).Cmp(oneEther), "prefund is charged")

	second := acct.rootOp(t, b, 1, kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)})
	assert.Equal(t, common.Address{}, second.Factory)
	acct.sign(t, b, second)
	hash2, err := b.sendUserOperation(second, b.Addresses().EntryPoint)
	require.NoError(t, err)
	assert.NotEqual(t, receipt.Receipt.From, b.receipts[hash2].Receipt.From, "executors rotate")
	assert.Equal(t, uint64(2), contract.(*NFT).BalanceOf(acct.address))
}

func TestOperationRejections(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	mint := kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)}
	ep := b.Addresses().EntryPoint

	t.Run("no prefund", func(t *testing.T) {
		op := acct.rootOp(t, b, 0, mint)
		acct.sign(t, b, op)
		_, err := b.sendUserOperation(op, ep)
		requireCode(t, err, codeRejected)
		assert.Contains(t, err.Error(), "AA21")
	})

	b.Fund(acct.address, oneEther)

	t.Run("not deployed", func(t *testing.T) {
		op := acct.rootOp(t, b, 0, mint)
		op.Factory, op.FactoryData = common.Address{}, nil
		acct.sign(t, b, op)
		_, err := b.sendUserOperation(op, ep)
		assert.Contains(t, err.Error(), "AA20")
	})

	t.Run("wrong owner", func(t *testing.T) {
		op := acct.rootOp(t, b, 0, mint)
		other := newTestAccount(t, b)
		other.sign(t, b, op)
		_, err := b.sendUserOperation(op, ep)
		requireCode(t, err, codeSignature)
		assert.Contains(t, err.Error(), "AA24")
	})

	t.Run("wrong sender", func(t *testing.T) {
		op := acct.rootOp(t, b, 0, mint)
		op.Sender = common.HexToAddress("0x1234")
		acct.sign(t, b, op)
		_, err := b.sendUserOperation(op, ep)
		assert.Contains(t, err.Error(), "AA14")
	})

	t.Run("wrong entrypoint", func(t *testing.T) {
		op := acct.rootOp(t, b, 0, mint)
		acct.sign(t, b, op)
		_, err := b.sendUserOperation(op, common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"))
		requireCode(t, err, codeInvalidParams)
	})

	t.Run("nonce gap", func(t *testing.T) {
		op := acct.rootOp(t, b, 3, mint)
		acct.sign(t, b, op)
		_, err := b.sendUserOperation(op, ep)
		assert.Contains(t, err.Error(), "AA25")
	})

	op := acct.rootOp(t, b, 0, mint)
	acct.sign(t, b, op)
	_, err := b.sendUserOperation(op, ep)
	require.NoError(t, err)

	t.Run("replay", func(t *testing.T) {
		_, err := b.sendUserOperation(op, ep)
		assert.Contains(t, err.Error(), "AA25")
	})

	t.Run("redeploy", func(t *testing.T) {
		redeploy := acct.rootOp(t, b, 1, mint)
		redeploy.Factory = b.Addresses().MetaFactory
		redeploy.FactoryData, err = kernel.FactoryData(b.Addresses(), acct.initData, kernel.Salt(0))
		require.NoError(t, err)
		acct.sign(t, b, redeploy)
		_, err := b.sendUserOperation(redeploy, ep)
		assert.Contains(t, err.Error(), "AA10")
	})
}

func TestPaymasterSignature(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	ep := b.Addresses().EntryPoint
	ctx := context.Background()

	op := acct.rootOp(t, b, 0, kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)})
	sponsored, err := b.sponsor(ctx, op, ep, b.ChainId())
	require.NoError(t, err)

	tampered := op.Copy()
	tampered.Paymaster = sponsored.Paymaster
	tampered.PaymasterData = sponsored.PaymasterData
	tampered.PaymasterVerificationGasLimit = sponsored.PaymasterVerificationGasLimit.ToInt()
	tampered.PaymasterPostOpGasLimit = sponsored.PaymasterPostOpGasLimit.ToInt()
	tampered.CallGasLimit = big.NewInt(9_000_000)
	acct.sign(t, b, tampered)
	_, err = b.sendUserOperation(tampered, ep)
	requireCode(t, err, codeSignature)
	assert.Contains(t, err.Error(), "AA34")

	op.Paymaster = sponsored.Paymaster
	op.PaymasterData = sponsored.PaymasterData
	op.PaymasterVerificationGasLimit = sponsored.PaymasterVerificationGasLimit.ToInt()
	op.PaymasterPostOpGasLimit = sponsored.PaymasterPostOpGasLimit.ToInt()
	acct.sign(t, b, op)
	hash, err := b.sendUserOperation(op, ep)
	require.NoError(t, err, "sponsored operations need no balance")
	assert.Equal(t, b.Paymaster().Address(), b.receipts[hash].Paymaster)

	b.SetRejectSponsorship(true)
	_, err = b.sponsor(ctx, op, ep, b.ChainId())
	requireCode(t, err, CodeSponsorshipRejected)
}

func TestBatchRevertsAtomically(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	b.Fund(acct.address, oneEther)
	recipient := common.HexToAddress("0xbeef")

	op := acct.rootOp(t, b, 0,
		kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)},
		kernel.Call{To: recipient, Value: big.NewInt(1000)},
		kernel.Call{To: nft.ContractAddress, Data: mintData(t, common.Address{})},
	)
	acct.sign(t, b, op)
	hash, err := b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)

	receipt := b.receipts[hash]
	assert.False(t, receipt.Success)
	assert.Contains(t, receipt.Reason, "call 2")
	assert.Empty(t, receipt.Logs)
	contract, _ := b.Contract(nft.ContractAddress)
	assert.Zero(t, contract.(*NFT).BalanceOf(acct.address))
	assert.Zero(t, b.Balance(recipient).Sign())
	assert.Equal(t, uint64(1), b.nonceOf(acct.address, new(big.Int).Rsh(op.Nonce, 64)), "nonce is used even when execution fails")
}

func TestInvalidateNonce(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	b.Fund(acct.address, oneEther)

	invalidate, err := kernel.InvalidateNonceData(2)
	require.NoError(t, err)
	op := acct.rootOp(t, b, 0, kernel.Call{To: acct.address, Data: invalidate})
	acct.sign(t, b, op)
	hash, err := b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)
	require.True(t, b.receipts[hash].Success, b.receipts[hash].Reason)

	stored := b.accounts[acct.address]
	assert.Equal(t, uint32(2), stored.currentNonce)
	assert.Equal(t, uint32(2), stored.validNonceFrom)

	// Going backwards reverts.
	op = acct.rootOp(t, b, 1, kernel.Call{To: acct.address, Data: invalidate})
	acct.sign(t, b, op)
	hash, err = b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)
	assert.False(t, b.receipts[hash].Success)
	assert.Contains(t, b.receipts[hash].Reason, "NonceInvalidationError")

	uninstallRoot, err := kernel.UninstallValidationData(stored.rootValidator, nil, nil)
	require.NoError(t, err)
	op = acct.rootOp(t, b, 2, kernel.Call{To: acct.address, Data: uninstallRoot})
	acct.sign(t, b, op)
	hash, err = b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)
	assert.Contains(t, b.receipts[hash].Reason, "RootValidatorCannotBeRemoved")
}

func TestUninstallValidation(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	b.Fund(acct.address, oneEther)

	op := acct.rootOp(t, b, 0, kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)})
	acct.sign(t, b, op)
	hash, err := b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)
	require.True(t, b.receipts[hash].Success, b.receipts[hash].Reason)

	revoked := kernel.PermissionValidationId([4]byte{1})
	kept := kernel.PermissionValidationId([4]byte{2})
	stored := b.accounts[acct.address]
	stored.validations[revoked] = &validation{nonce: 1, hook: kernel.OneAddress}
	stored.validations[kept] = &validation{nonce: 1, hook: kernel.OneAddress}

	uninstall, err := kernel.UninstallValidationData(revoked, nil, nil)
	require.NoError(t, err)
	op = acct.rootOp(t, b, 1, kernel.Call{To: acct.address, Data: uninstall})
	acct.sign(t, b, op)
	hash, err = b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)
	require.True(t, b.receipts[hash].Success, b.receipts[hash].Reason)

	assert.False(t, b.IsInstalled(acct.address, revoked))
	assert.True(t, b.IsInstalled(acct.address, kept))
	assert.Equal(t, uint32(2), stored.currentNonce)
	assert.Zero(t, stored.validNonceFrom)
}

func TestStall(t *testing.T) {
	b := newBackend(t)
	acct := newTestAccount(t, b)
	b.Fund(acct.address, oneEther)
	b.SetStall(true)

	op := acct.rootOp(t, b, 0, kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)})
	acct.sign(t, b, op)
	hash, err := b.sendUserOperation(op, b.Addresses().EntryPoint)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Nil(t, b.receipts[hash])
	assert.False(t, b.IsDeployed(acct.address))

	_, err = b.sendUserOperation(op, b.Addresses().EntryPoint)
	assert.Contains(t, err.Error(), "already pending")
}

func TestHandlerServesJSONRPC(t *testing.T) {
	b := newBackend(t)
	handler, _, err := b.Handler()
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := rpc.DialHTTP(server.URL)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	var chainId hexutil.Big
	require.NoError(t, client.CallContext(ctx, &chainId, "eth_chainId"))
	assert.Equal(t, int64(DefaultChainId), chainId.ToInt().Int64())

	var code hexutil.Bytes
	require.NoError(t, client.CallContext(ctx, &code, "eth_getCode", nft.ContractAddress, "latest"))
	assert.NotEmpty(t, code)
	require.NoError(t, client.CallContext(ctx, &code, "eth_getCode", common.HexToAddress("0x1"), "latest"))
	assert.Empty(t, code)

	var entryPoints []common.Address
	require.NoError(t, client.CallContext(ctx, &entryPoints, "eth_supportedEntryPoints"))
	assert.Equal(t, []common.Address{b.Addresses().EntryPoint}, entryPoints)

	var receipt *aasdk.UserOpReceipt
	require.NoError(t, client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", common.Hash{1}))
	assert.Nil(t, receipt)

	b.SetRejectSponsorship(true)
	acct := newTestAccount(t, b)
	op := acct.rootOp(t, b, 0, kernel.Call{To: nft.ContractAddress, Data: mintData(t, acct.address)})
	var sponsored aasdk.SponsorResponse
	err = client.CallContext(ctx, &sponsored, "zd_sponsorUserOperation", aasdk.ZeroDevSponsorRequest{
		ChainId:           DefaultChainId,
		UserOp:            op.ToBody(),
		EntryPointAddress: b.Addresses().EntryPoint,
	})
	var rpcErr rpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeSponsorshipRejected, rpcErr.ErrorCode())

	assert.Equal(t, int64(6), b.Requests())
}

func TestAccountAddressIsDeterministic(t *testing.T) {
	b := newBackend(t)
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	initData, err := kernel.InitializeData(b.Addresses(), owner)
	require.NoError(t, err)

	first := b.AccountAddress(initData, kernel.Salt(0))
	assert.Equal(t, first, b.AccountAddress(initData, kernel.Salt(0)))
	assert.NotEqual(t, first, b.AccountAddress(initData, kernel.Salt(1)))
	assert.NotEqual(t, common.Address{}, first)
}
