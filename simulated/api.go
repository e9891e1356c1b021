package simulated

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

// JSON-RPC error codes, following ERC-7769 for bundler rejections.
const (
	codeReverted               = 3
	codeInvalidParams          = -32602
	codeRejected               = -32500
	codePaymasterRejected      = -32501
	codeSignature              = -32507
	CodeSponsorshipRejected    = -32001
	sponsorshipRejectedMessage = "sponsorship rejected: no policy covers this user operation"
)

type rpcError struct {
	code    int
	message string
}

func (e *rpcError) Error() string  { return e.message }
func (e *rpcError) ErrorCode() int { return e.code }

func reject(code int, format string, args ...any) error {
	return &rpcError{code: code, message: fmt.Sprintf(format, args...)}
}

// CallArgs is the transaction object of eth_call.
type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Input *hexutil.Bytes  `json:"input"`
	Data  *hexutil.Bytes  `json:"data"`
}

func (args *CallArgs) input() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// GasEstimate is the result of eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// ethAPI serves the node and bundler methods of the eth namespace.
type ethAPI struct {
	b *Backend
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.b.ChainId())
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.b.BlockNumber() - 1)
}

func (api *ethAPI) GetCode(addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Bytes {
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	return api.b.code(addr)
}

func (api *ethAPI) GetBalance(addr common.Address, _ *rpc.BlockNumberOrHash) *hexutil.Big {
	return (*hexutil.Big)(api.b.Balance(addr))
}

func (api *ethAPI) Call(args CallArgs, _ *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	if args.To == nil {
		return nil, reject(codeInvalidParams, "contract creation is not supported")
	}
	out, err := api.b.call(*args.To, args.input())
	if err != nil {
		return nil, reject(codeReverted, "execution reverted: %v", err)
	}
	return out, nil
}

func (api *ethAPI) SendUserOperation(body map[string]string, entryPoint common.Address) (common.Hash, error) {
	op, err := aasdk.UserOperationFromBody(body)
	if err != nil {
		return common.Hash{}, reject(codeInvalidParams, "%v", err)
	}
	return api.b.sendUserOperation(op, entryPoint)
}

func (api *ethAPI) EstimateUserOperationGas(body map[string]string, entryPoint common.Address) (*GasEstimate, error) {
	op, err := aasdk.UserOperationFromBody(body)
	if err != nil {
		return nil, reject(codeInvalidParams, "%v", err)
	}
	return api.b.estimate(op, entryPoint)
}

// GetUserOperationReceipt returns null until the operation is included.
func (api *ethAPI) GetUserOperationReceipt(hash common.Hash) *aasdk.UserOpReceipt {
	api.b.mu.Lock()
	defer api.b.mu.Unlock()
	return api.b.receipts[hash]
}

func (api *ethAPI) SupportedEntryPoints() []common.Address {
	return []common.Address{api.b.addrs.EntryPoint}
}

// zdAPI serves the ZeroDev paymaster method.
type zdAPI struct {
	b *Backend
}

func (api *zdAPI) SponsorUserOperation(ctx context.Context, req aasdk.ZeroDevSponsorRequest) (*aasdk.SponsorResponse, error) {
	op, err := aasdk.UserOperationFromBody(req.UserOp)
	if err != nil {
		return nil, reject(codeInvalidParams, "%v", err)
	}
	return api.b.sponsor(ctx, op, req.EntryPointAddress, new(big.Int).SetUint64(req.ChainId))
}

// pmAPI serves ERC-7677.
type pmAPI struct {
	b *Backend
}

func (api *pmAPI) GetPaymasterData(ctx context.Context, body map[string]string, entryPoint common.Address, chainId *hexutil.Big, _ map[string]any) (*aasdk.SponsorResponse, error) {
	op, err := aasdk.UserOperationFromBody(body)
	if err != nil {
		return nil, reject(codeInvalidParams, "%v", err)
	}
	return api.b.sponsor(ctx, op, entryPoint, chainId.ToInt())
}

func (b *Backend) sponsor(ctx context.Context, op *aasdk.UserOperation, entryPoint common.Address, chainId *big.Int) (*aasdk.SponsorResponse, error) {
	if b.rejectSponsorship.Load() {
		return nil, reject(CodeSponsorshipRejected, sponsorshipRejectedMessage)
	}
	if entryPoint != b.addrs.EntryPoint {
		return nil, reject(codeInvalidParams, "unsupported entrypoint %s", entryPoint.Hex())
	}
	if chainId == nil || chainId.Cmp(b.chainId) != 0 {
		return nil, reject(codeInvalidParams, "unsupported chain %v", chainId)
	}
	result, err := b.paymaster.SponsorUserOperation(ctx, op, entryPoint, b.chainId)
	if err != nil {
		return nil, reject(codePaymasterRejected, "%v", err)
	}
	return &aasdk.SponsorResponse{
		Paymaster:                     result.Paymaster,
		PaymasterData:                 result.PaymasterData,
		PaymasterVerificationGasLimit: (*hexutil.Big)(result.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       (*hexutil.Big)(result.PaymasterPostOpGasLimit),
	}, nil
}

// estimate checks deployment and nonce, then returns fixed gas limits sized
// by the work the operation does.
func (b *Backend) estimate(op *aasdk.UserOperation, entryPoint common.Address) (*GasEstimate, error) {
	if entryPoint != b.addrs.EntryPoint {
		return nil, reject(codeInvalidParams, "unsupported entrypoint %s", entryPoint.Hex())
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	_, deployed := b.accounts[op.Sender]
	if op.Factory == (common.Address{}) && !deployed {
		return nil, reject(codeRejected, "AA20 account not deployed")
	}
	key, seq := kernel.DecodeNonce(op.Nonce)
	if want := b.nonceOf(op.Sender, key.Big()); seq != want {
		return nil, reject(codeRejected, "AA25 invalid account nonce: have %d, want %d", seq, want)
	}
	calls, err := kernel.DecodeExecute(op.CallData)
	if err != nil {
		return nil, reject(codeRejected, "AA23 reverted: %v", err)
	}

	verification := int64(150000)
	if op.Factory != (common.Address{}) {
		verification += 250000
	}
	if key.Mode == kernel.ValidationModeEnable {
		verification += 200000
	}
	estimate := &GasEstimate{
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50000 + 16*int64(len(op.CallData)))),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(verification)),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(executionGas * int64(len(calls)+1))),
	}
	if op.Paymaster != (common.Address{}) {
		estimate.PaymasterVerificationGasLimit = (*hexutil.Big)(big.NewInt(aasdk.DefaultPaymasterVerificationGasLimit))
		estimate.PaymasterPostOpGasLimit = (*hexutil.Big)(big.NewInt(aasdk.DefaultPaymasterPostOpGasLimit))
	}
	return estimate, nil
}

// call serves eth_call against the simulated contracts.
func (b *Backend) call(to common.Address, input []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch to {
	case b.addrs.EntryPoint:
		return b.callEntryPoint(input)
	case b.addrs.Factory:
		return b.callFactory(input)
	}
	if acct, ok := b.accounts[to]; ok {
		return b.callAccount(acct, input)
	}
	if contract, ok := b.contracts[to]; ok {
		return contract.Call(&CallEnv{ReadOnly: true, Value: new(big.Int), address: to}, input)
	}
	return nil, nil
}

func unpackCall(parsed *abi.ABI, input []byte) (*abi.Method, []any, error) {
	if len(input) < 4 {
		return nil, nil, fmt.Errorf("%w: no selector", ErrReverted)
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown selector %x", ErrReverted, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrReverted, err)
	}
	return method, args, nil
}

func (b *Backend) callEntryPoint(input []byte) ([]byte, error) {
	method, args, err := unpackCall(b.entryPointABI, input)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getNonce":
		sender, key := args[0].(common.Address), args[1].(*big.Int)
		nonce := new(big.Int).Lsh(key, 64)
		nonce.Or(nonce, new(big.Int).SetUint64(b.nonceOf(sender, key)))
		return method.Outputs.Pack(nonce)
	case "balanceOf":
		return method.Outputs.Pack(b.depositOf(args[0].(common.Address)))
	}
	return nil, fmt.Errorf("%w: %s not supported", ErrReverted, method.Name)
}

func (b *Backend) callFactory(input []byte) ([]byte, error) {
	method, args, err := unpackCall(b.factoryABI, input)
	if err != nil {
		return nil, err
	}
	if method.Name != "getAddress" {
		return nil, fmt.Errorf("%w: %s not supported", ErrReverted, method.Name)
	}
	return method.Outputs.Pack(b.AccountAddress(args[0].([]byte), args[1].([32]byte)))
}

func (b *Backend) callAccount(acct *kernelAccount, input []byte) ([]byte, error) {
	method, args, err := unpackCall(b.accountABI, input)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "currentNonce":
		return method.Outputs.Pack(acct.currentNonce)
	case "validNonceFrom":
		return method.Outputs.Pack(acct.validNonceFrom)
	case "rootValidator":
		return method.Outputs.Pack([21]byte(acct.rootValidator))
	case "validationConfig":
		vId := kernel.ValidationId(args[0].([21]byte))
		if vId == acct.rootValidator {
			return method.Outputs.Pack(uint32(1), kernel.OneAddress)
		}
		if v, ok := acct.validations[vId]; ok {
			return method.Outputs.Pack(v.nonce, v.hook)
		}
		return method.Outputs.Pack(uint32(0), common.Address{})
	}
	return nil, fmt.Errorf("%w: %s is not a view", ErrReverted, method.Name)
}
