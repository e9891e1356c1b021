package aasdk

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
)

var (
	DefaultCallGasLimit                  = int64(2000000)
	DefaultVerificationGasLimit          = int64(200000)
	DefaultPreVerificationGas            = int64(20000)
	DefaultMaxFeePerGas                  = int64(25e9)
	DefaultMaxPriorityFeePerGas          = int64(1000000)
	DefaultPaymasterVerificationGasLimit = int64(3e5)
	DefaultPaymasterPostOpGasLimit       = int64(100)
)

func NewUserOpWithDefault(sender common.Address, calldata []byte) *UserOperation {
	return &UserOperation{
		Sender:               sender,
		CallData:             calldata,
		CallGasLimit:         big.NewInt(DefaultCallGasLimit),
		VerificationGasLimit: big.NewInt(DefaultVerificationGasLimit),
		PreVerificationGas:   big.NewInt(DefaultPreVerificationGas),
		MaxFeePerGas:         big.NewInt(DefaultMaxFeePerGas),
		MaxPriorityFeePerGas: big.NewInt(DefaultMaxPriorityFeePerGas),
	}
}

// UserOperation represents the base structure for operations by ERC-4337
// Supported EntryPoint V0.7.0
type UserOperation struct {
	Sender                        common.Address `json:"sender"`
	Nonce                         *big.Int       `json:"nonce"`
	CallData                      []byte         `json:"callData"`
	CallGasLimit                  *big.Int       `json:"callGasLimit"`
	VerificationGasLimit          *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas            *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas                  *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *big.Int       `json:"maxPriorityFeePerGas"`
	Signature                     []byte         `json:"signature"`
	Paymaster                     common.Address `json:"paymaster"`
	PaymasterData                 []byte         `json:"paymasterData"`
	PaymasterVerificationGasLimit *big.Int       `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *big.Int       `json:"paymasterPostOpGasLimit"`
	Factory                       common.Address `json:"factory"`
	FactoryData                   []byte         `json:"factoryData"`
}

// InitCode returns factory ++ factoryData, or nothing for deployed accounts.
func (u *UserOperation) InitCode() []byte {
	if u.Factory == (common.Address{}) {
		return []byte{}
	}
	return append(u.Factory.Bytes(), u.FactoryData...)
}

// Copy returns a deep copy of the operation.
func (u *UserOperation) Copy() *UserOperation {
	cp := *u
	cp.Nonce = copyBig(u.Nonce)
	cp.CallData = common.CopyBytes(u.CallData)
	cp.CallGasLimit = copyBig(u.CallGasLimit)
	cp.VerificationGasLimit = copyBig(u.VerificationGasLimit)
	cp.PreVerificationGas = copyBig(u.PreVerificationGas)
	cp.MaxFeePerGas = copyBig(u.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = copyBig(u.MaxPriorityFeePerGas)
	cp.Signature = common.CopyBytes(u.Signature)
	cp.PaymasterData = common.CopyBytes(u.PaymasterData)
	cp.PaymasterVerificationGasLimit = copyBig(u.PaymasterVerificationGasLimit)
	cp.PaymasterPostOpGasLimit = copyBig(u.PaymasterPostOpGasLimit)
	cp.FactoryData = common.CopyBytes(u.FactoryData)
	return &cp
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}

// ToBody converts the UserOperation to a map of strings.
// It helps to perform json request.
func (u *UserOperation) ToBody() map[string]string {
	body := make(map[string]string)
	if u.Sender != (common.Address{}) {
		body["sender"] = u.Sender.Hex()
	}
	if u.Nonce != nil {
		body["nonce"] = "0x" + u.Nonce.Text(16)
	}
	body["callData"] = "0x" + hex.EncodeToString(u.CallData)
	if u.CallGasLimit != nil {
		body["callGasLimit"] = "0x" + u.CallGasLimit.Text(16)
	}
	if u.VerificationGasLimit != nil {
		body["verificationGasLimit"] = "0x" + u.VerificationGasLimit.Text(16)
	}
	if u.PreVerificationGas != nil {
		body["preVerificationGas"] = "0x" + u.PreVerificationGas.Text(16)
	}
	if u.MaxFeePerGas != nil {
		body["maxFeePerGas"] = "0x" + u.MaxFeePerGas.Text(16)
	}
	if u.MaxPriorityFeePerGas != nil {
		body["maxPriorityFeePerGas"] = "0x" + u.MaxPriorityFeePerGas.Text(16)
	}
	body["signature"] = "0x" + hex.EncodeToString(u.Signature)
	if u.Paymaster != (common.Address{}) {
		body["paymaster"] = u.Paymaster.Hex()
		body["paymasterData"] = "0x" + hex.EncodeToString(u.PaymasterData)
	}
	if u.PaymasterVerificationGasLimit != nil {
		body["paymasterVerificationGasLimit"] = "0x" + u.PaymasterVerificationGasLimit.Text(16)
	}
	if u.PaymasterPostOpGasLimit != nil {
		body["paymasterPostOpGasLimit"] = "0x" + u.PaymasterPostOpGasLimit.Text(16)
	}
	if u.Factory != (common.Address{}) {
		body["factory"] = u.Factory.Hex()
		body["factoryData"] = "0x" + hex.EncodeToString(u.FactoryData)
	}
	return body
}

// UserOperationFromBody parses the map produced by ToBody.
func UserOperationFromBody(body map[string]string) (*UserOperation, error) {
	u := &UserOperation{}
	var err error
	parseAddr := func(key string) common.Address {
		v, ok := body[key]
		if !ok || err != nil {
			return common.Address{}
		}
		if !common.IsHexAddress(v) {
			err = fmt.Errorf("invalid %s: %q", key, v)
			return common.Address{}
		}
		return common.HexToAddress(v)
	}
	parseBytes := func(key string) []byte {
		v, ok := body[key]
		if !ok || err != nil {
			return nil
		}
		b, decErr := hexutil.Decode(v)
		if decErr != nil {
			err = fmt.Errorf("invalid %s: %w", key, decErr)
		}
		return b
	}
	parseBig := func(key string) *big.Int {
		v, ok := body[key]
		if !ok || err != nil {
			return nil
		}
		b, decErr := hexutil.DecodeBig(v)
		if decErr != nil {
			err = fmt.Errorf("invalid %s: %w", key, decErr)
		}
		return b
	}

	u.Sender = parseAddr("sender")
	u.Nonce = parseBig("nonce")
	u.CallData = parseBytes("callData")
	u.CallGasLimit = parseBig("callGasLimit")
	u.VerificationGasLimit = parseBig("verificationGasLimit")
	u.PreVerificationGas = parseBig("preVerificationGas")
	u.MaxFeePerGas = parseBig("maxFeePerGas")
	u.MaxPriorityFeePerGas = parseBig("maxPriorityFeePerGas")
	u.Signature = parseBytes("signature")
	u.Paymaster = parseAddr("paymaster")
	u.PaymasterData = parseBytes("paymasterData")
	u.PaymasterVerificationGasLimit = parseBig("paymasterVerificationGasLimit")
	u.PaymasterPostOpGasLimit = parseBig("paymasterPostOpGasLimit")
	u.Factory = parseAddr("factory")
	u.FactoryData = parseBytes("factoryData")
	if err != nil {
		return nil, err
	}
	if u.Sender == (common.Address{}) || u.Nonce == nil {
		return nil, fmt.Errorf("user operation requires sender and nonce")
	}
	return u, nil
}

// TxReceipt is the receipt of the bundle transaction that included the operation.
type TxReceipt struct {
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       string         `json:"blockNumber"`
	From              common.Address `json:"from"`
	CumulativeGasUsed string         `json:"cumulativeGasUsed"`
	GasUsed           string         `json:"gasUsed"`
	Logs              []*types.Log   `json:"logs"`
	LogsBloom         types.Bloom    `json:"logsBloom"`
	TransactionHash   common.Hash    `json:"transactionHash"`
	TransactionIndex  string         `json:"transactionIndex"`
	EffectiveGasPrice string         `json:"effectiveGasPrice"`
}

type UserOpReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	EntryPoint    common.Address `json:"entryPoint"`
	Sender        common.Address `json:"sender"`
	Paymaster     common.Address `json:"paymaster"`
	Nonce         string         `json:"nonce"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	ActualGasCost string         `json:"actualGasCost"`
	ActualGasUsed string         `json:"actualGasUsed"`
	Receipt       *TxReceipt     `json:"receipt"`
	Logs          []*types.Log   `json:"logs"`
}

// TxHash returns the hash of the bundle transaction, or the zero hash when
// the bundler left the transaction receipt out.
func (r *UserOpReceipt) TxHash() common.Hash {
	if r == nil || r.Receipt == nil {
		return common.Hash{}
	}
	return r.Receipt.TransactionHash
}

// GasEstimates provides estimate values for all gas fields in a UserOperation.
type GasEstimates struct {
	PreVerificationGas            *big.Int `json:"preVerificationGas"`
	VerificationGasLimit          *big.Int `json:"verificationGasLimit"`
	CallGasLimit                  *big.Int `json:"callGasLimit"`
	PaymasterVerificationGasLimit *big.Int `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *big.Int `json:"paymasterPostOpGasLimit"`
}

// SmartAccount is an account able to wrap calls into user operations and
// sign them.
type SmartAccount interface {
	Address() common.Address
	// EncodeCalls returns the account call data executing calls.
	EncodeCalls(calls ...kernel.Call) ([]byte, error)
	// NonceKey returns the EntryPoint nonce key of the next operation.
	NonceKey(ctx context.Context) (*big.Int, error)
	// FactoryArgs returns the deployment arguments, empty once deployed.
	FactoryArgs(ctx context.Context) (common.Address, []byte, error)
	// DummySignature has the shape of a real signature for gas estimation.
	DummySignature(op *UserOperation) ([]byte, error)
	SignUserOperation(ctx context.Context, op *UserOperation) ([]byte, error)
}

type Bundler interface {
	// SendSignedUserOperation submits an already signed user operation.
	SendSignedUserOperation(ctx context.Context, userOp *UserOperation) (common.Hash, error)

	// EstimateUserOpGas estimates the gas needed for the user operation.
	EstimateUserOpGas(ctx context.Context, userOp *UserOperation) (*GasEstimates, error)

	// GetUserOpReceipt returns the receipt of the user operation.
	GetUserOpReceipt(ctx context.Context, userOpHash common.Hash) (*UserOpReceipt, error)

	// SupportedEntryPoints returns the supported entry points for the bundler.
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}
