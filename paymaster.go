package aasdk

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Paymaster sponsors user operations by filling their paymaster fields.
type Paymaster interface {
	SponsorUserOperation(ctx context.Context, userOp *UserOperation, entryPoint common.Address, chainId *big.Int) (*SponsorResult, error)
}

// SponsorResult holds the paymaster fields and, when the service estimated
// them, the gas values of a sponsored operation.
type SponsorResult struct {
	Paymaster                     common.Address
	PaymasterData                 []byte
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Apply writes the sponsorship into userOp. Nil gas values leave the
// operation untouched.
func (r *SponsorResult) Apply(userOp *UserOperation) *UserOperation {
	userOp.Paymaster = r.Paymaster
	userOp.PaymasterData = r.PaymasterData
	setIfNotNil(&userOp.PaymasterVerificationGasLimit, r.PaymasterVerificationGasLimit)
	setIfNotNil(&userOp.PaymasterPostOpGasLimit, r.PaymasterPostOpGasLimit)
	setIfNotNil(&userOp.CallGasLimit, r.CallGasLimit)
	setIfNotNil(&userOp.VerificationGasLimit, r.VerificationGasLimit)
	setIfNotNil(&userOp.PreVerificationGas, r.PreVerificationGas)
	setIfNotNil(&userOp.MaxFeePerGas, r.MaxFeePerGas)
	setIfNotNil(&userOp.MaxPriorityFeePerGas, r.MaxPriorityFeePerGas)
	return userOp
}

func setIfNotNil(dst **big.Int, v *big.Int) {
	if v != nil {
		*dst = new(big.Int).Set(v)
	}
}

// SponsorResponse is the JSON result of zd_sponsorUserOperation and
// pm_getPaymasterData.
type SponsorResponse struct {
	Paymaster                     common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes  `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big   `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big   `json:"paymasterPostOpGasLimit,omitempty"`
	CallGasLimit                  *hexutil.Big   `json:"callGasLimit,omitempty"`
	VerificationGasLimit          *hexutil.Big   `json:"verificationGasLimit,omitempty"`
	PreVerificationGas            *hexutil.Big   `json:"preVerificationGas,omitempty"`
	MaxFeePerGas                  *hexutil.Big   `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas          *hexutil.Big   `json:"maxPriorityFeePerGas,omitempty"`
}

func (r *SponsorResponse) result() *SponsorResult {
	return &SponsorResult{
		Paymaster:                     r.Paymaster,
		PaymasterData:                 r.PaymasterData,
		PaymasterVerificationGasLimit: bigOrNil(r.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       bigOrNil(r.PaymasterPostOpGasLimit),
		CallGasLimit:                  bigOrNil(r.CallGasLimit),
		VerificationGasLimit:          bigOrNil(r.VerificationGasLimit),
		PreVerificationGas:            bigOrNil(r.PreVerificationGas),
		MaxFeePerGas:                  bigOrNil(r.MaxFeePerGas),
		MaxPriorityFeePerGas:          bigOrNil(r.MaxPriorityFeePerGas),
	}
}

// ZeroDevSponsorRequest is the single parameter of zd_sponsorUserOperation.
type ZeroDevSponsorRequest struct {
	ChainId             uint64            `json:"chainId"`
	UserOp              map[string]string `json:"userOp"`
	EntryPointAddress   common.Address    `json:"entryPointAddress"`
	ShouldOverrideFee   bool              `json:"shouldOverrideFee"`
	ManualGasEstimation bool              `json:"manualGasEstimation"`
	ShouldConsume       bool              `json:"shouldConsume"`
}

// ZeroDevPaymaster talks to the ZeroDev paymaster api.
type ZeroDevPaymaster struct {
	transport *rpcTransport
}

var _ Paymaster = (*ZeroDevPaymaster)(nil)

func NewZeroDevPaymaster(url string) *ZeroDevPaymaster {
	return &ZeroDevPaymaster{transport: newRpcTransport(url, http.DefaultClient, new(atomic.Uint64), nil, zap.NewNop())}
}

func (p *ZeroDevPaymaster) SponsorUserOperation(ctx context.Context, userOp *UserOperation, entryPoint common.Address, chainId *big.Int) (*SponsorResult, error) {
	request := ZeroDevSponsorRequest{
		ChainId:           chainId.Uint64(),
		UserOp:            userOp.ToBody(),
		EntryPointAddress: entryPoint,
		ShouldConsume:     true,
	}
	var response SponsorResponse
	if err := p.transport.call(ctx, "zd_sponsorUserOperation", []any{request}, &response); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSponsorshipRejected, err)
	}
	if response.Paymaster == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty paymaster in response", ErrSponsorshipRejected)
	}
	return response.result(), nil
}

// ERC7677Paymaster speaks the pm_getPaymasterData method of ERC-7677.
type ERC7677Paymaster struct {
	transport *rpcTransport
	// Context is passed through to the paymaster service, e.g. a sponsorship policy id.
	Context map[string]any
}

var _ Paymaster = (*ERC7677Paymaster)(nil)

func NewERC7677Paymaster(url string) *ERC7677Paymaster {
	return &ERC7677Paymaster{transport: newRpcTransport(url, http.DefaultClient, new(atomic.Uint64), nil, zap.NewNop())}
}

func (p *ERC7677Paymaster) SponsorUserOperation(ctx context.Context, userOp *UserOperation, entryPoint common.Address, chainId *big.Int) (*SponsorResult, error) {
	pmContext := p.Context
	if pmContext == nil {
		pmContext = map[string]any{}
	}
	params := []any{userOp.ToBody(), entryPoint, hexutil.EncodeBig(chainId), pmContext}
	var response SponsorResponse
	if err := p.transport.call(ctx, "pm_getPaymasterData", params, &response); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSponsorshipRejected, err)
	}
	if response.Paymaster == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty paymaster in response", ErrSponsorshipRejected)
	}
	return response.result(), nil
}
