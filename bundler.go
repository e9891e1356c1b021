package aasdk

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

var _ Bundler = &Client{}

func (c *Client) GetUserOpReceipt(ctx context.Context, hash common.Hash) (*UserOpReceipt, error) {
	var receipt *UserOpReceipt
	if err := c.bundler.call(ctx, "eth_getUserOperationReceipt", []any{hash}, &receipt); err != nil {
		return nil, fmt.Errorf("error getting user operation receipt: %w", err)
	}
	return receipt, nil
}

func (c *Client) EstimateUserOpGas(ctx context.Context, userOp *UserOperation) (*GasEstimates, error) {
	var response struct {
		PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
		VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
		CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
		PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit"`
		PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit"`
	}
	if err := c.bundler.call(ctx, "eth_estimateUserOperationGas", []any{userOp.ToBody(), c.config.Entrypoint}, &response); err != nil {
		return nil, fmt.Errorf("error estimating user operation gas: %w", err)
	}
	if response.CallGasLimit == nil || response.VerificationGasLimit == nil || response.PreVerificationGas == nil {
		return nil, fmt.Errorf("incomplete gas estimates response")
	}
	return &GasEstimates{
		PreVerificationGas:            response.PreVerificationGas.ToInt(),
		VerificationGasLimit:          response.VerificationGasLimit.ToInt(),
		CallGasLimit:                  response.CallGasLimit.ToInt(),
		PaymasterVerificationGasLimit: bigOrNil(response.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       bigOrNil(response.PaymasterPostOpGasLimit),
	}, nil
}

func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entryPoints []common.Address
	if err := c.bundler.call(ctx, "eth_supportedEntryPoints", nil, &entryPoints); err != nil {
		return nil, fmt.Errorf("error getting supported entry points: %w", err)
	}
	return entryPoints, nil
}

// SendSignedUserOperation submits userOp as is.
func (c *Client) SendSignedUserOperation(ctx context.Context, userOp *UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := c.bundler.call(ctx, "eth_sendUserOperation", []any{userOp.ToBody(), c.config.Entrypoint}, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("error sending user operation: %w", err)
	}
	c.logger.Sugar().Infow("user operation sent", "hash", hash.Hex(), "sender", userOp.Sender.Hex(), "nonce", userOp.Nonce.String())
	return hash, nil
}

// SendUserOperation prepares, sponsors, signs and submits an operation
// executing calls through account.
func (c *Client) SendUserOperation(ctx context.Context, account SmartAccount, calls ...Call) (common.Hash, error) {
	op, err := c.PrepareUserOperation(ctx, account, calls...)
	if err != nil {
		return common.Hash{}, err
	}
	if c.paymaster != nil {
		if op, err = c.SponsorUserOperation(ctx, op); err != nil {
			return common.Hash{}, err
		}
	}
	if op.Signature, err = account.SignUserOperation(ctx, op); err != nil {
		return common.Hash{}, fmt.Errorf("error signing user operation: %w", err)
	}
	return c.SendSignedUserOperation(ctx, op)
}

// WaitForUserOperation polls the bundler until the receipt is available or
// the configured timeout expires.
func (c *Client) WaitForUserOperation(ctx context.Context, hash common.Hash) (*UserOpReceipt, error) {
	ticker := time.NewTicker(c.config.WaitReceiptInterval)
	defer ticker.Stop()
	ctx, cancel := context.WithTimeout(ctx, c.config.WaitReceiptTimeout)
	defer cancel()
	for {
		select {
		case <-ticker.C:
			receipt, err := c.GetUserOpReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
				}
				return nil, err
			}
			if receipt != nil {
				c.logger.Info("user operation included",
					zap.String("hash", hash.Hex()),
					zap.Bool("success", receipt.Success),
				)
				return receipt, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		}
	}
}

func bigOrNil(b *hexutil.Big) *big.Int {
	if b == nil {
		return nil
	}
	return b.ToInt()
}
