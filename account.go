package aasdk

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/account"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/kernel"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/permission"
)

// Call is a single action executed by a smart account.
type Call = kernel.Call

// dummyECDSASignature has a valid shape and recovers to some address, so
// bundlers can simulate validation before the real signature exists.
var dummyECDSASignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// permissionSignaturePrefix marks the signer part of a permission signature
// when no policy needs its own signature.
const permissionSignaturePrefix = 0xff

type accountOptions struct {
	index uint64
}

type AccountOption func(*accountOptions)

// WithIndex selects the account index, used as factory salt.
func WithIndex(index uint64) AccountOption {
	return func(o *accountOptions) {
		o.index = index
	}
}

// KernelAccount is a Kernel v3.1 account. Root accounts sign with the owner
// through the ECDSA validator. Session accounts sign with a session key
// through a permission and are limited by its policies.
type KernelAccount struct {
	client   *Client
	address  common.Address
	owner    common.Address
	index    uint64
	initData []byte
	signer   Signer

	permission *permission.Permission
	approval   *Approval
}

var _ SmartAccount = (*KernelAccount)(nil)

func (a *KernelAccount) Address() common.Address {
	return a.address
}

// Owner is the address of the root ECDSA validator owner.
func (a *KernelAccount) Owner() common.Address {
	return a.owner
}

func (a *KernelAccount) Index() uint64 {
	return a.index
}

// Signer returns the key signing user operations for this handle.
func (a *KernelAccount) Signer() Signer {
	return a.signer
}

// Permission is nil for root accounts.
func (a *KernelAccount) Permission() *permission.Permission {
	return a.permission
}

func (a *KernelAccount) IsSession() bool {
	return a.permission != nil
}

func (a *KernelAccount) IsDeployed(ctx context.Context) (bool, error) {
	return IsAccountDeployed(ctx, a.client.eth, a.address)
}

// EncodeCalls checks calls against the permission of session accounts and
// encodes them as Kernel execute call data.
func (a *KernelAccount) EncodeCalls(calls ...Call) ([]byte, error) {
	if a.permission != nil {
		if err := a.permission.Check(calls...); err != nil {
			return nil, err
		}
	}
	return kernel.EncodeExecute(calls...)
}

// NonceKey routes root accounts to the root validator. Session accounts use
// enable mode until their permission is installed on the account.
func (a *KernelAccount) NonceKey(ctx context.Context) (*big.Int, error) {
	if a.permission == nil {
		key := kernel.NewValidatorNonceKey(kernel.ValidationModeDefault, kernel.ValidationTypeRoot, a.client.config.Kernel.ECDSAValidator)
		return key.Big(), nil
	}
	vId, err := a.permission.ValidationId()
	if err != nil {
		return nil, err
	}
	installed, err := a.isInstalled(ctx, vId)
	if err != nil {
		return nil, err
	}
	mode := kernel.ValidationModeEnable
	if installed {
		mode = kernel.ValidationModeDefault
	}
	return vId.NonceKey(mode).Big(), nil
}

func (a *KernelAccount) isInstalled(ctx context.Context, vId kernel.ValidationId) (bool, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil || !deployed {
		return false, err
	}
	binding, err := account.NewKernel(a.address, a.client.eth)
	if err != nil {
		return false, err
	}
	opts := &bind.CallOpts{Context: ctx}
	config, err := binding.ValidationConfig(opts, vId)
	if err != nil {
		return false, fmt.Errorf("error reading validation config: %w", err)
	}
	if config.Hook == (common.Address{}) {
		return false, nil
	}
	validFrom, err := binding.ValidNonceFrom(opts)
	if err != nil {
		return false, fmt.Errorf("error reading valid nonce: %w", err)
	}
	return config.Nonce >= validFrom, nil
}

// CurrentNonce returns the validation nonce enable signatures are bound to.
// Undeployed accounts start at 1.
func (a *KernelAccount) CurrentNonce(ctx context.Context) (uint32, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return 0, err
	}
	if !deployed {
		return 1, nil
	}
	binding, err := account.NewKernel(a.address, a.client.eth)
	if err != nil {
		return 0, err
	}
	nonce, err := binding.CurrentNonce(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("error reading current nonce: %w", err)
	}
	return nonce, nil
}

// FactoryArgs returns the meta factory call deploying the account, or
// nothing once the account has code.
func (a *KernelAccount) FactoryArgs(ctx context.Context) (common.Address, []byte, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("error checking if account is deployed: %w", err)
	}
	if deployed {
		return common.Address{}, nil, nil
	}
	data, err := kernel.FactoryData(a.client.config.Kernel, a.initData, kernel.Salt(a.index))
	if err != nil {
		return common.Address{}, nil, err
	}
	return a.client.config.Kernel.MetaFactory, data, nil
}

func (a *KernelAccount) DummySignature(op *UserOperation) ([]byte, error) {
	return a.wrapSignature(op, dummyECDSASignature)
}

// SignUserOperation signs the EntryPoint hash of op with the account signer.
func (a *KernelAccount) SignUserOperation(ctx context.Context, op *UserOperation) ([]byte, error) {
	hash, err := UserOpHash(op, a.client.config.Entrypoint, a.client.chainId)
	if err != nil {
		return nil, fmt.Errorf("error hashing user operation: %w", err)
	}
	sig, err := a.signer.SignMessage(hash.Bytes())
	if err != nil {
		return nil, err
	}
	return a.wrapSignature(op, sig)
}

// wrapSignature lays out the signer signature for the validation mode the
// operation nonce selects.
func (a *KernelAccount) wrapSignature(op *UserOperation, sig []byte) ([]byte, error) {
	if a.permission == nil {
		return sig, nil
	}
	userOpSig := append([]byte{permissionSignaturePrefix}, sig...)
	if op.Nonce == nil {
		return userOpSig, nil
	}
	key, _ := kernel.DecodeNonce(op.Nonce)
	if key.Mode != kernel.ValidationModeEnable {
		return userOpSig, nil
	}
	if a.approval == nil {
		return nil, fmt.Errorf("%w: enable mode without approval", ErrInvalidApproval)
	}
	return kernel.EncodeEnableSignature(kernel.EnableSignature{
		Hook:          kernel.OneAddress,
		ValidatorData: a.approval.ValidatorData,
		SelectorData:  a.approval.SelectorData,
		EnableSig:     a.approval.EnableSignature,
		UserOpSig:     userOpSig,
	})
}
