package aasdk

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/entrypoint"
)

// IsAccountDeployed checks if the account is deployed by querying its bytecode
func IsAccountDeployed(ctx context.Context, client bind.ContractCaller, address common.Address) (bool, error) {
	code, err := client.CodeAt(ctx, address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// GetUserOpHash returns the EntryPoint v0.7 hash of a packed user operation.
func GetUserOpHash(packed *entrypoint.PackedUserOperation, entrypoint common.Address, chainId *big.Int) (common.Hash, error) {
	hashed, err := HashedUserOp(packed)
	if err != nil {
		return common.Hash{}, err
	}
	hashArgs := abi.Arguments{
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, // userOp.hash
		{Type: abi.Type{T: abi.AddressTy}},              // entrypoint address
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      // chainID
	}
	packedHash, err := hashArgs.Pack(hashed, entrypoint, chainId)
	if err != nil {
		return common.Hash{}, err
	}
	// Compute final Keccak-256 hash
	return crypto.Keccak256Hash(packedHash), nil
}

// HashedUserOp hashes the operation fields without entrypoint and chain id.
func HashedUserOp(userOp *entrypoint.PackedUserOperation) (common.Hash, error) {
	arguments := abi.Arguments{
		{Type: abi.Type{T: abi.AddressTy}},              // sender
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      // nonce
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, // hashInitCode
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, // hashCallData
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, // accountGasLimits
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      // preVerificationGas
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, // gasFees
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, // hashPaymasterAndData
	}

	// Compute hashes for dynamic fields
	hashInitCode := crypto.Keccak256Hash(userOp.InitCode)
	hashCallData := crypto.Keccak256Hash(userOp.CallData)
	hashPaymasterAndData := crypto.Keccak256Hash(userOp.PaymasterAndData)

	packed, err := arguments.Pack(
		userOp.Sender,
		userOp.Nonce,
		hashInitCode,
		hashCallData,
		userOp.AccountGasLimits,
		userOp.PreVerificationGas,
		userOp.GasFees,
		hashPaymasterAndData,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// PackInt packs two big.Ints into a common.Hash.
// The first 16 bytes are the first big.Int and the last 16 bytes are the second big.Int.
// If one of the big.Ints is nil, it will be padded with zeros.
// It panics if both big.Ints are nil.
func PackInt(a *big.Int, b *big.Int) common.Hash {
	if a == nil || b == nil {
		panic("nil data")
	}
	var result common.Hash
	copy(result[:], append(
		common.LeftPadBytes(a.Bytes(), 16),
		common.LeftPadBytes(b.Bytes(), 16)...,
	))
	return result
}

// PackUserOperation packs a user operation into a PackedUserOperation.
// It panics if the user operation is nil.
func PackUserOperation(userOp *UserOperation) entrypoint.PackedUserOperation {
	if userOp == nil {
		panic("nil user operation")
	}
	var paymasterAndData []byte
	if userOp.Paymaster != (common.Address{}) {
		paymasterAndData = PackPaymasterAndData(
			userOp.Paymaster,
			orZero(userOp.PaymasterVerificationGasLimit),
			orZero(userOp.PaymasterPostOpGasLimit),
			userOp.PaymasterData,
		)
	}
	return entrypoint.PackedUserOperation{
		Sender:             userOp.Sender,
		Nonce:              orZero(userOp.Nonce),
		InitCode:           userOp.InitCode(),
		CallData:           userOp.CallData,
		AccountGasLimits:   PackInt(orZero(userOp.VerificationGasLimit), orZero(userOp.CallGasLimit)),
		PreVerificationGas: orZero(userOp.PreVerificationGas),
		GasFees:            PackInt(orZero(userOp.MaxPriorityFeePerGas), orZero(userOp.MaxFeePerGas)),
		PaymasterAndData:   paymasterAndData,
		Signature:          userOp.Signature,
	}
}

// UserOpHash returns the hash the account signs for userOp.
func UserOpHash(userOp *UserOperation, entrypoint common.Address, chainId *big.Int) (common.Hash, error) {
	packed := PackUserOperation(userOp)
	return GetUserOpHash(&packed, entrypoint, chainId)
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}
