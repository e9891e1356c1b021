package aasdk

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/entrypoint"
)

const (
	PaymasterValidationGasOffset = 20
	PaymasterPostOpGasOffset     = 36
	PaymasterDataOffset          = 52
)

var (
	EmptySignature = make([]byte, 65)

	paymasterValidityArgs = abi.Arguments{
		{Type: abi.Type{T: abi.UintTy, Size: 48}},
		{Type: abi.Type{T: abi.UintTy, Size: 48}},
	}
)

// GetPaymasterHash returns the hash to sign for a user operation
func GetPaymasterHash(
	packedUserOp *entrypoint.PackedUserOperation,
	chainId *big.Int,
	validUntil *big.Int,
	validAfter *big.Int,
) (common.Hash, error) {
	if len(packedUserOp.PaymasterAndData) < PaymasterDataOffset {
		return common.Hash{}, fmt.Errorf("paymasterAndData too short: %d bytes", len(packedUserOp.PaymasterAndData))
	}
	paymaster := common.BytesToAddress(packedUserOp.PaymasterAndData[:PaymasterValidationGasOffset])
	args := abi.Arguments{
		{Type: abi.Type{T: abi.AddressTy}},              //	sender
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      //	nonce
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, //	initCode
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, //	callData
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, //	accountGasLimits
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      //	paymasterValidationGas
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      //	preVerificationGas
		{Type: abi.Type{T: abi.FixedBytesTy, Size: 32}}, //	gasFees
		{Type: abi.Type{T: abi.UintTy, Size: 256}},      //	chainId
		{Type: abi.Type{T: abi.AddressTy}},              //	paymaster's address
		{Type: abi.Type{T: abi.UintTy, Size: 48}},       //	validUntil
		{Type: abi.Type{T: abi.UintTy, Size: 48}},       //	validAfter
	}

	packed, err := args.Pack(
		packedUserOp.Sender,
		packedUserOp.Nonce,
		crypto.Keccak256Hash(packedUserOp.InitCode),
		crypto.Keccak256Hash(packedUserOp.CallData),
		packedUserOp.AccountGasLimits,
		new(big.Int).SetBytes(packedUserOp.PaymasterAndData[PaymasterValidationGasOffset:PaymasterDataOffset]),
		packedUserOp.PreVerificationGas,
		packedUserOp.GasFees,
		chainId,
		paymaster,
		validUntil,
		validAfter,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack error in GetPaymasterHash: %w", err)
	}

	return crypto.Keccak256Hash(packed), nil
}

// PackPaymasterAndData constructs paymasterAndData field
func PackPaymasterAndData(paymaster common.Address, verGasLimit, postOpGasLimit *big.Int, data []byte) []byte {
	// Convert gas limits to 16-byte padded slices
	verGasBytes := common.LeftPadBytes(verGasLimit.Bytes(), 16)
	postOpGasBytes := common.LeftPadBytes(postOpGasLimit.Bytes(), 16)

	length := len(paymaster) + len(verGasBytes) + len(postOpGasBytes) + len(data)
	result := make([]byte, 0, length)
	result = append(result, paymaster[:]...)   // 20 bytes
	result = append(result, verGasBytes...)    // 16 bytes
	result = append(result, postOpGasBytes...) // 16 bytes
	result = append(result, data...)           // variable length

	return result
}

// EncodePaymasterData encodes validUntil, validAfter, and signature into a byte array
func EncodePaymasterData(validUntil, validAfter *big.Int, signature []byte) ([]byte, error) {
	data, err := paymasterValidityArgs.Pack(validUntil, validAfter)
	if err != nil {
		return nil, err
	}
	data = append(data, signature...)
	return data, nil
}

// DecodePaymasterData splits verifying paymaster data into its validity
// window and signature.
func DecodePaymasterData(data []byte) (validUntil, validAfter *big.Int, signature []byte, err error) {
	if len(data) < 64 {
		return nil, nil, nil, fmt.Errorf("paymaster data too short: %d bytes", len(data))
	}
	out, err := paymasterValidityArgs.Unpack(data[:64])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error unpacking paymaster validity: %w", err)
	}
	return out[0].(*big.Int), out[1].(*big.Int), data[64:], nil
}

// VerifyingPaymaster sponsors every operation by signing it with a local
// key, the way an on-chain VerifyingPaymaster expects.
type VerifyingPaymaster struct {
	address common.Address
	signer  Signer
}

var _ Paymaster = (*VerifyingPaymaster)(nil)

func NewVerifyingPaymaster(address common.Address, signer Signer) *VerifyingPaymaster {
	return &VerifyingPaymaster{address: address, signer: signer}
}

func (p *VerifyingPaymaster) Address() common.Address {
	return p.address
}

// SponsorUserOperation signs userOp. The entry point is not part of the
// verifying paymaster hash.
func (p *VerifyingPaymaster) SponsorUserOperation(ctx context.Context, userOp *UserOperation, _ common.Address, chainId *big.Int) (*SponsorResult, error) {
	// Using paymaster default validation time
	validAfter := big.NewInt(0)
	validUntil := big.NewInt(math.MaxInt32)

	paymasterData, err := EncodePaymasterData(validUntil, validAfter, EmptySignature)
	if err != nil {
		return nil, fmt.Errorf("error encoding paymaster data: %w", err)
	}

	sponsored := userOp.Copy()
	sponsored.Paymaster = p.address
	sponsored.PaymasterData = paymasterData
	if sponsored.PaymasterVerificationGasLimit == nil {
		sponsored.PaymasterVerificationGasLimit = big.NewInt(DefaultPaymasterVerificationGasLimit)
	}
	if sponsored.PaymasterPostOpGasLimit == nil {
		sponsored.PaymasterPostOpGasLimit = big.NewInt(DefaultPaymasterPostOpGasLimit)
	}
	packed := PackUserOperation(sponsored)

	paymasterHash, err := GetPaymasterHash(&packed, chainId, validUntil, validAfter)
	if err != nil {
		return nil, fmt.Errorf("error getting paymaster hash: %w", err)
	}
	paymasterSig, err := p.signer.SignMessage(paymasterHash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error signing paymaster data: %w", err)
	}
	paymasterData, err = EncodePaymasterData(validUntil, validAfter, paymasterSig)
	if err != nil {
		return nil, fmt.Errorf("error encoding paymaster data: %w", err)
	}
	return &SponsorResult{
		Paymaster:                     p.address,
		PaymasterData:                 paymasterData,
		PaymasterVerificationGasLimit: sponsored.PaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       sponsored.PaymasterPostOpGasLimit,
	}, nil
}

// VerifyPaymasterSignature checks that the paymaster data of userOp was
// signed by signer for chainId.
func VerifyPaymasterSignature(userOp *UserOperation, chainId *big.Int, signer common.Address) error {
	validUntil, validAfter, signature, err := DecodePaymasterData(userOp.PaymasterData)
	if err != nil {
		return err
	}
	packed := PackUserOperation(userOp)
	hash, err := GetPaymasterHash(&packed, chainId, validUntil, validAfter)
	if err != nil {
		return err
	}
	recovered, err := RecoverMessageSigner(hash.Bytes(), signature)
	if err != nil {
		return err
	}
	if recovered != signer {
		return fmt.Errorf("paymaster signature from %s, want %s", recovered.Hex(), signer.Hex())
	}
	return nil
}
