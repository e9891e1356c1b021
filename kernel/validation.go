package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ValidationId identifies an installed validation: one type byte followed by
// the validator address or the permission id.
type ValidationId [21]byte

// ValidatorValidationId returns the id of a validator module.
func ValidatorValidationId(validator common.Address) ValidationId {
	var id ValidationId
	id[0] = byte(ValidationTypeValidator)
	copy(id[1:], validator.Bytes())
	return id
}

// PermissionValidationId returns the id of a permission.
func PermissionValidationId(permissionId [4]byte) ValidationId {
	var id ValidationId
	id[0] = byte(ValidationTypePermission)
	copy(id[1:], permissionId[:])
	return id
}

func (v ValidationId) Type() ValidationType {
	return ValidationType(v[0])
}

// NonceKey returns the nonce key routing a user operation to this validation.
func (v ValidationId) NonceKey(mode ValidationMode) NonceKey {
	k := NonceKey{Mode: mode, Type: v.Type()}
	copy(k.Identifier[:], v[1:])
	return k
}

func (v ValidationId) Hex() string {
	return hexutil.Encode(v[:])
}

// ValidationIdFromNonceKey rebuilds the validation id a nonce key refers to.
func ValidationIdFromNonceKey(k NonceKey) ValidationId {
	var id ValidationId
	id[0] = byte(k.Type)
	copy(id[1:], k.Identifier[:])
	return id
}

// Enable is the payload the root validator signs to install a new validation
// while validating the first user operation that uses it.
type Enable struct {
	ValidationId  ValidationId
	Nonce         uint32
	Hook          common.Address
	ValidatorData []byte
	HookData      []byte
	SelectorData  []byte
}

var enableTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Enable": {
		{Name: "validationId", Type: "bytes21"},
		{Name: "nonce", Type: "uint32"},
		{Name: "hook", Type: "address"},
		{Name: "validatorData", Type: "bytes"},
		{Name: "hookData", Type: "bytes"},
		{Name: "selectorData", Type: "bytes"},
	},
}

// TypedData returns the EIP-712 representation of the enable payload for the
// given account and chain.
func (e Enable) TypedData(account common.Address, chainId *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       enableTypes,
		PrimaryType: "Enable",
		Domain: apitypes.TypedDataDomain{
			Name:              Name,
			Version:           Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainId)),
			VerifyingContract: account.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"validationId":  e.ValidationId.Hex(),
			"nonce":         math.NewHexOrDecimal256(int64(e.Nonce)),
			"hook":          e.Hook.Hex(),
			"validatorData": hexutil.Encode(e.ValidatorData),
			"hookData":      hexutil.Encode(e.HookData),
			"selectorData":  hexutil.Encode(e.SelectorData),
		},
	}
}

// Digest returns the EIP-712 hash the root validator has to sign.
func (e Enable) Digest(account common.Address, chainId *big.Int) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(e.TypedData(account, chainId))
	if err != nil {
		return common.Hash{}, fmt.Errorf("error hashing enable typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// DefaultSelectorData grants the new validation access to execute(bytes32,bytes)
// without an executor or selector hook.
func DefaultSelectorData() []byte {
	initData, err := enableSelectorArgs.Pack([]byte{}, []byte{})
	if err != nil {
		panic(err)
	}
	out := make([]byte, 0, 4+20+20+len(initData))
	out = append(out, kernelABI.Methods["execute"].ID...)
	out = append(out, common.Address{}.Bytes()...)
	out = append(out, common.Address{}.Bytes()...)
	return append(out, initData...)
}

var (
	bytesType, _ = abi.NewType("bytes", "", nil)

	enableSelectorArgs = abi.Arguments{{Type: bytesType}, {Type: bytesType}}

	enableSignatureArgs = abi.Arguments{
		{Name: "validatorData", Type: bytesType},
		{Name: "hookData", Type: bytesType},
		{Name: "selectorData", Type: bytesType},
		{Name: "enableSig", Type: bytesType},
		{Name: "userOpSig", Type: bytesType},
	}
)

var ErrInvalidEnableSignature = errors.New("invalid enable mode signature")

// EnableSignature is the user operation signature of an enable mode operation.
type EnableSignature struct {
	Hook          common.Address
	ValidatorData []byte
	HookData      []byte
	SelectorData  []byte
	EnableSig     []byte
	UserOpSig     []byte
}

// EncodeEnableSignature lays out hook (20 bytes) followed by the abi encoded
// validator, hook and selector data, the owner signature and the user op signature.
func EncodeEnableSignature(sig EnableSignature) ([]byte, error) {
	packed, err := enableSignatureArgs.Pack(
		nonNil(sig.ValidatorData),
		nonNil(sig.HookData),
		nonNil(sig.SelectorData),
		nonNil(sig.EnableSig),
		nonNil(sig.UserOpSig),
	)
	if err != nil {
		return nil, fmt.Errorf("error packing enable signature: %w", err)
	}
	return append(sig.Hook.Bytes(), packed...), nil
}

// DecodeEnableSignature reverses EncodeEnableSignature.
func DecodeEnableSignature(raw []byte) (*EnableSignature, error) {
	if len(raw) < common.AddressLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEnableSignature, len(raw))
	}
	out, err := enableSignatureArgs.Unpack(raw[common.AddressLength:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnableSignature, err)
	}
	return &EnableSignature{
		Hook:          common.BytesToAddress(raw[:common.AddressLength]),
		ValidatorData: out[0].([]byte),
		HookData:      out[1].([]byte),
		SelectorData:  out[2].([]byte),
		EnableSig:     out[3].([]byte),
		UserOpSig:     out[4].([]byte),
	}, nil
}

// Enable rebuilds the signed enable payload from the signature fields.
func (s *EnableSignature) Enable(vId ValidationId, nonce uint32) Enable {
	return Enable{
		ValidationId:  vId,
		Nonce:         nonce,
		Hook:          s.Hook,
		ValidatorData: s.ValidatorData,
		HookData:      s.HookData,
		SelectorData:  s.SelectorData,
	}
}

// GrantsExecute reports whether the selector data allows execute(bytes32,bytes).
func GrantsExecute(selectorData []byte) bool {
	return len(selectorData) >= 4 && bytes.Equal(selectorData[:4], kernelABI.Methods["execute"].ID)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
