package kernel

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InitializeData encodes Kernel.initialize with the ECDSA validator as root,
// owned by owner, without a hook.
func InitializeData(addrs Addresses, owner common.Address) ([]byte, error) {
	data, err := kernelABI.Pack(
		"initialize",
		[21]byte(ValidatorValidationId(addrs.ECDSAValidator)),
		common.Address{},
		owner.Bytes(),
		[]byte{},
		[][]byte{},
	)
	if err != nil {
		return nil, fmt.Errorf("error packing kernel initialize: %w", err)
	}
	return data, nil
}

// DecodeInitializeData returns the root validation id and its validator data.
func DecodeInitializeData(data []byte) (ValidationId, []byte, error) {
	method := kernelABI.Methods["initialize"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return ValidationId{}, nil, fmt.Errorf("not an initialize call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return ValidationId{}, nil, fmt.Errorf("error unpacking kernel initialize: %w", err)
	}
	return ValidationId(args[0].([21]byte)), args[2].([]byte), nil
}

// Salt converts an account index to the factory salt.
func Salt(index uint64) [32]byte {
	var salt [32]byte
	new(big.Int).SetUint64(index).FillBytes(salt[:])
	return salt
}

// FactoryData encodes the meta factory call that deploys the account.
func FactoryData(addrs Addresses, initData []byte, salt [32]byte) ([]byte, error) {
	data, err := factoryStakerABI.Pack("deployWithFactory", addrs.Factory, initData, salt)
	if err != nil {
		return nil, fmt.Errorf("error packing deployWithFactory: %w", err)
	}
	return data, nil
}

// DecodeFactoryData reverses FactoryData.
func DecodeFactoryData(data []byte) (factory common.Address, initData []byte, salt [32]byte, err error) {
	method := factoryStakerABI.Methods["deployWithFactory"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return factory, nil, salt, fmt.Errorf("not a deployWithFactory call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return factory, nil, salt, fmt.Errorf("error unpacking deployWithFactory: %w", err)
	}
	return args[0].(common.Address), args[1].([]byte), args[2].([32]byte), nil
}

// UninstallValidationData encodes Kernel.uninstallValidation.
func UninstallValidationData(vId ValidationId, deinitData, hookDeinitData []byte) ([]byte, error) {
	data, err := kernelABI.Pack("uninstallValidation", [21]byte(vId), nonNil(deinitData), nonNil(hookDeinitData))
	if err != nil {
		return nil, fmt.Errorf("error packing uninstallValidation: %w", err)
	}
	return data, nil
}

// InvalidateNonceData encodes Kernel.invalidateNonce. Every enable signature
// issued for a nonce below the new value stops being accepted.
func InvalidateNonceData(nonce uint32) ([]byte, error) {
	data, err := kernelABI.Pack("invalidateNonce", nonce)
	if err != nil {
		return nil, fmt.Errorf("error packing invalidateNonce: %w", err)
	}
	return data, nil
}
