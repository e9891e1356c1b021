// Package account contains bindings for the Kernel v3.1 smart account, its
// factory and the factory staker (meta factory) used to deploy it.
package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// KernelMetaData contains the subset of the Kernel v3.1 ABI used by the SDK.
var KernelMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"initialize","stateMutability":"nonpayable",
	 "inputs":[{"name":"_rootValidator","type":"bytes21"},{"name":"hook","type":"address"},
	           {"name":"validatorData","type":"bytes"},{"name":"hookData","type":"bytes"},
	           {"name":"initConfig","type":"bytes[]"}],"outputs":[]},
	{"type":"function","name":"execute","stateMutability":"payable",
	 "inputs":[{"name":"execMode","type":"bytes32"},{"name":"executionCalldata","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"uninstallValidation","stateMutability":"payable",
	 "inputs":[{"name":"vId","type":"bytes21"},{"name":"deinitData","type":"bytes"},{"name":"hookDeinitData","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"invalidateNonce","stateMutability":"payable",
	 "inputs":[{"name":"nonce","type":"uint32"}],"outputs":[]},
	{"type":"function","name":"currentNonce","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint32"}]},
	{"type":"function","name":"validNonceFrom","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint32"}]},
	{"type":"function","name":"rootValidator","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"bytes21"}]},
	{"type":"function","name":"validationConfig","stateMutability":"view",
	 "inputs":[{"name":"vId","type":"bytes21"}],
	 "outputs":[{"name":"nonce","type":"uint32"},{"name":"hook","type":"address"}]}
]`,
}

// KernelFactoryMetaData contains the Kernel v3.1 factory ABI.
var KernelFactoryMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"createAccount","stateMutability":"payable",
	 "inputs":[{"name":"data","type":"bytes"},{"name":"salt","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"data","type":"bytes"},{"name":"salt","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`,
}

// FactoryStakerMetaData contains the meta factory ABI.
var FactoryStakerMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"deployWithFactory","stateMutability":"payable",
	 "inputs":[{"name":"factory","type":"address"},{"name":"createData","type":"bytes"},{"name":"salt","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`,
}

// ValidationConfig is the per-validation state stored by a Kernel account.
type ValidationConfig struct {
	Nonce uint32
	Hook  common.Address
}

// Kernel is a read-only binding around a deployed Kernel account.
type Kernel struct {
	contract *bind.BoundContract
}

// NewKernel creates a read-only binding to a deployed Kernel account.
func NewKernel(address common.Address, caller bind.ContractCaller) (*Kernel, error) {
	parsed, err := KernelMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("error parsing kernel ABI: %w", err)
	}
	return &Kernel{contract: bind.NewBoundContract(address, *parsed, caller, nil, nil)}, nil
}

// CurrentNonce is a free data retrieval call binding the contract method currentNonce.
//
// Solidity: function currentNonce() view returns(uint32)
func (k *Kernel) CurrentNonce(opts *bind.CallOpts) (uint32, error) {
	var out []interface{}
	if err := k.contract.Call(opts, &out, "currentNonce"); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint32)).(*uint32), nil
}

// ValidNonceFrom is a free data retrieval call binding the contract method validNonceFrom.
//
// Solidity: function validNonceFrom() view returns(uint32)
func (k *Kernel) ValidNonceFrom(opts *bind.CallOpts) (uint32, error) {
	var out []interface{}
	if err := k.contract.Call(opts, &out, "validNonceFrom"); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint32)).(*uint32), nil
}

// ValidationConfig is a free data retrieval call binding the contract method validationConfig.
//
// Solidity: function validationConfig(bytes21 vId) view returns((uint32,address))
func (k *Kernel) ValidationConfig(opts *bind.CallOpts, vId [21]byte) (ValidationConfig, error) {
	var out []interface{}
	if err := k.contract.Call(opts, &out, "validationConfig", vId); err != nil {
		return ValidationConfig{}, err
	}
	return ValidationConfig{
		Nonce: *abi.ConvertType(out[0], new(uint32)).(*uint32),
		Hook:  *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
	}, nil
}

// KernelFactory is a read-only binding around the Kernel factory.
type KernelFactory struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewKernelFactory creates a read-only binding to the Kernel factory.
func NewKernelFactory(address common.Address, caller bind.ContractCaller) (*KernelFactory, error) {
	parsed, err := KernelFactoryMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("error parsing kernel factory ABI: %w", err)
	}
	return &KernelFactory{address: address, contract: bind.NewBoundContract(address, *parsed, caller, nil, nil)}, nil
}

// Address returns the factory address.
func (f *KernelFactory) Address() common.Address {
	return f.address
}

// GetAddress is a free data retrieval call binding the contract method getAddress.
//
// Solidity: function getAddress(bytes data, bytes32 salt) view returns(address)
func (f *KernelFactory) GetAddress(opts *bind.CallOpts, data []byte, salt [32]byte) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(opts, &out, "getAddress", data, salt); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
