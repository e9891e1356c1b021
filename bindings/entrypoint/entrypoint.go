// Package entrypoint contains read-only bindings for the ERC-4337 EntryPoint v0.7 contract.
package entrypoint

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// PackedUserOperation is an auto generated low-level Go binding around the EntryPoint v0.7 struct.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// EntryPointMetaData contains the subset of the EntryPoint v0.7 ABI used by the SDK.
var EntryPointMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"depositTo","stateMutability":"payable",
	 "inputs":[{"name":"account","type":"address"}],"outputs":[]},
	{"type":"event","name":"UserOperationEvent","anonymous":false,
	 "inputs":[{"name":"userOpHash","type":"bytes32","indexed":true},
	           {"name":"sender","type":"address","indexed":true},
	           {"name":"paymaster","type":"address","indexed":true},
	           {"name":"nonce","type":"uint256","indexed":false},
	           {"name":"success","type":"bool","indexed":false},
	           {"name":"actualGasCost","type":"uint256","indexed":false},
	           {"name":"actualGasUsed","type":"uint256","indexed":false}]}
]`,
}

// EntryPoint is a read-only binding around an EntryPoint v0.7 deployment.
type EntryPoint struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewEntryPoint creates a new read-only binding bound to a deployed EntryPoint.
func NewEntryPoint(address common.Address, caller bind.ContractCaller) (*EntryPoint, error) {
	parsed, err := EntryPointMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("error parsing entrypoint ABI: %w", err)
	}
	contract := bind.NewBoundContract(address, *parsed, caller, nil, nil)
	return &EntryPoint{address: address, contract: contract}, nil
}

// Address returns the address the binding is bound to.
func (e *EntryPoint) Address() common.Address {
	return e.address
}

// GetNonce is a free data retrieval call binding the contract method 0x35567e1a.
//
// Solidity: function getNonce(address sender, uint192 key) view returns(uint256 nonce)
func (e *EntryPoint) GetNonce(opts *bind.CallOpts, sender common.Address, key *big.Int) (*big.Int, error) {
	var out []interface{}
	if err := e.contract.Call(opts, &out, "getNonce", sender, key); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// BalanceOf is a free data retrieval call binding the contract method 0x70a08231.
//
// Solidity: function balanceOf(address account) view returns(uint256)
func (e *EntryPoint) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := e.contract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
