// Package kernel implements the off-chain encodings of the ZeroDev Kernel v3.1
// smart account running on EntryPoint v0.7: ERC-7579 executions, validation
// nonce keys, enable-mode payloads and the account initialization data.
package kernel

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lifenetwork-ai/aa-kernel-sdk-go/bindings/account"
)

const (
	// Name and Version form the EIP-712 domain of the account.
	Name    = "Kernel"
	Version = "0.3.1"
)

var (
	// EntryPointV07 is the canonical EntryPoint v0.7 deployment.
	EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	// OneAddress marks an installed validation without a hook.
	OneAddress = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

// Addresses groups the contracts a Kernel v3.1 account depends on.
type Addresses struct {
	EntryPoint     common.Address
	Implementation common.Address
	Factory        common.Address
	MetaFactory    common.Address
	ECDSAValidator common.Address
	ECDSASigner    common.Address
	SudoPolicy     common.Address
	CallPolicy     common.Address
}

// DefaultAddresses returns the public Kernel v3.1 deployments.
func DefaultAddresses() Addresses {
	return Addresses{
		EntryPoint:     EntryPointV07,
		Implementation: common.HexToAddress("0xBAC849bB641841b44E965fB01A4Bf5F074f84b4D"),
		Factory:        common.HexToAddress("0xaac5D4240AF87249B3f71BC8E4A2cae074A3E419"),
		MetaFactory:    common.HexToAddress("0xd703aaE79538628d27099B8c4f621bE4CCd142d5"),
		ECDSAValidator: common.HexToAddress("0x845ADb2C711129d4f3966735eD98a9F09fC4cE57"),
		ECDSASigner:    common.HexToAddress("0x6A6F069E2a08c2468e7724Ab3250CdBFBA14D4FF"),
		SudoPolicy:     common.HexToAddress("0x67b436caD8a6D025DF6C82C5BB43fbF11fC5B9B7"),
		CallPolicy:     common.HexToAddress("0x9a52283276A0ec8740DF50bF01B28A80D880eaf2"),
	}
}

var (
	kernelABI        = mustParse(account.KernelMetaData)
	factoryABI       = mustParse(account.KernelFactoryMetaData)
	factoryStakerABI = mustParse(account.FactoryStakerMetaData)
)

func mustParse(md *bind.MetaData) *abi.ABI {
	parsed, err := md.GetAbi()
	if err != nil {
		panic(err)
	}
	return parsed
}

// AccountABI returns the parsed Kernel account ABI.
func AccountABI() *abi.ABI {
	return kernelABI
}

// FactoryABI returns the parsed Kernel factory ABI.
func FactoryABI() *abi.ABI {
	return factoryABI
}

// MetaFactoryABI returns the parsed factory staker ABI.
func MetaFactoryABI() *abi.ABI {
	return factoryStakerABI
}
