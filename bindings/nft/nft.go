// Package nft holds the ABI of the demo ERC-721 contract the examples mint from.
package nft

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ContractAddress is the demo NFT deployment used by the examples.
var ContractAddress = common.HexToAddress("0x34bE7f35132E97915633BC1fc020364EA5134863")

// NFTMetaData contains the demo NFT ABI.
//
// Solidity:
//
//	function mint(address _to) public
//	function balanceOf(address owner) external view returns (uint256 balance)
//	function ownerOf(uint256 tokenId) external view returns (address owner)
//	event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)
var NFTMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"mint","stateMutability":"nonpayable",
	 "inputs":[{"name":"_to","type":"address"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"owner","type":"address"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},
	           {"name":"to","type":"address","indexed":true},
	           {"name":"tokenId","type":"uint256","indexed":true}]}
]`,
}

// NFT is a read-only binding around the demo NFT.
type NFT struct {
	contract *bind.BoundContract
}

func NewNFT(address common.Address, caller bind.ContractCaller) (*NFT, error) {
	parsed, err := NFTMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("error parsing nft ABI: %w", err)
	}
	return &NFT{contract: bind.NewBoundContract(address, *parsed, caller, nil, nil)}, nil
}

// BalanceOf is a free data retrieval call binding the contract method balanceOf.
//
// Solidity: function balanceOf(address owner) view returns(uint256)
func (n *NFT) BalanceOf(opts *bind.CallOpts, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := n.contract.Call(opts, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
