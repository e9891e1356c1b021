package defi

import "github.com/ethereum/go-ethereum/common"

// Token symbols understood by BaseTokenAddresses.
const (
	USDC = "USDC"
	USDT = "USDT"
	WETH = "WETH"
)

// BaseTokenAddresses maps chain ids to the addresses of common tokens.
var BaseTokenAddresses = map[uint64]map[string]common.Address{
	1: {
		USDC: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		USDT: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		WETH: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	},
	10: {
		USDC: common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
		USDT: common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"),
		WETH: common.HexToAddress("0x4200000000000000000000000000000000000006"),
	},
	137: {
		USDC: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
		USDT: common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
		WETH: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"),
	},
	8453: {
		USDC: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		WETH: common.HexToAddress("0x4200000000000000000000000000000000000006"),
	},
	42161: {
		USDC: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
		USDT: common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
		WETH: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
	},
}

// TokenAddress looks up symbol on chainId.
func TokenAddress(chainId uint64, symbol string) (common.Address, bool) {
	tokens, ok := BaseTokenAddresses[chainId]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := tokens[symbol]
	return addr, ok
}
