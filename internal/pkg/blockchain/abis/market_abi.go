package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// marketParamsTuple is the MarketParams struct shared by every state-changing
// market entry point.
const marketParamsTuple = `{
	"components": [
		{"internalType": "address", "name": "loanToken", "type": "address"},
		{"internalType": "address", "name": "collateralToken", "type": "address"},
		{"internalType": "address", "name": "oracle", "type": "address"},
		{"internalType": "address", "name": "irm", "type": "address"},
		{"internalType": "uint256", "name": "lltv", "type": "uint256"}
	],
	"internalType": "struct MarketParams",
	"name": "marketParams",
	"type": "tuple"
}`

const assetsSharesOutputs = `[
	{"internalType": "uint256", "name": "", "type": "uint256"},
	{"internalType": "uint256", "name": "", "type": "uint256"}
]`

// GetMarketABI returns the subset of the isolated lending market ABI used by the
// dashboard: the three views plus supply, withdraw, borrow, repay, the
// collateral pair and liquidate.
func GetMarketABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"internalType": "Id", "name": "id", "type": "bytes32"}],
			"name": "market",
			"outputs": [
				{"internalType": "uint128", "name": "totalSupplyAssets", "type": "uint128"},
				{"internalType": "uint128", "name": "totalSupplyShares", "type": "uint128"},
				{"internalType": "uint128", "name": "totalBorrowAssets", "type": "uint128"},
				{"internalType": "uint128", "name": "totalBorrowShares", "type": "uint128"},
				{"internalType": "uint128", "name": "lastUpdate", "type": "uint128"},
				{"internalType": "uint128", "name": "fee", "type": "uint128"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"internalType": "Id", "name": "id", "type": "bytes32"},
				{"internalType": "address", "name": "user", "type": "address"}
			],
			"name": "position",
			"outputs": [
				{"internalType": "uint256", "name": "supplyShares", "type": "uint256"},
				{"internalType": "uint128", "name": "borrowShares", "type": "uint128"},
				{"internalType": "uint128", "name": "collateral", "type": "uint128"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "Id", "name": "id", "type": "bytes32"}],
			"name": "idToMarketParams",
			"outputs": [
				{"internalType": "address", "name": "loanToken", "type": "address"},
				{"internalType": "address", "name": "collateralToken", "type": "address"},
				{"internalType": "address", "name": "oracle", "type": "address"},
				{"internalType": "address", "name": "irm", "type": "address"},
				{"internalType": "uint256", "name": "lltv", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "uint256", "name": "assets", "type": "uint256"},
				{"internalType": "uint256", "name": "shares", "type": "uint256"},
				{"internalType": "address", "name": "onBehalf", "type": "address"},
				{"internalType": "bytes", "name": "data", "type": "bytes"}
			],
			"name": "supply",
			"outputs": ` + assetsSharesOutputs + `,
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "uint256", "name": "assets", "type": "uint256"},
				{"internalType": "uint256", "name": "shares", "type": "uint256"},
				{"internalType": "address", "name": "onBehalf", "type": "address"},
				{"internalType": "address", "name": "receiver", "type": "address"}
			],
			"name": "withdraw",
			"outputs": ` + assetsSharesOutputs + `,
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "uint256", "name": "assets", "type": "uint256"},
				{"internalType": "uint256", "name": "shares", "type": "uint256"},
				{"internalType": "address", "name": "onBehalf", "type": "address"},
				{"internalType": "address", "name": "receiver", "type": "address"}
			],
			"name": "borrow",
			"outputs": ` + assetsSharesOutputs + `,
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "uint256", "name": "assets", "type": "uint256"},
				{"internalType": "uint256", "name": "shares", "type": "uint256"},
				{"internalType": "address", "name": "onBehalf", "type": "address"},
				{"internalType": "bytes", "name": "data", "type": "bytes"}
			],
			"name": "repay",
			"outputs": ` + assetsSharesOutputs + `,
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "uint256", "name": "assets", "type": "uint256"},
				{"internalType": "address", "name": "onBehalf", "type": "address"},
				{"internalType": "bytes", "name": "data", "type": "bytes"}
			],
			"name": "supplyCollateral",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "uint256", "name": "assets", "type": "uint256"},
				{"internalType": "address", "name": "onBehalf", "type": "address"},
				{"internalType": "address", "name": "receiver", "type": "address"}
			],
			"name": "withdrawCollateral",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				` + marketParamsTuple + `,
				{"internalType": "address", "name": "borrower", "type": "address"},
				{"internalType": "uint256", "name": "seizedAssets", "type": "uint256"},
				{"internalType": "uint256", "name": "repaidShares", "type": "uint256"},
				{"internalType": "bytes", "name": "data", "type": "bytes"}
			],
			"name": "liquidate",
			"outputs": ` + assetsSharesOutputs + `,
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
}
