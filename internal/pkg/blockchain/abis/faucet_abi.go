package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

func GetFaucetABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "claim",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
			"name": "hasClaimed",
			"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
