package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetOracleABI returns the market oracle ABI. price() is collateral priced in
// loan token, scaled by 1e36; kimchiPremium() is scaled by 1e18.
func GetOracleABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "price",
			"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "kimchiPremium",
			"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
