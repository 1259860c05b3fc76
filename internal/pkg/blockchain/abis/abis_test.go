package abis

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestABIsParse(t *testing.T) {
	tests := []struct {
		name    string
		load    func() (*abi.ABI, error)
		methods []string
	}{
		{
			name:    "erc20",
			load:    GetERC20ABI,
			methods: []string{"decimals", "symbol", "balanceOf", "allowance", "approve"},
		},
		{
			name: "market",
			load: GetMarketABI,
			methods: []string{
				"market", "position", "idToMarketParams",
				"supply", "withdraw", "borrow", "repay",
				"supplyCollateral", "withdrawCollateral", "liquidate",
			},
		},
		{
			name:    "oracle",
			load:    GetOracleABI,
			methods: []string{"price", "kimchiPremium"},
		},
		{
			name:    "faucet",
			load:    GetFaucetABI,
			methods: []string{"claim", "hasClaimed"},
		},
		{
			name:    "multicall3",
			load:    GetMulticall3ABI,
			methods: []string{"aggregate3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := tt.load()
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			for _, m := range tt.methods {
				if _, ok := parsed.Methods[m]; !ok {
					t.Errorf("method %q missing", m)
				}
			}
		})
	}
}

func TestMarketABI_Selectors(t *testing.T) {
	parsed, err := GetMarketABI()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		method string
		sig    string
	}{
		{"supply", "supply((address,address,address,address,uint256),uint256,uint256,address,bytes)"},
		{"withdraw", "withdraw((address,address,address,address,uint256),uint256,uint256,address,address)"},
		{"borrow", "borrow((address,address,address,address,uint256),uint256,uint256,address,address)"},
		{"repay", "repay((address,address,address,address,uint256),uint256,uint256,address,bytes)"},
		{"supplyCollateral", "supplyCollateral((address,address,address,address,uint256),uint256,address,bytes)"},
		{"withdrawCollateral", "withdrawCollateral((address,address,address,address,uint256),uint256,address,address)"},
		{"liquidate", "liquidate((address,address,address,address,uint256),address,uint256,uint256,bytes)"},
		{"position", "position(bytes32,address)"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := parsed.Methods[tt.method].Sig; got != tt.sig {
				t.Errorf("Sig = %s, want %s", got, tt.sig)
			}
		})
	}
}
