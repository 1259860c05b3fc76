package entity

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewMarketState(t *testing.T) {
	one := big.NewInt(1)

	tests := []struct {
		name        string
		supplyA     *big.Int
		supplyS     *big.Int
		borrowA     *big.Int
		borrowS     *big.Int
		lastUpdate  int64
		fee         *big.Int
		wantErr     bool
		errContains string
	}{
		{name: "valid market", supplyA: one, supplyS: one, borrowA: one, borrowS: one, lastUpdate: 10, fee: big.NewInt(0)},
		{name: "empty market", supplyA: big.NewInt(0), supplyS: big.NewInt(0), borrowA: big.NewInt(0), borrowS: big.NewInt(0), fee: big.NewInt(0)},
		{name: "nil supply assets", supplyA: nil, supplyS: one, borrowA: one, borrowS: one, fee: one, wantErr: true, errContains: "totalSupplyAssets"},
		{name: "negative borrow shares", supplyA: one, supplyS: one, borrowA: one, borrowS: big.NewInt(-1), fee: one, wantErr: true, errContains: "totalBorrowShares"},
		{name: "negative last update", supplyA: one, supplyS: one, borrowA: one, borrowS: one, lastUpdate: -1, fee: one, wantErr: true, errContains: "lastUpdate"},
		{name: "nil fee", supplyA: one, supplyS: one, borrowA: one, borrowS: one, fee: nil, wantErr: true, errContains: "fee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMarketState(tt.supplyA, tt.supplyS, tt.borrowA, tt.borrowS, tt.lastUpdate, tt.fee)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.LastUpdate != tt.lastUpdate {
				t.Errorf("LastUpdate = %d, want %d", m.LastUpdate, tt.lastUpdate)
			}
		})
	}
}

func TestMarketState_CloneIsDeep(t *testing.T) {
	m, err := NewMarketState(big.NewInt(100), big.NewInt(100), big.NewInt(50), big.NewInt(50), 1, big.NewInt(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := m.Clone()
	c.TotalSupplyAssets.SetInt64(1)
	if m.TotalSupplyAssets.Int64() != 100 {
		t.Errorf("mutating the clone changed the original: %s", m.TotalSupplyAssets)
	}

	var nilMarket *MarketState
	if nilMarket.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestMarketParams_Validate(t *testing.T) {
	valid := MarketParams{
		LoanToken:       common.HexToAddress("0x01"),
		CollateralToken: common.HexToAddress("0x02"),
		Oracle:          common.HexToAddress("0x03"),
		IRM:             common.HexToAddress("0x04"),
		LLTV:            new(big.Int).Div(new(big.Int).Mul(WAD, big.NewInt(92)), big.NewInt(100)),
	}

	tests := []struct {
		name        string
		mutate      func(p *MarketParams)
		errContains string
	}{
		{name: "valid", mutate: func(p *MarketParams) {}},
		{name: "zero loan token", mutate: func(p *MarketParams) { p.LoanToken = common.Address{} }, errContains: "loanToken"},
		{name: "zero collateral token", mutate: func(p *MarketParams) { p.CollateralToken = common.Address{} }, errContains: "collateralToken"},
		{name: "zero oracle", mutate: func(p *MarketParams) { p.Oracle = common.Address{} }, errContains: "oracle"},
		{name: "nil lltv", mutate: func(p *MarketParams) { p.LLTV = nil }, errContains: "lltv must be positive"},
		{name: "lltv of one", mutate: func(p *MarketParams) { p.LLTV = new(big.Int).Set(WAD) }, errContains: "below 1e18"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}
