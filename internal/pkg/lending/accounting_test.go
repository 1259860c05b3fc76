package lending

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

func mustInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer literal %q", s)
	}
	return v
}

func TestAssetsFromShares(t *testing.T) {
	tests := []struct {
		name        string
		shares      *big.Int
		totalAssets *big.Int
		totalShares *big.Int
		expected    string
	}{
		{name: "truncates toward zero", shares: big.NewInt(10), totalAssets: big.NewInt(105), totalShares: big.NewInt(100), expected: "10"},
		{name: "one to one", shares: big.NewInt(7), totalAssets: big.NewInt(100), totalShares: big.NewInt(100), expected: "7"},
		{name: "zero total shares", shares: big.NewInt(10), totalAssets: big.NewInt(105), totalShares: big.NewInt(0), expected: "0"},
		{name: "nil total shares", shares: big.NewInt(10), totalAssets: big.NewInt(105), totalShares: nil, expected: "0"},
		{name: "zero shares", shares: big.NewInt(0), totalAssets: big.NewInt(105), totalShares: big.NewInt(100), expected: "0"},
		{
			name:        "large share counts keep precision",
			shares:      new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil),
			totalAssets: new(big.Int).Add(new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil), big.NewInt(1)),
			totalShares: new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil),
			expected:    "1000000000000000000000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssetsFromShares(tt.shares, tt.totalAssets, tt.totalShares)
			if got.String() != tt.expected {
				t.Errorf("AssetsFromShares() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAssetsFromShares_MatchesIntegerFormula(t *testing.T) {
	for shares := int64(0); shares < 50; shares += 7 {
		for totalAssets := int64(0); totalAssets < 300; totalAssets += 37 {
			for totalShares := int64(1); totalShares < 200; totalShares += 29 {
				want := shares * totalAssets / totalShares
				got := AssetsFromShares(big.NewInt(shares), big.NewInt(totalAssets), big.NewInt(totalShares))
				if got.Int64() != want {
					t.Fatalf("AssetsFromShares(%d, %d, %d) = %s, want %d", shares, totalAssets, totalShares, got, want)
				}
			}
		}
	}
}

func TestDerivePosition(t *testing.T) {
	account := common.HexToAddress("0x1")

	t.Run("zero supply shares guard", func(t *testing.T) {
		market := &entity.MarketState{
			TotalSupplyAssets: big.NewInt(0),
			TotalSupplyShares: big.NewInt(0),
			TotalBorrowAssets: big.NewInt(200),
			TotalBorrowShares: big.NewInt(100),
			Fee:               big.NewInt(0),
		}
		pos := &entity.UserPosition{Account: account, SupplyShares: big.NewInt(5), BorrowShares: big.NewInt(10), Collateral: big.NewInt(0)}

		got := DerivePosition(pos, market)
		if got.SupplyAssets.Sign() != 0 {
			t.Errorf("SupplyAssets = %s, want 0", got.SupplyAssets)
		}
		if got.BorrowAssets.Int64() != 20 {
			t.Errorf("BorrowAssets = %s, want 20", got.BorrowAssets)
		}
	})

	t.Run("missing market yields zero", func(t *testing.T) {
		pos := &entity.UserPosition{Account: account, SupplyShares: big.NewInt(5), BorrowShares: big.NewInt(10), Collateral: big.NewInt(0)}
		got := DerivePosition(pos, nil)
		if got.SupplyAssets.Sign() != 0 || got.BorrowAssets.Sign() != 0 {
			t.Errorf("expected zero amounts, got %s/%s", got.SupplyAssets, got.BorrowAssets)
		}
	})
}

func TestToDisplay(t *testing.T) {
	if got := ToDisplay(mustInt(t, "2500000000000000000")); got != 2.5 {
		t.Errorf("ToDisplay = %v, want 2.5", got)
	}
	if got := ToDisplay(nil); got != 0 {
		t.Errorf("ToDisplay(nil) = %v, want 0", got)
	}
}
