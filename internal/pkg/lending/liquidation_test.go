package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

func TestSizeLiquidation_ClampsRepayAndSeize(t *testing.T) {
	price := krwPerEthPrice(4_566_000)
	borrower := BorrowerSnapshot{
		Collateral:   ether(5_000_000),
		BorrowShares: ether(2),
		BorrowAssets: ether(2),
	}

	size, err := SizeLiquidation(ether(5), borrower, price, DefaultIncentiveBps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if size.RepayAssets.Cmp(ether(2)) != 0 {
		t.Errorf("RepayAssets = %s, want 2e18", size.RepayAssets)
	}
	if !size.RepayClamped {
		t.Error("expected repay to be clamped to debt")
	}
	if size.RawSeize.Cmp(borrower.Collateral) <= 0 {
		t.Errorf("RawSeize = %s, expected it to exceed posted collateral", size.RawSeize)
	}
	if !size.SeizeClamped {
		t.Error("expected seize to be clamped to collateral")
	}

	want := mustInt(t, "4750000000000000000000000")
	if size.SeizeAssets.Cmp(want) != 0 {
		t.Errorf("SeizeAssets = %s, want %s (95%% of collateral)", size.SeizeAssets, want)
	}
}

func TestSizeLiquidation_Unclamped(t *testing.T) {
	// one collateral unit backs two loan units
	price := new(big.Int).Mul(big.NewInt(2), entity.OracleScale)
	borrower := BorrowerSnapshot{
		Collateral:   big.NewInt(10_000),
		BorrowShares: big.NewInt(5_000),
		BorrowAssets: big.NewInt(5_000),
	}

	size, err := SizeLiquidation(big.NewInt(1000), borrower, price, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1000 loan -> 500 collateral, +5% -> 525, 95% -> 498
	if size.RawSeize.Int64() != 525 {
		t.Errorf("RawSeize = %s, want 525", size.RawSeize)
	}
	if size.SeizeAssets.Int64() != 498 {
		t.Errorf("SeizeAssets = %s, want 498", size.SeizeAssets)
	}
	if size.RepayClamped || size.SeizeClamped {
		t.Error("expected no clamping")
	}
}

func TestSizeLiquidation_Errors(t *testing.T) {
	price := new(big.Int).Mul(big.NewInt(2), entity.OracleScale)

	tests := []struct {
		name     string
		repay    *big.Int
		borrower BorrowerSnapshot
		price    *big.Int
		wantErr  error
	}{
		{
			name:     "no collateral",
			repay:    big.NewInt(1000),
			borrower: BorrowerSnapshot{Collateral: big.NewInt(0), BorrowAssets: big.NewInt(1000)},
			price:    price,
			wantErr:  ErrNothingToSeize,
		},
		{
			name:     "no debt",
			repay:    big.NewInt(1000),
			borrower: BorrowerSnapshot{Collateral: big.NewInt(1000), BorrowAssets: big.NewInt(0)},
			price:    price,
			wantErr:  ErrNothingToSeize,
		},
		{
			name:     "safety margin rounds to zero",
			repay:    big.NewInt(1),
			borrower: BorrowerSnapshot{Collateral: big.NewInt(1), BorrowAssets: big.NewInt(10)},
			price:    new(big.Int).Set(entity.OracleScale),
			wantErr:  ErrNothingToSeize,
		},
		{
			name:     "zero repay",
			repay:    big.NewInt(0),
			borrower: BorrowerSnapshot{Collateral: big.NewInt(1000), BorrowAssets: big.NewInt(1000)},
			price:    price,
			wantErr:  ErrInvalidRepay,
		},
		{
			name:     "missing price",
			repay:    big.NewInt(10),
			borrower: BorrowerSnapshot{Collateral: big.NewInt(1000), BorrowAssets: big.NewInt(1000)},
			price:    nil,
			wantErr:  ErrPriceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SizeLiquidation(tt.repay, tt.borrower, tt.price, DefaultIncentiveBps)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSizeLiquidation_Idempotent(t *testing.T) {
	price := krwPerEthPrice(4_566_000)
	borrower := BorrowerSnapshot{
		Collateral:   ether(40_000_000),
		BorrowShares: ether(9),
		BorrowAssets: ether(9),
	}
	repay := ether(3)

	first, err := SizeLiquidation(repay, borrower, price, DefaultIncentiveBps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := SizeLiquidation(repay, borrower, price, DefaultIncentiveBps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.SeizeAssets.Cmp(second.SeizeAssets) != 0 {
		t.Errorf("seize differs between calls: %s vs %s", first.SeizeAssets, second.SeizeAssets)
	}
	if repay.Cmp(ether(3)) != 0 || borrower.Collateral.Cmp(ether(40_000_000)) != 0 {
		t.Error("inputs were mutated")
	}
}

func TestWithBuffer(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		bps      int64
		expected int64
	}{
		{name: "one percent", amount: big.NewInt(10_000), bps: 100, expected: 10_100},
		{name: "rounds up", amount: big.NewInt(1), bps: 100, expected: 2},
		{name: "zero buffer", amount: big.NewInt(500), bps: 0, expected: 500},
		{name: "nil amount", amount: nil, bps: 100, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithBuffer(tt.amount, tt.bps); got.Int64() != tt.expected {
				t.Errorf("WithBuffer = %s, want %d", got, tt.expected)
			}
		})
	}
}
