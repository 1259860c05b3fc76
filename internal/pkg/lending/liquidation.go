package lending

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

const (
	// DefaultIncentiveBps is the assumed liquidation bonus (5%). The contract
	// defines the real value; see DESIGN.md.
	DefaultIncentiveBps = 500

	// SafetyMarginBps is the share of the computed seize amount actually requested.
	SafetyMarginBps = 9_500

	// ApprovalBufferBps is added on top of a debt when approving a full repay
	// or a liquidation, to cover interest accrued before execution.
	ApprovalBufferBps = 100
)

var (
	ErrNothingToSeize = errors.New("nothing to seize")
	ErrInvalidRepay   = errors.New("repay amount must be positive")
)

// BorrowerSnapshot is the freshly read state of a borrower used for sizing.
type BorrowerSnapshot struct {
	Collateral   *big.Int
	BorrowShares *big.Int
	BorrowAssets *big.Int
}

// LiquidationSize is the outcome of SizeLiquidation.
type LiquidationSize struct {
	// RepayAssets is the desired repay clamped to the borrower's debt.
	RepayAssets *big.Int
	// SeizeAssets is the collateral to request, after clamping and the safety margin.
	SeizeAssets *big.Int
	// RawSeize is the bonus-inflated collateral equivalent of RepayAssets before clamping.
	RawSeize *big.Int

	RepayClamped bool
	SeizeClamped bool
	IncentiveBps int64
}

// SizeLiquidation converts a desired debt repayment into the collateral to
// seize: clamp to debt, convert at the oracle price with the incentive, clamp
// to posted collateral, reject zero, then keep SafetyMarginBps of it.
func SizeLiquidation(desiredRepay *big.Int, b BorrowerSnapshot, oraclePrice *big.Int, incentiveBps int64) (LiquidationSize, error) {
	if desiredRepay == nil || desiredRepay.Sign() <= 0 {
		return LiquidationSize{}, ErrInvalidRepay
	}
	if err := entity.ValidatePrice(oraclePrice); err != nil {
		return LiquidationSize{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if incentiveBps < 0 {
		return LiquidationSize{}, fmt.Errorf("incentive must be non-negative, got %d bps", incentiveBps)
	}

	debt := b.BorrowAssets
	if debt == nil {
		debt = new(big.Int)
	}
	collateral := b.Collateral
	if collateral == nil {
		collateral = new(big.Int)
	}

	size := LiquidationSize{IncentiveBps: incentiveBps}

	repay := new(big.Int).Set(desiredRepay)
	if repay.Cmp(debt) > 0 {
		repay.Set(debt)
		size.RepayClamped = true
	}
	size.RepayAssets = repay

	raw := new(big.Int).Mul(repay, entity.OracleScale)
	raw.Mul(raw, big.NewInt(entity.BpsDenominator+incentiveBps))
	raw.Quo(raw, new(big.Int).Mul(oraclePrice, big.NewInt(entity.BpsDenominator)))
	size.RawSeize = raw

	seize := new(big.Int).Set(raw)
	if seize.Cmp(collateral) > 0 {
		seize.Set(collateral)
		size.SeizeClamped = true
	}
	if seize.Sign() == 0 {
		return size, ErrNothingToSeize
	}

	seize.Mul(seize, big.NewInt(SafetyMarginBps))
	seize.Quo(seize, big.NewInt(entity.BpsDenominator))
	if seize.Sign() == 0 {
		return size, ErrNothingToSeize
	}
	size.SeizeAssets = seize

	return size, nil
}

// WithBuffer returns amount increased by bps basis points, rounded up.
func WithBuffer(amount *big.Int, bps int64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(entity.BpsDenominator+bps))
	out.Add(out, big.NewInt(entity.BpsDenominator-1))
	return out.Quo(out, big.NewInt(entity.BpsDenominator))
}
