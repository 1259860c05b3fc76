package lending

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

// HealthFactorCeiling replaces non-finite health factors.
const HealthFactorCeiling = 1000.0

var (
	ErrWithdrawExceedsCollateral = errors.New("cannot withdraw more than posted collateral")
	ErrWithdrawBreachesSolvency  = errors.New("withdrawal would leave the position undercollateralized")
	ErrPriceUnavailable          = errors.New("oracle price unavailable")
)

// HealthFactor is the result of ComputeHealthFactor. When Defined is false the
// position has no debt or no collateral; callers show a placeholder and must
// not treat it as healthy.
type HealthFactor struct {
	Defined bool
	// Wad is the health factor scaled by 1e18; gates compare against it.
	Wad *big.Int
	// Value is the clamped display ratio.
	Value float64
}

// Safe reports whether the position is at or above the liquidation boundary.
// An undefined health factor is never safe.
func (h HealthFactor) Safe() bool {
	return h.Defined && h.Wad != nil && h.Wad.Cmp(entity.WAD) >= 0
}

// Ptr returns the display value, or nil when undefined.
func (h HealthFactor) Ptr() *float64 {
	if !h.Defined {
		return nil
	}
	v := h.Value
	return &v
}

func (h HealthFactor) String() string {
	if !h.Defined {
		return "-"
	}
	return fmt.Sprintf("%.4f", h.Value)
}

// MaxBorrow is the loan-asset amount the collateral supports at the LLTV:
// collateral*price*lltv / (1e36*1e18).
func MaxBorrow(collateral, oraclePrice, lltv *big.Int) *big.Int {
	if collateral == nil || oraclePrice == nil || lltv == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(collateral, oraclePrice)
	out.Mul(out, lltv)
	denom := new(big.Int).Mul(entity.OracleScale, entity.WAD)
	return out.Quo(out, denom)
}

// ComputeHealthFactor returns maxBorrow/totalBorrow for the existing position
// plus the proposed extra collateral and borrow. The dashboard display and the
// borrow gate both go through this function.
func ComputeHealthFactor(existingCollateral, existingBorrow, extraCollateral, extraBorrow, oraclePrice, lltv *big.Int) HealthFactor {
	totalCollateral := addNonNil(existingCollateral, extraCollateral)
	totalBorrow := addNonNil(existingBorrow, extraBorrow)

	if totalBorrow.Sign() <= 0 || totalCollateral.Sign() <= 0 {
		return HealthFactor{}
	}
	if oraclePrice == nil || lltv == nil {
		return HealthFactor{}
	}

	maxBorrow := MaxBorrow(totalCollateral, oraclePrice, lltv)
	wad := new(big.Int).Mul(maxBorrow, entity.WAD)
	wad.Quo(wad, totalBorrow)

	ratio := new(big.Float).SetInt(wad)
	ratio.Quo(ratio, new(big.Float).SetInt(entity.WAD))
	value, _ := ratio.Float64()

	return HealthFactor{Defined: true, Wad: wad, Value: clampHealthFactor(value)}
}

func clampHealthFactor(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return HealthFactorCeiling
	}
	if v < 0 {
		return 0
	}
	return v
}

// CheckCollateralWithdrawal verifies that the remaining collateral still
// supports the debt. Amounts are raw 1e18 units.
func CheckCollateralWithdrawal(collateral, debt, withdraw, oraclePrice, lltv *big.Int) error {
	if collateral == nil {
		collateral = new(big.Int)
	}
	if withdraw.Cmp(collateral) > 0 {
		return fmt.Errorf("%w: requested %s, posted %s", ErrWithdrawExceedsCollateral, withdraw, collateral)
	}
	if debt == nil || debt.Sign() == 0 {
		return nil
	}
	if oraclePrice == nil {
		return ErrPriceUnavailable
	}
	remaining := new(big.Int).Sub(collateral, withdraw)
	maxBorrow := MaxBorrow(remaining, oraclePrice, lltv)
	if debt.Cmp(maxBorrow) > 0 {
		return fmt.Errorf("%w: debt %.6f exceeds max borrow %.6f of remaining collateral %.6f",
			ErrWithdrawBreachesSolvency, ToDisplay(debt), ToDisplay(maxBorrow), ToDisplay(remaining))
	}
	return nil
}

func addNonNil(a, b *big.Int) *big.Int {
	out := new(big.Int)
	if a != nil {
		out.Add(out, a)
	}
	if b != nil {
		out.Add(out, b)
	}
	return out
}
