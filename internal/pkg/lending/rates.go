package lending

import (
	"math/big"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

// RateCurve is a kinked utilization curve approximating the market's interest
// rate model. It is an estimate for display only.
type RateCurve struct {
	BaseRate           float64
	Slope1             float64
	Slope2             float64
	OptimalUtilization float64
}

// DefaultRateCurve returns the curve the dashboard assumes when none is configured.
func DefaultRateCurve() RateCurve {
	return RateCurve{
		BaseRate:           0.0,
		Slope1:             0.04,
		Slope2:             0.75,
		OptimalUtilization: 0.9,
	}
}

// Rates is the estimated yearly borrow and supply rate.
type Rates struct {
	Utilization float64
	BorrowAPY   float64
	SupplyAPY   float64
}

// Utilization returns totalBorrowAssets/totalSupplyAssets, or 0 for an empty market.
func Utilization(m *entity.MarketState) float64 {
	if m == nil || m.TotalSupplyAssets == nil || m.TotalSupplyAssets.Sign() == 0 || m.TotalBorrowAssets == nil {
		return 0
	}
	u := new(big.Float).SetInt(m.TotalBorrowAssets)
	u.Quo(u, new(big.Float).SetInt(m.TotalSupplyAssets))
	f, _ := u.Float64()
	if f > 1 {
		return 1
	}
	return f
}

// EstimateRates evaluates the curve at the market's utilization.
// Supply APY is borrow APY * utilization * (1 - fee).
func EstimateRates(m *entity.MarketState, curve RateCurve) Rates {
	u := Utilization(m)

	var borrow float64
	if curve.OptimalUtilization <= 0 || curve.OptimalUtilization >= 1 || u <= curve.OptimalUtilization {
		borrow = curve.BaseRate + curve.Slope1*u/nonZero(curve.OptimalUtilization)
	} else {
		excess := (u - curve.OptimalUtilization) / (1 - curve.OptimalUtilization)
		borrow = curve.BaseRate + curve.Slope1 + curve.Slope2*excess
	}

	fee := 0.0
	if m != nil && m.Fee != nil {
		fee = ToDisplay(m.Fee)
	}

	return Rates{
		Utilization: u,
		BorrowAPY:   borrow,
		SupplyAPY:   borrow * u * (1 - fee),
	}
}

func nonZero(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}
