package lending

import (
	"math/big"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/blockchain"
)

// AssetsFromShares converts shares to assets as shares*totalAssets/totalShares,
// truncating like the contract does. It returns 0 when totalShares is 0.
func AssetsFromShares(shares, totalAssets, totalShares *big.Int) *big.Int {
	if shares == nil || totalAssets == nil || totalShares == nil || totalShares.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(shares, totalAssets)
	return out.Quo(out, totalShares)
}

// DerivePosition converts both sides of a raw position into asset amounts.
// A missing position or market yields zero amounts.
func DerivePosition(p *entity.UserPosition, m *entity.MarketState) entity.PositionAssets {
	if p == nil || m == nil {
		return entity.PositionAssets{SupplyAssets: new(big.Int), BorrowAssets: new(big.Int)}
	}
	return entity.PositionAssets{
		SupplyAssets: AssetsFromShares(p.SupplyShares, m.TotalSupplyAssets, m.TotalSupplyShares),
		BorrowAssets: AssetsFromShares(p.BorrowShares, m.TotalBorrowAssets, m.TotalBorrowShares),
	}
}

// ToDisplay divides out the token scale. This is the only step where a
// fixed-point amount becomes a float.
func ToDisplay(amount *big.Int) float64 {
	return blockchain.ToFloat64(amount, entity.TokenDecimals)
}
