package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidatablePosition is a tracked third-party borrower snapshot.
// Entries are keyed by Borrower and updated in place on every check.
type LiquidatablePosition struct {
	Borrower     common.Address
	Collateral   *big.Int
	BorrowShares *big.Int
	BorrowAssets *big.Int
	// HealthFactor is nil when the borrower has no debt or no collateral.
	HealthFactor *float64
	// MaxSeizable is the collateral a liquidation of the whole debt would seize.
	MaxSeizable *big.Int
	// LiquidationIncentiveBps is the bonus assumed when sizing MaxSeizable.
	LiquidationIncentiveBps int64
	CheckedAt               time.Time
}

// Liquidatable reports whether the last check saw a health factor below 1.
func (l *LiquidatablePosition) Liquidatable() bool {
	return l.HealthFactor != nil && *l.HealthFactor < 1.0
}
