package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketID identifies a market on the lending contract (keccak of its params).
type MarketID = common.Hash

// MarketParams is the immutable configuration of a market as returned by
// idToMarketParams and passed to every state-changing market call.
type MarketParams struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	IRM             common.Address
	LLTV            *big.Int // WAD-scaled
}

// Validate checks that the params describe a usable market.
func (p MarketParams) Validate() error {
	if p.LoanToken == (common.Address{}) {
		return fmt.Errorf("loanToken must not be zero")
	}
	if p.CollateralToken == (common.Address{}) {
		return fmt.Errorf("collateralToken must not be zero")
	}
	if p.Oracle == (common.Address{}) {
		return fmt.Errorf("oracle must not be zero")
	}
	if p.LLTV == nil || p.LLTV.Sign() <= 0 {
		return fmt.Errorf("lltv must be positive")
	}
	if p.LLTV.Cmp(WAD) >= 0 {
		return fmt.Errorf("lltv must be below 1e18, got %s", p.LLTV)
	}
	return nil
}

// MarketState holds the market totals returned by market(id).
// totalBorrowAssets <= totalSupplyAssets is enforced by the contract and not re-checked here.
type MarketState struct {
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	LastUpdate        int64
	Fee               *big.Int // WAD-scaled share of interest taken by the protocol
}

// NewMarketState creates a new MarketState entity.
func NewMarketState(totalSupplyAssets, totalSupplyShares, totalBorrowAssets, totalBorrowShares *big.Int, lastUpdate int64, fee *big.Int) (*MarketState, error) {
	m := &MarketState{
		TotalSupplyAssets: totalSupplyAssets,
		TotalSupplyShares: totalSupplyShares,
		TotalBorrowAssets: totalBorrowAssets,
		TotalBorrowShares: totalBorrowShares,
		LastUpdate:        lastUpdate,
		Fee:               fee,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// validate checks that all fields have valid values.
func (m *MarketState) validate() error {
	if !isNonNegative(m.TotalSupplyAssets) {
		return fmt.Errorf("totalSupplyAssets must be non-negative")
	}
	if !isNonNegative(m.TotalSupplyShares) {
		return fmt.Errorf("totalSupplyShares must be non-negative")
	}
	if !isNonNegative(m.TotalBorrowAssets) {
		return fmt.Errorf("totalBorrowAssets must be non-negative")
	}
	if !isNonNegative(m.TotalBorrowShares) {
		return fmt.Errorf("totalBorrowShares must be non-negative")
	}
	if m.LastUpdate < 0 {
		return fmt.Errorf("lastUpdate must be non-negative, got %d", m.LastUpdate)
	}
	if !isNonNegative(m.Fee) {
		return fmt.Errorf("fee must be non-negative")
	}
	return nil
}

// Clone returns a deep copy.
func (m *MarketState) Clone() *MarketState {
	if m == nil {
		return nil
	}
	return &MarketState{
		TotalSupplyAssets: copyInt(m.TotalSupplyAssets),
		TotalSupplyShares: copyInt(m.TotalSupplyShares),
		TotalBorrowAssets: copyInt(m.TotalBorrowAssets),
		TotalBorrowShares: copyInt(m.TotalBorrowShares),
		LastUpdate:        m.LastUpdate,
		Fee:               copyInt(m.Fee),
	}
}
