package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserPosition is the raw result of position(id, user).
type UserPosition struct {
	Account      common.Address
	SupplyShares *big.Int
	BorrowShares *big.Int
	Collateral   *big.Int
}

// NewUserPosition creates a new UserPosition entity.
func NewUserPosition(account common.Address, supplyShares, borrowShares, collateral *big.Int) (*UserPosition, error) {
	p := &UserPosition{
		Account:      account,
		SupplyShares: supplyShares,
		BorrowShares: borrowShares,
		Collateral:   collateral,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks that all fields have valid values.
func (p *UserPosition) validate() error {
	if p.Account == (common.Address{}) {
		return fmt.Errorf("account must not be zero")
	}
	if !isNonNegative(p.SupplyShares) {
		return fmt.Errorf("supplyShares must be non-negative")
	}
	if !isNonNegative(p.BorrowShares) {
		return fmt.Errorf("borrowShares must be non-negative")
	}
	if !isNonNegative(p.Collateral) {
		return fmt.Errorf("collateral must be non-negative")
	}
	return nil
}

// HasDebt reports whether the position carries borrow shares.
func (p *UserPosition) HasDebt() bool {
	return p != nil && p.BorrowShares != nil && p.BorrowShares.Sign() > 0
}

// Clone returns a deep copy.
func (p *UserPosition) Clone() *UserPosition {
	if p == nil {
		return nil
	}
	return &UserPosition{
		Account:      p.Account,
		SupplyShares: copyInt(p.SupplyShares),
		BorrowShares: copyInt(p.BorrowShares),
		Collateral:   copyInt(p.Collateral),
	}
}

// PositionAssets holds the asset-denominated amounts derived from shares.
type PositionAssets struct {
	SupplyAssets *big.Int
	BorrowAssets *big.Int
}
