package entity

import (
	"fmt"
	"math/big"
	"time"
)

// OracleState is the latest oracle read. Price and KimchiPremium are polled
// independently, so either may be nil while the other is present.
type OracleState struct {
	// Price is the loan-asset amount backing one collateral unit, scaled by 1e36.
	Price *big.Int
	// KimchiPremium is the local/global price gap ratio, scaled by 1e18.
	KimchiPremium *big.Int
	UpdatedAt     time.Time
}

// ValidatePrice rejects a missing or non-positive price.
func ValidatePrice(price *big.Int) error {
	if price == nil {
		return fmt.Errorf("price must not be nil")
	}
	if price.Sign() <= 0 {
		return fmt.Errorf("price must be positive, got %s", price)
	}
	return nil
}

// ExchangeRate returns the human-readable number of collateral units per loan
// unit (for example KRW per ETH), the inverse of the raw price.
func (o *OracleState) ExchangeRate() (float64, bool) {
	if o == nil || ValidatePrice(o.Price) != nil {
		return 0, false
	}
	rate := new(big.Float).SetInt(OracleScale)
	rate.Quo(rate, new(big.Float).SetInt(o.Price))
	f, _ := rate.Float64()
	return f, true
}

// KimchiPremiumRatio returns the premium as a plain ratio (0.03 = 3%).
func (o *OracleState) KimchiPremiumRatio() (float64, bool) {
	if o == nil || o.KimchiPremium == nil {
		return 0, false
	}
	r := new(big.Float).SetInt(o.KimchiPremium)
	r.Quo(r, new(big.Float).SetInt(WAD))
	f, _ := r.Float64()
	return f, true
}

// Clone returns a deep copy.
func (o *OracleState) Clone() *OracleState {
	if o == nil {
		return nil
	}
	return &OracleState{
		Price:         copyInt(o.Price),
		KimchiPremium: copyInt(o.KimchiPremium),
		UpdatedAt:     o.UpdatedAt,
	}
}
