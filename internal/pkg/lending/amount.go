package lending

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a user-entered decimal string ("3.0") into 1e18 units.
// Empty, zero, negative and over-precise inputs are rejected.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	scaled := d.Shift(entity.TokenDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, entity.TokenDecimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders 1e18 units as a decimal string without trailing zeros.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -entity.TokenDecimals).String()
}
