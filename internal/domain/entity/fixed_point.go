package entity

import "math/big"

// Fixed-point scales used by the market contracts. These values are shared and
// must never be used as the receiver of a big.Int mutation.
var (
	// WAD is the 1e18 scale of token amounts, LLTV, fee and the kimchi premium.
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// OracleScale is the 1e36 scale of the oracle price.
	OracleScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
)

// BpsDenominator is the basis-point scale (10000 = 100%).
const BpsDenominator = 10_000

// TokenDecimals is the decimals of both market tokens.
const TokenDecimals = 18

func isNonNegative(v *big.Int) bool {
	return v != nil && v.Sign() >= 0
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
