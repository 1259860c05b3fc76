package blockchain

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ConvertToDecimalAdjusted divides a fixed-point token amount by 10^decimals.
func ConvertToDecimalAdjusted(amount *big.Int, decimals int) *big.Float {
	if amount == nil {
		return big.NewFloat(0)
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	result := new(big.Float).SetInt(amount)
	divisorFloat := new(big.Float).SetInt(divisor)
	return result.Quo(result, divisorFloat)
}

// ToFloat64 is ConvertToDecimalAdjusted rounded to the nearest float64.
func ToFloat64(amount *big.Int, decimals int) float64 {
	f, _ := ConvertToDecimalAdjusted(amount, decimals).Float64()
	return f
}

// ToUint256 checks that v is representable as a Solidity uint256 argument.
// A nil value encodes as zero.
func ToUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s is not a uint256", v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("value %s overflows uint256", v)
	}
	return u, nil
}
