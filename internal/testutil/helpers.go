package testutil

import (
	"io"
	"log/slog"
	"math/big"
)

// DiscardLogger returns an slog.Logger that writes to io.Discard.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Ether returns n whole tokens at 18 decimals.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// MustInt parses a base-10 integer and panics on malformed input.
func MustInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("testutil: bad integer " + s)
	}
	return v
}
