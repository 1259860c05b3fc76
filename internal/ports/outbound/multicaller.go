package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Multicaller batches read calls through Multicall3 aggregate3.
type Multicaller interface {
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)
	Address() common.Address
}

// Call is one aggregate3 entry.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is one aggregate3 result.
type Result struct {
	Success    bool
	ReturnData []byte
}
