// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

// LendingReader is the typed read side of the market, oracle, token and faucet
// contracts. Every method reads the latest block.
type LendingReader interface {
	// MarketParams returns idToMarketParams for the configured market.
	MarketParams(ctx context.Context) (entity.MarketParams, error)

	// Market returns the market totals.
	Market(ctx context.Context) (*entity.MarketState, error)

	// Position returns the raw position of user.
	Position(ctx context.Context, user common.Address) (*entity.UserPosition, error)

	// MarketAndPosition reads the totals and the position in one call so both
	// come from the same block. Used wherever a decision is made on fresh data.
	MarketAndPosition(ctx context.Context, user common.Address) (*entity.MarketState, *entity.UserPosition, error)

	// OraclePrice returns price(), scaled by 1e36.
	OraclePrice(ctx context.Context) (*big.Int, error)

	// KimchiPremium returns kimchiPremium(), scaled by 1e18.
	KimchiPremium(ctx context.Context) (*big.Int, error)

	// TokenBalance returns balanceOf(owner) on token.
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// FaucetClaimed returns whether user already claimed from the faucet.
	FaucetClaimed(ctx context.Context, user common.Address) (bool, error)
}
