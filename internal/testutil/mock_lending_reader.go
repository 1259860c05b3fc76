package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.LendingReader = (*MockLendingReader)(nil)

// MockLendingReader is an in-memory chain for service tests. Fields are read
// under the mutex, so tests may mutate them through Update while services run.
// A non-nil Err* field fails the matching read.
type MockLendingReader struct {
	mu sync.Mutex

	Params        entity.MarketParams
	MarketState   *entity.MarketState
	Positions     map[common.Address]*entity.UserPosition
	Price         *big.Int
	Premium       *big.Int
	Balances      map[common.Address]map[common.Address]*big.Int // token -> owner -> balance
	Claimed       map[common.Address]bool
	FaucetEnabled bool

	ErrMarket   error
	ErrPosition error
	ErrPrice    error
	ErrBalance  error

	Calls map[string]int
}

// NewMockLendingReader returns a reader with empty state and a configured faucet.
func NewMockLendingReader(params entity.MarketParams) *MockLendingReader {
	return &MockLendingReader{
		Params:        params,
		Positions:     make(map[common.Address]*entity.UserPosition),
		Balances:      make(map[common.Address]map[common.Address]*big.Int),
		Claimed:       make(map[common.Address]bool),
		FaucetEnabled: true,
		Calls:         make(map[string]int),
	}
}

// Update runs fn with the mock locked.
func (m *MockLendingReader) Update(fn func(m *MockLendingReader)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// SetBalance sets owner's balance of token.
func (m *MockLendingReader) SetBalance(token, owner common.Address, amount *big.Int) {
	m.Update(func(m *MockLendingReader) {
		if m.Balances[token] == nil {
			m.Balances[token] = make(map[common.Address]*big.Int)
		}
		m.Balances[token][owner] = amount
	})
}

// CallCount returns how many times the named read ran.
func (m *MockLendingReader) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *MockLendingReader) MarketParams(context.Context) (entity.MarketParams, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["marketParams"]++
	return m.Params, nil
}

func (m *MockLendingReader) Market(context.Context) (*entity.MarketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["market"]++
	return m.market()
}

func (m *MockLendingReader) Position(_ context.Context, user common.Address) (*entity.UserPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["position"]++
	return m.position(user)
}

func (m *MockLendingReader) MarketAndPosition(_ context.Context, user common.Address) (*entity.MarketState, *entity.UserPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["marketAndPosition"]++
	market, err := m.market()
	if err != nil {
		return nil, nil, err
	}
	pos, err := m.position(user)
	if err != nil {
		return nil, nil, err
	}
	return market, pos, nil
}

func (m *MockLendingReader) OraclePrice(context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["price"]++
	if m.ErrPrice != nil {
		return nil, m.ErrPrice
	}
	if m.Price == nil {
		return nil, errors.New("price not set")
	}
	return new(big.Int).Set(m.Price), nil
}

func (m *MockLendingReader) KimchiPremium(context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["kimchiPremium"]++
	if m.Premium == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(m.Premium), nil
}

func (m *MockLendingReader) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["balanceOf"]++
	if m.ErrBalance != nil {
		return nil, m.ErrBalance
	}
	if b := m.Balances[token][owner]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *MockLendingReader) FaucetClaimed(_ context.Context, user common.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["hasClaimed"]++
	if !m.FaucetEnabled {
		return false, errors.New("faucet address not configured")
	}
	return m.Claimed[user], nil
}

func (m *MockLendingReader) market() (*entity.MarketState, error) {
	if m.ErrMarket != nil {
		return nil, m.ErrMarket
	}
	if m.MarketState == nil {
		return nil, errors.New("market not set")
	}
	return m.MarketState.Clone(), nil
}

func (m *MockLendingReader) position(user common.Address) (*entity.UserPosition, error) {
	if m.ErrPosition != nil {
		return nil, m.ErrPosition
	}
	if p := m.Positions[user]; p != nil {
		return p.Clone(), nil
	}
	return &entity.UserPosition{
		Account:      user,
		SupplyShares: new(big.Int),
		BorrowShares: new(big.Int),
		Collateral:   new(big.Int),
	}, nil
}
