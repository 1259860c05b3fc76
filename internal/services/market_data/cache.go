// Package market_data keeps the latest on-chain reads for the dashboard in an
// in-memory cache and refreshes them on two polling cadences.
package market_data

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
)

// Snapshot is a consistent copy of the cache. Fields are nil until the
// corresponding read has succeeded at least once.
type Snapshot struct {
	Account  common.Address
	Market   *entity.MarketState
	Oracle   *entity.OracleState
	Position *entity.UserPosition

	LoanBalance       *big.Int
	CollateralBalance *big.Int
	FaucetClaimed     *bool

	UpdatedAt time.Time
}

// Ready reports whether the market totals and the oracle price have arrived.
func (s Snapshot) Ready() bool {
	return s.Market != nil && s.Oracle != nil && s.Oracle.Price != nil
}

// Derived is the dashboard view computed from a Snapshot.
type Derived struct {
	Assets       entity.PositionAssets
	HealthFactor lending.HealthFactor
	// MaxBorrow is the borrow capacity of the posted collateral, before existing debt.
	MaxBorrow *big.Int
	// Available is MaxBorrow minus current debt, floored at zero.
	Available *big.Int
	Liquidity *big.Int
	Rates     lending.Rates
}

// Derive computes positions, health factor, borrow capacity and rates.
// Missing inputs produce zero amounts and an undefined health factor.
func (s Snapshot) Derive(params entity.MarketParams, curve lending.RateCurve) Derived {
	assets := lending.DerivePosition(s.Position, s.Market)

	var price *big.Int
	if s.Oracle != nil {
		price = s.Oracle.Price
	}
	var collateral *big.Int
	if s.Position != nil {
		collateral = s.Position.Collateral
	}

	d := Derived{
		Assets:       assets,
		HealthFactor: lending.ComputeHealthFactor(collateral, assets.BorrowAssets, nil, nil, price, params.LLTV),
		MaxBorrow:    new(big.Int),
		Available:    new(big.Int),
		Liquidity:    new(big.Int),
		Rates:        lending.EstimateRates(s.Market, curve),
	}
	if collateral != nil && price != nil && params.LLTV != nil {
		d.MaxBorrow = lending.MaxBorrow(collateral, price, params.LLTV)
		if d.MaxBorrow.Cmp(assets.BorrowAssets) > 0 {
			d.Available = new(big.Int).Sub(d.MaxBorrow, assets.BorrowAssets)
		}
	}
	if s.Market != nil && s.Market.TotalSupplyAssets != nil && s.Market.TotalBorrowAssets != nil {
		if s.Market.TotalSupplyAssets.Cmp(s.Market.TotalBorrowAssets) > 0 {
			d.Liquidity = new(big.Int).Sub(s.Market.TotalSupplyAssets, s.Market.TotalBorrowAssets)
		}
	}
	return d
}

// Cache holds the latest reads. Every setter notifies subscribers.
type Cache struct {
	mu   sync.RWMutex
	snap Snapshot

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func NewCache() *Cache {
	return &Cache{subs: make(map[int]chan struct{})}
}

// Snapshot returns a deep copy of the current state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := c.snap
	out.Market = c.snap.Market.Clone()
	out.Oracle = c.snap.Oracle.Clone()
	out.Position = c.snap.Position.Clone()
	out.LoanBalance = copyInt(c.snap.LoanBalance)
	out.CollateralBalance = copyInt(c.snap.CollateralBalance)
	if c.snap.FaucetClaimed != nil {
		v := *c.snap.FaucetClaimed
		out.FaucetClaimed = &v
	}
	return out
}

func (c *Cache) SetMarket(m *entity.MarketState) {
	c.update(func(s *Snapshot) { s.Market = m.Clone() })
}

func (c *Cache) SetPrice(price *big.Int) {
	c.update(func(s *Snapshot) {
		o := s.Oracle.Clone()
		if o == nil {
			o = &entity.OracleState{}
		}
		o.Price = copyInt(price)
		o.UpdatedAt = time.Now()
		s.Oracle = o
	})
}

func (c *Cache) SetKimchiPremium(premium *big.Int) {
	c.update(func(s *Snapshot) {
		o := s.Oracle.Clone()
		if o == nil {
			o = &entity.OracleState{}
		}
		o.KimchiPremium = copyInt(premium)
		o.UpdatedAt = time.Now()
		s.Oracle = o
	})
}

// SetPosition stores the account's position. A position for a different
// account than the current one resets the account-scoped fields first.
func (c *Cache) SetPosition(p *entity.UserPosition) {
	c.update(func(s *Snapshot) {
		if p != nil && p.Account != s.Account {
			resetAccount(s, p.Account)
		}
		s.Position = p.Clone()
	})
}

func (c *Cache) SetBalances(account common.Address, loan, collateral *big.Int) {
	c.update(func(s *Snapshot) {
		if account != s.Account {
			resetAccount(s, account)
		}
		if loan != nil {
			s.LoanBalance = copyInt(loan)
		}
		if collateral != nil {
			s.CollateralBalance = copyInt(collateral)
		}
	})
}

func (c *Cache) SetFaucetClaimed(account common.Address, claimed bool) {
	c.update(func(s *Snapshot) {
		if account != s.Account {
			resetAccount(s, account)
		}
		s.FaucetClaimed = &claimed
	})
}

// ClearAccount drops every account-scoped field, for a disconnected wallet.
func (c *Cache) ClearAccount() {
	c.update(func(s *Snapshot) { resetAccount(s, common.Address{}) })
}

// Subscribe returns a channel that receives a signal after each update and a
// function that cancels the subscription. Signals coalesce: a slow reader sees
// at most one pending signal.
func (c *Cache) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Cache) update(fn func(s *Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	c.snap.UpdatedAt = time.Now()
	c.mu.Unlock()

	c.notify()
}

func (c *Cache) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func resetAccount(s *Snapshot, account common.Address) {
	s.Account = account
	s.Position = nil
	s.LoanBalance = nil
	s.CollateralBalance = nil
	s.FaucetClaimed = nil
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
