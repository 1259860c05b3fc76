package market_data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// Config holds configuration for the Poller.
type Config struct {
	// AccountInterval is the cadence for market totals and the account's
	// position, balances and faucet flag.
	AccountInterval time.Duration

	// OracleInterval is the cadence for the oracle price and kimchi premium.
	OracleInterval time.Duration

	// FaucetEnabled turns on the hasClaimed read.
	FaucetEnabled bool

	Metrics outbound.MetricsRecorder
	Logger  *slog.Logger
}

func configDefaults() Config {
	return Config{
		AccountInterval: 5 * time.Second,
		OracleInterval:  10 * time.Second,
		Logger:          slog.Default(),
	}
}

// Poller refreshes the Cache from the chain. Every read writes its own cache
// field; a failed read logs and leaves the previous value in place.
type Poller struct {
	config   Config
	reader   outbound.LendingReader
	accounts outbound.AccountProvider
	cache    *Cache
	params   entity.MarketParams

	lastSuccess atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPoller creates a poller for the market described by params.
func NewPoller(config Config, reader outbound.LendingReader, accounts outbound.AccountProvider, cache *Cache, params entity.MarketParams) (*Poller, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if accounts == nil {
		return nil, fmt.Errorf("accounts cannot be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}

	defaults := configDefaults()
	if config.AccountInterval == 0 {
		config.AccountInterval = defaults.AccountInterval
	}
	if config.OracleInterval == 0 {
		config.OracleInterval = defaults.OracleInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Poller{
		config:   config,
		reader:   reader,
		accounts: accounts,
		cache:    cache,
		params:   params,
		logger:   config.Logger.With("component", "market-data-poller"),
	}, nil
}

// Start performs one read of every group and then polls in the background.
// Initial read failures are logged, not returned: the dashboard starts with
// "no data" fields and fills them as reads succeed.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := p.RefreshOracle(p.ctx); err != nil {
		p.logger.Warn("initial oracle read failed", "error", err)
	}
	if err := p.Refresh(p.ctx); err != nil {
		p.logger.Warn("initial account read failed", "error", err)
	}

	p.wg.Add(2)
	go p.loop(p.config.AccountInterval, p.Refresh)
	go p.loop(p.config.OracleInterval, p.RefreshOracle)

	p.logger.Info("market data poller started",
		"accountInterval", p.config.AccountInterval,
		"oracleInterval", p.config.OracleInterval)
	return nil
}

// Stop stops polling and waits for in-flight reads to return.
func (p *Poller) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("market data poller stopped")
	return nil
}

func (p *Poller) loop(interval time.Duration, fn func(context.Context) error) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := fn(p.ctx); err != nil && p.ctx.Err() == nil {
				p.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

// Refresh re-reads the market totals and, when an account is connected, its
// position, both token balances and the faucet flag. Reads run concurrently
// and Refresh returns once all of them have resolved.
func (p *Poller) Refresh(ctx context.Context) error {
	account, connected := p.accounts.Account()
	if !connected {
		p.cache.ClearAccount()
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	run("market", func() error {
		m, err := p.reader.Market(ctx)
		if err != nil {
			return err
		}
		p.cache.SetMarket(m)
		return nil
	})

	if connected {
		run("position", func() error {
			pos, err := p.reader.Position(ctx, account)
			if err != nil {
				return err
			}
			p.cache.SetPosition(pos)
			return nil
		})
		run("loan balance", func() error {
			bal, err := p.reader.TokenBalance(ctx, p.params.LoanToken, account)
			if err != nil {
				return err
			}
			p.cache.SetBalances(account, bal, nil)
			return nil
		})
		run("collateral balance", func() error {
			bal, err := p.reader.TokenBalance(ctx, p.params.CollateralToken, account)
			if err != nil {
				return err
			}
			p.cache.SetBalances(account, nil, bal)
			return nil
		})
		if p.config.FaucetEnabled {
			run("faucet", func() error {
				claimed, err := p.reader.FaucetClaimed(ctx, account)
				if err != nil {
					return err
				}
				p.cache.SetFaucetClaimed(account, claimed)
				return nil
			})
		}
	}

	wg.Wait()
	p.afterRead(ctx, len(errs) == 0)
	return errors.Join(errs...)
}

// RefreshOracle re-reads the price and the kimchi premium independently.
func (p *Poller) RefreshOracle(ctx context.Context) error {
	var (
		priceErr, premiumErr error
		price, premium       *big.Int
		wg                   sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		price, priceErr = p.reader.OraclePrice(ctx)
	}()
	go func() {
		defer wg.Done()
		premium, premiumErr = p.reader.KimchiPremium(ctx)
	}()
	wg.Wait()

	if priceErr == nil {
		if err := entity.ValidatePrice(price); err != nil {
			priceErr = err
		} else {
			p.cache.SetPrice(price)
		}
	}
	if premiumErr == nil {
		p.cache.SetKimchiPremium(premium)
	}

	var errs []error
	if priceErr != nil {
		errs = append(errs, fmt.Errorf("price: %w", priceErr))
	}
	if premiumErr != nil {
		errs = append(errs, fmt.Errorf("kimchi premium: %w", premiumErr))
	}
	p.afterRead(ctx, len(errs) == 0)
	return errors.Join(errs...)
}

func (p *Poller) afterRead(ctx context.Context, ok bool) {
	if ok {
		p.lastSuccess.Store(time.Now().UnixNano())
	}
	if p.config.Metrics == nil {
		return
	}
	snap := p.cache.Snapshot()
	if snap.Position == nil || snap.Oracle == nil {
		return
	}
	debt := lending.DerivePosition(snap.Position, snap.Market).BorrowAssets
	hf := lending.ComputeHealthFactor(snap.Position.Collateral, debt, nil, nil, snap.Oracle.Price, p.params.LLTV)
	if hf.Defined {
		p.config.Metrics.RecordHealthFactor(ctx, hf.Value)
	}
}

// Account returns the connected account, if any.
func (p *Poller) Account() (common.Address, bool) {
	return p.accounts.Account()
}

// IsReady reports whether the market totals and the oracle price have been read.
func (p *Poller) IsReady() bool {
	return p.cache.Snapshot().Ready()
}

// IsHealthy reports whether a full read group succeeded within three oracle intervals.
func (p *Poller) IsHealthy() bool {
	last := p.lastSuccess.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < 3*p.config.OracleInterval
}
