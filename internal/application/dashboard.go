// Package application holds the dashboard's application state: the market
// data cache, the running transaction sequence, the liquidation watch list and
// the notice feed, composed behind inbound.DashboardService.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
	"github.com/archon-research/stl-lend/internal/ports/inbound"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
	"github.com/archon-research/stl-lend/internal/services/liquidation"
	"github.com/archon-research/stl-lend/internal/services/market_data"
	"github.com/archon-research/stl-lend/internal/services/tx_orchestrator"
)

var (
	_ inbound.DashboardService = (*Dashboard)(nil)
	_ inbound.HealthChecker    = (*Dashboard)(nil)
)

// NoticeFeed is the readable notice store behind the dashboard.
type NoticeFeed interface {
	Recent(limit int) []entity.Notice
	Dismiss(id string) bool
	OnPublish(fn func(entity.Notice))
}

// Config holds configuration for the Dashboard.
type Config struct {
	// RateCurve drives the APY estimates.
	RateCurve lending.RateCurve

	// NoticeLimit caps Notices when the caller passes no limit.
	NoticeLimit int

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		RateCurve:   lending.DefaultRateCurve(),
		NoticeLimit: 20,
		Logger:      slog.Default(),
	}
}

// Deps are the services the dashboard composes.
type Deps struct {
	Params       entity.MarketParams
	Cache        *market_data.Cache
	Poller       *market_data.Poller
	Orchestrator *tx_orchestrator.Orchestrator
	Liquidations *liquidation.Service
	Feed         NoticeFeed
	// Notices receives the dashboard's own input-error notices.
	Notices outbound.NoticeSink
}

// Dashboard implements inbound.DashboardService.
type Dashboard struct {
	config       Config
	params       entity.MarketParams
	cache        *market_data.Cache
	poller       *market_data.Poller
	orchestrator *tx_orchestrator.Orchestrator
	liquidations *liquidation.Service
	feed         NoticeFeed
	notices      outbound.NoticeSink

	changes *hub

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewDashboard creates the dashboard.
func NewDashboard(config Config, deps Deps) (*Dashboard, error) {
	if deps.Cache == nil || deps.Poller == nil {
		return nil, fmt.Errorf("market data cannot be nil")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if deps.Liquidations == nil {
		return nil, fmt.Errorf("liquidations cannot be nil")
	}
	if deps.Feed == nil || deps.Notices == nil {
		return nil, fmt.Errorf("notices cannot be nil")
	}
	if err := deps.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}

	defaults := configDefaults()
	if config.RateCurve == (lending.RateCurve{}) {
		config.RateCurve = defaults.RateCurve
	}
	if config.NoticeLimit == 0 {
		config.NoticeLimit = defaults.NoticeLimit
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	d := &Dashboard{
		config:       config,
		params:       deps.Params,
		cache:        deps.Cache,
		poller:       deps.Poller,
		orchestrator: deps.Orchestrator,
		liquidations: deps.Liquidations,
		feed:         deps.Feed,
		notices:      deps.Notices,
		changes:      newHub(),
		logger:       config.Logger.With("component", "dashboard"),
	}
	d.feed.OnPublish(func(entity.Notice) { d.changes.notify() })
	return d, nil
}

// Start starts the orchestrator and the pollers.
func (d *Dashboard) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	if err := d.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	if err := d.poller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	updates, unsubscribe := d.cache.Subscribe()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-updates:
				d.changes.notify()
			}
		}
	}()

	d.logger.Info("dashboard started", "loanToken", d.params.LoanToken.Hex(), "collateralToken", d.params.CollateralToken.Hex())
	return nil
}

// Stop abandons any running sequence and stops polling.
func (d *Dashboard) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	errs := []error{d.orchestrator.Stop(), d.poller.Stop()}
	d.wg.Wait()
	return errors.Join(errs...)
}

func (d *Dashboard) IsReady() bool   { return d.poller.IsReady() }
func (d *Dashboard) IsHealthy() bool { return d.poller.IsHealthy() }

// Subscribe signals after cache updates and published notices.
func (d *Dashboard) Subscribe() (<-chan struct{}, func()) {
	return d.changes.subscribe()
}

// Snapshot returns the derived view of the cache.
func (d *Dashboard) Snapshot(_ context.Context) inbound.SnapshotView {
	snap := d.cache.Snapshot()
	derived := snap.Derive(d.params, d.config.RateCurve)
	account, connected := d.poller.Account()

	view := inbound.SnapshotView{
		Ready:     snap.Ready(),
		Connected: connected,
		Sequence:  sequenceView(d.orchestrator.Current()),
		UpdatedAt: snap.UpdatedAt,
	}
	if connected {
		view.Account = account.Hex()
	}

	if snap.Market != nil {
		view.Market = &inbound.MarketView{
			LoanToken:       d.params.LoanToken.Hex(),
			CollateralToken: d.params.CollateralToken.Hex(),
			LLTV:            lending.FormatAmount(d.params.LLTV),
			TotalSupply:     lending.FormatAmount(snap.Market.TotalSupplyAssets),
			TotalBorrow:     lending.FormatAmount(snap.Market.TotalBorrowAssets),
			Liquidity:       lending.FormatAmount(derived.Liquidity),
			Utilization:     derived.Rates.Utilization,
			BorrowAPY:       derived.Rates.BorrowAPY,
			SupplyAPY:       derived.Rates.SupplyAPY,
		}
	}

	if snap.Oracle != nil {
		o := &inbound.OracleView{}
		if snap.Oracle.Price != nil {
			o.Price = snap.Oracle.Price.String()
		}
		if rate, ok := snap.Oracle.ExchangeRate(); ok {
			o.ExchangeRate = &rate
		}
		if premium, ok := snap.Oracle.KimchiPremiumRatio(); ok {
			o.KimchiPremium = &premium
		}
		view.Oracle = o
	}

	// user fields stay empty for another account's leftovers
	if connected && snap.Account == account {
		if snap.Position != nil {
			view.Position = &inbound.PositionView{
				Supplied:          lending.FormatAmount(derived.Assets.SupplyAssets),
				Borrowed:          lending.FormatAmount(derived.Assets.BorrowAssets),
				Collateral:        lending.FormatAmount(snap.Position.Collateral),
				HealthFactor:      derived.HealthFactor.Ptr(),
				MaxBorrow:         lending.FormatAmount(derived.MaxBorrow),
				AvailableToBorrow: lending.FormatAmount(derived.Available),
			}
		}
		if snap.LoanBalance != nil || snap.CollateralBalance != nil {
			b := &inbound.BalancesView{}
			if snap.LoanBalance != nil {
				b.Loan = lending.FormatAmount(snap.LoanBalance)
			}
			if snap.CollateralBalance != nil {
				b.Collateral = lending.FormatAmount(snap.CollateralBalance)
			}
			view.Balances = b
		}
		view.FaucetClaimed = snap.FaucetClaimed
	}
	return view
}

// Simulate runs the health factor engine on the cached position plus the
// requested collateral and borrow.
func (d *Dashboard) Simulate(_ context.Context, req inbound.SimulateRequest) (inbound.SimulationView, error) {
	extraCollateral, err := parseOptionalAmount(req.Collateral)
	if err != nil {
		return inbound.SimulationView{}, fmt.Errorf("%w: collateral: %w", inbound.ErrInvalidInput, err)
	}
	extraBorrow, err := parseOptionalAmount(req.Borrow)
	if err != nil {
		return inbound.SimulationView{}, fmt.Errorf("%w: borrow: %w", inbound.ErrInvalidInput, err)
	}

	snap := d.cache.Snapshot()
	if snap.Oracle == nil || snap.Oracle.Price == nil {
		return inbound.SimulationView{}, fmt.Errorf("%w: %w", inbound.ErrUnavailable, lending.ErrPriceUnavailable)
	}

	// another account's leftover position must not leak into the simulation
	position := snap.Position
	if account, connected := d.poller.Account(); !connected || snap.Account != account {
		position = nil
	}

	collateral := new(big.Int).Set(extraCollateral)
	if position != nil && position.Collateral != nil {
		collateral.Add(collateral, position.Collateral)
	}
	borrow := new(big.Int).Add(lending.DerivePosition(position, snap.Market).BorrowAssets, extraBorrow)

	hf := lending.ComputeHealthFactor(collateral, borrow, nil, nil, snap.Oracle.Price, d.params.LLTV)
	return inbound.SimulationView{
		HealthFactor: hf.Ptr(),
		Safe:         hf.Safe(),
		Collateral:   lending.FormatAmount(collateral),
		Borrow:       lending.FormatAmount(borrow),
		MaxBorrow:    lending.FormatAmount(lending.MaxBorrow(collateral, snap.Oracle.Price, d.params.LLTV)),
	}, nil
}

// Execute parses req and starts its sequence.
func (d *Dashboard) Execute(ctx context.Context, req inbound.ActionRequest) (inbound.SequenceView, error) {
	kind, err := entity.ParseActionKind(strings.TrimSpace(req.Kind))
	if err != nil {
		return inbound.SequenceView{}, fmt.Errorf("%w: %w", inbound.ErrMalformedRequest, err)
	}
	side, err := entity.ParseSide(strings.TrimSpace(req.Side))
	if err != nil {
		return inbound.SequenceView{}, fmt.Errorf("%w: %w", inbound.ErrMalformedRequest, err)
	}

	r := tx_orchestrator.Request{Kind: kind, Side: side}

	if kind != entity.ActionClaim {
		if r.Amount, err = lending.ParseAmount(req.Amount); err != nil {
			return inbound.SequenceView{}, d.inputError(ctx, kind, err)
		}
	}
	if strings.TrimSpace(req.CollateralAmount) != "" {
		if r.CollateralAmount, err = lending.ParseAmount(req.CollateralAmount); err != nil {
			return inbound.SequenceView{}, d.inputError(ctx, kind, fmt.Errorf("collateral: %w", err))
		}
	}
	if kind == entity.ActionLiquidate {
		if r.Borrower, err = parseAddress(req.Borrower); err != nil {
			return inbound.SequenceView{}, d.inputError(ctx, kind, err)
		}
	}

	st, err := d.orchestrator.Execute(ctx, r)
	if err != nil {
		return inbound.SequenceView{}, mapOrchestratorError(err)
	}
	return sequenceView(st), nil
}

// Sequence returns the running sequence.
func (d *Dashboard) Sequence() inbound.SequenceView {
	return sequenceView(d.orchestrator.Current())
}

// CancelSequence abandons the running sequence.
func (d *Dashboard) CancelSequence(ctx context.Context) inbound.SequenceView {
	st := d.orchestrator.Cancel(ctx)
	d.changes.notify()
	return sequenceView(st)
}

// Liquidations returns the watch list, lowest health factor first.
func (d *Dashboard) Liquidations() []inbound.LiquidationView {
	positions := d.liquidations.List()
	views := make([]inbound.LiquidationView, 0, len(positions))
	for _, p := range positions {
		views = append(views, liquidationView(p))
	}
	return views
}

// CheckBorrower reads the borrower and adds or updates its watch-list entry.
func (d *Dashboard) CheckBorrower(ctx context.Context, borrower string) (inbound.LiquidationView, error) {
	addr, err := parseAddress(borrower)
	if err != nil {
		return inbound.LiquidationView{}, fmt.Errorf("%w: %w", inbound.ErrInvalidInput, err)
	}
	pos, err := d.liquidations.Check(ctx, addr)
	if err != nil {
		return inbound.LiquidationView{}, fmt.Errorf("checking borrower: %w", err)
	}
	d.changes.notify()
	return liquidationView(pos), nil
}

// Notices returns recent notices, newest first.
func (d *Dashboard) Notices(limit int) []entity.Notice {
	if limit <= 0 {
		limit = d.config.NoticeLimit
	}
	return d.feed.Recent(limit)
}

// DismissNotice removes a notice from the feed.
func (d *Dashboard) DismissNotice(id string) error {
	if !d.feed.Dismiss(id) {
		return fmt.Errorf("%w: notice %s", inbound.ErrNotFound, id)
	}
	d.changes.notify()
	return nil
}

// inputError publishes an input-error notice for a request the dashboard
// refused before it reached the orchestrator.
func (d *Dashboard) inputError(ctx context.Context, kind entity.ActionKind, err error) error {
	n := entity.Notice{
		ID:        uuid.NewString(),
		Kind:      entity.NoticeInputError,
		Message:   err.Error(),
		Action:    kind,
		CreatedAt: time.Now(),
	}
	if perr := d.notices.Publish(ctx, n); perr != nil {
		d.logger.Warn("failed to publish notice", "error", perr)
	}
	return fmt.Errorf("%w: %w", inbound.ErrInvalidInput, err)
}

func mapOrchestratorError(err error) error {
	var rejection *tx_orchestrator.RejectionError
	switch {
	case errors.Is(err, tx_orchestrator.ErrSequenceInFlight):
		return fmt.Errorf("%w: %w", inbound.ErrBusy, err)
	case errors.As(err, &rejection) && rejection.Class == tx_orchestrator.RejectSafetyGate:
		return fmt.Errorf("%w: %w", inbound.ErrSafetyGate, err)
	case errors.As(err, &rejection):
		return fmt.Errorf("%w: %w", inbound.ErrInvalidInput, err)
	default:
		return fmt.Errorf("action failed: %w", err)
	}
}

func parseOptionalAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return new(big.Int), nil
	}
	return lending.ParseAmount(s)
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("address must not be zero")
	}
	return addr, nil
}

func sequenceView(st tx_orchestrator.State) inbound.SequenceView {
	v := inbound.SequenceView{
		ID:        st.ID,
		Step:      string(st.Step),
		StartedAt: st.StartedAt,
	}
	if p := st.Plan; p != nil {
		v.Action = string(p.Kind)
		v.Side = string(p.Side)
		if p.Amount != nil {
			v.Amount = lending.FormatAmount(p.Amount)
		}
		if p.CollateralAmount != nil && p.CollateralAmount.Sign() > 0 {
			v.CollateralAmount = lending.FormatAmount(p.CollateralAmount)
		}
		if p.Borrower != (common.Address{}) {
			v.Borrower = p.Borrower.Hex()
		}
	}
	if st.Tx != nil {
		v.TxHash = st.Tx.Hash.Hex()
	}
	return v
}

func liquidationView(p entity.LiquidatablePosition) inbound.LiquidationView {
	return inbound.LiquidationView{
		Borrower:     p.Borrower.Hex(),
		Collateral:   lending.FormatAmount(p.Collateral),
		Debt:         lending.FormatAmount(p.BorrowAssets),
		HealthFactor: p.HealthFactor,
		Liquidatable: p.Liquidatable(),
		MaxSeizable:  lending.FormatAmount(p.MaxSeizable),
		IncentiveBps: p.LiquidationIncentiveBps,
		CheckedAt:    p.CheckedAt,
	}
}
