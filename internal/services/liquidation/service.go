// Package liquidation tracks third-party borrowers and sizes liquidations
// against freshly read chain state.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// ErrNotLiquidatable is returned when a fresh read shows the borrower is solvent
// or has no debt.
var ErrNotLiquidatable = errors.New("position is not liquidatable")

// Config holds configuration for the liquidation service.
type Config struct {
	// IncentiveBps is the liquidation bonus assumed when sizing. Defaults to
	// lending.DefaultIncentiveBps.
	IncentiveBps int64

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		IncentiveBps: lending.DefaultIncentiveBps,
		Logger:       slog.Default(),
	}
}

// Prepared is a liquidation sized on fresh data, ready to submit.
type Prepared struct {
	Position entity.LiquidatablePosition
	Size     lending.LiquidationSize
}

// Service holds the watch list. Entries are keyed by borrower and replaced in
// place on every check.
type Service struct {
	config Config
	reader outbound.LendingReader
	params entity.MarketParams

	mu        sync.RWMutex
	positions map[common.Address]*entity.LiquidatablePosition

	logger *slog.Logger
}

// NewService creates a liquidation service for the market described by params.
func NewService(config Config, reader outbound.LendingReader, params entity.MarketParams) (*Service, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}

	defaults := configDefaults()
	if config.IncentiveBps == 0 {
		config.IncentiveBps = defaults.IncentiveBps
	}
	if config.IncentiveBps < 0 {
		return nil, fmt.Errorf("incentive must be non-negative, got %d bps", config.IncentiveBps)
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:    config,
		reader:    reader,
		params:    params,
		positions: make(map[common.Address]*entity.LiquidatablePosition),
		logger:    config.Logger.With("component", "liquidation"),
	}, nil
}

// IncentiveBps returns the bonus used for sizing.
func (s *Service) IncentiveBps() int64 {
	return s.config.IncentiveBps
}

// Check re-reads the borrower and upserts its watch list entry.
func (s *Service) Check(ctx context.Context, borrower common.Address) (entity.LiquidatablePosition, error) {
	pos, _, _, err := s.read(ctx, borrower)
	if err != nil {
		return entity.LiquidatablePosition{}, err
	}
	s.upsert(pos)

	s.logger.Debug("borrower checked",
		"borrower", borrower.Hex(),
		"liquidatable", pos.Liquidatable(),
		"debt", pos.BorrowAssets.String())
	return pos, nil
}

// PrepareLiquidation re-reads the borrower and sizes a liquidation for
// desiredRepay loan-token units. The watch list entry is refreshed as a side
// effect. A solvent borrower yields ErrNotLiquidatable.
func (s *Service) PrepareLiquidation(ctx context.Context, borrower common.Address, desiredRepay *big.Int) (Prepared, error) {
	pos, snapshot, price, err := s.read(ctx, borrower)
	if err != nil {
		return Prepared{}, err
	}
	s.upsert(pos)

	if !pos.Liquidatable() {
		return Prepared{Position: pos}, fmt.Errorf("%w: health factor %s", ErrNotLiquidatable, formatHF(pos.HealthFactor))
	}

	size, err := lending.SizeLiquidation(desiredRepay, snapshot, price, s.config.IncentiveBps)
	return Prepared{Position: pos, Size: size}, err
}

// List returns the watch list, lowest health factor first. Entries without a
// health factor come last, ordered by address.
func (s *Service) List() []entity.LiquidatablePosition {
	s.mu.RLock()
	out := make([]entity.LiquidatablePosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, clonePosition(*p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].HealthFactor, out[j].HealthFactor
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		default:
			return out[i].Borrower.Hex() < out[j].Borrower.Hex()
		}
	})
	return out
}

// Get returns the tracked entry for borrower.
func (s *Service) Get(borrower common.Address) (entity.LiquidatablePosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[borrower]
	if !ok {
		return entity.LiquidatablePosition{}, false
	}
	return clonePosition(*p), true
}

// read fetches market, position and price, and derives the watch list entry.
func (s *Service) read(ctx context.Context, borrower common.Address) (entity.LiquidatablePosition, lending.BorrowerSnapshot, *big.Int, error) {
	if borrower == (common.Address{}) {
		return entity.LiquidatablePosition{}, lending.BorrowerSnapshot{}, nil, errors.New("borrower address must not be zero")
	}

	market, position, err := s.reader.MarketAndPosition(ctx, borrower)
	if err != nil {
		return entity.LiquidatablePosition{}, lending.BorrowerSnapshot{}, nil, fmt.Errorf("reading borrower %s: %w", borrower.Hex(), err)
	}
	price, err := s.reader.OraclePrice(ctx)
	if err != nil {
		return entity.LiquidatablePosition{}, lending.BorrowerSnapshot{}, nil, fmt.Errorf("reading oracle price: %w", err)
	}
	if err := entity.ValidatePrice(price); err != nil {
		return entity.LiquidatablePosition{}, lending.BorrowerSnapshot{}, nil, fmt.Errorf("%w: %v", lending.ErrPriceUnavailable, err)
	}

	debt := lending.DerivePosition(position, market).BorrowAssets
	hf := lending.ComputeHealthFactor(position.Collateral, debt, nil, nil, price, s.params.LLTV)

	snapshot := lending.BorrowerSnapshot{
		Collateral:   new(big.Int).Set(position.Collateral),
		BorrowShares: new(big.Int).Set(position.BorrowShares),
		BorrowAssets: debt,
	}

	maxSeizable := new(big.Int)
	if debt.Sign() > 0 {
		if size, err := lending.SizeLiquidation(debt, snapshot, price, s.config.IncentiveBps); err == nil {
			maxSeizable = size.SeizeAssets
		}
	}

	pos := entity.LiquidatablePosition{
		Borrower:                borrower,
		Collateral:              new(big.Int).Set(position.Collateral),
		BorrowShares:            new(big.Int).Set(position.BorrowShares),
		BorrowAssets:            new(big.Int).Set(debt),
		HealthFactor:            hf.Ptr(),
		MaxSeizable:             maxSeizable,
		LiquidationIncentiveBps: s.config.IncentiveBps,
		CheckedAt:               time.Now(),
	}
	if hf.Defined && !hf.Safe() {
		// the float may round to 1.0 just below the boundary
		v := hf.Value
		if v >= 1.0 {
			v = 0.9999999999
		}
		pos.HealthFactor = &v
	}
	return pos, snapshot, price, nil
}

func (s *Service) upsert(pos entity.LiquidatablePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := clonePosition(pos)
	s.positions[pos.Borrower] = &p
}

func clonePosition(p entity.LiquidatablePosition) entity.LiquidatablePosition {
	out := p
	out.Collateral = copyInt(p.Collateral)
	out.BorrowShares = copyInt(p.BorrowShares)
	out.BorrowAssets = copyInt(p.BorrowAssets)
	out.MaxSeizable = copyInt(p.MaxSeizable)
	if p.HealthFactor != nil {
		v := *p.HealthFactor
		out.HealthFactor = &v
	}
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func formatHF(hf *float64) string {
	if hf == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", *hf)
}
