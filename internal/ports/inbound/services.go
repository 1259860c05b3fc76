// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"errors"
	"time"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

// Error classes returned by DashboardService. Adapters map them to their
// own status codes; the wrapped error carries the user-facing reason.
var (
	// ErrMalformedRequest is a request that could not be understood at all.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrInvalidInput is a well-formed request with unusable values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSafetyGate is an action refused to protect the position.
	ErrSafetyGate = errors.New("refused by safety gate")
	// ErrBusy means another transaction sequence is running.
	ErrBusy = errors.New("a transaction sequence is already in progress")
	// ErrNotFound is an unknown notice or borrower.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the data needed has not been read yet.
	ErrUnavailable = errors.New("data not yet available")
)

// DashboardService is the use-case surface of the lending dashboard.
type DashboardService interface {
	// Snapshot returns the derived dashboard state.
	Snapshot(ctx context.Context) SnapshotView

	// Simulate computes the health factor after adding collateral and debt.
	Simulate(ctx context.Context, req SimulateRequest) (SimulationView, error)

	// Execute validates an action and starts its transaction sequence.
	Execute(ctx context.Context, req ActionRequest) (SequenceView, error)
	Sequence() SequenceView
	CancelSequence(ctx context.Context) SequenceView

	Liquidations() []LiquidationView
	CheckBorrower(ctx context.Context, borrower string) (LiquidationView, error)

	Notices(limit int) []entity.Notice
	DismissNotice(id string) error

	// Subscribe signals after every state change. Signals coalesce.
	Subscribe() (<-chan struct{}, func())
}

// HealthChecker defines the interface for services that can report readiness and liveness.
type HealthChecker interface {
	// IsReady returns true once market totals and the oracle price have been read.
	IsReady() bool

	// IsHealthy returns true while reads keep succeeding.
	IsHealthy() bool
}

// ActionRequest is a user action. Amounts are decimal strings in whole tokens.
type ActionRequest struct {
	Kind             string `json:"kind"`
	Side             string `json:"side,omitempty"`
	Amount           string `json:"amount,omitempty"`
	CollateralAmount string `json:"collateralAmount,omitempty"`
	Borrower         string `json:"borrower,omitempty"`
}

// SimulateRequest adds collateral and borrow to the current position. Empty means zero.
type SimulateRequest struct {
	Collateral string `json:"collateral,omitempty"`
	Borrow     string `json:"borrow,omitempty"`
}

// SimulationView is the simulated position.
type SimulationView struct {
	// HealthFactor is nil without debt or collateral.
	HealthFactor *float64 `json:"healthFactor"`
	Safe         bool     `json:"safe"`
	Collateral   string   `json:"collateral"`
	Borrow       string   `json:"borrow"`
	MaxBorrow    string   `json:"maxBorrow"`
}

// SnapshotView is the dashboard state. Sections are nil until their data
// has arrived, which the UI shows as "no data".
type SnapshotView struct {
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`

	Market        *MarketView   `json:"market"`
	Oracle        *OracleView   `json:"oracle"`
	Position      *PositionView `json:"position"`
	Balances      *BalancesView `json:"balances"`
	FaucetClaimed *bool         `json:"faucetClaimed"`

	Sequence  SequenceView `json:"sequence"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type MarketView struct {
	LoanToken       string  `json:"loanToken"`
	CollateralToken string  `json:"collateralToken"`
	LLTV            string  `json:"lltv"`
	TotalSupply     string  `json:"totalSupply"`
	TotalBorrow     string  `json:"totalBorrow"`
	Liquidity       string  `json:"liquidity"`
	Utilization     float64 `json:"utilization"`
	BorrowAPY       float64 `json:"borrowApy"`
	SupplyAPY       float64 `json:"supplyApy"`
}

type OracleView struct {
	// Price is the raw 1e36-scaled oracle price.
	Price         string   `json:"price,omitempty"`
	ExchangeRate  *float64 `json:"exchangeRate"`
	KimchiPremium *float64 `json:"kimchiPremium"`
}

type PositionView struct {
	Supplied          string   `json:"supplied"`
	Borrowed          string   `json:"borrowed"`
	Collateral        string   `json:"collateral"`
	HealthFactor      *float64 `json:"healthFactor"`
	MaxBorrow         string   `json:"maxBorrow"`
	AvailableToBorrow string   `json:"availableToBorrow"`
}

type BalancesView struct {
	Loan       string `json:"loan,omitempty"`
	Collateral string `json:"collateral,omitempty"`
}

// SequenceView is the running transaction sequence. Step is "idle" when none runs.
type SequenceView struct {
	ID               string    `json:"id,omitempty"`
	Step             string    `json:"step"`
	Action           string    `json:"action,omitempty"`
	Side             string    `json:"side,omitempty"`
	Amount           string    `json:"amount,omitempty"`
	CollateralAmount string    `json:"collateralAmount,omitempty"`
	Borrower         string    `json:"borrower,omitempty"`
	TxHash           string    `json:"txHash,omitempty"`
	StartedAt        time.Time `json:"startedAt,omitzero"`
}

type LiquidationView struct {
	Borrower     string    `json:"borrower"`
	Collateral   string    `json:"collateral"`
	Debt         string    `json:"debt"`
	HealthFactor *float64  `json:"healthFactor"`
	Liquidatable bool      `json:"liquidatable"`
	MaxSeizable  string    `json:"maxSeizable"`
	IncentiveBps int64     `json:"incentiveBps"`
	CheckedAt    time.Time `json:"checkedAt"`
}
