// Package tx_orchestrator runs the multi-transaction sequences behind each
// dashboard action (approve, post collateral, borrow, repay, liquidate, ...)
// as an explicit state machine. One sequence runs at a time.
package tx_orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/blockchain"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
	"github.com/archon-research/stl-lend/internal/services/liquidation"
	"github.com/archon-research/stl-lend/internal/services/market_data"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/stl-lend/internal/services/tx_orchestrator"
)

// SnapshotSource provides the cached dashboard state.
type SnapshotSource interface {
	Snapshot() market_data.Snapshot
}

// Refresher re-reads the account position, balances and market totals.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Liquidator sizes liquidations on fresh data and re-checks borrowers.
type Liquidator interface {
	PrepareLiquidation(ctx context.Context, borrower common.Address, desiredRepay *big.Int) (liquidation.Prepared, error)
	Check(ctx context.Context, borrower common.Address) (entity.LiquidatablePosition, error)
}

// Config holds configuration for the orchestrator.
type Config struct {
	// FaucetEnabled allows the claim action.
	FaucetEnabled bool

	Metrics outbound.MetricsRecorder
	Logger  *slog.Logger
}

func configDefaults() Config {
	return Config{
		Logger: slog.Default(),
	}
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Wallet       outbound.Wallet
	Reader       outbound.LendingReader
	Calls        *blockchain.MarketCalls
	Market       SnapshotSource
	Refresher    Refresher
	Liquidations Liquidator
	Notices      outbound.NoticeSink
}

// Orchestrator owns the single active sequence.
type Orchestrator struct {
	config       Config
	params       entity.MarketParams
	wallet       outbound.Wallet
	reader       outbound.LendingReader
	calls        *blockchain.MarketCalls
	market       SnapshotSource
	refresher    Refresher
	liquidations Liquidator
	notices      outbound.NoticeSink

	mu        sync.Mutex
	state     State
	preparing bool
	cancelRun context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator for the market described by params.
func NewOrchestrator(config Config, params entity.MarketParams, deps Deps) (*Orchestrator, error) {
	if deps.Wallet == nil {
		return nil, fmt.Errorf("wallet cannot be nil")
	}
	if deps.Reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if deps.Calls == nil {
		return nil, fmt.Errorf("calls cannot be nil")
	}
	if deps.Market == nil || deps.Refresher == nil {
		return nil, fmt.Errorf("market data cannot be nil")
	}
	if deps.Liquidations == nil {
		return nil, fmt.Errorf("liquidations cannot be nil")
	}
	if deps.Notices == nil {
		return nil, fmt.Errorf("notices cannot be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}

	defaults := configDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Orchestrator{
		config:       config,
		params:       params,
		wallet:       deps.Wallet,
		reader:       deps.Reader,
		calls:        deps.Calls,
		market:       deps.Market,
		refresher:    deps.Refresher,
		liquidations: deps.Liquidations,
		notices:      deps.Notices,
		state:        State{Step: StepIdle},
		logger:       config.Logger.With("component", "tx-orchestrator"),
	}, nil
}

// Start enables sequences. Sequences run under ctx, not under the request
// that started them.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()
	o.logger.Info("transaction orchestrator started")
	return nil
}

// Stop cancels any running sequence and waits for it to return. A broadcast
// transaction still mines; its outcome is not observed.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
	o.logger.Info("transaction orchestrator stopped")
	return nil
}

// Current returns a copy of the current state.
func (o *Orchestrator) Current() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Execute validates req and starts its sequence. It returns once the sequence
// has started; progress is observed through Current and the notice sink.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (State, error) {
	o.mu.Lock()
	if o.ctx == nil {
		o.mu.Unlock()
		return State{}, ErrNotStarted
	}
	if o.state.Step != StepIdle || o.preparing {
		o.mu.Unlock()
		return State{}, ErrSequenceInFlight
	}
	o.preparing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.preparing = false
		o.mu.Unlock()
	}()

	account, connected := o.wallet.Account()
	if !connected {
		err := inputError(outbound.ErrWalletDisconnected)
		o.reject(ctx, req.Kind, err)
		return State{}, err
	}

	plan, err := o.preflight(ctx, account, req)
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			o.reject(ctx, req.Kind, err)
		} else {
			o.logger.Warn("pre-flight read failed", "action", req.Kind, "error", err)
		}
		return State{}, err
	}

	id := uuid.NewString()

	o.mu.Lock()
	next, err := transition(o.state, EventStart{ID: id, Plan: plan})
	if err != nil {
		o.mu.Unlock()
		return State{}, err
	}
	o.state = next
	runCtx, cancel := context.WithCancel(o.ctx)
	o.cancelRun = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("sequence started",
		"sequence", id,
		"action", plan.Kind,
		"side", plan.Side,
		"step", next.Step)
	o.publish(ctx, entity.Notice{
		Kind:       entity.NoticeInfo,
		Message:    fmt.Sprintf("%s started", describe(plan)),
		Action:     plan.Kind,
		SequenceID: id,
	})

	go o.run(runCtx, id)
	return next, nil
}

// Cancel abandons the active sequence and returns to idle. A transaction
// already broadcast is not recalled; its later outcome is ignored.
func (o *Orchestrator) Cancel(ctx context.Context) State {
	o.mu.Lock()
	prev := o.state
	if prev.Step == StepIdle {
		o.mu.Unlock()
		return prev
	}
	next, err := transition(prev, EventCancelled{})
	if err != nil {
		o.mu.Unlock()
		o.logger.Error("cancel rejected", "step", prev.Step, "error", err)
		return prev
	}
	o.state = next
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	o.mu.Unlock()

	o.logger.Info("sequence abandoned", "sequence", prev.ID, "step", prev.Step)
	o.publish(ctx, entity.Notice{
		Kind:       entity.NoticeInfo,
		Message:    fmt.Sprintf("%s abandoned", describe(prev.Plan)),
		Action:     prev.Plan.Kind,
		SequenceID: prev.ID,
	})
	return next
}

func (o *Orchestrator) run(ctx context.Context, id string) {
	defer o.wg.Done()

	st, ok := o.stateOf(id)
	if !ok {
		return
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "orchestrator.sequence",
		trace.WithAttributes(
			attribute.String("sequence.id", id),
			attribute.String("sequence.action", string(st.Plan.Kind)),
			attribute.String("sequence.side", string(st.Plan.Side)),
		))
	defer span.End()

	for {
		st, ok := o.stateOf(id)
		if !ok || st.Step == StepIdle {
			return
		}
		if !st.Step.inFlight() {
			if _, ok := o.apply(id, EventAdvance{}); !ok {
				return
			}
			continue
		}

		done, err := o.runStep(ctx, id, st)
		if err != nil {
			if ctx.Err() != nil {
				// abandoned or shutting down
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "sequence failed")
			o.fail(ctx, id, st, err)
			return
		}
		if done {
			span.SetAttributes(attribute.Int64("sequence.duration_ms", time.Since(st.StartedAt).Milliseconds()))
			return
		}
	}
}

// runStep submits the current step's transaction and waits for its receipt.
// It reports whether the sequence completed.
func (o *Orchestrator) runStep(ctx context.Context, id string, st State) (bool, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "orchestrator.step",
		trace.WithAttributes(attribute.String("step", string(st.Step))))
	defer span.End()

	req, err := o.request(ctx, st)
	if err != nil {
		return false, err
	}

	handle, err := o.wallet.Submit(ctx, req)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.String("tx.hash", handle.Hash.Hex()))
	if _, ok := o.apply(id, EventSubmitted{Tx: handle}); !ok {
		return true, nil
	}

	receipt, err := o.wallet.AwaitReceipt(ctx, handle)
	if err != nil {
		return false, err
	}
	if !receipt.Success {
		return false, &RevertError{Step: st.Step, Method: req.Method, TxHash: handle.Hash}
	}
	o.recordTransaction(ctx, st, "confirmed")

	if st.Step.terminal() {
		o.settle(ctx, st.Plan)
	}

	next, ok := o.apply(id, EventConfirmed{TxHash: handle.Hash})
	if !ok {
		return true, nil
	}
	if next.Step != StepIdle {
		return false, nil
	}

	o.logger.Info("sequence completed", "sequence", id, "action", st.Plan.Kind, "tx", handle.Hash.Hex())
	o.publish(ctx, entity.Notice{
		Kind:       entity.NoticeSuccess,
		Message:    fmt.Sprintf("%s confirmed", describe(st.Plan)),
		Action:     st.Plan.Kind,
		SequenceID: id,
		TxHash:     handle.Hash.Hex(),
	})
	return true, nil
}

// request builds the transaction for the current step.
func (o *Orchestrator) request(ctx context.Context, st State) (outbound.TxRequest, error) {
	p := st.Plan
	switch st.Step {
	case StepApproving:
		return o.calls.Approve(p.Approval.Token, p.Approval.Amount)
	case StepSupplyingCollateral:
		return o.calls.SupplyCollateral(p.CollateralAmount, p.Account)
	case StepBorrowing:
		if err := o.regateBorrow(ctx, p); err != nil {
			return outbound.TxRequest{}, err
		}
		return o.calls.Borrow(p.Amount, p.Account, p.Account)
	case StepExecuting:
		return o.executeRequest(ctx, p)
	default:
		return outbound.TxRequest{}, fmt.Errorf("no transaction for step %s", st.Step)
	}
}

func (o *Orchestrator) executeRequest(ctx context.Context, p *Plan) (outbound.TxRequest, error) {
	switch p.Kind {
	case entity.ActionSupply:
		if p.Side == entity.SideCollateral {
			return o.calls.SupplyCollateral(p.Amount, p.Account)
		}
		return o.calls.Supply(p.Amount, p.Account)
	case entity.ActionWithdraw:
		if p.Side == entity.SideCollateral {
			return o.calls.WithdrawCollateral(p.Amount, p.Account, p.Account)
		}
		return o.calls.Withdraw(p.Amount, p.Account, p.Account)
	case entity.ActionRepay:
		if p.RepayShares != nil {
			return o.calls.RepayShares(p.RepayShares, p.Account)
		}
		return o.calls.RepayAssets(p.Amount, p.Account)
	case entity.ActionLiquidate:
		// sized again: the borrower may have changed while the approval mined
		prepared, err := o.liquidations.PrepareLiquidation(ctx, p.Borrower, p.Amount)
		if errors.Is(err, liquidation.ErrNotLiquidatable) || errors.Is(err, lending.ErrNothingToSeize) {
			return outbound.TxRequest{}, gateError(fmt.Errorf("sizing liquidation: %w", err))
		}
		if err != nil {
			return outbound.TxRequest{}, fmt.Errorf("sizing liquidation: %w", err)
		}
		o.logger.Info("liquidation sized",
			"borrower", p.Borrower.Hex(),
			"repay", prepared.Size.RepayAssets.String(),
			"seize", prepared.Size.SeizeAssets.String(),
			"repayClamped", prepared.Size.RepayClamped,
			"seizeClamped", prepared.Size.SeizeClamped)
		return o.calls.Liquidate(p.Borrower, prepared.Size.SeizeAssets)
	case entity.ActionClaim:
		return o.calls.Claim()
	default:
		return outbound.TxRequest{}, fmt.Errorf("unknown action kind %q", p.Kind)
	}
}

// regateBorrow repeats the health factor gate on a fresh read right before the
// borrow is signed. Collateral posted earlier in the sequence is on chain by now.
func (o *Orchestrator) regateBorrow(ctx context.Context, p *Plan) error {
	market, position, err := o.reader.MarketAndPosition(ctx, p.Account)
	if err != nil {
		return fmt.Errorf("reading position: %w", err)
	}
	price, err := o.reader.OraclePrice(ctx)
	if err != nil {
		return fmt.Errorf("reading oracle price: %w", err)
	}
	debt := lending.DerivePosition(position, market).BorrowAssets
	hf := lending.ComputeHealthFactor(position.Collateral, debt, nil, p.Amount, price, o.params.LLTV)
	if !hf.Safe() {
		return gateError(fmt.Errorf("%w: health factor at borrow time %s", ErrUnsafeBorrow, hf))
	}
	return nil
}

// settle refreshes account and market data before the sequence reports
// completion, so the next action is validated against post-transaction state.
func (o *Orchestrator) settle(ctx context.Context, p *Plan) {
	if err := o.refresher.Refresh(ctx); err != nil {
		o.logger.Warn("post-transaction refresh incomplete", "error", err)
	}
	if p.Kind == entity.ActionLiquidate {
		if _, err := o.liquidations.Check(ctx, p.Borrower); err != nil {
			o.logger.Warn("re-checking liquidated borrower failed", "borrower", p.Borrower.Hex(), "error", err)
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, id string, st State, err error) {
	if cur, ok := o.stateOf(id); ok {
		st = cur
	}
	if _, ok := o.apply(id, EventFailed{Err: err}); !ok {
		return
	}

	kind := entity.NoticeFailed
	status := "failed"
	message := fmt.Sprintf("%s failed during %s: %v", describe(st.Plan), st.Step, err)
	var (
		revert    *RevertError
		rejection *RejectionError
	)
	switch {
	case errors.Is(err, outbound.ErrUserRejected):
		kind = entity.NoticeRejected
		status = "rejected"
		message = fmt.Sprintf("%s rejected in wallet", describe(st.Plan))
	case errors.As(err, &revert):
		kind = entity.NoticeReverted
		status = "reverted"
		message = fmt.Sprintf("%s reverted during %s", describe(st.Plan), st.Step)
	case errors.As(err, &rejection):
		kind = entity.NoticeInputError
		if rejection.Class == RejectSafetyGate {
			kind = entity.NoticeSafetyGate
		}
		status = string(rejection.Class)
		message = fmt.Sprintf("%s stopped before %s: %v", describe(st.Plan), st.Step, err)
		if o.config.Metrics != nil {
			o.config.Metrics.RecordGateRejection(ctx, string(st.Plan.Kind), string(rejection.Class))
		}
	}
	o.recordTransaction(ctx, st, status)

	o.logger.Warn("sequence failed",
		"sequence", id,
		"action", st.Plan.Kind,
		"step", st.Step,
		"status", status,
		"error", err)

	n := entity.Notice{
		Kind:       kind,
		Message:    message,
		Action:     st.Plan.Kind,
		SequenceID: id,
	}
	if st.Tx != nil {
		n.TxHash = st.Tx.Hash.Hex()
	}
	if revert != nil {
		n.TxHash = revert.TxHash.Hex()
	}
	o.publish(ctx, n)
}

func (o *Orchestrator) reject(ctx context.Context, kind entity.ActionKind, err error) {
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		return
	}
	noticeKind := entity.NoticeInputError
	if rejection.Class == RejectSafetyGate {
		noticeKind = entity.NoticeSafetyGate
	}
	if o.config.Metrics != nil {
		o.config.Metrics.RecordGateRejection(ctx, string(kind), string(rejection.Class))
	}
	o.logger.Info("action rejected", "action", kind, "class", rejection.Class, "reason", err)
	o.publish(ctx, entity.Notice{Kind: noticeKind, Message: err.Error(), Action: kind})
}

// apply runs transition for the sequence id. Events for any other sequence
// are dropped, which is how late receipts of abandoned sequences are ignored.
func (o *Orchestrator) apply(id string, e Event) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.ID != id {
		o.logger.Debug("dropping event for inactive sequence", "sequence", id, "event", e.eventName())
		return State{}, false
	}
	next, err := transition(o.state, e)
	if err != nil {
		o.logger.Error("transition rejected", "sequence", id, "error", err)
		return o.state, false
	}
	o.state = next
	if next.Step == StepIdle {
		o.cancelRun = nil
	}
	return next, true
}

func (o *Orchestrator) stateOf(id string) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.ID != id {
		return State{}, false
	}
	return o.state, true
}

func (o *Orchestrator) recordTransaction(ctx context.Context, st State, status string) {
	if o.config.Metrics != nil {
		o.config.Metrics.RecordTransaction(ctx, string(st.Plan.Kind), string(st.Step), status)
	}
}

func (o *Orchestrator) publish(ctx context.Context, n entity.Notice) {
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	// the request context may already be done; notices outlive it
	if err := o.notices.Publish(context.WithoutCancel(ctx), n); err != nil {
		o.logger.Warn("failed to publish notice", "kind", n.Kind, "error", err)
	}
}

func describe(p *Plan) string {
	if p == nil {
		return "sequence"
	}
	switch p.Kind {
	case entity.ActionClaim:
		return "faucet claim"
	case entity.ActionLiquidate:
		return fmt.Sprintf("liquidation of %s", p.Borrower.Hex())
	case entity.ActionRepay:
		if p.RepayShares != nil {
			return "full repay"
		}
		return fmt.Sprintf("repay of %s", lending.FormatAmount(p.Amount))
	case entity.ActionBorrow:
		if p.postsCollateral() {
			return fmt.Sprintf("borrow of %s against %s collateral",
				lending.FormatAmount(p.Amount), lending.FormatAmount(p.CollateralAmount))
		}
		return fmt.Sprintf("borrow of %s", lending.FormatAmount(p.Amount))
	default:
		return fmt.Sprintf("%s %s of %s", p.Side, p.Kind, lending.FormatAmount(p.Amount))
	}
}
