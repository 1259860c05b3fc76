package tx_orchestrator

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// Step is the position of a sequence in its transaction chain.
type Step string

const (
	StepIdle                Step = "idle"
	StepApproving           Step = "approving"
	StepApproved            Step = "approved"
	StepSupplyingCollateral Step = "supplying_collateral"
	StepCollateralSupplied  Step = "collateral_supplied"
	StepBorrowing           Step = "borrowing"
	StepExecuting           Step = "executing"
)

// inFlight reports whether the step sends a transaction.
func (s Step) inFlight() bool {
	switch s {
	case StepApproving, StepSupplyingCollateral, StepBorrowing, StepExecuting:
		return true
	}
	return false
}

// terminal reports whether confirming the step ends the sequence.
func (s Step) terminal() bool {
	return s == StepBorrowing || s == StepExecuting
}

// Approval is the ERC-20 allowance granted to the market before the main call.
type Approval struct {
	Token  common.Address
	Amount *big.Int
}

// Plan is everything a sequence needs, fixed when the sequence starts.
type Plan struct {
	Kind    entity.ActionKind
	Side    entity.Side
	Account common.Address

	// Amount is the asset amount of the main call. For liquidate it is the
	// desired repay, re-sized on fresh data before execution.
	Amount *big.Int

	// CollateralAmount is posted before a borrow. Zero skips the collateral step.
	CollateralAmount *big.Int

	// Approval is nil when the action needs no allowance.
	Approval *Approval

	// RepayShares is set for a full repay, which repays by shares.
	RepayShares *big.Int

	Borrower common.Address
}

func (p *Plan) postsCollateral() bool {
	return p.CollateralAmount != nil && p.CollateralAmount.Sign() > 0
}

// State is the orchestrator's tagged state. Plan and ID are set on every
// non-idle step; Tx is set once the step's transaction has been broadcast.
type State struct {
	ID        string
	Step      Step
	Plan      *Plan
	Tx        *outbound.TxHandle
	StartedAt time.Time
}

// Event drives transition.
type Event interface {
	eventName() string
}

// EventStart begins a sequence from idle.
type EventStart struct {
	ID   string
	Plan *Plan
}

// EventSubmitted records the broadcast transaction of the current step.
type EventSubmitted struct {
	Tx outbound.TxHandle
}

// EventConfirmed is a successful receipt for the current step's transaction.
type EventConfirmed struct {
	TxHash common.Hash
}

// EventAdvance moves from a settled intermediate step to the next transaction.
type EventAdvance struct{}

// EventFailed is a rejection, a revert or any other error. It ends the sequence.
type EventFailed struct {
	Err error
}

// EventCancelled abandons the sequence.
type EventCancelled struct{}

func (EventStart) eventName() string     { return "start" }
func (EventSubmitted) eventName() string { return "submitted" }
func (EventConfirmed) eventName() string { return "confirmed" }
func (EventAdvance) eventName() string   { return "advance" }
func (EventFailed) eventName() string    { return "failed" }
func (EventCancelled) eventName() string { return "cancelled" }

// transition is the complete transition table. Any (step, event) pair not
// listed returns ErrInvalidTransition and leaves the state unchanged.
func transition(s State, e Event) (State, error) {
	switch s.Step {
	case StepIdle:
		if ev, ok := e.(EventStart); ok && ev.Plan != nil && ev.ID != "" {
			return State{
				ID:        ev.ID,
				Step:      firstStep(ev.Plan),
				Plan:      ev.Plan,
				StartedAt: time.Now(),
			}, nil
		}

	case StepApproving, StepSupplyingCollateral, StepBorrowing, StepExecuting:
		switch ev := e.(type) {
		case EventSubmitted:
			if s.Tx == nil {
				tx := ev.Tx
				s.Tx = &tx
				return s, nil
			}
		case EventConfirmed:
			if s.Tx != nil && s.Tx.Hash == ev.TxHash {
				return afterConfirmation(s), nil
			}
		case EventFailed, EventCancelled:
			return State{Step: StepIdle}, nil
		}

	case StepApproved, StepCollateralSupplied:
		switch e.(type) {
		case EventAdvance:
			return State{
				ID:        s.ID,
				Step:      nextStep(s),
				Plan:      s.Plan,
				StartedAt: s.StartedAt,
			}, nil
		case EventFailed, EventCancelled:
			return State{Step: StepIdle}, nil
		}
	}

	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e.eventName(), s.Step)
}

func firstStep(p *Plan) Step {
	switch {
	case p.Approval != nil:
		return StepApproving
	case p.Kind == entity.ActionBorrow:
		return StepBorrowing
	default:
		return StepExecuting
	}
}

func afterConfirmation(s State) State {
	switch s.Step {
	case StepApproving:
		return State{ID: s.ID, Step: StepApproved, Plan: s.Plan, StartedAt: s.StartedAt}
	case StepSupplyingCollateral:
		return State{ID: s.ID, Step: StepCollateralSupplied, Plan: s.Plan, StartedAt: s.StartedAt}
	default:
		return State{Step: StepIdle}
	}
}

func nextStep(s State) Step {
	if s.Plan.Kind != entity.ActionBorrow {
		return StepExecuting
	}
	if s.Step == StepApproved && s.Plan.postsCollateral() {
		return StepSupplyingCollateral
	}
	return StepBorrowing
}
