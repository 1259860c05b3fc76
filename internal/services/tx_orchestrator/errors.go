package tx_orchestrator

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSequenceInFlight  = errors.New("a transaction sequence is already in progress")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotStarted        = errors.New("orchestrator not started")

	ErrUnsafeBorrow          = errors.New("borrow would put the health factor below 1.0")
	ErrInsufficientBalance   = errors.New("amount exceeds wallet balance")
	ErrInsufficientSupply    = errors.New("amount exceeds supplied balance")
	ErrInsufficientLiquidity = errors.New("amount exceeds market liquidity")
	ErrCollateralRequired    = errors.New("collateral is required to borrow")
	ErrNoDebt                = errors.New("no outstanding debt")
	ErrFaucetUnavailable     = errors.New("faucet is not configured")
	ErrAlreadyClaimed        = errors.New("faucet already claimed")
	ErrSelfLiquidation       = errors.New("cannot liquidate the connected account")
)

// RejectionClass separates bad input from safety-gate refusals.
type RejectionClass string

const (
	RejectInput      RejectionClass = "input"
	RejectSafetyGate RejectionClass = "safety_gate"
)

// RejectionError is a pre-flight refusal. Nothing was submitted.
type RejectionError struct {
	Class RejectionClass
	Err   error
}

func (e *RejectionError) Error() string {
	return e.Err.Error()
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func inputError(err error) error {
	return &RejectionError{Class: RejectInput, Err: err}
}

func gateError(err error) error {
	return &RejectionError{Class: RejectSafetyGate, Err: err}
}

// RevertError is a mined transaction with a failed status.
type RevertError struct {
	Step   Step
	Method string
	TxHash common.Hash
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%s transaction %s reverted during %s", e.Method, e.TxHash.Hex(), e.Step)
}
