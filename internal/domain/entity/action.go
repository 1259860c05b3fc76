package entity

import "fmt"

// ActionKind is the user action a transaction sequence carries out.
type ActionKind string

const (
	ActionSupply    ActionKind = "supply"
	ActionWithdraw  ActionKind = "withdraw"
	ActionBorrow    ActionKind = "borrow"
	ActionRepay     ActionKind = "repay"
	ActionLiquidate ActionKind = "liquidate"
	ActionClaim     ActionKind = "claim"
)

// ParseActionKind converts a string to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(s); k {
	case ActionSupply, ActionWithdraw, ActionBorrow, ActionRepay, ActionLiquidate, ActionClaim:
		return k, nil
	default:
		return "", fmt.Errorf("unknown action kind %q", s)
	}
}

// Side selects which market asset an action applies to.
type Side string

const (
	SideLoan       Side = "loan"
	SideCollateral Side = "collateral"
)

// ParseSide converts a string to a Side. Empty defaults to the loan side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case "", SideLoan:
		return SideLoan, nil
	case SideCollateral:
		return SideCollateral, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}
