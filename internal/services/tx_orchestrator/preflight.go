package tx_orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
	"github.com/archon-research/stl-lend/internal/services/liquidation"
	"github.com/archon-research/stl-lend/internal/services/market_data"
)

// Request is a user action as received from the dashboard.
type Request struct {
	Kind entity.ActionKind
	Side entity.Side

	Amount *big.Int

	// CollateralAmount is optional collateral to post in the same borrow sequence.
	CollateralAmount *big.Int

	// Borrower is the liquidation target.
	Borrower common.Address
}

// preflight validates req and builds its plan. Refusals are *RejectionError;
// any other error means a read failed and the request may be retried.
func (o *Orchestrator) preflight(ctx context.Context, account common.Address, req Request) (*Plan, error) {
	plan := &Plan{
		Kind:     req.Kind,
		Side:     req.Side,
		Account:  account,
		Amount:   req.Amount,
		Borrower: req.Borrower,
	}
	if plan.Side == "" {
		plan.Side = entity.SideLoan
	}

	if req.Kind != entity.ActionClaim {
		if req.Amount == nil || req.Amount.Sign() <= 0 {
			return nil, inputError(fmt.Errorf("%w: amount must be positive", lending.ErrInvalidAmount))
		}
	}

	snap := o.market.Snapshot()

	switch req.Kind {
	case entity.ActionSupply:
		return plan, o.preflightSupply(ctx, snap, plan)
	case entity.ActionWithdraw:
		return plan, o.preflightWithdraw(ctx, plan)
	case entity.ActionBorrow:
		plan.CollateralAmount = req.CollateralAmount
		return plan, o.preflightBorrow(ctx, snap, plan)
	case entity.ActionRepay:
		return plan, o.preflightRepay(ctx, snap, plan)
	case entity.ActionLiquidate:
		return plan, o.preflightLiquidate(ctx, snap, plan)
	case entity.ActionClaim:
		return plan, o.preflightClaim(ctx, plan)
	default:
		return nil, inputError(fmt.Errorf("unknown action kind %q", req.Kind))
	}
}

func (o *Orchestrator) preflightSupply(ctx context.Context, snap market_data.Snapshot, plan *Plan) error {
	token := o.params.LoanToken
	if plan.Side == entity.SideCollateral {
		token = o.params.CollateralToken
	}
	if err := o.checkBalance(ctx, snap, token, plan.Account, plan.Amount); err != nil {
		return err
	}
	plan.Approval = &Approval{Token: token, Amount: new(big.Int).Set(plan.Amount)}
	return nil
}

func (o *Orchestrator) preflightWithdraw(ctx context.Context, plan *Plan) error {
	market, position, err := o.reader.MarketAndPosition(ctx, plan.Account)
	if err != nil {
		return fmt.Errorf("reading position: %w", err)
	}

	if plan.Side == entity.SideLoan {
		supplied := lending.DerivePosition(position, market).SupplyAssets
		if plan.Amount.Cmp(supplied) > 0 {
			return inputError(fmt.Errorf("%w: requested %s, supplied %s",
				ErrInsufficientSupply, lending.FormatAmount(plan.Amount), lending.FormatAmount(supplied)))
		}
		return nil
	}

	price, err := o.reader.OraclePrice(ctx)
	if err != nil {
		return fmt.Errorf("reading oracle price: %w", err)
	}
	debt := lending.DerivePosition(position, market).BorrowAssets
	err = lending.CheckCollateralWithdrawal(position.Collateral, debt, plan.Amount, price, o.params.LLTV)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lending.ErrWithdrawExceedsCollateral):
		return inputError(err)
	default:
		return gateError(err)
	}
}

func (o *Orchestrator) preflightBorrow(ctx context.Context, snap market_data.Snapshot, plan *Plan) error {
	if plan.CollateralAmount != nil && plan.CollateralAmount.Sign() < 0 {
		return inputError(fmt.Errorf("%w: collateral amount must not be negative", lending.ErrInvalidAmount))
	}
	if plan.postsCollateral() {
		if err := o.checkBalance(ctx, snap, o.params.CollateralToken, plan.Account, plan.CollateralAmount); err != nil {
			return err
		}
	}

	market, position, err := o.reader.MarketAndPosition(ctx, plan.Account)
	if err != nil {
		return fmt.Errorf("reading position: %w", err)
	}
	price, err := o.reader.OraclePrice(ctx)
	if err != nil {
		return fmt.Errorf("reading oracle price: %w", err)
	}

	totalCollateral := new(big.Int).Set(position.Collateral)
	if plan.postsCollateral() {
		totalCollateral.Add(totalCollateral, plan.CollateralAmount)
	}
	if totalCollateral.Sign() == 0 {
		return inputError(ErrCollateralRequired)
	}

	liquidity := new(big.Int).Sub(market.TotalSupplyAssets, market.TotalBorrowAssets)
	if plan.Amount.Cmp(liquidity) > 0 {
		return inputError(fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientLiquidity, lending.FormatAmount(plan.Amount), lending.FormatAmount(liquidity)))
	}

	debt := lending.DerivePosition(position, market).BorrowAssets
	hf := lending.ComputeHealthFactor(position.Collateral, debt, plan.CollateralAmount, plan.Amount, price, o.params.LLTV)
	if !hf.Safe() {
		return gateError(fmt.Errorf("%w: simulated health factor %s", ErrUnsafeBorrow, hf))
	}

	if plan.postsCollateral() {
		plan.Approval = &Approval{Token: o.params.CollateralToken, Amount: new(big.Int).Set(plan.CollateralAmount)}
	}
	return nil
}

func (o *Orchestrator) preflightRepay(ctx context.Context, snap market_data.Snapshot, plan *Plan) error {
	market, position, err := o.reader.MarketAndPosition(ctx, plan.Account)
	if err != nil {
		return fmt.Errorf("reading position: %w", err)
	}
	debt := lending.DerivePosition(position, market).BorrowAssets
	if debt.Sign() == 0 {
		return inputError(ErrNoDebt)
	}

	needed := plan.Amount
	approve := plan.Amount
	if plan.Amount.Cmp(debt) >= 0 {
		// full repay: shares cannot leave dust behind when interest accrues
		plan.RepayShares = new(big.Int).Set(position.BorrowShares)
		needed = debt
		approve = lending.WithBuffer(debt, lending.ApprovalBufferBps)
	}
	if err := o.checkBalance(ctx, snap, o.params.LoanToken, plan.Account, needed); err != nil {
		return err
	}
	plan.Approval = &Approval{Token: o.params.LoanToken, Amount: new(big.Int).Set(approve)}
	return nil
}

func (o *Orchestrator) preflightLiquidate(ctx context.Context, snap market_data.Snapshot, plan *Plan) error {
	if plan.Borrower == (common.Address{}) {
		return inputError(errors.New("borrower address is required"))
	}
	if plan.Borrower == plan.Account {
		return inputError(ErrSelfLiquidation)
	}

	prepared, err := o.liquidations.PrepareLiquidation(ctx, plan.Borrower, plan.Amount)
	switch {
	case err == nil:
	case errors.Is(err, liquidation.ErrNotLiquidatable), errors.Is(err, lending.ErrNothingToSeize):
		return gateError(err)
	case errors.Is(err, lending.ErrInvalidRepay):
		return inputError(err)
	default:
		return fmt.Errorf("sizing liquidation: %w", err)
	}

	if err := o.checkBalance(ctx, snap, o.params.LoanToken, plan.Account, prepared.Size.RepayAssets); err != nil {
		return err
	}
	plan.Approval = &Approval{
		Token:  o.params.LoanToken,
		Amount: lending.WithBuffer(prepared.Size.RepayAssets, lending.ApprovalBufferBps),
	}
	return nil
}

func (o *Orchestrator) preflightClaim(ctx context.Context, plan *Plan) error {
	if !o.config.FaucetEnabled {
		return inputError(ErrFaucetUnavailable)
	}
	claimed, err := o.reader.FaucetClaimed(ctx, plan.Account)
	if err != nil {
		return fmt.Errorf("reading faucet state: %w", err)
	}
	if claimed {
		return inputError(ErrAlreadyClaimed)
	}
	return nil
}

// checkBalance compares amount with the account's token balance, using the
// cached value when it belongs to this account and reading otherwise.
func (o *Orchestrator) checkBalance(ctx context.Context, snap market_data.Snapshot, token, account common.Address, amount *big.Int) error {
	var balance *big.Int
	if snap.Account == account {
		switch token {
		case o.params.LoanToken:
			balance = snap.LoanBalance
		case o.params.CollateralToken:
			balance = snap.CollateralBalance
		}
	}
	if balance == nil {
		b, err := o.reader.TokenBalance(ctx, token, account)
		if err != nil {
			return fmt.Errorf("reading balance: %w", err)
		}
		balance = b
	}
	if amount.Cmp(balance) > 0 {
		return inputError(fmt.Errorf("%w: requested %s, balance %s",
			ErrInsufficientBalance, lending.FormatAmount(amount), lending.FormatAmount(balance)))
	}
	return nil
}
