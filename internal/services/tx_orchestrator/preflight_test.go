package tx_orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/pkg/lending"
	"github.com/archon-research/stl-lend/internal/services/liquidation"
	"github.com/archon-research/stl-lend/internal/testutil"
)

func TestPreflight_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		req       Request
		wantErr   error
		wantClass RejectionClass
	}{
		{
			name:      "zero amount",
			req:       Request{Kind: entity.ActionSupply, Amount: big.NewInt(0)},
			wantErr:   lending.ErrInvalidAmount,
			wantClass: RejectInput,
		},
		{
			name:      "nil amount",
			req:       Request{Kind: entity.ActionBorrow},
			wantErr:   lending.ErrInvalidAmount,
			wantClass: RejectInput,
		},
		{
			name:      "supply above balance",
			setup:     func(h *harness) { h.reader.SetBalance(loanToken, alice, testutil.Ether(10)) },
			req:       Request{Kind: entity.ActionSupply, Amount: testutil.Ether(11)},
			wantErr:   ErrInsufficientBalance,
			wantClass: RejectInput,
		},
		{
			name:      "supply collateral above balance",
			setup:     func(h *harness) { h.reader.SetBalance(loanToken, alice, testutil.Ether(100)) },
			req:       Request{Kind: entity.ActionSupply, Side: entity.SideCollateral, Amount: testutil.Ether(1)},
			wantErr:   ErrInsufficientBalance,
			wantClass: RejectInput,
		},
		{
			name:      "withdraw above supplied",
			setup:     func(h *harness) { h.setPosition(alice, 100, 0, 0) },
			req:       Request{Kind: entity.ActionWithdraw, Amount: testutil.Ether(101)},
			wantErr:   ErrInsufficientSupply,
			wantClass: RejectInput,
		},
		{
			name:      "withdraw collateral above posted without debt",
			setup:     func(h *harness) { h.setPosition(alice, 0, 0, 100) },
			req:       Request{Kind: entity.ActionWithdraw, Side: entity.SideCollateral, Amount: testutil.Ether(101)},
			wantErr:   lending.ErrWithdrawExceedsCollateral,
			wantClass: RejectInput,
		},
		{
			name:      "withdraw collateral breaching solvency",
			setup:     func(h *harness) { h.setPosition(alice, 0, 800, 2000) },
			req:       Request{Kind: entity.ActionWithdraw, Side: entity.SideCollateral, Amount: testutil.Ether(1200)},
			wantErr:   lending.ErrWithdrawBreachesSolvency,
			wantClass: RejectSafetyGate,
		},
		{
			name:      "borrow without collateral",
			req:       Request{Kind: entity.ActionBorrow, Amount: testutil.Ether(1)},
			wantErr:   ErrCollateralRequired,
			wantClass: RejectInput,
		},
		{
			name:      "borrow above liquidity",
			setup:     func(h *harness) { h.setPosition(alice, 0, 0, 100_000) },
			req:       Request{Kind: entity.ActionBorrow, Amount: testutil.Ether(5001)},
			wantErr:   ErrInsufficientLiquidity,
			wantClass: RejectInput,
		},
		{
			name:      "borrow breaching health factor",
			setup:     func(h *harness) { h.setPosition(alice, 0, 800, 2000) },
			req:       Request{Kind: entity.ActionBorrow, Amount: testutil.Ether(1041)},
			wantErr:   ErrUnsafeBorrow,
			wantClass: RejectSafetyGate,
		},
		{
			name:      "borrow collateral above balance",
			req:       Request{Kind: entity.ActionBorrow, Amount: testutil.Ether(1), CollateralAmount: testutil.Ether(10)},
			wantErr:   ErrInsufficientBalance,
			wantClass: RejectInput,
		},
		{
			name:      "repay without debt",
			setup:     func(h *harness) { h.reader.SetBalance(loanToken, alice, testutil.Ether(10)) },
			req:       Request{Kind: entity.ActionRepay, Amount: testutil.Ether(1)},
			wantErr:   ErrNoDebt,
			wantClass: RejectInput,
		},
		{
			name: "repay above balance",
			setup: func(h *harness) {
				h.setPosition(alice, 0, 100, 200)
				h.reader.SetBalance(loanToken, alice, testutil.Ether(10))
			},
			req:       Request{Kind: entity.ActionRepay, Amount: testutil.Ether(50)},
			wantErr:   ErrInsufficientBalance,
			wantClass: RejectInput,
		},
		{
			name:      "liquidate self",
			req:       Request{Kind: entity.ActionLiquidate, Amount: testutil.Ether(1), Borrower: alice},
			wantErr:   ErrSelfLiquidation,
			wantClass: RejectInput,
		},
		{
			name:      "liquidate healthy borrower",
			setup:     func(h *harness) { h.setPosition(bob, 0, 800, 2000) },
			req:       Request{Kind: entity.ActionLiquidate, Amount: testutil.Ether(1), Borrower: bob},
			wantErr:   liquidation.ErrNotLiquidatable,
			wantClass: RejectSafetyGate,
		},
		{
			name: "liquidate above balance",
			setup: func(h *harness) {
				h.setPosition(bob, 0, 950, 1000)
				h.reader.SetBalance(loanToken, alice, testutil.Ether(5))
			},
			req:       Request{Kind: entity.ActionLiquidate, Amount: testutil.Ether(100), Borrower: bob},
			wantErr:   ErrInsufficientBalance,
			wantClass: RejectInput,
		},
		{
			name:      "claim already claimed",
			setup:     func(h *harness) { h.reader.Update(func(m *testutil.MockLendingReader) { m.Claimed[alice] = true }) },
			req:       Request{Kind: entity.ActionClaim},
			wantErr:   ErrAlreadyClaimed,
			wantClass: RejectInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{FaucetEnabled: true})
			if tt.setup != nil {
				tt.setup(h)
			}

			_, err := h.orch.preflight(context.Background(), alice, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var rejection *RejectionError
			if !errors.As(err, &rejection) {
				t.Fatalf("err = %T, want *RejectionError", err)
			}
			if rejection.Class != tt.wantClass {
				t.Errorf("Class = %s, want %s", rejection.Class, tt.wantClass)
			}
		})
	}
}

func TestPreflight_ClaimWithoutFaucet(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionClaim})
	if !errors.Is(err, ErrFaucetUnavailable) {
		t.Errorf("err = %v, want ErrFaucetUnavailable", err)
	}
}

func TestPreflight_ReadFailureIsNotARejection(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPosition(alice, 0, 0, 100)
	h.reader.Update(func(m *testutil.MockLendingReader) { m.ErrPrice = errors.New("rpc down") })

	_, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionBorrow, Amount: testutil.Ether(1)})
	if err == nil {
		t.Fatal("expected error")
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		t.Errorf("read failure classified as rejection: %v", err)
	}
}

func TestPreflight_Plans(t *testing.T) {
	t.Run("supply approves exact amount", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.reader.SetBalance(loanToken, alice, testutil.Ether(10))

		plan, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionSupply, Amount: testutil.Ether(10)})
		if err != nil {
			t.Fatal(err)
		}
		if plan.Side != entity.SideLoan {
			t.Errorf("Side = %s, want loan default", plan.Side)
		}
		if plan.Approval == nil || plan.Approval.Token != loanToken || plan.Approval.Amount.Cmp(testutil.Ether(10)) != 0 {
			t.Errorf("Approval = %+v", plan.Approval)
		}
	})

	t.Run("borrow at the boundary is allowed", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.setPosition(alice, 0, 800, 2000)

		// max borrow is 1840, so 1040 more lands exactly on 1.0
		plan, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionBorrow, Amount: testutil.Ether(1040)})
		if err != nil {
			t.Fatal(err)
		}
		if plan.Approval != nil {
			t.Error("borrow without collateral needs no approval")
		}
	})

	t.Run("borrow with collateral approves collateral", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.reader.SetBalance(collateralToken, alice, testutil.Ether(500))

		plan, err := h.orch.preflight(context.Background(), alice, Request{
			Kind:             entity.ActionBorrow,
			Amount:           testutil.Ether(100),
			CollateralAmount: testutil.Ether(500),
		})
		if err != nil {
			t.Fatal(err)
		}
		if plan.Approval == nil || plan.Approval.Token != collateralToken || plan.Approval.Amount.Cmp(testutil.Ether(500)) != 0 {
			t.Errorf("Approval = %+v", plan.Approval)
		}
	})

	t.Run("partial repay by assets", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.setPosition(alice, 0, 100, 200)
		h.reader.SetBalance(loanToken, alice, testutil.Ether(100))

		plan, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionRepay, Amount: testutil.Ether(40)})
		if err != nil {
			t.Fatal(err)
		}
		if plan.RepayShares != nil {
			t.Error("partial repay must not use shares")
		}
		if plan.Approval.Amount.Cmp(testutil.Ether(40)) != 0 {
			t.Errorf("approval = %s, want 40", plan.Approval.Amount)
		}
	})

	t.Run("full repay by shares with buffered approval", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.setPosition(alice, 0, 100, 200)
		h.reader.SetBalance(loanToken, alice, testutil.Ether(150))

		plan, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionRepay, Amount: testutil.Ether(150)})
		if err != nil {
			t.Fatal(err)
		}
		if plan.RepayShares == nil || plan.RepayShares.Cmp(testutil.Ether(100)) != 0 {
			t.Errorf("RepayShares = %v, want all borrow shares", plan.RepayShares)
		}
		if plan.Approval.Amount.Cmp(testutil.Ether(101)) != 0 {
			t.Errorf("approval = %s, want debt plus 1%%", plan.Approval.Amount)
		}
	})

	t.Run("liquidation approves buffered repay", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.setPosition(bob, 0, 950, 1000)
		h.reader.SetBalance(loanToken, alice, testutil.Ether(1000))

		plan, err := h.orch.preflight(context.Background(), alice, Request{
			Kind:     entity.ActionLiquidate,
			Amount:   testutil.Ether(2000),
			Borrower: bob,
		})
		if err != nil {
			t.Fatal(err)
		}
		// repay clamps to the 950 debt
		if plan.Approval.Amount.Cmp(testutil.MustInt("959500000000000000000")) != 0 {
			t.Errorf("approval = %s, want 959.5e18", plan.Approval.Amount)
		}
	})

	t.Run("cached balance is used for the snapshot account", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.cache.SetBalances(alice, testutil.Ether(10), nil)

		if _, err := h.orch.preflight(context.Background(), alice, Request{Kind: entity.ActionSupply, Amount: testutil.Ether(10)}); err != nil {
			t.Fatal(err)
		}
		if n := h.reader.CallCount("balanceOf"); n != 0 {
			t.Errorf("balanceOf reads = %d, want 0", n)
		}
	})
}
