package tx_orchestrator

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

func TestTransition_FirstStep(t *testing.T) {
	approval := &Approval{Token: common.HexToAddress("0x01"), Amount: big.NewInt(1)}

	tests := []struct {
		name string
		plan *Plan
		want Step
	}{
		{"supply approves first", &Plan{Kind: entity.ActionSupply, Approval: approval}, StepApproving},
		{"borrow with collateral approves first", &Plan{Kind: entity.ActionBorrow, Approval: approval, CollateralAmount: big.NewInt(1)}, StepApproving},
		{"borrow without collateral", &Plan{Kind: entity.ActionBorrow}, StepBorrowing},
		{"withdraw executes directly", &Plan{Kind: entity.ActionWithdraw}, StepExecuting},
		{"claim executes directly", &Plan{Kind: entity.ActionClaim}, StepExecuting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transition(State{Step: StepIdle}, EventStart{ID: "seq", Plan: tt.plan})
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if got.Step != tt.want {
				t.Errorf("Step = %s, want %s", got.Step, tt.want)
			}
			if got.ID != "seq" || got.Plan != tt.plan {
				t.Error("ID and Plan must be carried into the first step")
			}
			if got.StartedAt.IsZero() {
				t.Error("StartedAt not set")
			}
		})
	}
}

func TestTransition_BorrowWithCollateralChain(t *testing.T) {
	plan := &Plan{
		Kind:             entity.ActionBorrow,
		CollateralAmount: big.NewInt(5),
		Amount:           big.NewInt(1),
		Approval:         &Approval{Amount: big.NewInt(5)},
	}
	hashes := []common.Hash{common.HexToHash("0xa1"), common.HexToHash("0xa2"), common.HexToHash("0xa3")}

	s, err := transition(State{Step: StepIdle}, EventStart{ID: "seq", Plan: plan})
	if err != nil {
		t.Fatal(err)
	}

	wantSteps := []Step{StepApproving, StepSupplyingCollateral, StepBorrowing}
	for i, want := range wantSteps {
		if s.Step != want {
			t.Fatalf("step %d = %s, want %s", i, s.Step, want)
		}
		if s, err = transition(s, EventSubmitted{Tx: outbound.TxHandle{Hash: hashes[i]}}); err != nil {
			t.Fatalf("submitted at %s: %v", want, err)
		}
		if s, err = transition(s, EventConfirmed{TxHash: hashes[i]}); err != nil {
			t.Fatalf("confirmed at %s: %v", want, err)
		}
		if s.Step == StepIdle {
			break
		}
		if s.Tx != nil {
			t.Errorf("Tx must be cleared after confirmation at %s", want)
		}
		if s, err = transition(s, EventAdvance{}); err != nil {
			t.Fatalf("advance after %s: %v", want, err)
		}
	}
	if s.Step != StepIdle {
		t.Errorf("final step = %s, want idle", s.Step)
	}
	if s.Plan != nil || s.ID != "" {
		t.Error("idle state must not carry a sequence")
	}
}

func TestTransition_ApprovedAdvances(t *testing.T) {
	tests := []struct {
		name string
		from Step
		plan *Plan
		want Step
	}{
		{"supply", StepApproved, &Plan{Kind: entity.ActionSupply}, StepExecuting},
		{"repay", StepApproved, &Plan{Kind: entity.ActionRepay}, StepExecuting},
		{"liquidate", StepApproved, &Plan{Kind: entity.ActionLiquidate}, StepExecuting},
		{"borrow posting collateral", StepApproved, &Plan{Kind: entity.ActionBorrow, CollateralAmount: big.NewInt(1)}, StepSupplyingCollateral},
		{"borrow after collateral", StepCollateralSupplied, &Plan{Kind: entity.ActionBorrow, CollateralAmount: big.NewInt(1)}, StepBorrowing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transition(State{ID: "seq", Step: tt.from, Plan: tt.plan}, EventAdvance{})
			if err != nil {
				t.Fatal(err)
			}
			if got.Step != tt.want {
				t.Errorf("Step = %s, want %s", got.Step, tt.want)
			}
		})
	}
}

func TestTransition_FailureAndCancelReturnToIdle(t *testing.T) {
	tx := &outbound.TxHandle{Hash: common.HexToHash("0x01")}
	steps := []Step{StepApproving, StepApproved, StepSupplyingCollateral, StepCollateralSupplied, StepBorrowing, StepExecuting}
	events := []Event{EventFailed{Err: errors.New("boom")}, EventCancelled{}}

	for _, step := range steps {
		for _, e := range events {
			t.Run(string(step)+"/"+e.eventName(), func(t *testing.T) {
				got, err := transition(State{ID: "seq", Step: step, Plan: &Plan{}, Tx: tx}, e)
				if err != nil {
					t.Fatal(err)
				}
				if got.Step != StepIdle || got.Tx != nil {
					t.Errorf("got %+v, want clean idle", got)
				}
			})
		}
	}
}

func TestTransition_Invalid(t *testing.T) {
	hash := common.HexToHash("0x01")
	other := common.HexToHash("0x02")
	plan := &Plan{Kind: entity.ActionSupply}

	tests := []struct {
		name  string
		state State
		event Event
	}{
		{"idle submitted", State{Step: StepIdle}, EventSubmitted{Tx: outbound.TxHandle{Hash: hash}}},
		{"idle confirmed", State{Step: StepIdle}, EventConfirmed{TxHash: hash}},
		{"idle cancelled", State{Step: StepIdle}, EventCancelled{}},
		{"idle failed", State{Step: StepIdle}, EventFailed{}},
		{"idle advance", State{Step: StepIdle}, EventAdvance{}},
		{"start without plan", State{Step: StepIdle}, EventStart{ID: "seq"}},
		{"start without id", State{Step: StepIdle}, EventStart{Plan: plan}},
		{"start while approving", State{ID: "a", Step: StepApproving, Plan: plan}, EventStart{ID: "b", Plan: plan}},
		{"confirm before submit", State{ID: "a", Step: StepApproving, Plan: plan}, EventConfirmed{TxHash: hash}},
		{"confirm other hash", State{ID: "a", Step: StepExecuting, Plan: plan, Tx: &outbound.TxHandle{Hash: hash}}, EventConfirmed{TxHash: other}},
		{"double submit", State{ID: "a", Step: StepExecuting, Plan: plan, Tx: &outbound.TxHandle{Hash: hash}}, EventSubmitted{Tx: outbound.TxHandle{Hash: other}}},
		{"advance while in flight", State{ID: "a", Step: StepBorrowing, Plan: plan}, EventAdvance{}},
		{"submit while approved", State{ID: "a", Step: StepApproved, Plan: plan}, EventSubmitted{Tx: outbound.TxHandle{Hash: hash}}},
		{"confirm while collateral supplied", State{ID: "a", Step: StepCollateralSupplied, Plan: plan}, EventConfirmed{TxHash: hash}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transition(tt.state, tt.event)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
			if got.Step != tt.state.Step || got.ID != tt.state.ID || got.Tx != tt.state.Tx {
				t.Errorf("state changed on invalid transition: %+v", got)
			}
		})
	}
}
