package http

import (
	"context"
	"sync"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/inbound"
)

// mockHealthChecker is a test implementation of HealthChecker
type mockHealthChecker struct {
	ready   bool
	healthy bool
}

func (m *mockHealthChecker) IsReady() bool   { return m.ready }
func (m *mockHealthChecker) IsHealthy() bool { return m.healthy }

// mockDashboard is a test implementation of DashboardService.
type mockDashboard struct {
	mu sync.Mutex

	snapshot    inbound.SnapshotView
	simulation  inbound.SimulationView
	simulateErr error
	sequence    inbound.SequenceView
	executeErr  error
	liqs        []inbound.LiquidationView
	checkErr    error
	notices     []entity.Notice
	dismissErr  error

	executed      []inbound.ActionRequest
	simulated     []inbound.SimulateRequest
	checked       []string
	dismissed     []string
	noticeLimits  []int
	cancelled     int
	snapshotCalls int

	updates chan struct{}
}

func newMockDashboard() *mockDashboard {
	return &mockDashboard{
		sequence: inbound.SequenceView{Step: "idle"},
		updates:  make(chan struct{}, 1),
	}
}

var _ inbound.DashboardService = (*mockDashboard)(nil)

func (m *mockDashboard) Snapshot(ctx context.Context) inbound.SnapshotView {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotCalls++
	return m.snapshot
}

func (m *mockDashboard) Simulate(ctx context.Context, req inbound.SimulateRequest) (inbound.SimulationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulated = append(m.simulated, req)
	return m.simulation, m.simulateErr
}

func (m *mockDashboard) Execute(ctx context.Context, req inbound.ActionRequest) (inbound.SequenceView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, req)
	if m.executeErr != nil {
		return inbound.SequenceView{}, m.executeErr
	}
	return inbound.SequenceView{ID: "seq-1", Step: "approving", Action: req.Kind, Amount: req.Amount}, nil
}

func (m *mockDashboard) Sequence() inbound.SequenceView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequence
}

func (m *mockDashboard) CancelSequence(ctx context.Context) inbound.SequenceView {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
	m.sequence = inbound.SequenceView{Step: "idle"}
	return m.sequence
}

func (m *mockDashboard) Liquidations() []inbound.LiquidationView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liqs
}

func (m *mockDashboard) CheckBorrower(ctx context.Context, borrower string) (inbound.LiquidationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked = append(m.checked, borrower)
	if m.checkErr != nil {
		return inbound.LiquidationView{}, m.checkErr
	}
	return inbound.LiquidationView{Borrower: borrower, Liquidatable: true}, nil
}

func (m *mockDashboard) Notices(limit int) []entity.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noticeLimits = append(m.noticeLimits, limit)
	if limit > 0 && limit < len(m.notices) {
		return m.notices[:limit]
	}
	return m.notices
}

func (m *mockDashboard) DismissNotice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed = append(m.dismissed, id)
	return m.dismissErr
}

func (m *mockDashboard) Subscribe() (<-chan struct{}, func()) {
	return m.updates, func() {}
}

func (m *mockDashboard) setSnapshot(s inbound.SnapshotView) {
	m.mu.Lock()
	m.snapshot = s
	m.mu.Unlock()
}

func (m *mockDashboard) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}
