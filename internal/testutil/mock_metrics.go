package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*MockMetricsRecorder)(nil)

// MockMetricsRecorder captures recorded metrics.
type MockMetricsRecorder struct {
	mu             sync.Mutex
	transactions   []string
	gateRejections []string
	healthFactors  []float64
	reads          int
}

func (m *MockMetricsRecorder) RecordTransaction(_ context.Context, kind, step, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, kind+"/"+step+"/"+status)
}

func (m *MockMetricsRecorder) RecordGateRejection(_ context.Context, kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateRejections = append(m.gateRejections, kind+"/"+reason)
}

func (m *MockMetricsRecorder) RecordHealthFactor(_ context.Context, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthFactors = append(m.healthFactors, value)
}

func (m *MockMetricsRecorder) RecordRead(context.Context, string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
}

// Transactions returns "kind/step/status" for each recorded transaction.
func (m *MockMetricsRecorder) Transactions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transactions...)
}

// GateRejections returns "kind/reason" for each recorded rejection.
func (m *MockMetricsRecorder) GateRejections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.gateRejections...)
}

func (m *MockMetricsRecorder) HealthFactors() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.healthFactors...)
}
