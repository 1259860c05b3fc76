package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements outbound.MetricsRecorder using OpenTelemetry.
type Metrics struct {
	transactions   metric.Int64Counter
	gateRejections metric.Int64Counter
	healthFactor   metric.Float64Gauge
	readLatency    metric.Float64Histogram
}

// NewMetrics creates a recorder on the global meter provider.
func NewMetrics(meterName string) (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	transactions, err := meter.Int64Counter(
		"lend_transactions_total",
		metric.WithDescription("Transactions by action kind, step and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lend_transactions_total counter: %w", err)
	}

	rejections, err := meter.Int64Counter(
		"lend_gate_rejections_total",
		metric.WithDescription("Actions refused before submission, by kind and rejection class"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lend_gate_rejections_total counter: %w", err)
	}

	hf, err := meter.Float64Gauge(
		"lend_health_factor",
		metric.WithDescription("Health factor of the connected account"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lend_health_factor gauge: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"lend_read_duration_seconds",
		metric.WithDescription("Latency of contract reads"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lend_read_duration_seconds histogram: %w", err)
	}

	return &Metrics{
		transactions:   transactions,
		gateRejections: rejections,
		healthFactor:   hf,
		readLatency:    latency,
	}, nil
}

// RecordTransaction counts a transaction outcome.
func (m *Metrics) RecordTransaction(ctx context.Context, kind, step, status string) {
	m.transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("step", step),
		attribute.String("status", status),
	))
}

// RecordGateRejection counts an action refused before submission.
func (m *Metrics) RecordGateRejection(ctx context.Context, kind, reason string) {
	m.gateRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}

// RecordHealthFactor sets the current health factor.
func (m *Metrics) RecordHealthFactor(ctx context.Context, value float64) {
	m.healthFactor.Record(ctx, value)
}

// RecordRead records the duration of a contract read.
func (m *Metrics) RecordRead(ctx context.Context, name string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.readLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("read", name),
		attribute.String("status", status),
	))
}
