package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the services to record metrics without depending on specific
// telemetry implementations.
type MetricsRecorder interface {
	// RecordTransaction counts a transaction step outcome ("confirmed", "reverted", "rejected",
	// "safety_gate", "input", "failed")..
	RecordTransaction(ctx context.Context, kind, step, status string)

	// RecordGateRejection counts an action blocked before submission.
	RecordGateRejection(ctx context.Context, kind, reason string)

	// RecordHealthFactor records the connected account's health factor.
	RecordHealthFactor(ctx context.Context, value float64)

	// RecordRead records the latency of a contract read.
	RecordRead(ctx context.Context, name string, duration time.Duration, err error)
}
