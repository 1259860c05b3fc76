package outbound

import (
	"context"

	"github.com/archon-research/stl-lend/internal/domain/entity"
)

// NoticeSink receives user-visible notices produced by the services.
type NoticeSink interface {
	// Publish delivers a notice. Implementations must be safe for concurrent use.
	Publish(ctx context.Context, notice entity.Notice) error

	// Close releases resources; later publishes are dropped or rejected.
	Close() error
}
