package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.NoticeSink = (*NoticeFanout)(nil)

// NoticeFanout publishes every notice to each sink in order. A failing sink
// does not stop delivery to the rest.
type NoticeFanout struct {
	sinks  []outbound.NoticeSink
	logger *slog.Logger
}

// NewNoticeFanout creates a fan-out over sinks. Nil sinks are skipped.
func NewNoticeFanout(logger *slog.Logger, sinks ...outbound.NoticeSink) *NoticeFanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &NoticeFanout{logger: logger.With("component", "notice-fanout")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *NoticeFanout) Publish(ctx context.Context, n entity.Notice) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, n); err != nil {
			f.logger.Warn("notice sink failed", "kind", n.Kind, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *NoticeFanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
