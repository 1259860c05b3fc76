package testutil

import (
	"context"
	"sync"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.NoticeSink = (*RecordingNoticeSink)(nil)

// RecordingNoticeSink keeps every published notice.
type RecordingNoticeSink struct {
	mu      sync.Mutex
	notices []entity.Notice
}

func (s *RecordingNoticeSink) Publish(_ context.Context, n entity.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return nil
}

func (s *RecordingNoticeSink) Close() error { return nil }

// Notices returns a copy of everything published.
func (s *RecordingNoticeSink) Notices() []entity.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Notice(nil), s.notices...)
}

// Kinds returns the kinds of the published notices, in order.
func (s *RecordingNoticeSink) Kinds() []entity.NoticeKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.NoticeKind, len(s.notices))
	for i, n := range s.notices {
		out[i] = n.Kind
	}
	return out
}
