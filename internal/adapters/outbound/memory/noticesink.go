// Package memory provides an in-memory NoticeSink.
//
// The sink keeps the most recent notices in a bounded buffer and backs the
// dashboard's notice feed. Listeners registered with OnPublish are called for
// every stored notice.
package memory

import (
	"context"
	"sync"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

// DefaultCapacity is the number of notices kept when none is configured.
const DefaultCapacity = 100

// Compile-time check that NoticeSink implements outbound.NoticeSink
var _ outbound.NoticeSink = (*NoticeSink)(nil)

// NoticeSink stores the latest notices, oldest first.
type NoticeSink struct {
	mu       sync.RWMutex
	notices  []entity.Notice
	capacity int
	closed   bool

	onPublish []func(entity.Notice)
}

// NewNoticeSink creates a sink keeping at most capacity notices.
func NewNoticeSink(capacity int) *NoticeSink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &NoticeSink{
		notices:  make([]entity.Notice, 0, capacity),
		capacity: capacity,
	}
}

// Publish stores the notice, evicting the oldest one when full. Publishing to
// a closed sink is a no-op.
func (s *NoticeSink) Publish(_ context.Context, n entity.Notice) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if len(s.notices) == s.capacity {
		copy(s.notices, s.notices[1:])
		s.notices = s.notices[:len(s.notices)-1]
	}
	s.notices = append(s.notices, n)
	listeners := append([]func(entity.Notice){}, s.onPublish...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
	return nil
}

// Close marks the sink as closed.
func (s *NoticeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Recent returns up to limit notices, newest first. A limit of zero or less
// returns all of them.
func (s *NoticeSink) Recent(limit int) []entity.Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.notices)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]entity.Notice, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.notices[i])
	}
	return result
}

// Len returns the number of stored notices.
func (s *NoticeSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notices)
}

// Dismiss removes the notice with the given id and reports whether it was found.
func (s *NoticeSink) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}

// OnPublish registers fn to be called after each stored notice.
func (s *NoticeSink) OnPublish(fn func(entity.Notice)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = append(s.onPublish, fn)
}
