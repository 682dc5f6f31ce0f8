package audit

import (
	"context"
	"sync"

	"github.com/actualpc/phillip-therapy/internal/model"
)

// MemorySink keeps events in memory. Useful for tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name implements Sink.
func (s *MemorySink) Name() string {
	return "memory"
}

// Append implements Sink.
func (s *MemorySink) Append(_ context.Context, event *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Events returns a copy of all recorded events.
func (s *MemorySink) Events() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}
