package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// EventSink records lifecycle events in memory. Used in tests and as the
// fallback publisher when no Redis is configured.
type EventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewEventSink() *EventSink {
	return &EventSink{}
}

func (s *EventSink) Publish(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (s *EventSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}
