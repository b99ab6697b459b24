package store

import (
	"context"
	"sort"
	"sync"

	"pulse-analytics/internal/event"
	"pulse-analytics/pkg/domain"
)

// MemoryStore is an in-memory event store for unit tests and local runs
// without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	events []event.SessionEvent
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, ev *event.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID domain.UserID, limit int) ([]event.SessionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.SessionEvent
	for _, ev := range s.events {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored event. Test helper.
func (s *MemoryStore) All() []event.SessionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.SessionEvent, len(s.events))
	copy(out, s.events)
	return out
}
