package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pulse-analytics/internal/readiness"
	"pulse-analytics/pkg/domain"
)

// memoryEvent is the slice of a session event the aggregate query needs.
type memoryEvent struct {
	UserID     domain.UserID
	SkillTag   domain.SkillTag
	Score      float64
	OccurredAt time.Time
}

type aggKey struct {
	userID domain.UserID
	tag    domain.SkillTag
	window domain.Window
}

// MemoryStore is an in-memory readiness store for unit tests. Events are
// seeded with AddEvent; aggregates are computed from them like the SQL path.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []memoryEvent
	aggs      map[aggKey]readiness.SkillAggregate
	snapshots map[domain.UserID][]readiness.Snapshot
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		aggs:      make(map[aggKey]readiness.SkillAggregate),
		snapshots: make(map[domain.UserID][]readiness.Snapshot),
	}
}

// AddEvent seeds a session event for aggregate computation.
func (s *MemoryStore) AddEvent(userID domain.UserID, tag domain.SkillTag, score float64, occurredAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, memoryEvent{
		UserID:     userID,
		SkillTag:   tag,
		Score:      score,
		OccurredAt: occurredAt,
	})
}

func (s *MemoryStore) SkillAggregates(_ context.Context, userID domain.UserID, since time.Time) ([]readiness.SkillAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[domain.SkillTag]float64)
	counts := make(map[domain.SkillTag]int)
	for _, ev := range s.events {
		if ev.UserID != userID || ev.OccurredAt.Before(since) {
			continue
		}
		sums[ev.SkillTag] += ev.Score
		counts[ev.SkillTag]++
	}

	var aggs []readiness.SkillAggregate
	for tag, count := range counts {
		aggs = append(aggs, readiness.SkillAggregate{
			SkillTag:   tag,
			Window:     domain.Window30d,
			AvgScore:   sums[tag] / float64(count),
			SampleSize: count,
		})
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].SkillTag < aggs[j].SkillTag })
	return aggs, nil
}

func (s *MemoryStore) UpsertSkillAggregates(_ context.Context, userID domain.UserID, window domain.Window, aggs []readiness.SkillAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, agg := range aggs {
		agg.Window = window
		agg.LastUpdated = now
		s.aggs[aggKey{userID: userID, tag: agg.SkillTag, window: window}] = agg
	}
	return nil
}

func (s *MemoryStore) ListSkillAggregates(_ context.Context, userID domain.UserID, window domain.Window) ([]readiness.SkillAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var aggs []readiness.SkillAggregate
	for key, agg := range s.aggs {
		if key.userID == userID && key.window == window {
			aggs = append(aggs, agg)
		}
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].SkillTag < aggs[j].SkillTag })
	return aggs, nil
}

func (s *MemoryStore) InsertSnapshot(_ context.Context, snap *readiness.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.UserID] = append(s.snapshots[snap.UserID], *snap)
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, userID domain.UserID, limit int) ([]readiness.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]readiness.Snapshot, len(s.snapshots[userID]))
	copy(snaps, s.snapshots[userID])
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SnapshotAt.After(snaps[j].SnapshotAt) })
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// InTx has no rollback semantics in memory; fn just runs.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *MemoryStore) ActiveUsers(_ context.Context, since time.Time) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[domain.UserID]struct{})
	var users []domain.UserID
	for _, ev := range s.events {
		if ev.OccurredAt.Before(since) {
			continue
		}
		if _, ok := seen[ev.UserID]; !ok {
			seen[ev.UserID] = struct{}{}
			users = append(users, ev.UserID)
		}
	}
	return users, nil
}
