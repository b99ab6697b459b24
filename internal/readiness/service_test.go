package readiness_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pulse-analytics/internal/readiness"
	readinessStore "pulse-analytics/internal/readiness/store"
	dErrors "pulse-analytics/pkg/domain-errors"
	"pulse-analytics/pkg/domain"
	"pulse-analytics/pkg/platform/sentinel"
)

// fakeCache is an in-memory stand-in for the Redis snapshot cache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[domain.UserID][]readiness.Snapshot

	gets, sets, invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[domain.UserID][]readiness.Snapshot)}
}

func (c *fakeCache) Get(_ context.Context, userID domain.UserID) ([]readiness.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	snaps, ok := c.entries[userID]
	return snaps, ok, nil
}

func (c *fakeCache) Set(_ context.Context, userID domain.UserID, snaps []readiness.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[userID] = snaps
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	delete(c.entries, userID)
	return nil
}

// failingReadinessStore wraps the memory store, failing the configured
// operations with the configured error.
type failingReadinessStore struct {
	*readinessStore.MemoryStore
	aggregatesErr error
	snapshotsErr  error
}

func (f *failingReadinessStore) SkillAggregates(ctx context.Context, userID domain.UserID, since time.Time) ([]readiness.SkillAggregate, error) {
	if f.aggregatesErr != nil {
		return nil, f.aggregatesErr
	}
	return f.MemoryStore.SkillAggregates(ctx, userID, since)
}

func (f *failingReadinessStore) ListSnapshots(ctx context.Context, userID domain.UserID, limit int) ([]readiness.Snapshot, error) {
	if f.snapshotsErr != nil {
		return nil, f.snapshotsErr
	}
	return f.MemoryStore.ListSnapshots(ctx, userID, limit)
}

// txRecordingStore tracks whether writes happen inside InTx.
type txRecordingStore struct {
	*readinessStore.MemoryStore
	inTx        bool
	writesInTx  int
	writesTotal int
}

func (s *txRecordingStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.inTx = true
	defer func() { s.inTx = false }()
	return s.MemoryStore.InTx(ctx, fn)
}

func (s *txRecordingStore) UpsertSkillAggregates(ctx context.Context, userID domain.UserID, window domain.Window, aggs []readiness.SkillAggregate) error {
	s.writesTotal++
	if s.inTx {
		s.writesInTx++
	}
	return s.MemoryStore.UpsertSkillAggregates(ctx, userID, window, aggs)
}

func (s *txRecordingStore) InsertSnapshot(ctx context.Context, snap *readiness.Snapshot) error {
	s.writesTotal++
	if s.inTx {
		s.writesInTx++
	}
	return s.MemoryStore.InsertSnapshot(ctx, snap)
}

type ReadinessServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *readinessStore.MemoryStore
	cache   *fakeCache
	service *readiness.Service
	userID  domain.UserID
}

func TestReadinessServiceSuite(t *testing.T) {
	suite.Run(t, new(ReadinessServiceSuite))
}

func (s *ReadinessServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = readinessStore.NewMemory()
	s.cache = newFakeCache()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.service, err = readiness.NewService(s.store, s.cache, nil, logger, true)
	s.Require().NoError(err)

	uid, err := domain.ParseUserID(uuid.New().String())
	s.Require().NoError(err)
	s.userID = uid
}

func (s *ReadinessServiceSuite) seedEvents(uid domain.UserID) {
	s.seedEventsInto(s.store, uid)
}

func (s *ReadinessServiceSuite) seedEventsInto(store *readinessStore.MemoryStore, uid domain.UserID) {
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		store.AddEvent(uid, domain.SkillCommunication, 70.0, now.Add(-time.Duration(i)*time.Hour))
	}
	for i := 0; i < 3; i++ {
		store.AddEvent(uid, domain.SkillTechnicalDepth, 80.0, now.Add(-time.Duration(i)*time.Hour))
	}
	for i := 0; i < 7; i++ {
		store.AddEvent(uid, domain.SkillOverall, 75.0, now.Add(-time.Duration(i)*time.Hour))
	}
}

func (s *ReadinessServiceSuite) TestNew() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.Run("nil store returns error", func() {
		_, err := readiness.NewService(nil, nil, nil, logger, true)
		s.Error(err)
	})

	s.Run("nil cache is allowed", func() {
		svc, err := readiness.NewService(s.store, nil, nil, logger, true)
		s.NoError(err)
		s.NotNil(svc)
	})
}

func (s *ReadinessServiceSuite) TestRecompute() {
	s.Run("stores aggregates and snapshot", func() {
		s.seedEvents(s.userID)

		snap, err := s.service.Recompute(s.ctx, s.userID.String())
		s.Require().NoError(err)
		s.Require().NotNil(snap)

		s.Equal(75.0, snap.Overall)
		s.Require().NotNil(snap.Communication)
		s.Equal(70.0, *snap.Communication)
		s.Require().NotNil(snap.Technical)
		s.Equal(80.0, *snap.Technical)
		s.Nil(snap.Structure)
		s.Nil(snap.Behavioral)

		s.Equal(readiness.FormulaVersion, snap.Meta.FormulaVersion)
		s.Equal("30d", snap.Meta.WindowName)
		s.Equal("last_30_days", snap.Meta.WindowLabel)
		s.Equal("session_events", snap.Meta.Source)

		aggs, err := s.store.ListSkillAggregates(s.ctx, s.userID, domain.Window30d)
		s.Require().NoError(err)
		s.Len(aggs, 3)

		snaps, err := s.store.ListSnapshots(s.ctx, s.userID, 10)
		s.Require().NoError(err)
		s.Len(snaps, 1)
	})

	s.Run("invalidates the snapshot cache", func() {
		s.seedEvents(s.userID)
		s.Require().NoError(s.cache.Set(s.ctx, s.userID, []readiness.Snapshot{{}}))

		_, err := s.service.Recompute(s.ctx, s.userID.String())
		s.Require().NoError(err)

		_, ok, err := s.cache.Get(s.ctx, s.userID)
		s.NoError(err)
		s.False(ok)
	})

	s.Run("no events in window is a no-op", func() {
		snap, err := s.service.Recompute(s.ctx, uuid.New().String())
		s.NoError(err)
		s.Nil(snap)
	})

	s.Run("invalid user id is rejected", func() {
		_, err := s.service.Recompute(s.ctx, "not-a-uuid")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("stale events outside the window are ignored", func() {
		uid, err := domain.ParseUserID(uuid.New().String())
		s.Require().NoError(err)
		s.store.AddEvent(uid, domain.SkillCommunication, 90.0, time.Now().UTC().Add(-45*24*time.Hour))

		snap, err := s.service.Recompute(s.ctx, uid.String())
		s.NoError(err)
		s.Nil(snap)
	})
}

func (s *ReadinessServiceSuite) TestRecomputeWritesAtomically() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &txRecordingStore{MemoryStore: readinessStore.NewMemory()}
	svc, err := readiness.NewService(store, nil, nil, logger, true)
	s.Require().NoError(err)

	s.seedEventsInto(store.MemoryStore, s.userID)

	snap, err := svc.Recompute(s.ctx, s.userID.String())
	s.Require().NoError(err)
	s.Require().NotNil(snap)

	// One aggregate upsert and one snapshot insert, both inside the tx.
	s.Equal(2, store.writesTotal)
	s.Equal(2, store.writesInTx)
}

func (s *ReadinessServiceSuite) TestStoreFailureCodes() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.Run("unavailable store surfaces as unavailable", func() {
		store := &failingReadinessStore{
			MemoryStore:   readinessStore.NewMemory(),
			aggregatesErr: fmt.Errorf("query skill aggregates: %w", sentinel.ErrUnavailable),
			snapshotsErr:  fmt.Errorf("query readiness snapshots: %w", sentinel.ErrUnavailable),
		}
		svc, err := readiness.NewService(store, nil, nil, logger, true)
		s.Require().NoError(err)

		_, err = svc.Recompute(s.ctx, s.userID.String())
		s.True(dErrors.Is(err, dErrors.CodeUnavailable))

		_, err = svc.Readiness(s.ctx, s.userID.String())
		s.True(dErrors.Is(err, dErrors.CodeUnavailable))
	})

	s.Run("unclassified failure stays internal", func() {
		store := &failingReadinessStore{
			MemoryStore:   readinessStore.NewMemory(),
			aggregatesErr: fmt.Errorf("boom"),
		}
		svc, err := readiness.NewService(store, nil, nil, logger, true)
		s.Require().NoError(err)

		_, err = svc.Recompute(s.ctx, s.userID.String())
		s.True(dErrors.Is(err, dErrors.CodeInternal))
	})
}

func (s *ReadinessServiceSuite) TestRecomputeDisabled() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := readiness.NewService(s.store, nil, nil, logger, false)
	s.Require().NoError(err)

	s.seedEvents(s.userID)

	snap, err := svc.Recompute(s.ctx, s.userID.String())
	s.NoError(err)
	s.Nil(snap)

	snaps, err := s.store.ListSnapshots(s.ctx, s.userID, 10)
	s.Require().NoError(err)
	s.Empty(snaps)
}

func (s *ReadinessServiceSuite) TestReadiness() {
	s.Run("empty history for unknown user", func() {
		ur, err := s.service.Readiness(s.ctx, uuid.New().String())
		s.Require().NoError(err)
		s.Nil(ur.Latest)
		s.Empty(ur.History)
	})

	s.Run("history is newest first and capped at twenty", func() {
		base := time.Now().UTC().Add(-25 * time.Hour)
		for i := 0; i < 25; i++ {
			err := s.store.InsertSnapshot(s.ctx, &readiness.Snapshot{
				ID:         uuid.New(),
				UserID:     s.userID,
				SnapshotAt: base.Add(time.Duration(i) * time.Hour),
				Overall:    float64(i),
			})
			s.Require().NoError(err)
		}

		ur, err := s.service.Readiness(s.ctx, s.userID.String())
		s.Require().NoError(err)
		s.Require().NotNil(ur.Latest)
		s.Len(ur.History, 20)
		s.Equal(24.0, ur.Latest.Overall)
		s.True(ur.History[0].SnapshotAt.After(ur.History[1].SnapshotAt))
	})

	s.Run("serves from cache when warm", func() {
		uid, err := domain.ParseUserID(uuid.New().String())
		s.Require().NoError(err)
		cached := []readiness.Snapshot{{ID: uuid.New(), UserID: uid, Overall: 42.0}}
		s.Require().NoError(s.cache.Set(s.ctx, uid, cached))

		ur, err := s.service.Readiness(s.ctx, uid.String())
		s.Require().NoError(err)
		s.Require().NotNil(ur.Latest)
		s.Equal(42.0, ur.Latest.Overall)
	})

	s.Run("populates cache on miss", func() {
		uid, err := domain.ParseUserID(uuid.New().String())
		s.Require().NoError(err)
		before := s.cache.sets

		_, err = s.service.Readiness(s.ctx, uid.String())
		s.Require().NoError(err)
		s.Equal(before+1, s.cache.sets)
	})

	s.Run("invalid user id is rejected", func() {
		_, err := s.service.Readiness(s.ctx, "nope")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *ReadinessServiceSuite) TestSkillTrends() {
	s.seedEvents(s.userID)
	_, err := s.service.Recompute(s.ctx, s.userID.String())
	s.Require().NoError(err)

	aggs, err := s.service.SkillTrends(s.ctx, s.userID.String())
	s.Require().NoError(err)
	s.Require().Len(aggs, 3)

	byTag := make(map[domain.SkillTag]readiness.SkillAggregate, len(aggs))
	for _, a := range aggs {
		byTag[a.SkillTag] = a
	}
	s.Equal(70.0, byTag[domain.SkillCommunication].AvgScore)
	s.Equal(4, byTag[domain.SkillCommunication].SampleSize)
	s.Equal(80.0, byTag[domain.SkillTechnicalDepth].AvgScore)
	s.Equal(3, byTag[domain.SkillTechnicalDepth].SampleSize)
	s.Equal(75.0, byTag[domain.SkillOverall].AvgScore)
	s.Equal(7, byTag[domain.SkillOverall].SampleSize)
}

func (s *ReadinessServiceSuite) TestRecomputeAll() {
	other, err := domain.ParseUserID(uuid.New().String())
	s.Require().NoError(err)

	s.seedEvents(s.userID)
	s.seedEvents(other)

	n, err := s.service.RecomputeAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	for _, uid := range []domain.UserID{s.userID, other} {
		snaps, err := s.store.ListSnapshots(s.ctx, uid, 10)
		s.Require().NoError(err)
		s.Len(snaps, 1)
	}
}

func (s *ReadinessServiceSuite) TestRunPeriodicStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() {
		done <- s.service.RunPeriodic(ctx, 10*time.Millisecond)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("periodic recompute did not stop on cancel")
	}
}
