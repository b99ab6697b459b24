//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pulse-analytics/internal/event"
	eventStore "pulse-analytics/internal/event/store"
	"pulse-analytics/internal/readiness"
	readinessStore "pulse-analytics/internal/readiness/store"
	"pulse-analytics/pkg/domain"
	"pulse-analytics/pkg/testutil/containers"
)

type ReadinessPostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *readinessStore.PostgresStore
	events   *eventStore.PostgresStore
}

func TestReadinessPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ReadinessPostgresStoreSuite))
}

func (s *ReadinessPostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = readinessStore.NewPostgres(s.postgres.DB)
	s.events = eventStore.NewPostgres(s.postgres.DB)
}

func (s *ReadinessPostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "session_events", "outbox", "user_skill_agg", "user_readiness")
	s.Require().NoError(err)
}

func (s *ReadinessPostgresStoreSuite) seedEvent(uid domain.UserID, tag domain.SkillTag, score float64, occurredAt time.Time) {
	err := s.events.Append(context.Background(), &event.SessionEvent{
		ID:         uuid.New(),
		UserID:     uid,
		SessionID:  "sess-" + uuid.NewString(),
		OccurredAt: occurredAt,
		PulseStep:  domain.StepSolve,
		SkillTag:   tag,
		Score:      score,
	})
	s.Require().NoError(err)
}

func (s *ReadinessPostgresStoreSuite) TestSkillAggregatesFromEvents() {
	ctx := context.Background()
	uid, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)

	now := time.Now().UTC()
	s.seedEvent(uid, domain.SkillCommunication, 60.0, now.Add(-time.Hour))
	s.seedEvent(uid, domain.SkillCommunication, 80.0, now.Add(-2*time.Hour))
	s.seedEvent(uid, domain.SkillTechnicalDepth, 90.0, now.Add(-time.Hour))
	// Outside the window, must not count.
	s.seedEvent(uid, domain.SkillCommunication, 10.0, now.Add(-45*24*time.Hour))

	aggs, err := s.store.SkillAggregates(ctx, uid, now.Add(-30*24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(aggs, 2)

	byTag := make(map[domain.SkillTag]readiness.SkillAggregate, len(aggs))
	for _, a := range aggs {
		byTag[a.SkillTag] = a
	}
	s.InDelta(70.0, byTag[domain.SkillCommunication].AvgScore, 1e-9)
	s.Equal(2, byTag[domain.SkillCommunication].SampleSize)
	s.InDelta(90.0, byTag[domain.SkillTechnicalDepth].AvgScore, 1e-9)
	s.Equal(1, byTag[domain.SkillTechnicalDepth].SampleSize)
}

func (s *ReadinessPostgresStoreSuite) TestUpsertSupersedesAggregates() {
	ctx := context.Background()
	uid, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)

	first := []readiness.SkillAggregate{
		{SkillTag: domain.SkillCommunication, AvgScore: 70.0, SampleSize: 4},
	}
	s.Require().NoError(s.store.UpsertSkillAggregates(ctx, uid, domain.Window30d, first))

	second := []readiness.SkillAggregate{
		{SkillTag: domain.SkillCommunication, AvgScore: 75.5, SampleSize: 6},
		{SkillTag: domain.SkillStructure, AvgScore: 55.0, SampleSize: 2},
	}
	s.Require().NoError(s.store.UpsertSkillAggregates(ctx, uid, domain.Window30d, second))

	aggs, err := s.store.ListSkillAggregates(ctx, uid, domain.Window30d)
	s.Require().NoError(err)
	s.Require().Len(aggs, 2)

	// Ordered by tag: communication before structure.
	s.Equal(domain.SkillCommunication, aggs[0].SkillTag)
	s.Equal(75.5, aggs[0].AvgScore)
	s.Equal(6, aggs[0].SampleSize)
	s.False(aggs[0].LastUpdated.IsZero())
	s.Equal(domain.SkillStructure, aggs[1].SkillTag)
}

func (s *ReadinessPostgresStoreSuite) TestSnapshotRoundtripAndOrdering() {
	ctx := context.Background()
	uid, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)

	technical := 80.0
	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	for i := 0; i < 3; i++ {
		snap := &readiness.Snapshot{
			ID:         uuid.New(),
			UserID:     uid,
			SnapshotAt: base.Add(time.Duration(i) * time.Minute),
			Overall:    70.0 + float64(i),
			Technical:  &technical,
			Meta: readiness.Meta{
				FormulaVersion: readiness.FormulaVersion,
				WindowName:     string(domain.Window30d),
				WindowLabel:    domain.Window30dLabel,
				Weights:        readiness.Weights,
				Source:         "session_events",
			},
		}
		s.Require().NoError(s.store.InsertSnapshot(ctx, snap))
	}

	snaps, err := s.store.ListSnapshots(ctx, uid, 2)
	s.Require().NoError(err)
	s.Require().Len(snaps, 2)

	s.Equal(72.0, snaps[0].Overall)
	s.Equal(71.0, snaps[1].Overall)
	s.Require().NotNil(snaps[0].Technical)
	s.Equal(80.0, *snaps[0].Technical)
	s.Nil(snaps[0].Structure)
	s.Equal(readiness.FormulaVersion, snaps[0].Meta.FormulaVersion)
	s.Equal("last_30_days", snaps[0].Meta.WindowLabel)
	s.InDelta(0.3, snaps[0].Meta.Weights["readiness_technical"], 1e-9)
}

func (s *ReadinessPostgresStoreSuite) TestInTxRollsBackOnError() {
	ctx := context.Background()
	uid, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)

	aggs := []readiness.SkillAggregate{
		{SkillTag: domain.SkillCommunication, AvgScore: 70.0, SampleSize: 4},
	}
	snap := &readiness.Snapshot{
		ID:         uuid.New(),
		UserID:     uid,
		SnapshotAt: time.Now().UTC(),
		Overall:    70.0,
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpsertSkillAggregates(ctx, uid, domain.Window30d, aggs); err != nil {
			return err
		}
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Require().Error(err)

	got, err := s.store.ListSkillAggregates(ctx, uid, domain.Window30d)
	s.Require().NoError(err)
	s.Empty(got)

	snaps, err := s.store.ListSnapshots(ctx, uid, 10)
	s.Require().NoError(err)
	s.Empty(snaps)
}

func (s *ReadinessPostgresStoreSuite) TestInTxCommits() {
	ctx := context.Background()
	uid, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)

	aggs := []readiness.SkillAggregate{
		{SkillTag: domain.SkillCommunication, AvgScore: 70.0, SampleSize: 4},
	}
	snap := &readiness.Snapshot{
		ID:         uuid.New(),
		UserID:     uid,
		SnapshotAt: time.Now().UTC(),
		Overall:    70.0,
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpsertSkillAggregates(ctx, uid, domain.Window30d, aggs); err != nil {
			return err
		}
		return s.store.InsertSnapshot(ctx, snap)
	})
	s.Require().NoError(err)

	got, err := s.store.ListSkillAggregates(ctx, uid, domain.Window30d)
	s.Require().NoError(err)
	s.Len(got, 1)

	snaps, err := s.store.ListSnapshots(ctx, uid, 10)
	s.Require().NoError(err)
	s.Len(snaps, 1)
}

func (s *ReadinessPostgresStoreSuite) TestActiveUsers() {
	ctx := context.Background()
	now := time.Now().UTC()

	active, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)
	stale, err := domain.ParseUserID(uuid.NewString())
	s.Require().NoError(err)

	s.seedEvent(active, domain.SkillOverall, 75.0, now.Add(-time.Hour))
	s.seedEvent(active, domain.SkillOverall, 80.0, now.Add(-2*time.Hour))
	s.seedEvent(stale, domain.SkillOverall, 50.0, now.Add(-45*24*time.Hour))

	users, err := s.store.ActiveUsers(ctx, now.Add(-30*24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal(active, users[0])
}
