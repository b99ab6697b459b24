package readiness

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pulse-analytics/internal/platform/metrics"
	dErrors "pulse-analytics/pkg/domain-errors"
	"pulse-analytics/pkg/domain"
)

var tracer = otel.Tracer("pulse-analytics/readiness")

// aggregationWindow is the duration behind domain.Window30d.
const aggregationWindow = 30 * 24 * time.Hour

// historyLimit caps how many snapshots the readiness view returns.
const historyLimit = 20

// Cache is the optional snapshot cache in front of the store.
type Cache interface {
	Get(ctx context.Context, userID domain.UserID) ([]Snapshot, bool, error)
	Set(ctx context.Context, userID domain.UserID, snaps []Snapshot) error
	Invalidate(ctx context.Context, userID domain.UserID) error
}

// Service computes and serves readiness snapshots and skill trends.
type Service struct {
	store   Store
	cache   Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

func NewService(store Store, cache Cache, m *metrics.Metrics, logger *slog.Logger, enabled bool) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "readiness store is required")
	}
	return &Service{
		store:   store,
		cache:   cache,
		metrics: m,
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}, nil
}

// Recompute derives skill aggregates from the user's recent session events,
// supersedes the stored aggregates, and appends a readiness snapshot.
// Returns (nil, nil) without error when readiness is disabled, the user has
// no events in the window, or the overall score cannot be determined; those
// are expected states, not failures.
func (s *Service) Recompute(ctx context.Context, userID string) (*Snapshot, error) {
	if !s.enabled {
		s.logger.InfoContext(ctx, "readiness disabled, skipping recompute")
		return nil, nil
	}

	uid, err := domain.ParseUserID(userID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
	}

	ctx, span := tracer.Start(ctx, "readiness.Recompute", trace.WithAttributes(
		attribute.String("user_id", uid.String()),
	))
	defer span.End()

	now := s.now().UTC()
	since := now.Add(-aggregationWindow)

	aggregates, err := s.store.SkillAggregates(ctx, uid, since)
	if err != nil {
		return nil, dErrors.FromStore("failed to compute skill aggregates", err)
	}
	if len(aggregates) == 0 {
		s.logger.InfoContext(ctx, "no session events in window, skipping recompute",
			"user_id", uid.String(),
		)
		return nil, nil
	}

	components := ComputeComponents(aggregates)
	overall := OverallFromComponents(components)
	if overall == nil {
		// Aggregates are still superseded so trends stay fresh even when no
		// snapshot can be derived.
		if err := s.store.UpsertSkillAggregates(ctx, uid, domain.Window30d, aggregates); err != nil {
			return nil, dErrors.FromStore("failed to store skill aggregates", err)
		}
		s.logger.InfoContext(ctx, "readiness overall undeterminable, skipping snapshot",
			"user_id", uid.String(),
		)
		return nil, nil
	}

	snap := &Snapshot{
		ID:            uuid.New(),
		UserID:        uid,
		SnapshotAt:    now,
		Overall:       *overall,
		Technical:     components.Technical,
		Communication: components.Communication,
		Structure:     components.Structure,
		Behavioral:    components.Behavioral,
		Meta: Meta{
			FormulaVersion: FormulaVersion,
			WindowName:     string(domain.Window30d),
			WindowLabel:    domain.Window30dLabel,
			Weights:        Weights,
			Source:         "session_events",
		},
	}

	// Aggregates and the snapshot commit together. A partial write would leave
	// trends and readiness describing different recomputes.
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpsertSkillAggregates(ctx, uid, domain.Window30d, aggregates); err != nil {
			return err
		}
		return s.store.InsertSnapshot(ctx, snap)
	})
	if err != nil {
		return nil, dErrors.FromStore("failed to store readiness snapshot", err)
	}

	if s.metrics != nil {
		s.metrics.SnapshotsComputed.Inc()
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, uid); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate readiness cache",
				"user_id", uid.String(),
				"error", err.Error(),
			)
		}
	}

	s.logger.InfoContext(ctx, "stored readiness snapshot",
		"user_id", uid.String(),
		"overall", snap.Overall,
	)
	return snap, nil
}

// TryRecompute runs Recompute and swallows failures. Ingest and background
// paths use it: analytics must never break the serving path.
func (s *Service) TryRecompute(ctx context.Context, userID string) {
	if _, err := s.Recompute(ctx, userID); err != nil {
		if s.metrics != nil {
			s.metrics.RecomputeFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "readiness recompute failed",
			"user_id", userID,
			"error", err.Error(),
		)
	}
}

// RecomputeAll recomputes readiness for every user with events in the window.
// Returns the number of snapshots stored.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	if !s.enabled {
		return 0, nil
	}

	since := s.now().UTC().Add(-aggregationWindow)
	users, err := s.store.ActiveUsers(ctx, since)
	if err != nil {
		return 0, dErrors.FromStore("failed to list active users", err)
	}

	var stored int
	for _, uid := range users {
		snap, err := s.Recompute(ctx, uid.String())
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecomputeFailures.Inc()
			}
			s.logger.ErrorContext(ctx, "recompute failed for user",
				"user_id", uid.String(),
				"error", err.Error(),
			)
			continue
		}
		if snap != nil {
			stored++
		}
	}
	return stored, nil
}

// RunPeriodic recomputes all users on a fixed interval until the context is
// canceled. A zero interval disables the sweep.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := s.RecomputeAll(ctx); err != nil {
				s.logger.ErrorContext(ctx, "periodic recompute failed", "error", err.Error())
			} else {
				s.logger.InfoContext(ctx, "periodic recompute complete", "snapshots", n)
			}
		}
	}
}

// Readiness returns the latest snapshot and recent history for a user,
// serving from cache when warm.
func (s *Service) Readiness(ctx context.Context, userID string) (*UserReadiness, error) {
	uid, err := domain.ParseUserID(userID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
	}

	if s.cache != nil {
		if snaps, ok, err := s.cache.Get(ctx, uid); err == nil && ok {
			return buildUserReadiness(uid, snaps), nil
		} else if err != nil {
			s.logger.WarnContext(ctx, "readiness cache read failed",
				"user_id", uid.String(),
				"error", err.Error(),
			)
		}
	}

	history, err := s.store.ListSnapshots(ctx, uid, historyLimit)
	if err != nil {
		return nil, dErrors.FromStore("failed to load readiness", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, uid, history); err != nil {
			s.logger.WarnContext(ctx, "readiness cache write failed",
				"user_id", uid.String(),
				"error", err.Error(),
			)
		}
	}

	return buildUserReadiness(uid, history), nil
}

// SkillTrends returns the stored 30d aggregates for a user.
func (s *Service) SkillTrends(ctx context.Context, userID string) ([]SkillAggregate, error) {
	uid, err := domain.ParseUserID(userID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
	}

	aggs, err := s.store.ListSkillAggregates(ctx, uid, domain.Window30d)
	if err != nil {
		return nil, dErrors.FromStore("failed to load skill trends", err)
	}
	return aggs, nil
}

func buildUserReadiness(uid domain.UserID, history []Snapshot) *UserReadiness {
	ur := &UserReadiness{UserID: uid, History: history}
	if len(history) > 0 {
		ur.Latest = &history[0]
	}
	return ur
}
