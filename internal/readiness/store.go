package readiness

import (
	"context"
	"time"

	"pulse-analytics/pkg/domain"
)

// Store persists skill aggregates and readiness snapshots, and exposes the
// event-derived aggregate query the engine consumes.
type Store interface {
	// SkillAggregates computes per-skill average score and sample size from
	// session events occurring at or after since.
	SkillAggregates(ctx context.Context, userID domain.UserID, since time.Time) ([]SkillAggregate, error)

	// UpsertSkillAggregates writes rolling aggregates for the window,
	// superseding previous values for the same (user, skill, window).
	UpsertSkillAggregates(ctx context.Context, userID domain.UserID, window domain.Window, aggs []SkillAggregate) error

	// ListSkillAggregates returns stored aggregates for a window, ordered by
	// skill tag.
	ListSkillAggregates(ctx context.Context, userID domain.UserID, window domain.Window) ([]SkillAggregate, error)

	// InsertSnapshot appends a readiness snapshot.
	InsertSnapshot(ctx context.Context, snap *Snapshot) error

	// ListSnapshots returns the newest snapshots for a user, newest first.
	ListSnapshots(ctx context.Context, userID domain.UserID, limit int) ([]Snapshot, error)

	// ActiveUsers returns users with at least one session event at or after
	// since. Drives the admin recompute-all path and the background sweep.
	ActiveUsers(ctx context.Context, since time.Time) ([]domain.UserID, error)

	// InTx runs fn atomically; writes made through the store inside fn commit
	// or roll back together.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
