package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulse-analytics/internal/platform/postgres"
	"pulse-analytics/internal/readiness"
	"pulse-analytics/pkg/domain"
	txcontext "pulse-analytics/pkg/platform/tx"
)

// PostgresStore implements readiness.Store against the analytics schema.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// exec returns the transaction carried in the context, or the pool.
func (s *PostgresStore) exec(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// InTx runs fn in one transaction; writes made through this store inside fn
// join it via the context.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.Err("readiness tx", txcontext.RunInTx(ctx, s.db, fn))
}

// SkillAggregates computes per-skill average score and sample size from
// session events in the window.
func (s *PostgresStore) SkillAggregates(ctx context.Context, userID domain.UserID, since time.Time) ([]readiness.SkillAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT skill_tag, AVG(score) AS avg_score, COUNT(*) AS sample_size
		FROM analytics.session_events
		WHERE user_id = $1
		  AND occurred_at >= $2
		GROUP BY skill_tag
	`, uuid.UUID(userID), since)
	if err != nil {
		return nil, postgres.Err("query skill aggregates", err)
	}
	defer rows.Close()

	var aggs []readiness.SkillAggregate
	for rows.Next() {
		var (
			tag        string
			avgScore   float64
			sampleSize int
		)
		if err := rows.Scan(&tag, &avgScore, &sampleSize); err != nil {
			return nil, postgres.Err("scan skill aggregate", err)
		}
		aggs = append(aggs, readiness.SkillAggregate{
			SkillTag:   domain.SkillTag(tag),
			Window:     domain.Window30d,
			AvgScore:   avgScore,
			SampleSize: sampleSize,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Err("iterate skill aggregates", err)
	}
	return aggs, nil
}

// UpsertSkillAggregates supersedes stored aggregates for the window.
func (s *PostgresStore) UpsertSkillAggregates(ctx context.Context, userID domain.UserID, window domain.Window, aggs []readiness.SkillAggregate) error {
	for _, agg := range aggs {
		_, err := s.exec(ctx).ExecContext(ctx, `
			INSERT INTO analytics.user_skill_agg (
				user_id, skill_tag, "window", avg_score, sample_size, last_updated
			)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (user_id, skill_tag, "window")
			DO UPDATE SET
				avg_score = EXCLUDED.avg_score,
				sample_size = EXCLUDED.sample_size,
				last_updated = now()
		`,
			uuid.UUID(userID),
			string(agg.SkillTag),
			string(window),
			agg.AvgScore,
			agg.SampleSize,
		)
		if err != nil {
			return postgres.Err(fmt.Sprintf("upsert skill aggregate %s", agg.SkillTag), err)
		}
	}
	return nil
}

// ListSkillAggregates returns stored aggregates for a window, ordered by tag.
func (s *PostgresStore) ListSkillAggregates(ctx context.Context, userID domain.UserID, window domain.Window) ([]readiness.SkillAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT skill_tag, "window", avg_score, sample_size, last_updated
		FROM analytics.user_skill_agg
		WHERE user_id = $1
		  AND "window" = $2
		ORDER BY skill_tag
	`, uuid.UUID(userID), string(window))
	if err != nil {
		return nil, postgres.Err("query user skill aggregates", err)
	}
	defer rows.Close()

	var aggs []readiness.SkillAggregate
	for rows.Next() {
		var (
			agg readiness.SkillAggregate
			tag string
			win string
		)
		if err := rows.Scan(&tag, &win, &agg.AvgScore, &agg.SampleSize, &agg.LastUpdated); err != nil {
			return nil, postgres.Err("scan user skill aggregate", err)
		}
		agg.SkillTag = domain.SkillTag(tag)
		agg.Window = domain.Window(win)
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Err("iterate user skill aggregates", err)
	}
	return aggs, nil
}

// InsertSnapshot appends a readiness snapshot.
func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *readiness.Snapshot) error {
	meta, err := json.Marshal(snap.Meta)
	if err != nil {
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}

	_, err = s.exec(ctx).ExecContext(ctx, `
		INSERT INTO analytics.user_readiness (
			id, user_id, snapshot_at, readiness_overall,
			readiness_technical, readiness_communication,
			readiness_structure, readiness_behavioral, meta
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		snap.ID,
		uuid.UUID(snap.UserID),
		snap.SnapshotAt,
		snap.Overall,
		snap.Technical,
		snap.Communication,
		snap.Structure,
		snap.Behavioral,
		meta,
	)
	if err != nil {
		return postgres.Err("insert readiness snapshot", err)
	}
	return nil
}

// ListSnapshots returns the newest snapshots for a user, newest first.
func (s *PostgresStore) ListSnapshots(ctx context.Context, userID domain.UserID, limit int) ([]readiness.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, snapshot_at, readiness_overall,
		       readiness_technical, readiness_communication,
		       readiness_structure, readiness_behavioral, meta
		FROM analytics.user_readiness
		WHERE user_id = $1
		ORDER BY snapshot_at DESC
		LIMIT $2
	`, uuid.UUID(userID), limit)
	if err != nil {
		return nil, postgres.Err("query readiness snapshots", err)
	}
	defer rows.Close()

	var snaps []readiness.Snapshot
	for rows.Next() {
		var (
			snap readiness.Snapshot
			meta []byte
		)
		err := rows.Scan(
			&snap.ID, &snap.SnapshotAt, &snap.Overall,
			&snap.Technical, &snap.Communication,
			&snap.Structure, &snap.Behavioral, &meta,
		)
		if err != nil {
			return nil, postgres.Err("scan readiness snapshot", err)
		}
		snap.UserID = userID
		if err := json.Unmarshal(meta, &snap.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot meta: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Err("iterate readiness snapshots", err)
	}
	return snaps, nil
}

// ActiveUsers returns users with session events at or after since.
func (s *PostgresStore) ActiveUsers(ctx context.Context, since time.Time) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id
		FROM analytics.session_events
		WHERE occurred_at >= $1
	`, since)
	if err != nil {
		return nil, postgres.Err("query active users", err)
	}
	defer rows.Close()

	var users []domain.UserID
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err != nil {
			return nil, postgres.Err("scan active user", err)
		}
		users = append(users, domain.UserID(uid))
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Err("iterate active users", err)
	}
	return users, nil
}
