package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pulse-analytics/internal/platform/postgres"
)

// Entry is one unpublished outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// Store reads and settles outbox rows.
type Store interface {
	// FetchUnpublished returns the oldest unpublished entries.
	FetchUnpublished(ctx context.Context, limit int) ([]Entry, error)
	// MarkPublished stamps entries as published.
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// PostgresStore implements Store against analytics.outbox.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FetchUnpublished(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM analytics.outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, postgres.Err("query outbox", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, postgres.Err("scan outbox entry", err)
		}
		e.Payload = payload
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Err("iterate outbox", err)
	}
	return entries, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE analytics.outbox
		SET published_at = now()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return postgres.Err("mark outbox published", err)
	}
	return nil
}
