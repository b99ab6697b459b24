package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulse-analytics/internal/event"
	"pulse-analytics/internal/platform/postgres"
	"pulse-analytics/pkg/domain"
	txcontext "pulse-analytics/pkg/platform/tx"
)

// PostgresStore persists session events and, in the same transaction, the
// outbox row the Kafka worker publishes from. Kafka consumers downstream see
// exactly the events that committed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// outboxPayload is the JSON structure published to Kafka for each event.
type outboxPayload struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	OccurredAt string          `json:"occurred_at"`
	ScenarioID string          `json:"scenario_id,omitempty"`
	PulseStep  string          `json:"pulse_step"`
	SkillTag   string          `json:"skill_tag"`
	Score      float64         `json:"score"`
	RawMetrics json.RawMessage `json:"raw_metrics,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// Append inserts the event and its outbox entry atomically. When a transaction
// is already carried in the context it is reused and commit is left to the
// caller.
func (s *PostgresStore) Append(ctx context.Context, ev *event.SessionEvent) error {
	if tx, ok := txcontext.From(ctx); ok {
		return s.appendIn(ctx, tx, ev)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return postgres.Err("begin event tx", err)
	}
	if err := s.appendIn(ctx, tx, ev); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return postgres.Err("commit event tx", err)
	}
	return nil
}

func (s *PostgresStore) appendIn(ctx context.Context, tx *sql.Tx, ev *event.SessionEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO analytics.session_events (
			id, user_id, session_id, occurred_at, scenario_id,
			pulse_step, skill_tag, score, raw_metrics, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		ev.ID,
		uuid.UUID(ev.UserID),
		string(ev.SessionID),
		ev.OccurredAt,
		nullString(ev.ScenarioID),
		string(ev.PulseStep),
		string(ev.SkillTag),
		ev.Score,
		nullJSON(ev.RawMetrics),
		nullString(ev.Notes),
	)
	if err != nil {
		return postgres.Err("insert session event", err)
	}

	payload := outboxPayload{
		ID:         ev.ID.String(),
		UserID:     ev.UserID.String(),
		SessionID:  string(ev.SessionID),
		OccurredAt: ev.OccurredAt.Format(time.RFC3339Nano),
		ScenarioID: ev.ScenarioID,
		PulseStep:  string(ev.PulseStep),
		SkillTag:   string(ev.SkillTag),
		Score:      ev.Score,
		RawMetrics: ev.RawMetrics,
		Notes:      ev.Notes,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analytics.outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		"user",
		ev.UserID.String(),
		"session_event.recorded",
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return postgres.Err("insert outbox entry", err)
	}
	return nil
}

// ListByUser returns the newest events for a user, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]event.SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, occurred_at, scenario_id,
		       pulse_step, skill_tag, score, raw_metrics, notes
		FROM analytics.session_events
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, uuid.UUID(userID), limit)
	if err != nil {
		return nil, postgres.Err("query session events", err)
	}
	defer rows.Close()

	var events []event.SessionEvent
	for rows.Next() {
		var (
			ev         event.SessionEvent
			uid        uuid.UUID
			sessionID  string
			scenarioID sql.NullString
			pulseStep  string
			skillTag   string
			rawMetrics []byte
			notes      sql.NullString
		)
		err := rows.Scan(
			&ev.ID, &uid, &sessionID, &ev.OccurredAt, &scenarioID,
			&pulseStep, &skillTag, &ev.Score, &rawMetrics, &notes,
		)
		if err != nil {
			return nil, postgres.Err("scan session event", err)
		}
		ev.UserID = domain.UserID(uid)
		ev.SessionID = domain.SessionID(sessionID)
		ev.ScenarioID = scenarioID.String
		ev.PulseStep = domain.PulseStep(pulseStep)
		ev.SkillTag = domain.SkillTag(skillTag)
		ev.RawMetrics = rawMetrics
		ev.Notes = notes.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Err("iterate session events", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
