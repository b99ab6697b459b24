// Package ingest translates orchestrator messages into analytics events. It
// is the streaming counterpart of the orchestrator calling the analytics
// endpoints directly at session completion.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"pulse-analytics/internal/event"
	"pulse-analytics/internal/platform/kafka/consumer"
	"pulse-analytics/internal/platform/metrics"
	"pulse-analytics/pkg/domain"
)

// EventRecorder records validated analytics events.
type EventRecorder interface {
	Record(ctx context.Context, in event.NewEventInput) (*event.SessionEvent, error)
}

// ReadinessRecomputer refreshes a user's readiness after new events land.
type ReadinessRecomputer interface {
	TryRecompute(ctx context.Context, userID string)
}

// scorecardMessage is the session-completion payload the orchestrator
// publishes: the overall score plus the BCE/MCF/CPO part scores.
type scorecardMessage struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Persona   string          `json:"persona,omitempty"`
	Scorecard json.RawMessage `json:"scorecard"`
}

type scorecard struct {
	Overall *scorePart `json:"overall"`
}

type scorePart struct {
	Score *float64 `json:"score"`
}

// ScorecardHandler consumes scorecard messages, records the overall session
// event, and triggers a readiness recompute for the user.
type ScorecardHandler struct {
	events    EventRecorder
	readiness ReadinessRecomputer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewScorecardHandler(events EventRecorder, readiness ReadinessRecomputer, m *metrics.Metrics, logger *slog.Logger) *ScorecardHandler {
	return &ScorecardHandler{events: events, readiness: readiness, metrics: m, logger: logger}
}

// Handle processes one scorecard message. Messages without a usable user ID
// or overall score are skipped, mirroring the orchestrator's tolerant
// recording path.
func (h *ScorecardHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var sc scorecardMessage
	if err := json.Unmarshal(msg.Value, &sc); err != nil {
		return fmt.Errorf("unmarshal scorecard message: %w", err)
	}

	if h.metrics != nil {
		h.metrics.ScorecardsConsumed.Inc()
	}

	if _, err := domain.ParseUserID(sc.UserID); err != nil {
		h.logger.InfoContext(ctx, "scorecard without valid user id, skipping",
			"session_id", sc.SessionID,
		)
		return nil
	}

	var card scorecard
	if err := json.Unmarshal(sc.Scorecard, &card); err != nil || card.Overall == nil || card.Overall.Score == nil {
		h.logger.InfoContext(ctx, "scorecard without overall score, skipping",
			"session_id", sc.SessionID,
		)
		return nil
	}

	_, err := h.events.Record(ctx, event.NewEventInput{
		UserID:     sc.UserID,
		SessionID:  sc.SessionID,
		ScenarioID: sc.Persona,
		PulseStep:  string(domain.StepSessionEnd),
		SkillTag:   string(domain.SkillOverall),
		Score:      *card.Overall.Score,
		RawMetrics: sc.Scorecard,
	})
	if err != nil {
		return fmt.Errorf("record scorecard event for session %s: %w", sc.SessionID, err)
	}

	h.readiness.TryRecompute(ctx, sc.UserID)
	return nil
}
