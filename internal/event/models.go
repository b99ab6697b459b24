package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pulse-analytics/pkg/domain"
)

// SessionEvent is one scored answer or utterance within a training session.
// Events are append-only and immutable once recorded.
type SessionEvent struct {
	ID         uuid.UUID
	UserID     domain.UserID
	SessionID  domain.SessionID
	OccurredAt time.Time
	ScenarioID string
	PulseStep  domain.PulseStep
	SkillTag   domain.SkillTag
	Score      float64
	RawMetrics json.RawMessage
	Notes      string
}

// NewEventInput carries the unvalidated fields for one event. The service
// validates against the skill vocabulary and score scale before storing.
type NewEventInput struct {
	UserID     string
	SessionID  string
	OccurredAt time.Time
	ScenarioID string
	PulseStep  string
	SkillTag   string
	Score      float64
	RawMetrics json.RawMessage
	Notes      string
}
