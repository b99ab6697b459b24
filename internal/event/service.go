package event

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

var tracer = otel.Tracer("pulse-analytics/event")

// Service validates and records session events.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

func NewService(store Store, m *metrics.Metrics, logger *slog.Logger, enabled bool) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "event store is required")
	}
	return &Service{
		store:   store,
		metrics: m,
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}, nil
}

// Enabled reports whether event ingestion is turned on for this environment.
func (s *Service) Enabled() bool { return s.enabled }

// Record validates and stores one session event. Returns (nil, nil) when
// analytics ingestion is disabled so callers can report a deliberate no-op
// instead of a silent drop.
func (s *Service) Record(ctx context.Context, in NewEventInput) (*SessionEvent, error) {
	if !s.enabled {
		s.logger.InfoContext(ctx, "analytics disabled, skipping event record",
			"session_id", in.SessionID,
		)
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "event.Record", trace.WithAttributes(
		attribute.String("session_id", in.SessionID),
		attribute.String("skill_tag", in.SkillTag),
	))
	defer span.End()

	ev, err := s.validate(in)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejected.Inc()
		}
		return nil, err
	}

	if err := s.store.Append(ctx, ev); err != nil {
		return nil, dErrors.FromStore("failed to record event", err)
	}

	if s.metrics != nil {
		s.metrics.EventsRecorded.Inc()
	}
	return ev, nil
}

// ListByUser returns the newest events for a user.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]SessionEvent, error) {
	uid, err := domain.ParseUserID(userID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	events, err := s.store.ListByUser(ctx, uid, limit)
	if err != nil {
		return nil, dErrors.FromStore("failed to list events", err)
	}
	return events, nil
}

func (s *Service) validate(in NewEventInput) (*SessionEvent, error) {
	userID, err := domain.ParseUserID(in.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id must be a valid UUID")
	}
	sessionID, err := domain.ParseSessionID(in.SessionID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session_id is required")
	}
	skillTag, err := domain.ParseSkillTag(in.SkillTag)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown skill_tag")
	}
	pulseStep, err := domain.ParsePulseStep(in.PulseStep)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown pulse_step")
	}
	if !domain.ValidScore(in.Score) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "score must be between 0 and 100")
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	return &SessionEvent{
		ID:         uuid.New(),
		UserID:     userID,
		SessionID:  sessionID,
		OccurredAt: occurredAt,
		ScenarioID: in.ScenarioID,
		PulseStep:  pulseStep,
		SkillTag:   skillTag,
		Score:      in.Score,
		RawMetrics: in.RawMetrics,
		Notes:      in.Notes,
	}, nil
}
