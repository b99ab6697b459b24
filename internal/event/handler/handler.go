package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pulse-analytics/internal/event"
	"pulse-analytics/internal/http/shared"
	"pulse-analytics/internal/platform/middleware"
	dErrors "pulse-analytics/pkg/domain-errors"
)

// Service defines the event operations the handler depends on.
type Service interface {
	Record(ctx context.Context, in event.NewEventInput) (*event.SessionEvent, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]event.SessionEvent, error)
}

// Handler serves the session-event endpoints.
type Handler struct {
	events       Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(events Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{events: events, logger: logger, jwtValidator: jwtValidator}
}

// Register registers the event routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/events", h.handleRecordEvent)
	r.With(middleware.RequireAuth(h.jwtValidator, h.logger)).
		Get("/api/users/{userId}/events", h.handleListEvents)
}

type recordEventRequest struct {
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	OccurredAt *time.Time      `json:"occurredAt,omitempty"`
	ScenarioID string          `json:"scenarioId,omitempty"`
	PulseStep  string          `json:"pulseStep"`
	SkillTag   string          `json:"skillTag"`
	Score      float64         `json:"score"`
	RawMetrics json.RawMessage `json:"rawMetrics,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

type eventResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	OccurredAt time.Time       `json:"occurredAt"`
	ScenarioID string          `json:"scenarioId,omitempty"`
	PulseStep  string          `json:"pulseStep"`
	SkillTag   string          `json:"skillTag"`
	Score      float64         `json:"score"`
	RawMetrics json.RawMessage `json:"rawMetrics,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid record event request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	in := event.NewEventInput{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		ScenarioID: req.ScenarioID,
		PulseStep:  req.PulseStep,
		SkillTag:   req.SkillTag,
		Score:      req.Score,
		RawMetrics: req.RawMetrics,
		Notes:      req.Notes,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	ev, err := h.events.Record(ctx, in)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to record event",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	// Ingestion disabled for this environment: a deliberate no-op, not an error.
	if ev == nil {
		shared.WriteJSON(w, http.StatusAccepted, map[string]any{"recorded": false})
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"recorded": true,
		"event":    toEventResponse(ev),
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userId")
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing userId"))
		return
	}
	if err := shared.CheckOwner(ctx, userID); err != nil {
		shared.WriteError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}

	events, err := h.events.ListByUser(ctx, userID, limit)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to list events",
				"request_id", middleware.GetRequestID(ctx),
				"user_id", userID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for i := range events {
		out = append(out, toEventResponse(&events[i]))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"events": out,
	})
}

func toEventResponse(ev *event.SessionEvent) eventResponse {
	return eventResponse{
		ID:         ev.ID.String(),
		UserID:     ev.UserID.String(),
		SessionID:  ev.SessionID.String(),
		OccurredAt: ev.OccurredAt,
		ScenarioID: ev.ScenarioID,
		PulseStep:  string(ev.PulseStep),
		SkillTag:   string(ev.SkillTag),
		Score:      ev.Score,
		RawMetrics: ev.RawMetrics,
		Notes:      ev.Notes,
	}
}
