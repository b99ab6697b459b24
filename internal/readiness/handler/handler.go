package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pulse-analytics/internal/http/shared"
	"pulse-analytics/internal/platform/middleware"
	"pulse-analytics/internal/readiness"
	dErrors "pulse-analytics/pkg/domain-errors"
)

// Service defines the readiness operations the handler depends on.
type Service interface {
	Readiness(ctx context.Context, userID string) (*readiness.UserReadiness, error)
	SkillTrends(ctx context.Context, userID string) ([]readiness.SkillAggregate, error)
	Recompute(ctx context.Context, userID string) (*readiness.Snapshot, error)
	RecomputeAll(ctx context.Context) (int, error)
}

// Handler serves readiness views and the admin recompute endpoint.
type Handler struct {
	readiness    Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
	adminToken   string
}

func New(readinessSvc Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, adminToken string) *Handler {
	return &Handler{
		readiness:    readinessSvc,
		logger:       logger,
		jwtValidator: jwtValidator,
		adminToken:   adminToken,
	}
}

// Register registers the readiness routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/api/users/{userId}/readiness", h.handleReadiness)
		r.Get("/api/users/{userId}/skills/trends", h.handleSkillTrends)
	})
	r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).
		Post("/api/admin/recompute-readiness", h.handleRecompute)
}

// snapshotResponse mirrors the field names the UI already consumes.
type snapshotResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	Overall       float64   `json:"overall"`
	Technical     *float64  `json:"technical"`
	Communication *float64  `json:"communication"`
	Structure     *float64  `json:"structure"`
	Behavioral    *float64  `json:"behavioral"`
}

type skillResponse struct {
	SkillTag   string  `json:"skillTag"`
	Window     string  `json:"window"`
	AvgScore   float64 `json:"avgScore"`
	SampleSize int     `json:"sampleSize"`
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
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

	ur, err := h.readiness.Readiness(ctx, userID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to load readiness",
				"request_id", middleware.GetRequestID(ctx),
				"user_id", userID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	history := make([]snapshotResponse, 0, len(ur.History))
	for i := range ur.History {
		history = append(history, toSnapshotResponse(&ur.History[i]))
	}
	var latest *snapshotResponse
	if ur.Latest != nil {
		l := toSnapshotResponse(ur.Latest)
		latest = &l
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"latest":  latest,
		"history": history,
	})
}

func (h *Handler) handleSkillTrends(w http.ResponseWriter, r *http.Request) {
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

	aggs, err := h.readiness.SkillTrends(ctx, userID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "failed to load skill trends",
				"request_id", middleware.GetRequestID(ctx),
				"user_id", userID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	skills := make([]skillResponse, 0, len(aggs))
	for _, agg := range aggs {
		skills = append(skills, skillResponse{
			SkillTag:   string(agg.SkillTag),
			Window:     string(agg.Window),
			AvgScore:   agg.AvgScore,
			SampleSize: agg.SampleSize,
		})
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"window": "30d",
		"skills": skills,
	})
}

type recomputeRequest struct {
	UserID string `json:"userId"`
}

// handleRecompute recomputes one user when a userId is given, otherwise every
// user with events in the window.
func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if req.UserID != "" {
		snap, err := h.readiness.Recompute(ctx, req.UserID)
		if err != nil {
			if !dErrors.Is(err, dErrors.CodeBadRequest) {
				h.logger.ErrorContext(ctx, "admin recompute failed",
					"request_id", middleware.GetRequestID(ctx),
					"user_id", req.UserID,
					"error", err.Error(),
				)
			}
			shared.WriteError(w, err)
			return
		}
		body := map[string]any{"userId": req.UserID, "recomputed": snap != nil}
		if snap != nil {
			body["overall"] = snap.Overall
		}
		shared.WriteJSON(w, http.StatusOK, body)
		return
	}

	n, err := h.readiness.RecomputeAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "admin recompute-all failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"snapshots": n})
}

func toSnapshotResponse(snap *readiness.Snapshot) snapshotResponse {
	return snapshotResponse{
		Timestamp:     snap.SnapshotAt,
		Overall:       snap.Overall,
		Technical:     snap.Technical,
		Communication: snap.Communication,
		Structure:     snap.Structure,
		Behavioral:    snap.Behavioral,
	}
}
