package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulse-analytics/internal/http/shared"
	"pulse-analytics/internal/platform/metrics"
	"pulse-analytics/internal/platform/middleware"
)

// RouteRegistrar is implemented by domain handlers that mount themselves on
// the router.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing resource is reachable.
type HealthChecker func(ctx context.Context) error

// NewRouter composes the API surface: platform middleware, domain handlers,
// health and metrics endpoints.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, health map[string]HealthChecker, handlers ...RouteRegistrar) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	if m != nil {
		r.Use(middleware.Metrics(m))
	}
	r.Use(middleware.CORS)
	r.Use(middleware.Timeout(30 * time.Second))

	for _, h := range handlers {
		h.Register(r)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		checks := make(map[string]string, len(health))
		for name, check := range health {
			if err := check(req.Context()); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				checks[name] = "ok"
			}
		}
		shared.WriteJSON(w, status, checks)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
