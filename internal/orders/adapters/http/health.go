package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthCheck reports whether one dependency can serve traffic.
type HealthCheck func(ctx context.Context) error

// Health serves liveness and readiness probes.
type Health struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealth(checks map[string]HealthCheck) *Health {
	return &Health{checks: checks, timeout: 3 * time.Second}
}

func (h *Health) Register(r chi.Router) {
	r.Get("/healthz", h.live)
	r.Get("/readyz", h.ready)
}

func (h *Health) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Health) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}
