package handlers

import (
	"net/http"
	"time"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/platform/httpx"
	"github.com/muse-store/miniapp/internal/repositories"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	repo        repositories.HealthRepository
	environment string
	started     time.Time
	now         func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthRepository sets the dependency probes consulted by /readyz.
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.repo = repo
	}
}

// WithHealthClock injects a clock, primarily for tests.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
			h.started = now()
		}
	}
}

// WithHealthEnvironment labels readiness reports with the deployment environment.
func WithHealthEnvironment(env string) HealthOption {
	return func(h *HealthHandlers) {
		h.environment = env
	}
}

// NewHealthHandlers builds the probe handlers. Without a repository /readyz always reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now, started: time.Now()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.started).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs the dependency probes. An error status answers 503 so the platform stops routing.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()
	report := domain.HealthReport{Status: domain.HealthStatusOK, GeneratedAt: now}
	if h.repo != nil {
		collected, err := h.repo.Collect(ctx)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", "dependency checks failed to run", http.StatusServiceUnavailable))
			return
		}
		report = collected
	}
	report.Environment = h.environment
	report.Uptime = now.Sub(h.started)

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":    check.Status,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status":      report.Status,
		"environment": report.Environment,
		"uptime":      report.Uptime.Round(time.Second).String(),
		"generatedAt": report.GeneratedAt.UTC().Format(time.RFC3339),
		"checks":      checks,
	})
}
