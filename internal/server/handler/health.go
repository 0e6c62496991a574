package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger reports reachability of one backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyCheck pairs a dependency name with its pinger.
type DependencyCheck struct {
	Name   string
	Pinger Pinger
}

// HealthHandler serves the health-check endpoint: liveness plus a ping of
// every registered backing dependency.
type HealthHandler struct {
	checks []DependencyCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the given dependency checks.
func NewHealthHandler(checks []DependencyCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck pings each dependency with a short timeout and reports
// per-dependency status. Any failing dependency degrades the overall status
// and the response code to 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(h.checks))

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := check.Pinger.Ping(ctx)
		cancel()
		if err != nil {
			deps[check.Name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			h.logger.WarnContext(r.Context(), "health check failed",
				slog.String("dependency", check.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[check.Name] = "ok"
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, code, body)
}
