package handlers

import (
	"net/http"

	"github.com/coinsaga/coinsaga/pkg/api/response"
	"github.com/coinsaga/coinsaga/pkg/version"
)

// ReadinessCheck reports whether a dependency is ready to serve.
type ReadinessCheck struct {
	Name  string
	Probe func() error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks []ReadinessCheck
}

// NewHealthHandler creates a health handler with the given readiness checks.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Ready handles the /ready endpoint (readiness probe). It fails when any
// dependency probe fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for _, check := range h.checks {
		if err := check.Probe(); err != nil {
			failures[check.Name] = err.Error()
		}
	}

	if len(failures) > 0 {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":    false,
			"failures": failures,
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"ready": true,
	})
}
