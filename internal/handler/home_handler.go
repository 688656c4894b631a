package handler

import (
	"context"
	"net/http"
	"time"

	"notes-server/pkg/response"

	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HomeHandler struct {
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHomeHandler takes the dependencies the health endpoint reports on, keyed by name.
func NewHomeHandler(checks map[string]Pinger, logger *zap.Logger) *HomeHandler {
	return &HomeHandler{
		checks: checks,
		logger: logger,
	}
}

func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	response.Message(w, http.StatusOK, "Welcome to the home page.")
}

func (h *HomeHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	response.JSON(w, status, map[string]interface{}{
		"status":       state,
		"service":      "notes-server",
		"dependencies": results,
	})
}
