package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports whether every registered dependency answers.
type HealthHandler struct {
	checks map[string]HealthCheck
	log    *logger.Logger
}

// NewHealthHandler creates a health handler. Components are checked in no
// particular order.
func NewHealthHandler(checks map[string]HealthCheck, log *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, log: log}
}

// Healthz returns 200 when all checks pass, 503 otherwise.
// GET /healthz.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	code := http.StatusOK
	status := "ok"
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("component", name).Msg("Health check failed")
			components[name] = "error: " + err.Error()
			code = http.StatusServiceUnavailable
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}
