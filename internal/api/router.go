package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// Routes bundles the handlers mounted by NewRouter. Webhook may be nil when
// updates arrive by long polling.
type Routes struct {
	API     *Handler
	Health  *HealthHandler
	Webhook *WebhookHandler
}

// NewRouter builds the HTTP engine.
func NewRouter(cfg *config.Config, routes Routes, log *logger.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/healthz", routes.Health.Healthz)

	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	// Ticket contents are private; without a token the read API stays unmounted.
	if cfg.Server.APIToken != "" {
		v1 := router.Group("/api/v1", bearerAuth(cfg.Server.APIToken))
		v1.GET("/tickets", routes.API.ListTickets)
		v1.GET("/tickets/:id", routes.API.GetTicket)
		v1.GET("/stats", routes.API.GetStats)
		v1.GET("/judges/leaderboard", routes.API.GetLeaderboard)
	} else {
		log.Warn().Msg("server.api_token is empty, /api/v1 is disabled")
	}

	if routes.Webhook != nil {
		router.POST("/telegram/webhook", routes.Webhook.HandleUpdate)
	}

	return router
}

// bearerAuth requires "Authorization: Bearer <token>".
func bearerAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			errorJSON(c, http.StatusUnauthorized, "missing or invalid bearer token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
