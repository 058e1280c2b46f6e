package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives updates pushed by Telegram.
type WebhookHandler struct {
	handler telegram.UpdateHandler
	secret  string
	log     *logger.Logger
}

// NewWebhookHandler creates a webhook receiver. An empty secret rejects
// every request.
func NewWebhookHandler(handler telegram.UpdateHandler, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{handler: handler, secret: secret, log: log}
}

// HandleUpdate processes one update synchronously. Once the request is
// authenticated and parsed it always answers 200 so Telegram does not
// redeliver an update the bot already acted on.
// POST /telegram/webhook.
func (h *WebhookHandler) HandleUpdate(c *gin.Context) {
	if h.secret == "" {
		h.log.Error().Msg("Webhook secret not configured, rejecting request")
		errorJSON(c, http.StatusServiceUnavailable, "webhook not configured")
		return
	}

	got := c.GetHeader(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.log.Warn().Bool("header_empty", got == "").Msg("Webhook secret verification failed")
		errorJSON(c, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Warn().Err(err).Msg("Failed to parse webhook update")
		errorJSON(c, http.StatusBadRequest, "invalid request body")
		return
	}

	metrics.RecordUpdateReceived("webhook")
	if err := h.handler.HandleUpdate(c.Request.Context(), &update); err != nil {
		h.log.Error().Err(err).Int64("update_id", update.UpdateID).Msg("Failed to handle update")
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func errorJSON(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
