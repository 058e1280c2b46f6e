// Package notify delivers best-effort direct messages to users.
package notify

import (
	"context"

	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// Sender delivers a message to a user's private chat.
type Sender interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Dispatcher sends notifications one recipient at a time. A failed delivery is
// logged and counted, never returned.
type Dispatcher struct {
	sender Sender
	log    *logger.Logger
}

// NewDispatcher creates a dispatcher. A nil sender drops every message.
func NewDispatcher(sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log}
}

// Send delivers text to userID and reports whether it went through.
func (d *Dispatcher) Send(ctx context.Context, event string, userID int64, text string) bool {
	if d == nil || d.sender == nil {
		return false
	}

	if err := d.sender.Notify(ctx, userID, text); err != nil {
		reason := "error"
		if telegram.IsBotBlocked(err) {
			reason = "blocked"
		}
		metrics.RecordNotificationFailed(reason)
		d.log.Warn().
			Err(err).
			Int64("user_id", userID).
			Str("event", event).
			Str("reason", reason).
			Msg("Failed to deliver notification")
		return false
	}

	metrics.RecordNotificationSent(event)
	return true
}

// Broadcast sends text to every recipient except the skipped ids and returns
// how many deliveries succeeded.
func (d *Dispatcher) Broadcast(ctx context.Context, event string, recipients []models.User, text string, skip ...int64) int {
	delivered := 0
	for _, r := range recipients {
		if contains(skip, r.ID) {
			continue
		}
		if d.Send(ctx, event, r.ID, text) {
			delivered++
		}
	}
	return delivered
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
