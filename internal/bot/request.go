package bot

import (
	"context"
	"fmt"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

// Messenger is the part of the Bot API the handlers talk to.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error
}

// Request is one event travelling through the pipeline.
type Request struct {
	*Event
	User    *models.User
	Session *session.Session
	Args    []string

	messenger Messenger
	answered  bool
}

func (r *Request) isCallback() bool {
	return r.Kind == KindCallback
}

// Reply shows text in place of the pressed button's message, or sends a new
// message when the event did not come from a button.
func (r *Request) Reply(ctx context.Context, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	text = truncateHTML(text, maxMessageRunes)
	if r.isCallback() && r.MessageID != 0 {
		err := r.messenger.EditMessageText(ctx, r.ChatID, r.MessageID, text, keyboard)
		if err == nil || telegram.IsMessageNotModified(err) {
			return nil
		}
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return r.Send(ctx, text, keyboard)
}

// Send always posts a new message to the chat.
func (r *Request) Send(ctx context.Context, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	if err := r.messenger.SendMessage(ctx, r.ChatID, truncateHTML(text, maxMessageRunes), keyboard); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Alert shows a short blocking notice: a popup for button presses, a plain
// message otherwise.
func (r *Request) Alert(ctx context.Context, text string) error {
	return r.notice(ctx, text, true)
}

// Toast shows a short non-blocking notice.
func (r *Request) Toast(ctx context.Context, text string) error {
	return r.notice(ctx, text, false)
}

func (r *Request) notice(ctx context.Context, text string, alert bool) error {
	if r.isCallback() {
		if r.answered {
			return nil
		}
		r.answered = true
		if err := r.messenger.AnswerCallbackQuery(ctx, r.CallbackID, text, alert); err != nil {
			return fmt.Errorf("failed to answer callback: %w", err)
		}
		return nil
	}
	return r.Send(ctx, text, nil)
}

// finish stops the client's button spinner if no handler did.
func (r *Request) finish(ctx context.Context) error {
	if !r.isCallback() || r.answered {
		return nil
	}
	r.answered = true
	return r.messenger.AnswerCallbackQuery(ctx, r.CallbackID, "", false)
}
