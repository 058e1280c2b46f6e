package bot

import (
	"strings"

	"github.com/aimd54/judge-helpdesk-bot/internal/service/users"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

// Kind is the shape of an inbound event.
type Kind string

// Event kinds, also used as metric labels.
const (
	KindCommand  Kind = "command"
	KindText     Kind = "text"
	KindCallback Kind = "callback"
)

// Event is an inbound chat event reduced to what the handlers need.
type Event struct {
	Kind   Kind
	Sender users.Identity

	ChatID     int64
	MessageID  int64 // message carrying the pressed button; 0 when it cannot be edited
	CallbackID string

	Command     string // without the leading slash and bot mention
	CommandArgs string
	Text        string
	Data        string
}

// EventFromUpdate converts an update. It returns nil for updates the bot
// ignores: edits, channel posts, messages without a sender or text.
func EventFromUpdate(u *telegram.Update) *Event {
	if q := u.CallbackQuery; q != nil {
		if q.From == nil {
			return nil
		}
		ev := &Event{
			Kind:       KindCallback,
			Sender:     identity(q.From),
			ChatID:     q.From.ID,
			CallbackID: q.ID,
			Data:       q.Data,
		}
		if q.Message != nil && q.Message.Chat != nil {
			ev.ChatID = q.Message.Chat.ID
			ev.MessageID = q.Message.MessageID
		}
		return ev
	}

	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return nil
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}

	ev := &Event{
		Sender: identity(m.From),
		ChatID: m.From.ID,
		Text:   text,
	}
	if m.Chat != nil {
		ev.ChatID = m.Chat.ID
	}

	if strings.HasPrefix(text, "/") {
		name, args, _ := strings.Cut(text[1:], " ")
		name, _, _ = strings.Cut(name, "@")
		ev.Kind = KindCommand
		ev.Command = strings.ToLower(name)
		ev.CommandArgs = strings.TrimSpace(args)
		return ev
	}

	ev.Kind = KindText
	return ev
}

func identity(u *telegram.User) users.Identity {
	return users.Identity{ID: u.ID, Username: u.Username, FirstName: u.FirstName}
}
