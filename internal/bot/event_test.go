package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

func TestEventFromUpdate(t *testing.T) {
	from := &telegram.User{ID: 7, FirstName: "Pat", Username: "pat"}
	chat := &telegram.Chat{ID: 7, Type: "private"}

	tests := []struct {
		name   string
		update *telegram.Update
		want   *Event
	}{
		{
			name:   "command with mention and arguments",
			update: &telegram.Update{Message: &telegram.Message{From: from, Chat: chat, Text: "/Add_Judge@helpdesk_bot  @judy "}},
			want: &Event{Kind: KindCommand, ChatID: 7, Command: "add_judge", CommandArgs: "@judy",
				Text: "/Add_Judge@helpdesk_bot  @judy"},
		},
		{
			name:   "plain text",
			update: &telegram.Update{Message: &telegram.Message{From: from, Chat: chat, Text: "  my opponent is late  "}},
			want:   &Event{Kind: KindText, ChatID: 7, Text: "my opponent is late"},
		},
		{
			name: "button press",
			update: &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
				ID: "q1", From: from, Data: "take:3",
				Message: &telegram.Message{MessageID: 99, Chat: &telegram.Chat{ID: 70}},
			}},
			want: &Event{Kind: KindCallback, ChatID: 70, MessageID: 99, CallbackID: "q1", Data: "take:3"},
		},
		{
			name: "button on an inaccessible message",
			update: &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
				ID: "q2", From: from, Data: "noop",
			}},
			want: &Event{Kind: KindCallback, ChatID: 7, CallbackID: "q2", Data: "noop"},
		},
		{
			name:   "empty text",
			update: &telegram.Update{Message: &telegram.Message{From: from, Chat: chat, Text: "   "}},
		},
		{
			name:   "message from a bot",
			update: &telegram.Update{Message: &telegram.Message{From: &telegram.User{ID: 8, IsBot: true}, Chat: chat, Text: "hi"}},
		},
		{
			name:   "no sender",
			update: &telegram.Update{Message: &telegram.Message{Chat: chat, Text: "hi"}},
		},
		{
			name:   "empty update",
			update: &telegram.Update{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EventFromUpdate(tt.update)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			tt.want.Sender = got.Sender
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventFromUpdate_Sender(t *testing.T) {
	ev := EventFromUpdate(&telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: 5, FirstName: "Olga", Username: "olga_k"},
		Chat: &telegram.Chat{ID: 5},
		Text: "/start",
	}})
	require.NotNil(t, ev)
	assert.Equal(t, int64(5), ev.Sender.ID)
	assert.Equal(t, "olga_k", ev.Sender.Username)
	assert.Equal(t, "Olga", ev.Sender.FirstName)
}

func TestCallbackCodec(t *testing.T) {
	assert.Equal(t, "menu", callback(ActionMenu))
	assert.Equal(t, "judge_page:mine:3", callback(ActionJudgePage, "mine", 3))

	action, args := parseCallback("judge_page:open:2")
	assert.Equal(t, ActionJudgePage, action)
	assert.Equal(t, []string{"open", "2"}, args)
	assert.Equal(t, 2, argPage(args, 1))

	action, args = parseCallback("noop")
	assert.Equal(t, ActionNoop, action)
	assert.Empty(t, args)

	id, ok := argID([]string{"42"}, 0)
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, bad := range [][]string{nil, {"0"}, {"-1"}, {"abc"}} {
		_, ok := argID(bad, 0)
		assert.False(t, ok, "argID(%v)", bad)
	}

	assert.Equal(t, 0, argPage([]string{"x"}, 0))
	assert.Equal(t, 0, argPage([]string{"-4"}, 0))
	assert.Equal(t, 0, argPage(nil, 0))
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	// Telegram rejects callback data over 64 bytes
	longest := callback(ActionJudgePage, "in_progress", 999999)
	assert.LessOrEqual(t, len(longest), 64)
}

func TestTruncateHTML(t *testing.T) {
	short := "<b>Ticket #1</b>"
	assert.Equal(t, short, truncateHTML(short, 100))

	lines := strings.Repeat("line of text\n", 50)
	got := truncateHTML(lines, 100)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 100)
	assert.True(t, strings.HasSuffix(got, "line of text…"))

	entities := strings.Repeat("&amp;", 30)
	got = truncateHTML(entities, 23)
	assert.Equal(t, strings.Repeat("&amp;", 4)+"…", got)

	cyrillic := strings.Repeat("ж", 50)
	got = truncateHTML(cyrillic, 10)
	assert.Equal(t, strings.Repeat("ж", 9)+"…", got)
}
