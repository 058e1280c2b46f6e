package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/ratelimit"
	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/users"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
	"github.com/aimd54/judge-helpdesk-bot/test/mocks"
)

type outgoing struct {
	ChatID    int64
	MessageID int64 // non-zero for edits
	Text      string
	Keyboard  *telegram.InlineKeyboardMarkup
}

type callbackAnswer struct {
	ID    string
	Text  string
	Alert bool
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages []outgoing
	answers  []callbackAnswer
	editErr  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, outgoing{ChatID: chatID, Text: text, Keyboard: keyboard})
	return nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.messages = append(f.messages, outgoing{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: keyboard})
	return nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, callbackAnswer{ID: id, Text: text, Alert: alert})
	return nil
}

func (f *fakeMessenger) last() outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return outgoing{}
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeMessenger) lastAnswer() callbackAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return callbackAnswer{}
	}
	return f.answers[len(f.answers)-1]
}

type botEnv struct {
	bot       *Bot
	messenger *fakeMessenger
	notifier  *mocks.MockNotifier
	sessions  *session.MemoryStore
	tickets   *repository.TicketRepository
	comments  *repository.CommentRepository
	users     *repository.UserRepository

	admin  *telegram.User
	judge  *telegram.User
	player *telegram.User
}

func setupBotEnv(t *testing.T, limit ratelimit.Config) *botEnv {
	t.Helper()

	db, err := repository.NewDB(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	env := &botEnv{
		messenger: &fakeMessenger{},
		notifier:  mocks.NewMockNotifier(),
		sessions:  session.NewMemoryStore(session.DefaultTTL),
		tickets:   repository.NewTicketRepository(db),
		comments:  repository.NewCommentRepository(db),
		users:     repository.NewUserRepository(db),
		admin:     &telegram.User{ID: 1, FirstName: "Anna", Username: "anna"},
		judge:     &telegram.User{ID: 2, FirstName: "Judy", Username: "judy"},
		player:    &telegram.User{ID: 3, FirstName: "Pat", Username: "pat"},
	}

	ticketsCfg := config.TicketsConfig{MaxDescriptionLength: 2000, MaxCommentLength: 1000, PageSize: 10, AutoCloseDays: 7}
	userService := users.NewService(env.users, env.notifier, logger.Nop())
	ticketService := tickets.NewService(&ticketsCfg, env.tickets, env.comments, env.users, env.notifier, nil, logger.Nop())

	env.bot = NewBot(env.messenger, userService, ticketService, env.sessions, ratelimit.NewMemoryLimiter(limit), logger.Nop())
	return env
}

func generousLimit() ratelimit.Config {
	return ratelimit.Config{MaxRequests: 1000, Window: time.Minute}
}

func message(from *telegram.User, text string) *telegram.Update {
	return &telegram.Update{Message: &telegram.Message{
		MessageID: 10,
		From:      from,
		Chat:      &telegram.Chat{ID: from.ID, Type: "private"},
		Text:      text,
	}}
}

func press(from *telegram.User, data string) *telegram.Update {
	return &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-" + data,
		From:    from,
		Message: &telegram.Message{MessageID: 42, Chat: &telegram.Chat{ID: from.ID, Type: "private"}},
		Data:    data,
	}}
}

func (e *botEnv) send(t *testing.T, u *telegram.Update) {
	t.Helper()
	require.NoError(t, e.bot.HandleUpdate(context.Background(), u))
}

// registerStaff makes admin, judge and player known, in that order, and promotes the judge.
func (e *botEnv) registerStaff(t *testing.T) {
	t.Helper()
	e.send(t, message(e.admin, "/start"))
	e.send(t, message(e.judge, "/start"))
	e.send(t, message(e.player, "/start"))
	e.send(t, message(e.admin, "/add_judge @judy"))
}

func (e *botEnv) state(t *testing.T, userID int64) *session.Session {
	t.Helper()
	s, err := e.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	return s
}

func TestBot_StartShowsRoleMenu(t *testing.T) {
	env := setupBotEnv(t, generousLimit())

	env.send(t, message(env.admin, "/start"))
	assert.Contains(t, env.messenger.last().Text, "administrator")
	assert.Len(t, env.messenger.last().Keyboard.InlineKeyboard, len(tickets.Filters))

	env.send(t, message(env.player, "/start"))
	last := env.messenger.last()
	assert.Equal(t, env.player.ID, last.ChatID)
	assert.Equal(t, callback(ActionCreateTicket), last.Keyboard.InlineKeyboard[0][0].CallbackData)

	u, err := env.users.GetByID(context.Background(), env.player.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RolePlayer, u.Role)
}

func TestBot_CreateClaimCloseFlow(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()

	env.send(t, press(env.player, callback(ActionCreateTicket)))
	assert.Equal(t, session.StateAwaitingType, env.state(t, env.player.ID).State)

	env.send(t, press(env.player, callback(ActionTicketType, models.TicketTypeMatchReschedule)))
	assert.Equal(t, session.StateAwaitingDescription, env.state(t, env.player.ID).State)

	// Too short: re-prompted, state kept, nothing stored
	env.send(t, message(env.player, "tomorrow"))
	assert.Contains(t, env.messenger.last().Text, "too short")
	assert.Equal(t, session.StateAwaitingDescription, env.state(t, env.player.ID).State)

	env.send(t, message(env.player, "Can we move round 3 to <b>Sunday</b>?"))
	assert.Equal(t, session.StateAwaitingConfirmation, env.state(t, env.player.ID).State)
	assert.NotContains(t, env.messenger.last().Text, "<b>Sunday</b>")

	env.send(t, press(env.player, callback(ActionConfirmTicket)))
	assert.True(t, env.state(t, env.player.ID).Idle())
	assert.Contains(t, env.messenger.last().Text, "#1")

	ticket, err := env.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, ticket.Status)
	assert.Equal(t, env.player.ID, ticket.UserID)
	assert.Nil(t, ticket.JudgeID)

	require.Len(t, env.notifier.SentTo(env.admin.ID), 1)
	judgeNotes := env.notifier.SentTo(env.judge.ID)
	require.Len(t, judgeNotes, 2) // appointment, then the new ticket
	assert.Contains(t, judgeNotes[1], "New ticket #1")

	env.send(t, press(env.judge, callback(ActionTake, 1)))
	assert.Equal(t, "🛠 Ticket taken into work", env.messenger.lastAnswer().Text)
	assert.Contains(t, env.messenger.last().Text, "In progress")

	ticket, err = env.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, ticket.Status)
	require.NotNil(t, ticket.JudgeID)
	assert.Equal(t, env.judge.ID, *ticket.JudgeID)

	// The admin loses the race
	env.send(t, press(env.admin, callback(ActionTake, 1)))
	assert.Equal(t, callbackAnswer{ID: "cb-take:1", Text: msgAlreadyTaken, Alert: true}, env.messenger.lastAnswer())

	env.send(t, press(env.judge, callback(ActionJudgeClose, 1)))
	ticket, err = env.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, ticket.Status)
	require.NotNil(t, ticket.ClosedAt)
	require.NotNil(t, ticket.ClosedBy)
	assert.Equal(t, env.judge.ID, *ticket.ClosedBy)

	owner := env.notifier.SentTo(env.player.ID)
	require.Len(t, owner, 2)
	assert.Contains(t, owner[0], "taken into work by judge Judy")
	assert.Contains(t, owner[1], "closed by judge Judy")

	env.send(t, press(env.judge, callback(ActionJudgeClose, 1)))
	assert.Equal(t, msgAlreadyClosed, env.messenger.lastAnswer().Text)
}

func TestBot_CancelTicketCreation(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.send(t, message(env.player, "/start"))

	env.send(t, press(env.player, callback(ActionCreateTicket)))
	env.send(t, press(env.player, callback(ActionTicketType, models.TicketTypeHelpNeeded)))
	env.send(t, press(env.player, callback(ActionCancelTicket)))

	assert.True(t, env.state(t, env.player.ID).Idle())
	assert.Equal(t, msgTicketAborted, env.messenger.last().Text)

	_, total, err := env.tickets.List(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBot_ConfirmWithoutDraft(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.send(t, message(env.player, "/start"))

	env.send(t, press(env.player, callback(ActionConfirmTicket)))
	assert.Equal(t, msgFormExpired, env.messenger.last().Text)
}

func TestBot_PlayerClosesOwnTicket(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()

	require.NoError(t, env.tickets.Create(ctx, &models.Ticket{
		UserID: env.player.ID, TicketType: models.TicketTypeHelpNeeded, Description: "My clock is broken",
	}))

	env.send(t, press(env.player, callback(ActionMyTickets)))
	last := env.messenger.last()
	assert.Contains(t, last.Text, "Your tickets")
	assert.Equal(t, callback(ActionMyView, 1), last.Keyboard.InlineKeyboard[0][0].CallbackData)

	env.send(t, press(env.player, callback(ActionMyClose, 1)))
	ticket, err := env.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, ticket.Status)
	judgeNotes := env.notifier.SentTo(env.judge.ID)
	assert.Contains(t, judgeNotes[len(judgeNotes)-1], "closed by player Pat")

	// Someone else's ticket looks missing
	env.send(t, message(&telegram.User{ID: 4, FirstName: "Olga"}, "/start"))
	env.send(t, press(&telegram.User{ID: 4, FirstName: "Olga"}, callback(ActionMyView, 1)))
	assert.Equal(t, msgNotFound, env.messenger.lastAnswer().Text)
}

func TestBot_CommentFlow(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()

	require.NoError(t, env.tickets.Create(ctx, &models.Ticket{
		UserID: env.player.ID, TicketType: models.TicketTypeOpponentComplaint, Description: "Opponent left early",
	}))

	env.send(t, press(env.judge, callback(ActionComment, 1)))
	s := env.state(t, env.judge.ID)
	assert.Equal(t, session.StateAwaitingComment, s.State)
	assert.Equal(t, uint(1), s.TicketID)

	env.send(t, message(env.judge, "ok"))
	assert.Contains(t, env.messenger.last().Text, "too short")
	assert.Equal(t, session.StateAwaitingComment, env.state(t, env.judge.ID).State)

	env.send(t, message(env.judge, "We are checking the logs"))
	assert.True(t, env.state(t, env.judge.ID).Idle())

	comments, err := env.comments.ListByTicket(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "We are checking the logs", comments[0].Text)
	assert.Equal(t, env.judge.ID, comments[0].JudgeID)

	owner := env.notifier.SentTo(env.player.ID)
	require.Len(t, owner, 1)
	assert.Contains(t, owner[0], "We are checking the logs")
}

func TestBot_CancelComment(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	require.NoError(t, env.tickets.Create(context.Background(), &models.Ticket{
		UserID: env.player.ID, TicketType: models.TicketTypeHelpNeeded, Description: "Need a board",
	}))

	env.send(t, press(env.judge, callback(ActionComment, 1)))
	env.send(t, press(env.judge, callback(ActionCancelComment)))

	assert.True(t, env.state(t, env.judge.ID).Idle())
	assert.Equal(t, msgCommentAborted, env.messenger.last().Text)

	// Text after cancelling is not a comment
	env.send(t, message(env.judge, "this is not a comment"))
	comments, err := env.comments.ListByTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestBot_JudgeListFilters(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, env.tickets.Create(ctx, &models.Ticket{
			UserID: env.player.ID, TicketType: models.TicketTypeHelpNeeded, Description: "Need help please",
		}))
	}

	env.send(t, press(env.judge, callback(ActionJudgeFilter, tickets.FilterOpen)))
	last := env.messenger.last()
	assert.Contains(t, last.Text, "(12)")
	// 10 tickets, navigation, refresh/back
	require.Len(t, last.Keyboard.InlineKeyboard, 12)
	nav := last.Keyboard.InlineKeyboard[10]
	require.Len(t, nav, 2)
	assert.Equal(t, "1/2", nav[0].Text)
	assert.Equal(t, callback(ActionJudgePage, tickets.FilterOpen, 1), nav[1].CallbackData)

	env.send(t, press(env.judge, callback(ActionJudgePage, tickets.FilterOpen, 1)))
	assert.Len(t, env.messenger.last().Keyboard.InlineKeyboard, 4)

	env.send(t, press(env.judge, callback(ActionJudgeFilter, tickets.FilterMine)))
	assert.Contains(t, env.messenger.last().Text, "No tickets here")

	env.send(t, press(env.judge, callback(ActionJudgeFilter, "bogus")))
	assert.Equal(t, msgUnknownAction, env.messenger.lastAnswer().Text)
}

func TestBot_RateLimit(t *testing.T) {
	env := setupBotEnv(t, ratelimit.Config{MaxRequests: 2, Window: time.Minute})
	before := testutil.ToFloat64(metrics.RateLimitedTotal)

	env.send(t, message(env.player, "/start"))
	env.send(t, message(env.player, "/help"))
	sent := len(env.messenger.messages)

	env.send(t, press(env.player, callback(ActionCreateTicket)))
	assert.Equal(t, callbackAnswer{ID: "cb-create_ticket", Text: msgRateLimited, Alert: true}, env.messenger.lastAnswer())
	assert.Len(t, env.messenger.messages, sent)
	assert.True(t, env.state(t, env.player.ID).Idle())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitedTotal))

	// Other users have their own window
	env.send(t, message(env.judge, "/start"))
	assert.Equal(t, env.judge.ID, env.messenger.last().ChatID)
}

func TestBot_RoleGate(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()
	deniedBefore := testutil.ToFloat64(metrics.AccessDeniedTotal.WithLabelValues("judge"))

	env.send(t, press(env.player, callback(ActionJudgeFilter, tickets.FilterAll)))
	assert.Equal(t, callbackAnswer{ID: "cb-judge_filter:all", Text: msgAccessDenied, Alert: true}, env.messenger.lastAnswer())
	assert.Equal(t, deniedBefore+1, testutil.ToFloat64(metrics.AccessDeniedTotal.WithLabelValues("judge")))

	require.NoError(t, env.tickets.Create(ctx, &models.Ticket{
		UserID: env.player.ID, TicketType: models.TicketTypeHelpNeeded, Description: "Need help please",
	}))
	env.send(t, press(env.player, callback(ActionTake, 1)))
	ticket, err := env.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, ticket.Status)

	// Judges are not admins
	env.send(t, message(env.judge, "/add_judge @pat"))
	assert.Equal(t, msgAccessDenied, env.messenger.last().Text)
	u, err := env.users.GetByID(ctx, env.player.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RolePlayer, u.Role)
}

func TestBot_DemotedJudgeLeavesCommentStep(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()
	require.NoError(t, env.tickets.Create(ctx, &models.Ticket{
		UserID: env.player.ID, TicketType: models.TicketTypeHelpNeeded, Description: "Need a board",
	}))

	env.send(t, press(env.judge, callback(ActionComment, 1)))
	require.Equal(t, session.StateAwaitingComment, env.state(t, env.judge.ID).State)

	env.send(t, message(env.admin, "/remove_judge @judy"))

	env.send(t, message(env.judge, "We are checking the logs"))
	assert.Equal(t, msgAccessDenied, env.messenger.last().Text)
	assert.True(t, env.state(t, env.judge.ID).Idle())

	// Further text is treated as stray, not as a denied comment
	env.send(t, message(env.judge, "hello?"))
	assert.Equal(t, strayTextHint(session.StateIdle), env.messenger.last().Text)

	comments, err := env.comments.ListByTicket(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestBot_AdminCommands(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)
	ctx := context.Background()

	assert.Equal(t, "✅ Judy (@judy) is now a judge.", env.messenger.last().Text)
	notes := env.notifier.SentTo(env.judge.ID)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "appointed")

	env.send(t, message(env.admin, "/add_judge @judy"))
	assert.Equal(t, "ℹ️ Judy (@judy) is already a judge.", env.messenger.last().Text)

	env.send(t, message(env.admin, "/add_judge"))
	assert.Equal(t, "Usage: /add_judge @username", env.messenger.last().Text)

	env.send(t, message(env.admin, "/add_judge @ghost"))
	assert.Contains(t, env.messenger.last().Text, "not found")

	env.send(t, message(env.admin, "/list_judges"))
	assert.Contains(t, env.messenger.last().Text, "Anna (@anna) - admin")
	assert.Contains(t, env.messenger.last().Text, "Judy (@judy) - judge")

	env.send(t, message(env.admin, "/remove_judge @anna"))
	assert.Equal(t, "❌ You cannot remove your own role.", env.messenger.last().Text)
	u, err := env.users.GetByID(ctx, env.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	env.send(t, message(env.admin, "/remove_judge @pat"))
	assert.Equal(t, "❌ @pat is not a judge.", env.messenger.last().Text)

	env.send(t, message(env.admin, "/remove_judge @judy"))
	assert.Equal(t, "✅ Judy (@judy) is no longer a judge.", env.messenger.last().Text)
	u, err = env.users.GetByID(ctx, env.judge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RolePlayer, u.Role)
}

func TestBot_HelpListsAdminCommandsOnlyForAdmins(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.registerStaff(t)

	env.send(t, message(env.admin, "/help"))
	assert.Contains(t, env.messenger.last().Text, "/add_judge")

	env.send(t, message(env.player, "/help"))
	assert.NotContains(t, env.messenger.last().Text, "/add_judge")
}

func TestBot_UnknownInput(t *testing.T) {
	env := setupBotEnv(t, generousLimit())

	env.send(t, message(env.player, "/dance"))
	assert.Equal(t, msgUnknownCommand, env.messenger.last().Text)

	env.send(t, message(env.player, "hello?"))
	assert.Equal(t, "Use /start to open the menu.", env.messenger.last().Text)

	env.send(t, press(env.player, "what:ever"))
	assert.Equal(t, msgUnknownAction, env.messenger.lastAnswer().Text)

	// Text routes cannot be forged through buttons
	env.send(t, press(env.player, string(ActionDescriptionText)))
	assert.Equal(t, msgUnknownAction, env.messenger.lastAnswer().Text)
}

func TestBot_NoopAnswersCallback(t *testing.T) {
	env := setupBotEnv(t, generousLimit())

	env.send(t, press(env.player, callback(ActionNoop)))
	assert.Equal(t, callbackAnswer{ID: "cb-noop"}, env.messenger.lastAnswer())
	assert.Empty(t, env.messenger.messages)
}

func TestBot_MessageNotModifiedIsIgnored(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.messenger.editErr = &telegram.APIError{Method: "editMessageText", ErrorCode: 400, Description: "Bad Request: message is not modified"}

	env.send(t, press(env.player, callback(ActionMyTickets)))
	assert.False(t, env.messenger.lastAnswer().Alert)
}

func TestBot_HandlerErrorIsReported(t *testing.T) {
	env := setupBotEnv(t, generousLimit())
	env.messenger.editErr = errors.New("connection reset")

	err := env.bot.HandleUpdate(context.Background(), press(env.player, callback(ActionMyTickets)))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "my_tickets"))
	assert.Equal(t, callbackAnswer{ID: "cb-my_tickets", Text: msgGenericError, Alert: true}, env.messenger.lastAnswer())
}

func TestBot_IgnoresUpdatesWithoutSender(t *testing.T) {
	env := setupBotEnv(t, generousLimit())

	require.NoError(t, env.bot.HandleUpdate(context.Background(), &telegram.Update{UpdateID: 1}))
	assert.Empty(t, env.messenger.messages)
}

func TestCommands(t *testing.T) {
	for _, c := range Commands() {
		_, ok := commandActions[c.Command]
		assert.True(t, ok, "command %s has no route", c.Command)
	}
}
