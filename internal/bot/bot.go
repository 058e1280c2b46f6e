// Package bot turns chat events into ticket operations. Every event passes
// the same pipeline: identity resolution, rate limiting, role gating and
// finally the action's handler.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/ratelimit"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/users"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// HandlerFunc runs one action.
type HandlerFunc func(ctx context.Context, req *Request) error

// Route binds an action to its handler and the lowest role allowed to run it.
type Route struct {
	MinRole models.Role
	Handler HandlerFunc
}

// Bot dispatches chat events.
type Bot struct {
	messenger Messenger
	users     *users.Service
	tickets   *tickets.Service
	sessions  session.Store
	limiter   ratelimit.Limiter
	routes    map[Action]Route
	log       *logger.Logger
}

// NewBot creates a bot. It implements telegram.UpdateHandler.
func NewBot(
	messenger Messenger,
	userService *users.Service,
	ticketService *tickets.Service,
	sessions session.Store,
	limiter ratelimit.Limiter,
	log *logger.Logger,
) *Bot {
	b := &Bot{
		messenger: messenger,
		users:     userService,
		tickets:   ticketService,
		sessions:  sessions,
		limiter:   limiter,
		log:       log,
	}
	b.routes = b.routeTable()
	return b
}

func (b *Bot) routeTable() map[Action]Route {
	player := func(h HandlerFunc) Route { return Route{MinRole: models.RolePlayer, Handler: h} }
	judge := func(h HandlerFunc) Route { return Route{MinRole: models.RoleJudge, Handler: h} }
	admin := func(h HandlerFunc) Route { return Route{MinRole: models.RoleAdmin, Handler: h} }

	return map[Action]Route{
		ActionStart:           player(b.handleStart),
		ActionMenu:            player(b.handleMenu),
		ActionHelp:            player(b.handleHelp),
		ActionCancel:          player(b.handleCancel),
		ActionCreateTicket:    player(b.handleCreateTicket),
		ActionTicketType:      player(b.handleTicketType),
		ActionDescriptionText: player(b.handleDescription),
		ActionConfirmTicket:   player(b.handleConfirmTicket),
		ActionCancelTicket:    player(b.handleCancelTicket),
		ActionMyTickets:       player(b.handleMyTickets),
		ActionMyPage:          player(b.handleMyTickets),
		ActionMyView:          player(b.handleMyView),
		ActionMyClose:         player(b.handleMyClose),
		ActionNoop:            player(b.handleNoop),
		ActionStrayText:       player(b.handleStrayText),
		ActionUnknownCommand:  player(b.handleUnknownCommand),
		ActionUnknownCallback: player(b.handleUnknownCallback),

		ActionJudgeMenu:     judge(b.handleJudgeMenu),
		ActionJudgeFilter:   judge(b.handleJudgeList),
		ActionJudgePage:     judge(b.handleJudgeList),
		ActionJudgeView:     judge(b.handleJudgeView),
		ActionTake:          judge(b.handleTake),
		ActionComment:       judge(b.handleComment),
		ActionCommentText:   judge(b.handleCommentText),
		ActionCancelComment: judge(b.handleCancelComment),
		ActionJudgeClose:    judge(b.handleJudgeClose),

		ActionAddJudge:    admin(b.handleAddJudge),
		ActionRemoveJudge: admin(b.handleRemoveJudge),
		ActionListJudges:  admin(b.handleListJudges),
	}
}

// commandActions maps slash commands to actions.
var commandActions = map[string]Action{
	"start":        ActionStart,
	"menu":         ActionMenu,
	"help":         ActionHelp,
	"cancel":       ActionCancel,
	"add_judge":    ActionAddJudge,
	"remove_judge": ActionRemoveJudge,
	"list_judges":  ActionListJudges,
}

// Commands returns the command menu shown by chat clients.
func Commands() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: "start", Description: "Main menu"},
		{Command: "help", Description: "How to use the bot"},
		{Command: "cancel", Description: "Cancel the current action"},
		{Command: "add_judge", Description: "Admin: make a user a judge"},
		{Command: "remove_judge", Description: "Admin: revoke judge role"},
		{Command: "list_judges", Description: "Admin: list judges"},
	}
}

// HandleUpdate runs one update through the pipeline.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	ev := EventFromUpdate(update)
	if ev == nil {
		return nil
	}
	start := time.Now()

	user, err := b.users.Resolve(ctx, ev.Sender)
	if err != nil {
		metrics.RecordUpdateHandled(string(ev.Kind), "error")
		return fmt.Errorf("failed to resolve user %d: %w", ev.Sender.ID, err)
	}

	req := &Request{Event: ev, User: user, messenger: b.messenger}
	defer func() {
		if err := req.finish(ctx); err != nil {
			b.log.Debug().Err(err).Int64("user_id", user.ID).Msg("Failed to answer callback")
		}
	}()

	if !b.allow(ctx, user) {
		metrics.RecordRateLimited()
		metrics.RecordUpdateHandled(string(ev.Kind), "rate_limited")
		b.log.Debug().Int64("user_id", user.ID).Msg("Rate limited")
		return req.Alert(ctx, msgRateLimited)
	}

	req.Session, err = b.sessions.Get(ctx, user.ID)
	if err != nil {
		b.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to load session, treating as idle")
		req.Session = &session.Session{}
	}

	action, args := b.resolve(ev, req.Session)
	route := b.routes[action]
	req.Args = args

	if !user.Role.AtLeast(route.MinRole) {
		metrics.RecordAccessDenied(string(route.MinRole))
		metrics.RecordUpdateHandled(string(ev.Kind), "denied")
		b.log.Info().
			Int64("user_id", user.ID).
			Str("role", string(user.Role)).
			Str("action", string(action)).
			Msg("Access denied")
		// The role changed mid-conversation; drop the step so later text is not denied too.
		if ev.Kind == KindText && !req.Session.Idle() {
			if err := b.clearSession(ctx, req); err != nil {
				b.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to clear stale session")
			}
		}
		return req.Alert(ctx, msgAccessDenied)
	}

	err = route.Handler(ctx, req)
	metrics.ObserveHandlerDuration(string(action), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordUpdateHandled(string(ev.Kind), "error")
		if alertErr := req.Alert(ctx, msgGenericError); alertErr != nil {
			b.log.Debug().Err(alertErr).Msg("Failed to report error to user")
		}
		return fmt.Errorf("action %s for user %d: %w", action, user.ID, err)
	}

	metrics.RecordUpdateHandled(string(ev.Kind), "ok")
	return nil
}

// allow consults the limiter. Limiter errors let the event through.
func (b *Bot) allow(ctx context.Context, user *models.User) bool {
	ok, err := b.limiter.Allow(ctx, strconv.FormatInt(user.ID, 10))
	if err != nil {
		b.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Rate limiter unavailable, allowing event")
		return true
	}
	return ok
}

// resolve picks the action for an event. Free text is routed by the
// conversation step the user is at.
func (b *Bot) resolve(ev *Event, sess *session.Session) (Action, []string) {
	switch ev.Kind {
	case KindCommand:
		if action, ok := commandActions[ev.Command]; ok {
			return action, nil
		}
		return ActionUnknownCommand, nil

	case KindCallback:
		action, args := parseCallback(ev.Data)
		if _, ok := b.routes[action]; !ok || !pressable(action) {
			return ActionUnknownCallback, nil
		}
		return action, args

	default:
		switch sess.State {
		case session.StateAwaitingDescription:
			return ActionDescriptionText, nil
		case session.StateAwaitingComment:
			return ActionCommentText, nil
		default:
			return ActionStrayText, nil
		}
	}
}

// pressable reports whether a button may carry the action. Text routes and
// commands with arguments are reachable only by typing.
func pressable(a Action) bool {
	switch a {
	case ActionDescriptionText, ActionCommentText, ActionStrayText, ActionUnknownCommand, ActionUnknownCallback,
		ActionAddJudge, ActionRemoveJudge, ActionListJudges, ActionStart, ActionHelp, ActionCancel:
		return false
	}
	return true
}

func (b *Bot) saveSession(ctx context.Context, req *Request, s *session.Session) error {
	s.UpdatedAt = time.Now().UTC()
	if err := b.sessions.Save(ctx, req.User.ID, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	req.Session = s
	return nil
}

func (b *Bot) clearSession(ctx context.Context, req *Request) error {
	if err := b.sessions.Clear(ctx, req.User.ID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	req.Session = &session.Session{}
	return nil
}
