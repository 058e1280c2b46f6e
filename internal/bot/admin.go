package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aimd54/judge-helpdesk-bot/internal/service/users"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

func (b *Bot) handleAddJudge(ctx context.Context, req *Request) error {
	handle := firstArg(req.CommandArgs)
	if handle == "" {
		return req.Send(ctx, "Usage: /add_judge @username", nil)
	}

	target, changed, err := b.users.AddJudge(ctx, req.User, handle)
	if errors.Is(err, users.ErrUserNotFound) {
		return req.Send(ctx, userNotFoundText(handle), nil)
	}
	if err != nil {
		return err
	}

	name := telegram.EscapeHTML(contact(target))
	if !changed {
		return req.Send(ctx, fmt.Sprintf("ℹ️ %s is already a %s.", name, target.Role), nil)
	}
	return req.Send(ctx, fmt.Sprintf("✅ %s is now a judge.", name), nil)
}

func (b *Bot) handleRemoveJudge(ctx context.Context, req *Request) error {
	handle := firstArg(req.CommandArgs)
	if handle == "" {
		return req.Send(ctx, "Usage: /remove_judge @username", nil)
	}

	target, err := b.users.RemoveJudge(ctx, req.User, handle)
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		return req.Send(ctx, userNotFoundText(handle), nil)
	case errors.Is(err, users.ErrSelfDemotion):
		return req.Send(ctx, "❌ You cannot remove your own role.", nil)
	case errors.Is(err, users.ErrNotJudge):
		return req.Send(ctx, fmt.Sprintf("❌ %s is not a judge.", telegram.EscapeHTML(handle)), nil)
	case err != nil:
		return err
	}

	return req.Send(ctx, fmt.Sprintf("✅ %s is no longer a judge.", telegram.EscapeHTML(contact(target))), nil)
}

func (b *Bot) handleListJudges(ctx context.Context, req *Request) error {
	judges, err := b.users.ListJudges(ctx)
	if err != nil {
		return err
	}
	return req.Send(ctx, judgesText(judges), nil)
}

func userNotFoundText(handle string) string {
	return fmt.Sprintf("❌ User %s not found. They must send /start to the bot first.", telegram.EscapeHTML(handle))
}

func firstArg(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
