package bot

import (
	"context"
	"errors"

	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
)

func (b *Bot) handleJudgeMenu(ctx context.Context, req *Request) error {
	return req.Reply(ctx, menuText(req.User.Role), judgeMenuKeyboard())
}

// handleJudgeList serves both judge_filter:<f> and judge_page:<f>:<n>.
func (b *Bot) handleJudgeList(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return req.Alert(ctx, msgUnknownAction)
	}
	filter := tickets.Filter(req.Args[0])

	page, err := b.tickets.ListForViewer(ctx, req.User, filter, argPage(req.Args, 1))
	if errors.Is(err, tickets.ErrInvalidFilter) {
		return req.Alert(ctx, msgUnknownAction)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, judgeListText(page), judgeListKeyboard(page))
}

func (b *Bot) handleJudgeView(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args, 0)
	if !ok {
		return req.Alert(ctx, msgUnknownAction)
	}
	return b.showTicket(ctx, req, id)
}

func (b *Bot) handleTake(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args, 0)
	if !ok {
		return req.Alert(ctx, msgUnknownAction)
	}

	if _, err := b.tickets.Claim(ctx, req.User, id); err != nil {
		switch {
		case errors.Is(err, tickets.ErrTicketNotFound):
			return req.Alert(ctx, msgNotFound)
		case errors.Is(err, tickets.ErrAlreadyClaimed):
			if alertErr := req.Alert(ctx, msgAlreadyTaken); alertErr != nil {
				return alertErr
			}
			return b.showTicket(ctx, req, id)
		default:
			return err
		}
	}

	if err := req.Toast(ctx, "🛠 Ticket taken into work"); err != nil {
		return err
	}
	return b.showTicket(ctx, req, id)
}

func (b *Bot) handleJudgeClose(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args, 0)
	if !ok {
		return req.Alert(ctx, msgUnknownAction)
	}

	if _, err := b.tickets.CloseByJudge(ctx, req.User, id); err != nil {
		switch {
		case errors.Is(err, tickets.ErrTicketNotFound):
			return req.Alert(ctx, msgNotFound)
		case errors.Is(err, tickets.ErrAlreadyClosed):
			if alertErr := req.Alert(ctx, msgAlreadyClosed); alertErr != nil {
				return alertErr
			}
			return b.showTicket(ctx, req, id)
		default:
			return err
		}
	}

	if err := req.Toast(ctx, "✅ Ticket closed"); err != nil {
		return err
	}
	return b.showTicket(ctx, req, id)
}

// handleComment starts comment entry. The next text message becomes the comment.
func (b *Bot) handleComment(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args, 0)
	if !ok {
		return req.Alert(ctx, msgUnknownAction)
	}

	if _, err := b.tickets.GetForViewer(ctx, req.User, id); err != nil {
		if errors.Is(err, tickets.ErrTicketNotFound) {
			return req.Alert(ctx, msgNotFound)
		}
		return err
	}

	if err := b.saveSession(ctx, req, &session.Session{State: session.StateAwaitingComment, TicketID: id}); err != nil {
		return err
	}

	_, _, commentMin, commentMax := b.tickets.Limits()
	return req.Send(ctx, commentPrompt(id, commentMin, commentMax), cancelCommentKeyboard())
}

func (b *Bot) handleCommentText(ctx context.Context, req *Request) error {
	id := req.Session.TicketID

	if _, err := b.tickets.AddComment(ctx, req.User, id, req.Text); err != nil {
		var verr *tickets.ValidationError
		switch {
		case errors.As(err, &verr):
			return req.Send(ctx, validationText(verr), cancelCommentKeyboard())
		case errors.Is(err, tickets.ErrTicketNotFound):
			if err := b.clearSession(ctx, req); err != nil {
				return err
			}
			return req.Send(ctx, msgNotFound, judgeMenuKeyboard())
		default:
			return err
		}
	}

	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	return req.Send(ctx, "✅ Comment added, the player has been notified.", openTicketKeyboard(id))
}

func (b *Bot) handleCancelComment(ctx context.Context, req *Request) error {
	id := req.Session.TicketID
	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	if id == 0 {
		return req.Reply(ctx, msgCommentAborted, judgeMenuKeyboard())
	}
	return req.Reply(ctx, msgCommentAborted, openTicketKeyboard(id))
}

func (b *Bot) showTicket(ctx context.Context, req *Request, id uint) error {
	details, err := b.tickets.GetForViewer(ctx, req.User, id)
	if errors.Is(err, tickets.ErrTicketNotFound) {
		return req.Alert(ctx, msgNotFound)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, ticketText(details, true), judgeTicketKeyboard(&details.Ticket))
}
