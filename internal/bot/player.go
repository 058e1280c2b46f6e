package bot

import (
	"context"
	"errors"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
)

func (b *Bot) handleStart(ctx context.Context, req *Request) error {
	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	return req.Send(ctx, welcomeText(req.User), menuKeyboard(req.User.Role))
}

func (b *Bot) handleMenu(ctx context.Context, req *Request) error {
	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	return req.Reply(ctx, menuText(req.User.Role), menuKeyboard(req.User.Role))
}

func (b *Bot) handleHelp(ctx context.Context, req *Request) error {
	return req.Send(ctx, helpText(req.User.Role), nil)
}

func (b *Bot) handleCancel(ctx context.Context, req *Request) error {
	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	return req.Send(ctx, msgCancelled, menuKeyboard(req.User.Role))
}

func (b *Bot) handleNoop(context.Context, *Request) error {
	return nil
}

func (b *Bot) handleStrayText(ctx context.Context, req *Request) error {
	return req.Send(ctx, strayTextHint(req.Session.State), nil)
}

func (b *Bot) handleUnknownCommand(ctx context.Context, req *Request) error {
	return req.Send(ctx, msgUnknownCommand, nil)
}

func (b *Bot) handleUnknownCallback(ctx context.Context, req *Request) error {
	b.log.Warn().Str("data", req.Data).Int64("user_id", req.User.ID).Msg("Unknown callback")
	return req.Alert(ctx, msgUnknownAction)
}

// Ticket creation: type, then description, then confirmation.

func (b *Bot) handleCreateTicket(ctx context.Context, req *Request) error {
	if err := b.saveSession(ctx, req, &session.Session{State: session.StateAwaitingType}); err != nil {
		return err
	}
	return req.Reply(ctx, msgTicketTypes, ticketTypeKeyboard())
}

func (b *Bot) handleTicketType(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 || !models.TicketType(req.Args[0]).Valid() {
		return req.Alert(ctx, msgUnknownAction)
	}
	ticketType := models.TicketType(req.Args[0])

	if err := b.saveSession(ctx, req, &session.Session{
		State:      session.StateAwaitingDescription,
		TicketType: ticketType,
	}); err != nil {
		return err
	}

	descMin, descMax, _, _ := b.tickets.Limits()
	return req.Reply(ctx, descriptionPrompt(ticketType, descMin, descMax), cancelTicketKeyboard())
}

func (b *Bot) handleDescription(ctx context.Context, req *Request) error {
	if err := b.tickets.ValidateDescription(req.Text); err != nil {
		var verr *tickets.ValidationError
		if errors.As(err, &verr) {
			return req.Send(ctx, validationText(verr), cancelTicketKeyboard())
		}
		return err
	}

	sess := *req.Session
	sess.State = session.StateAwaitingConfirmation
	sess.Description = req.Text
	if err := b.saveSession(ctx, req, &sess); err != nil {
		return err
	}
	return req.Send(ctx, confirmText(sess.TicketType, sess.Description), confirmTicketKeyboard())
}

func (b *Bot) handleConfirmTicket(ctx context.Context, req *Request) error {
	sess := req.Session
	if sess.State != session.StateAwaitingConfirmation || sess.Description == "" {
		if err := b.clearSession(ctx, req); err != nil {
			return err
		}
		return req.Reply(ctx, msgFormExpired, menuKeyboard(req.User.Role))
	}

	ticket, err := b.tickets.Create(ctx, req.User, sess.TicketType, sess.Description)
	if err != nil {
		var verr *tickets.ValidationError
		switch {
		case errors.As(err, &verr):
			// Limits changed since the description was accepted; ask again
			sess.State = session.StateAwaitingDescription
			sess.Description = ""
			if err := b.saveSession(ctx, req, sess); err != nil {
				return err
			}
			return req.Reply(ctx, validationText(verr), cancelTicketKeyboard())
		case errors.Is(err, tickets.ErrInvalidType):
			if err := b.clearSession(ctx, req); err != nil {
				return err
			}
			return req.Reply(ctx, msgFormExpired, menuKeyboard(req.User.Role))
		default:
			return err
		}
	}

	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	return req.Reply(ctx, createdText(ticket), playerMenuKeyboard())
}

func (b *Bot) handleCancelTicket(ctx context.Context, req *Request) error {
	if err := b.clearSession(ctx, req); err != nil {
		return err
	}
	return req.Reply(ctx, msgTicketAborted, menuKeyboard(req.User.Role))
}

// Own tickets.

func (b *Bot) handleMyTickets(ctx context.Context, req *Request) error {
	page, err := b.tickets.ListForViewer(ctx, asPlayer(req.User), tickets.FilterAll, argPage(req.Args, 0))
	if err != nil {
		return err
	}
	return req.Reply(ctx, playerListText(page), playerListKeyboard(page))
}

func (b *Bot) handleMyView(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args, 0)
	if !ok {
		return req.Alert(ctx, msgUnknownAction)
	}
	return b.showOwnTicket(ctx, req, id)
}

func (b *Bot) handleMyClose(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args, 0)
	if !ok {
		return req.Alert(ctx, msgUnknownAction)
	}

	if _, err := b.tickets.CloseByOwner(ctx, req.User, id); err != nil {
		switch {
		case errors.Is(err, tickets.ErrTicketNotFound):
			return req.Alert(ctx, msgNotFound)
		case errors.Is(err, tickets.ErrAlreadyClosed):
			if alertErr := req.Alert(ctx, msgAlreadyClosed); alertErr != nil {
				return alertErr
			}
			return b.showOwnTicket(ctx, req, id)
		default:
			return err
		}
	}

	if err := req.Toast(ctx, "🔒 Ticket closed"); err != nil {
		return err
	}
	return b.showOwnTicket(ctx, req, id)
}

func (b *Bot) showOwnTicket(ctx context.Context, req *Request, id uint) error {
	details, err := b.tickets.GetForViewer(ctx, asPlayer(req.User), id)
	if errors.Is(err, tickets.ErrTicketNotFound) {
		return req.Alert(ctx, msgNotFound)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, ticketText(details, false), playerTicketKeyboard(&details.Ticket))
}

// asPlayer narrows a viewer to their own tickets. Judges use the player
// screens for tickets they filed themselves.
func asPlayer(u *models.User) *models.User {
	viewer := *u
	viewer.Role = models.RolePlayer
	return &viewer
}
