// Package tickets implements the ticket lifecycle: creation, claiming,
// commenting, closing, listing and the stale ticket sweep.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/internal/mattermost"
	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/notify"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// TicketRepository interface for ticket operations.
type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id uint) (*models.Ticket, error)
	List(ctx context.Context, filter repository.TicketFilter) ([]models.Ticket, int64, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Ticket, error)
	UpdateStatus(ctx context.Context, id uint, update repository.StatusUpdate) (*models.Ticket, error)
}

// CommentRepository interface for comment operations.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByTicket(ctx context.Context, ticketID uint) ([]models.Comment, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
}

// StaffFeed mirrors ticket activity to the staff channel.
type StaffFeed interface {
	SendTicketEvent(ctx context.Context, ev mattermost.TicketEvent) error
	SendSweepSummary(ctx context.Context, days int, ticketIDs []uint) error
}

// Service drives ticket state transitions and the notifications around them.
type Service struct {
	cfg      config.TicketsConfig
	tickets  TicketRepository
	comments CommentRepository
	users    UserRepository
	notifier *notify.Dispatcher
	feed     StaffFeed
	validate *validator.Validate
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new tickets service.
func NewService(
	cfg *config.TicketsConfig,
	ticketRepo *repository.TicketRepository,
	commentRepo *repository.CommentRepository,
	userRepo *repository.UserRepository,
	sender notify.Sender,
	feed StaffFeed,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(cfg, ticketRepo, commentRepo, userRepo, sender, feed, log)
}

// NewServiceWithInterfaces creates a new tickets service with interface dependencies (useful for testing).
// feed may be nil.
func NewServiceWithInterfaces(
	cfg *config.TicketsConfig,
	ticketRepo TicketRepository,
	commentRepo CommentRepository,
	userRepo UserRepository,
	sender notify.Sender,
	feed StaffFeed,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:      *cfg,
		tickets:  ticketRepo,
		comments: commentRepo,
		users:    userRepo,
		notifier: notify.NewDispatcher(sender, log),
		feed:     feed,
		validate: validator.New(),
		now:      time.Now,
		log:      log,
	}
}

// Limits returns the accepted description and comment lengths.
func (s *Service) Limits() (descMin, descMax, commentMin, commentMax int) {
	return config.MinDescriptionLength, s.cfg.MaxDescriptionLength, config.MinCommentLength, s.cfg.MaxCommentLength
}

// ValidateDescription checks a ticket description without persisting anything.
func (s *Service) ValidateDescription(description string) error {
	return s.checkLength("description", strings.TrimSpace(description), config.MinDescriptionLength, s.cfg.MaxDescriptionLength)
}

// ValidateComment checks comment text without persisting anything.
func (s *Service) ValidateComment(text string) error {
	return s.checkLength("comment", strings.TrimSpace(text), config.MinCommentLength, s.cfg.MaxCommentLength)
}

// Create files a new open ticket for owner and notifies every judge.
func (s *Service) Create(ctx context.Context, owner *models.User, ticketType models.TicketType, description string) (*models.Ticket, error) {
	if !ticketType.Valid() {
		metrics.RecordValidationFailure("ticket_type")
		return nil, fmt.Errorf("%q: %w", ticketType, ErrInvalidType)
	}

	description = strings.TrimSpace(description)
	if err := s.ValidateDescription(description); err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		UserID:      owner.ID,
		TicketType:  ticketType,
		Description: description,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	metrics.RecordTicketCreated(string(ticketType))
	s.log.Info().
		Uint("ticket_id", ticket.ID).
		Int64("user_id", owner.ID).
		Str("type", string(ticketType)).
		Msg("Ticket created")

	staff := s.staff(ctx)
	delivered := s.notifier.Broadcast(ctx, eventTicketCreated, staff, newTicketMessage(ticket, owner), owner.ID)
	s.log.Debug().
		Uint("ticket_id", ticket.ID).
		Int("delivered", delivered).
		Int("staff", len(staff)).
		Msg("Notified judges about new ticket")

	s.mirror(ctx, mattermost.TicketEvent{
		Kind:        mattermost.EventCreated,
		TicketID:    ticket.ID,
		TicketType:  ticketType.Label(),
		Owner:       owner.DisplayName(),
		Description: description,
	})

	return ticket, nil
}

// Claim assigns an open ticket to judge and moves it to in progress.
func (s *Service) Claim(ctx context.Context, judge *models.User, id uint) (*models.Ticket, error) {
	ticket, err := s.tickets.UpdateStatus(ctx, id, repository.StatusUpdate{
		From:    []models.TicketStatus{models.StatusOpen},
		To:      models.StatusInProgress,
		JudgeID: &judge.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("ticket %d: %w", id, ErrTicketNotFound)
		case errors.Is(err, repository.ErrStatusConflict):
			metrics.RecordTransitionConflict("claim")
			return nil, fmt.Errorf("ticket %d: %w", id, ErrAlreadyClaimed)
		default:
			return nil, err
		}
	}

	metrics.RecordTicketClaimed()
	s.log.Info().
		Uint("ticket_id", id).
		Int64("judge_id", judge.ID).
		Msg("Ticket claimed")

	s.systemComment(ctx, ticket.ID, judge.ID, claimComment(judge))
	s.notifier.Send(ctx, eventTicketClaimed, ticket.UserID, claimedMessage(ticket, judge))
	s.mirrorTransition(ctx, mattermost.EventClaimed, ticket, judge)

	return ticket, nil
}

// AddComment appends a judge comment and notifies the ticket owner.
// Closed tickets accept comments too.
func (s *Service) AddComment(ctx context.Context, author *models.User, id uint, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if err := s.ValidateComment(text); err != nil {
		return nil, err
	}

	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{TicketID: ticket.ID, JudgeID: author.ID, Text: text}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	metrics.RecordCommentAdded()
	s.log.Info().
		Uint("ticket_id", ticket.ID).
		Int64("author_id", author.ID).
		Msg("Comment added")

	if ticket.UserID != author.ID {
		s.notifier.Send(ctx, eventCommentAdded, ticket.UserID, commentMessage(ticket.ID, author, text))
	}

	return comment, nil
}

// CloseByJudge closes an open or in progress ticket on behalf of a judge.
func (s *Service) CloseByJudge(ctx context.Context, judge *models.User, id uint) (*models.Ticket, error) {
	ticket, err := s.close(ctx, id, &judge.ID)
	if err != nil {
		return nil, err
	}

	metrics.RecordTicketClosed("judge", openDuration(ticket))
	s.log.Info().
		Uint("ticket_id", id).
		Int64("judge_id", judge.ID).
		Msg("Ticket closed by judge")

	s.systemComment(ctx, ticket.ID, judge.ID, judgeCloseComment(judge))
	if ticket.UserID != judge.ID {
		s.notifier.Send(ctx, eventClosedByJudge, ticket.UserID, closedByJudgeMessage(ticket, judge))
	}
	s.mirrorTransition(ctx, mattermost.EventClosed, ticket, judge)

	return ticket, nil
}

// CloseByOwner closes a ticket on behalf of the player who filed it and
// notifies every judge. Other users' tickets are reported as not found.
func (s *Service) CloseByOwner(ctx context.Context, owner *models.User, id uint) (*models.Ticket, error) {
	current, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != owner.ID {
		return nil, fmt.Errorf("ticket %d is not owned by %d: %w", id, owner.ID, ErrTicketNotFound)
	}

	ticket, err := s.close(ctx, id, &owner.ID)
	if err != nil {
		return nil, err
	}

	metrics.RecordTicketClosed("owner", openDuration(ticket))
	s.log.Info().
		Uint("ticket_id", id).
		Int64("user_id", owner.ID).
		Msg("Ticket closed by owner")

	s.notifier.Broadcast(ctx, eventClosedByOwner, s.staff(ctx), closedByOwnerMessage(ticket, owner), owner.ID)
	s.mirrorTransition(ctx, mattermost.EventClosed, ticket, owner)

	return ticket, nil
}

// Page is one page of a ticket listing. Page is zero based.
type Page struct {
	Tickets    []models.Ticket
	Filter     Filter
	Page       int
	TotalPages int
	Total      int64
}

// HasPrev reports whether an earlier page exists.
func (p *Page) HasPrev() bool { return p.Page > 0 }

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool { return p.Page < p.TotalPages-1 }

// ListForViewer returns one page of the tickets viewer may see, most recent
// first. Players only ever see their own tickets. The page index is clamped
// to the available range.
func (s *Service) ListForViewer(ctx context.Context, viewer *models.User, filter Filter, page int) (*Page, error) {
	if viewer.Role.IsStaff() && !filter.Valid() {
		return nil, fmt.Errorf("%q: %w", filter, ErrInvalidFilter)
	}
	return s.list(ctx, filter.query(viewer), filter, page, s.cfg.PageSize)
}

// ListByStatus returns one page of tickets regardless of viewer. An empty
// status lists everything.
func (s *Service) ListByStatus(ctx context.Context, status models.TicketStatus, page, pageSize int) (*Page, error) {
	query := repository.TicketFilter{}
	filter := FilterAll
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("status %q: %w", status, ErrInvalidFilter)
		}
		query.Statuses = []models.TicketStatus{status}
		filter = Filter(status)
	}
	if pageSize < 1 {
		pageSize = s.cfg.PageSize
	}
	return s.list(ctx, query, filter, page, pageSize)
}

func (s *Service) list(ctx context.Context, query repository.TicketFilter, filter Filter, page, size int) (*Page, error) {
	if page < 0 {
		page = 0
	}
	query.Limit = size
	query.Offset = page * size

	tickets, total, err := s.tickets.List(ctx, query)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages-1 {
		page = totalPages - 1
		query.Offset = page * size
		if tickets, total, err = s.tickets.List(ctx, query); err != nil {
			return nil, err
		}
	}

	return &Page{
		Tickets:    tickets,
		Filter:     filter,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

// CommentView is a comment with its author's name resolved.
type CommentView struct {
	models.Comment
	Author string
}

// Details is everything shown on a ticket card.
type Details struct {
	Ticket   models.Ticket
	Owner    *models.User
	Judge    *models.User
	ClosedBy *models.User // nil on an open ticket or a system close
	Comments []CommentView
}

// ClosedBySystem reports a ticket closed by the stale sweep.
func (d *Details) ClosedBySystem() bool {
	return d.Ticket.IsClosed() && d.Ticket.ClosedBy == nil
}

// GetForViewer loads a ticket card. Players can only open their own tickets.
func (s *Service) GetForViewer(ctx context.Context, viewer *models.User, id uint) (*Details, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.Role.IsStaff() && ticket.UserID != viewer.ID {
		return nil, fmt.Errorf("ticket %d is not owned by %d: %w", id, viewer.ID, ErrTicketNotFound)
	}
	return s.details(ctx, ticket)
}

// GetDetails loads a ticket card without any viewer restriction.
func (s *Service) GetDetails(ctx context.Context, id uint) (*Details, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, ticket)
}

func (s *Service) details(ctx context.Context, ticket *models.Ticket) (*Details, error) {
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	ids := []int64{ticket.UserID}
	if ticket.JudgeID != nil {
		ids = append(ids, *ticket.JudgeID)
	}
	if ticket.ClosedBy != nil {
		ids = append(ids, *ticket.ClosedBy)
	}
	for _, c := range comments {
		ids = append(ids, c.JudgeID)
	}

	people, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	person := func(id *int64) *models.User {
		if id == nil {
			return nil
		}
		if u, ok := people[*id]; ok {
			return &u
		}
		return nil
	}

	details := &Details{
		Ticket:   *ticket,
		Owner:    person(&ticket.UserID),
		Judge:    person(ticket.JudgeID),
		ClosedBy: person(ticket.ClosedBy),
		Comments: make([]CommentView, 0, len(comments)),
	}
	for _, c := range comments {
		author := "Unknown"
		if u, ok := people[c.JudgeID]; ok {
			author = u.FirstName
		}
		details.Comments = append(details.Comments, CommentView{Comment: c, Author: author})
	}

	return details, nil
}

// SweepResult summarizes one stale ticket sweep.
type SweepResult struct {
	Closed []uint
	Failed int
}

// AutoCloseStale closes every open or in progress ticket older than the
// configured number of days. A ticket that fails is logged and skipped.
func (s *Service) AutoCloseStale(ctx context.Context) (*SweepResult, error) {
	days := s.cfg.AutoCloseDays
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	stale, err := s.tickets.ListStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	if len(stale) == 0 {
		return result, nil
	}

	staff := s.staff(ctx)
	for i := range stale {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		ticket, err := s.tickets.UpdateStatus(ctx, stale[i].ID, repository.StatusUpdate{
			From: models.ActiveStatuses,
			To:   models.StatusClosed,
		})
		if errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrNotFound) {
			// Closed by someone else since the listing
			continue
		}
		if err != nil {
			result.Failed++
			s.log.Error().Err(err).Uint("ticket_id", stale[i].ID).Msg("Failed to auto-close ticket")
			continue
		}

		result.Closed = append(result.Closed, ticket.ID)
		metrics.RecordTicketClosed("system", openDuration(ticket))

		s.systemComment(ctx, ticket.ID, ticket.UserID, autoCloseComment(days))
		s.notifier.Send(ctx, eventAutoClosedOwner, ticket.UserID, autoClosedOwnerMessage(ticket, days))
		s.notifier.Broadcast(ctx, eventAutoClosedStaff, staff, autoClosedStaffMessage(ticket, days), ticket.UserID)
		s.mirrorTransition(ctx, mattermost.EventAutoClosed, ticket, nil)

		s.log.Info().
			Uint("ticket_id", ticket.ID).
			Int("days", days).
			Msg("Ticket auto-closed")
	}

	metrics.RecordTicketsAutoClosed(len(result.Closed))
	if s.feed != nil {
		if err := s.feed.SendSweepSummary(ctx, days, result.Closed); err != nil {
			s.log.Warn().Err(err).Msg("Failed to post sweep summary")
		}
	}

	return result, nil
}

func (s *Service) close(ctx context.Context, id uint, closedBy *int64) (*models.Ticket, error) {
	ticket, err := s.tickets.UpdateStatus(ctx, id, repository.StatusUpdate{
		From:     models.ActiveStatuses,
		To:       models.StatusClosed,
		ClosedBy: closedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("ticket %d: %w", id, ErrTicketNotFound)
		case errors.Is(err, repository.ErrStatusConflict):
			metrics.RecordTransitionConflict("close")
			return nil, fmt.Errorf("ticket %d: %w", id, ErrAlreadyClosed)
		default:
			return nil, err
		}
	}
	return ticket, nil
}

func (s *Service) getTicket(ctx context.Context, id uint) (*models.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("ticket %d: %w", id, ErrTicketNotFound)
	}
	return ticket, err
}

func (s *Service) checkLength(field, text string, min, max int) error {
	if err := s.validate.Var(text, fmt.Sprintf("min=%d,max=%d", min, max)); err != nil {
		metrics.RecordValidationFailure(field)
		return &ValidationError{Field: field, Min: min, Max: max, Actual: utf8.RuneCountInString(text)}
	}
	return nil
}

// systemComment records an automatic note. The transition it describes is
// already committed, so a failure here is only logged.
func (s *Service) systemComment(ctx context.Context, ticketID uint, authorID int64, text string) {
	if err := s.comments.Create(ctx, &models.Comment{TicketID: ticketID, JudgeID: authorID, Text: text}); err != nil {
		s.log.Error().Err(err).Uint("ticket_id", ticketID).Msg("Failed to add system comment")
	}
}

func (s *Service) staff(ctx context.Context) []models.User {
	staff, err := s.users.ListStaff(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list judges for notification")
		return nil
	}
	return staff
}

func openDuration(t *models.Ticket) float64 {
	if t.ClosedAt == nil {
		return 0
	}
	return t.ClosedAt.Sub(t.CreatedAt).Seconds()
}

func (s *Service) mirrorTransition(ctx context.Context, kind string, t *models.Ticket, actor *models.User) {
	if s.feed == nil {
		return
	}
	ev := mattermost.TicketEvent{
		Kind:       kind,
		TicketID:   t.ID,
		TicketType: t.TicketType.Label(),
		Owner:      fmt.Sprintf("#%d", t.UserID),
	}
	if owner, err := s.users.GetByID(ctx, t.UserID); err == nil {
		ev.Owner = owner.DisplayName()
	}
	if actor != nil {
		ev.Actor = actor.DisplayName()
	}
	s.mirror(ctx, ev)
}

func (s *Service) mirror(ctx context.Context, ev mattermost.TicketEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.SendTicketEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Uint("ticket_id", ev.TicketID).Str("event", ev.Kind).Msg("Failed to mirror ticket event")
	}
}
