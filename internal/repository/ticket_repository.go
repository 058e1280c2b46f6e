package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
)

// TicketRepository handles ticket-related database operations.
type TicketRepository struct {
	db *DB
}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// TicketFilter narrows a ticket listing. Zero values mean "any".
// Limit 0 returns every matching row.
type TicketFilter struct {
	Statuses []models.TicketStatus
	UserID   *int64
	JudgeID  *int64
	Limit    int
	Offset   int
}

// Create inserts a new open, unassigned ticket.
func (r *TicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	ticket.Status = models.StatusOpen
	ticket.JudgeID = nil
	ticket.ClosedAt = nil
	ticket.ClosedBy = nil
	if err := r.db.WithContext(ctx).Create(ticket).Error; err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket by ID.
func (r *TicketRepository) GetByID(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).First(&ticket, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ticket by id %d: %w", id, err)
	}
	return &ticket, nil
}

// List returns a page of tickets matching filter, most recent first, and the
// total number of matches.
func (r *TicketRepository) List(ctx context.Context, filter TicketFilter) ([]models.Ticket, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Ticket{})

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.JudgeID != nil {
		query = query.Where("judge_id = ?", *filter.JudgeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	query = query.Order("created_at DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var tickets []models.Ticket
	if err := query.Find(&tickets).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, total, nil
}

// ListByUser retrieves every ticket filed by a user, most recent first.
func (r *TicketRepository) ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	tickets, _, err := r.List(ctx, TicketFilter{UserID: &userID})
	return tickets, err
}

// ListByJudge retrieves in-progress tickets claimed by a judge, most recent first.
func (r *TicketRepository) ListByJudge(ctx context.Context, judgeID int64) ([]models.Ticket, error) {
	tickets, _, err := r.List(ctx, TicketFilter{
		Statuses: []models.TicketStatus{models.StatusInProgress},
		JudgeID:  &judgeID,
	})
	return tickets, err
}

// ListStale retrieves active tickets created at or before cutoff, oldest first.
func (r *TicketRepository) ListStale(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at <= ?", models.ActiveStatuses, cutoff.UTC()).
		Order("created_at ASC, id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tickets: %w", err)
	}
	return tickets, nil
}

// StatusUpdate describes a single lifecycle transition.
type StatusUpdate struct {
	From     []models.TicketStatus // transition applies only from these statuses
	To       models.TicketStatus
	ClosedBy *int64 // recorded when To is closed; nil means closed by the system
	JudgeID  *int64 // assigned judge, left unchanged when nil
}

// UpdateStatus applies a transition as a single conditional statement and
// returns the updated ticket. If the ticket is not in one of update.From it
// is left untouched and ErrStatusConflict is returned.
func (r *TicketRepository) UpdateStatus(ctx context.Context, id uint, update StatusUpdate) (*models.Ticket, error) {
	if len(update.From) == 0 {
		return nil, fmt.Errorf("status update of ticket %d has no source status", id)
	}

	values := map[string]any{"status": update.To}
	if update.To == models.StatusClosed {
		values["closed_at"] = time.Now().UTC()
		values["closed_by"] = update.ClosedBy
	}
	if update.JudgeID != nil {
		values["judge_id"] = *update.JudgeID
	}

	result := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status IN ?", id, update.From).
		Updates(values)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update status of ticket %d: %w", id, result.Error)
	}

	ticket, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return ticket, fmt.Errorf("ticket %d is %s: %w", id, ticket.Status, ErrStatusConflict)
	}
	return ticket, nil
}

// CountByStatus returns the number of tickets in each status.
func (r *TicketRepository) CountByStatus(ctx context.Context) (map[models.TicketStatus]int64, error) {
	var rows []struct {
		Status models.TicketStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets by status: %w", err)
	}

	counts := map[models.TicketStatus]int64{
		models.StatusOpen:       0,
		models.StatusInProgress: 0,
		models.StatusClosed:     0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountClaimedByJudge returns how many tickets each judge has been assigned.
func (r *TicketRepository) CountClaimedByJudge(ctx context.Context) (map[int64]int64, error) {
	return countGroupedBy("judge_id", r.db.WithContext(ctx).Where("judge_id IS NOT NULL"))
}

// CountClosedBy returns how many tickets each user closed. System closes are excluded.
func (r *TicketRepository) CountClosedBy(ctx context.Context) (map[int64]int64, error) {
	return countGroupedBy("closed_by",
		r.db.WithContext(ctx).Where("status = ? AND closed_by IS NOT NULL", models.StatusClosed))
}

func countGroupedBy(column string, scope *gorm.DB) (map[int64]int64, error) {
	var rows []struct {
		UserID int64
		Count  int64
	}
	err := scope.Model(&models.Ticket{}).
		Select(column + " AS user_id, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets by %s: %w", column, err)
	}

	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.UserID] = row.Count
	}
	return out, nil
}
