package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
)

// CommentRepository handles ticket comment database operations.
// Comments are append-only.
type CommentRepository struct {
	db *DB
}

// NewCommentRepository creates a new comment repository.
func NewCommentRepository(db *DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create appends a comment to a ticket.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment on ticket %d: %w", comment.TicketID, err)
	}
	return nil
}

// GetByID retrieves a comment by ID.
func (r *CommentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("comment %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get comment by id %d: %w", id, err)
	}
	return &comment, nil
}

// ListByTicket retrieves a ticket's comments in the order they were written.
func (r *CommentRepository) ListByTicket(ctx context.Context, ticketID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of ticket %d: %w", ticketID, err)
	}
	return comments, nil
}

// CountByTicket returns the number of comments on a ticket.
func (r *CommentRepository) CountByTicket(ctx context.Context, ticketID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Comment{}).Where("ticket_id = ?", ticketID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count comments of ticket %d: %w", ticketID, err)
	}
	return count, nil
}
