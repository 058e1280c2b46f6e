package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user on first contact. The very first user becomes admin,
// everyone after that a player. Creating an existing id returns the stored row.
func (r *UserRepository) Create(ctx context.Context, id int64, username *string, firstName string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}

		role := models.RolePlayer
		if count == 0 {
			role = models.RoleAdmin
		}

		user = models.User{ID: id, Username: username, FirstName: firstName, Role: role}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return tx.First(&user, id).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", id, err)
	}
	return &user, nil
}

// GetByID retrieves a user by platform ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by handle, ignoring a leading "@" and case.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("user with empty username: %w", ErrNotFound)
	}

	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user @%s: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// UpdateRole changes a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if result.Error != nil {
		return fmt.Errorf("failed to update role of user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateProfile stores the username and first name last reported by the platform.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, username *string, firstName string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]any{"username": username, "first_name": firstName}).Error
	if err != nil {
		return fmt.Errorf("failed to update profile of user %d: %w", id, err)
	}
	return nil
}

// ListByRole retrieves users with any of the given roles, oldest first.
func (r *UserRepository) ListByRole(ctx context.Context, roles ...models.Role) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Where("role IN ?", roles).Order("created_at ASC, id ASC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	return users, nil
}

// ListStaff retrieves every judge and admin.
func (r *UserRepository) ListStaff(ctx context.Context) ([]models.User, error) {
	return r.ListByRole(ctx, models.RoleJudge, models.RoleAdmin)
}

// GetByIDs retrieves the given users keyed by ID. Unknown IDs are skipped.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	out := make(map[int64]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Count returns the number of known users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
