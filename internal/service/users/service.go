// Package users resolves chat identities to stored users and manages judge roles.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/notify"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// Role administration errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrSelfDemotion = errors.New("cannot remove your own judge role")
	ErrNotJudge     = errors.New("user is not a judge")
)

// Identity is what the chat platform tells us about the sender of an event.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
}

// UserRepository interface for user operations.
type UserRepository interface {
	Create(ctx context.Context, id int64, username *string, firstName string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateRole(ctx context.Context, id int64, role models.Role) error
	UpdateProfile(ctx context.Context, id int64, username *string, firstName string) error
	ListStaff(ctx context.Context) ([]models.User, error)
}

// Service handles identity resolution and judge role changes.
type Service struct {
	repo     UserRepository
	notifier *notify.Dispatcher
	log      *logger.Logger
}

// NewService creates a new users service.
func NewService(repo *repository.UserRepository, sender notify.Sender, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, sender, log)
}

// NewServiceWithInterfaces creates a new users service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo UserRepository, sender notify.Sender, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notify.NewDispatcher(sender, log),
		log:      log,
	}
}

// Resolve returns the stored user for id, creating it on first contact.
// Username and first name are refreshed when the platform reports new values.
func (s *Service) Resolve(ctx context.Context, id Identity) (*models.User, error) {
	username := optional(id.Username)

	user, err := s.repo.GetByID(ctx, id.ID)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.repo.Create(ctx, id.ID, username, id.FirstName)
		if err != nil {
			return nil, err
		}
		s.log.Info().
			Int64("user_id", user.ID).
			Str("role", string(user.Role)).
			Msg("Registered new user")
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	if !sameString(user.Username, username) || user.FirstName != id.FirstName {
		if err := s.repo.UpdateProfile(ctx, user.ID, username, id.FirstName); err != nil {
			// Stale profile data is harmless; keep serving the request
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to refresh user profile")
		} else {
			user.Username = username
			user.FirstName = id.FirstName
		}
	}

	return user, nil
}

// Get returns a stored user.
func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return user, err
}

// AddJudge promotes the user known by handle to judge. It reports false
// without changing anything when the user is already a judge or admin.
func (s *Service) AddJudge(ctx context.Context, actor *models.User, handle string) (*models.User, bool, error) {
	target, err := s.lookup(ctx, handle)
	if err != nil {
		return nil, false, err
	}

	if target.Role.IsStaff() {
		return target, false, nil
	}

	if err := s.repo.UpdateRole(ctx, target.ID, models.RoleJudge); err != nil {
		return nil, false, err
	}
	target.Role = models.RoleJudge

	s.log.Info().
		Int64("admin_id", actor.ID).
		Int64("user_id", target.ID).
		Msg("Promoted user to judge")

	s.notifier.Send(ctx, "judge_added", target.ID,
		"🎉 You have been appointed as a tournament judge!\n\nUse /start to open the judge panel.")

	return target, true, nil
}

// RemoveJudge demotes a judge back to player. Admins cannot demote
// themselves and only judges can be demoted.
func (s *Service) RemoveJudge(ctx context.Context, actor *models.User, handle string) (*models.User, error) {
	target, err := s.lookup(ctx, handle)
	if err != nil {
		return nil, err
	}

	if target.ID == actor.ID {
		return nil, ErrSelfDemotion
	}
	if target.Role != models.RoleJudge {
		return nil, fmt.Errorf("%s is %s: %w", target.DisplayName(), target.Role, ErrNotJudge)
	}

	if err := s.repo.UpdateRole(ctx, target.ID, models.RolePlayer); err != nil {
		return nil, err
	}
	target.Role = models.RolePlayer

	s.log.Info().
		Int64("admin_id", actor.ID).
		Int64("user_id", target.ID).
		Msg("Removed judge role")

	s.notifier.Send(ctx, "judge_removed", target.ID, "ℹ️ Your judge role has been removed.")

	return target, nil
}

// ListJudges returns every judge and admin, longest serving first.
func (s *Service) ListJudges(ctx context.Context) ([]models.User, error) {
	return s.repo.ListStaff(ctx)
}

func (s *Service) lookup(ctx context.Context, handle string) (*models.User, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, fmt.Errorf("empty username: %w", ErrUserNotFound)
	}

	user, err := s.repo.GetByUsername(ctx, handle)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("@%s: %w", handle, ErrUserNotFound)
	}
	return user, err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
