// Package stats provides ticket counts and judge workload rankings.
package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// Ranking metrics.
const (
	MetricClosed  = "closed"
	MetricClaimed = "claimed"
)

// TicketRepository interface for ticket aggregate queries.
type TicketRepository interface {
	CountByStatus(ctx context.Context) (map[models.TicketStatus]int64, error)
	CountClaimedByJudge(ctx context.Context) (map[int64]int64, error)
	CountClosedBy(ctx context.Context) (map[int64]int64, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	ListStaff(ctx context.Context) ([]models.User, error)
}

// Overview holds ticket counts by status.
type Overview struct {
	Open       int64 `json:"open"`
	InProgress int64 `json:"in_progress"`
	Closed     int64 `json:"closed"`
	Total      int64 `json:"total"`
}

// Entry represents a single judge in the leaderboard.
type Entry struct {
	UserID  int64       `json:"user_id"`
	Name    string      `json:"name"`
	Role    models.Role `json:"role"`
	Claimed int64       `json:"claimed"`
	Closed  int64       `json:"closed"`
	Rank    int         `json:"rank"`
}

// Service computes ticket statistics.
type Service struct {
	ticketRepo TicketRepository
	userRepo   UserRepository
	log        *logger.Logger
}

// NewService creates a new stats service with concrete repository types.
func NewService(ticketRepo *repository.TicketRepository, userRepo *repository.UserRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(ticketRepo, userRepo, log)
}

// NewServiceWithInterfaces creates a new stats service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(ticketRepo TicketRepository, userRepo UserRepository, log *logger.Logger) *Service {
	return &Service{
		ticketRepo: ticketRepo,
		userRepo:   userRepo,
		log:        log,
	}
}

// Overview returns the current ticket counts.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	counts, err := s.ticketRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket counts: %w", err)
	}

	o := &Overview{
		Open:       counts[models.StatusOpen],
		InProgress: counts[models.StatusInProgress],
		Closed:     counts[models.StatusClosed],
	}
	o.Total = o.Open + o.InProgress + o.Closed
	return o, nil
}

// RefreshGauges publishes the current ticket counts to Prometheus.
func (s *Service) RefreshGauges(ctx context.Context) error {
	o, err := s.Overview(ctx)
	if err != nil {
		return err
	}
	metrics.SetTicketsByStatus(string(models.StatusOpen), o.Open)
	metrics.SetTicketsByStatus(string(models.StatusInProgress), o.InProgress)
	metrics.SetTicketsByStatus(string(models.StatusClosed), o.Closed)
	return nil
}

// Leaderboard ranks judges and admins by metric (closed or claimed tickets).
// Staff without any tickets are included with zero counts.
func (s *Service) Leaderboard(ctx context.Context, metric string, limit int) ([]Entry, error) {
	staff, err := s.userRepo.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list judges: %w", err)
	}

	claimed, err := s.ticketRepo.CountClaimedByJudge(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count claimed tickets: %w", err)
	}
	closed, err := s.ticketRepo.CountClosedBy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count closed tickets: %w", err)
	}

	entries := make([]Entry, 0, len(staff))
	for _, u := range staff {
		entries = append(entries, Entry{
			UserID:  u.ID,
			Name:    u.DisplayName(),
			Role:    u.Role,
			Claimed: claimed[u.ID],
			Closed:  closed[u.ID],
		})
	}

	sortLeaderboard(entries, metric)

	for i := range entries {
		entries[i].Rank = i + 1
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

// sortLeaderboard sorts entries by the metric, highest first. Ties keep
// seniority order.
func sortLeaderboard(entries []Entry, metric string) {
	switch metric {
	case MetricClaimed:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Claimed > entries[j].Claimed
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Closed > entries[j].Closed
		})
	}
}
