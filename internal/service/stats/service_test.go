package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// Mock repositories for testing
type mockTicketRepository struct {
	byStatus map[models.TicketStatus]int64
	claimed  map[int64]int64
	closed   map[int64]int64
	err      error
}

func (m *mockTicketRepository) CountByStatus(_ context.Context) (map[models.TicketStatus]int64, error) {
	return m.byStatus, m.err
}

func (m *mockTicketRepository) CountClaimedByJudge(_ context.Context) (map[int64]int64, error) {
	return m.claimed, m.err
}

func (m *mockTicketRepository) CountClosedBy(_ context.Context) (map[int64]int64, error) {
	return m.closed, m.err
}

type mockUserRepository struct {
	staff []models.User
}

func (m *mockUserRepository) ListStaff(_ context.Context) ([]models.User, error) {
	return m.staff, nil
}

func strPtr(s string) *string { return &s }

func newTestService() (*Service, *mockTicketRepository) {
	tickets := &mockTicketRepository{
		byStatus: map[models.TicketStatus]int64{
			models.StatusOpen:       3,
			models.StatusInProgress: 2,
			models.StatusClosed:     7,
		},
		claimed: map[int64]int64{1: 1, 2: 4, 3: 2},
		// 99 is a former judge, now a player
		closed: map[int64]int64{1: 2, 2: 2, 3: 5, 99: 10},
	}
	users := &mockUserRepository{staff: []models.User{
		{ID: 1, Username: strPtr("admin"), Role: models.RoleAdmin},
		{ID: 2, Username: strPtr("judy"), Role: models.RoleJudge},
		{ID: 3, FirstName: "Sam", Role: models.RoleJudge},
		{ID: 4, Username: strPtr("newbie"), Role: models.RoleJudge},
	}}
	return NewServiceWithInterfaces(tickets, users, logger.Nop()), tickets
}

func TestOverview(t *testing.T) {
	svc, _ := newTestService()

	o, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview() failed: %v", err)
	}
	if o.Open != 3 || o.InProgress != 2 || o.Closed != 7 || o.Total != 12 {
		t.Errorf("Unexpected overview: %+v", o)
	}
}

func TestRefreshGauges(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.RefreshGauges(context.Background()); err != nil {
		t.Fatalf("RefreshGauges() failed: %v", err)
	}
	if got := testutil.ToFloat64(metrics.TicketsByStatus.WithLabelValues("closed")); got != 7 {
		t.Errorf("Expected closed gauge 7, got %v", got)
	}
}

func TestLeaderboard_ByClosed(t *testing.T) {
	svc, _ := newTestService()

	entries, err := svc.Leaderboard(context.Background(), MetricClosed, 0)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries (staff only), got %d", len(entries))
	}

	wantOrder := []int64{3, 1, 2, 4}
	for i, id := range wantOrder {
		if entries[i].UserID != id {
			t.Errorf("Rank %d: expected user %d, got %d", i+1, id, entries[i].UserID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("Expected rank %d, got %d", i+1, entries[i].Rank)
		}
	}
	if entries[0].Name != "Sam" {
		t.Errorf("Expected first name fallback, got %q", entries[0].Name)
	}
	if entries[3].Closed != 0 || entries[3].Claimed != 0 {
		t.Errorf("Expected zero counts for new judge, got %+v", entries[3])
	}
}

func TestLeaderboard_ByClaimedWithLimit(t *testing.T) {
	svc, _ := newTestService()

	entries, err := svc.Leaderboard(context.Background(), MetricClaimed, 2)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].UserID != 2 || entries[1].UserID != 3 {
		t.Errorf("Unexpected order: %+v", entries)
	}
}

func TestLeaderboard_RepositoryError(t *testing.T) {
	svc, tickets := newTestService()
	tickets.err = errors.New("db down")

	if _, err := svc.Leaderboard(context.Background(), MetricClosed, 0); err == nil {
		t.Error("Expected error")
	}
	if _, err := svc.Overview(context.Background()); err == nil {
		t.Error("Expected error")
	}
}
