package mocks

import (
	"context"
	"sync"

	"github.com/aimd54/judge-helpdesk-bot/internal/mattermost"
)

// Notification is one message recorded by MockNotifier.
type Notification struct {
	UserID int64
	Text   string
}

// MockNotifier records direct messages instead of sending them.
// Users listed in Fail get the mapped error back.
type MockNotifier struct {
	Fail map[int64]error

	mu   sync.Mutex
	sent []Notification
}

// NewMockNotifier creates an empty notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Fail: make(map[int64]error)}
}

// Notify records the message unless the recipient is configured to fail.
func (m *MockNotifier) Notify(_ context.Context, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.Fail[userID]; ok {
		return err
	}
	m.sent = append(m.sent, Notification{UserID: userID, Text: text})
	return nil
}

// Sent returns every delivered message in order.
func (m *MockNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}

// SentTo returns the texts delivered to one user.
func (m *MockNotifier) SentTo(userID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var texts []string
	for _, n := range m.sent {
		if n.UserID == userID {
			texts = append(texts, n.Text)
		}
	}
	return texts
}

// Reset forgets recorded messages.
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// MockStaffFeed records staff channel posts.
type MockStaffFeed struct {
	Err error

	mu     sync.Mutex
	events []mattermost.TicketEvent
	sweeps [][]uint
}

// SendTicketEvent records ev.
func (m *MockStaffFeed) SendTicketEvent(_ context.Context, ev mattermost.TicketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.Err
}

// SendSweepSummary records the closed ticket ids.
func (m *MockStaffFeed) SendSweepSummary(_ context.Context, _ int, ticketIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ticketIDs) > 0 {
		m.sweeps = append(m.sweeps, ticketIDs)
	}
	return m.Err
}

// Events returns recorded ticket events.
func (m *MockStaffFeed) Events() []mattermost.TicketEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mattermost.TicketEvent(nil), m.events...)
}

// Sweeps returns recorded sweep summaries.
func (m *MockStaffFeed) Sweeps() [][]uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]uint(nil), m.sweeps...)
}
