// Package session stores per-user multi-step conversation state.
package session

import (
	"context"
	"time"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
)

// State is the step a user's conversation is at.
type State string

// Conversation states.
const (
	StateIdle                 State = ""
	StateAwaitingType         State = "awaiting_type"
	StateAwaitingDescription  State = "awaiting_description"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingComment      State = "awaiting_comment"
)

// DefaultTTL is how long an abandoned conversation is remembered.
const DefaultTTL = 24 * time.Hour

// Session is one user's in-flight conversation.
type Session struct {
	State       State             `json:"state"`
	TicketType  models.TicketType `json:"ticket_type,omitempty"`
	Description string            `json:"description,omitempty"`
	TicketID    uint              `json:"ticket_id,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Idle reports whether no conversation is in progress.
func (s *Session) Idle() bool {
	return s == nil || s.State == StateIdle
}

// Store persists sessions keyed by user. Get never returns nil: a user with
// no conversation gets an idle session.
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, userID int64, s *Session) error
	Clear(ctx context.Context, userID int64) error
}
