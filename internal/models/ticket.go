package models

import (
	"time"
)

// TicketType classifies what the player needs.
type TicketType string

// Ticket types.
const (
	TicketTypeMatchReschedule   TicketType = "match_reschedule"
	TicketTypeOpponentComplaint TicketType = "opponent_complaint"
	TicketTypeHelpNeeded        TicketType = "help_needed"
)

// TicketTypes lists every type in menu order.
var TicketTypes = []TicketType{
	TicketTypeMatchReschedule,
	TicketTypeOpponentComplaint,
	TicketTypeHelpNeeded,
}

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	for _, known := range TicketTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns the human readable name.
func (t TicketType) Label() string {
	switch t {
	case TicketTypeMatchReschedule:
		return "📅 Match reschedule"
	case TicketTypeOpponentComplaint:
		return "⚠️ Opponent complaint"
	case TicketTypeHelpNeeded:
		return "❓ Help needed"
	default:
		return string(t)
	}
}

// TicketStatus is a ticket's lifecycle state. It only ever moves forward.
type TicketStatus string

// Ticket statuses.
const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusClosed     TicketStatus = "closed"
)

// ActiveStatuses are the statuses a ticket can still be closed from.
var ActiveStatuses = []TicketStatus{StatusOpen, StatusInProgress}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusClosed
}

// Label returns the human readable name.
func (s TicketStatus) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In progress"
	case StatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

// Emoji returns the list marker for the status.
func (s TicketStatus) Emoji() string {
	switch s {
	case StatusOpen:
		return "🟢"
	case StatusInProgress:
		return "🟡"
	case StatusClosed:
		return "⚫"
	default:
		return "⚪"
	}
}

// Ticket represents a player's request to the judges.
// ClosedAt is set exactly when Status is closed; a nil ClosedBy on a closed
// ticket means the system closed it.
type Ticket struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	UserID      int64        `gorm:"not null;index" json:"user_id"`
	TicketType  TicketType   `gorm:"size:50;not null" json:"ticket_type"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Status      TicketStatus `gorm:"size:20;not null;default:open;index" json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
	ClosedBy    *int64       `json:"closed_by,omitempty"`
	JudgeID     *int64       `gorm:"index" json:"judge_id,omitempty"`
}

// TableName specifies the table name for Ticket model.
func (Ticket) TableName() string {
	return "tickets"
}

// IsClosed reports whether the ticket reached its terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == StatusClosed
}

// Comment is an append-only note on a ticket. JudgeID is the author.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TicketID  uint      `gorm:"not null;index" json:"ticket_id"`
	JudgeID   int64     `gorm:"not null" json:"judge_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Comment model.
func (Comment) TableName() string {
	return "comments"
}
