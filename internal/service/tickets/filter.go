package tickets

import (
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
)

// Filter selects which tickets a judge is looking at.
type Filter string

// Judge filters.
const (
	FilterOpen       Filter = "open"
	FilterInProgress Filter = "in_progress"
	FilterMine       Filter = "mine"
	FilterAll        Filter = "all"
)

// Filters lists every filter in menu order.
var Filters = []Filter{FilterOpen, FilterInProgress, FilterMine, FilterAll}

// Valid reports whether f is a known filter.
func (f Filter) Valid() bool {
	switch f {
	case FilterOpen, FilterInProgress, FilterMine, FilterAll:
		return true
	}
	return false
}

// Label returns the menu title of the filter.
func (f Filter) Label() string {
	switch f {
	case FilterOpen:
		return "🟢 Open"
	case FilterInProgress:
		return "🟡 In progress"
	case FilterMine:
		return "👨‍⚖️ My tickets"
	case FilterAll:
		return "📋 All"
	default:
		return string(f)
	}
}

// query translates the filter for viewer into a repository filter.
// Players always get their own tickets whatever filter they ask for.
func (f Filter) query(viewer *models.User) repository.TicketFilter {
	if !viewer.Role.IsStaff() {
		return repository.TicketFilter{UserID: &viewer.ID}
	}

	switch f {
	case FilterOpen:
		return repository.TicketFilter{Statuses: []models.TicketStatus{models.StatusOpen}}
	case FilterInProgress:
		return repository.TicketFilter{Statuses: []models.TicketStatus{models.StatusInProgress}}
	case FilterMine:
		id := viewer.ID
		return repository.TicketFilter{Statuses: []models.TicketStatus{models.StatusInProgress}, JudgeID: &id}
	default:
		return repository.TicketFilter{}
	}
}
