package tickets

import (
	"fmt"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

// Notification event names, also used as metric labels.
const (
	eventTicketCreated   = "ticket_created"
	eventTicketClaimed   = "ticket_claimed"
	eventCommentAdded    = "comment_added"
	eventClosedByJudge   = "closed_by_judge"
	eventClosedByOwner   = "closed_by_owner"
	eventAutoClosedOwner = "auto_closed_owner"
	eventAutoClosedStaff = "auto_closed_staff"
)

func newTicketMessage(t *models.Ticket, owner *models.User) string {
	return fmt.Sprintf("🔔 <b>New ticket #%d</b>\n\n👤 From: %s\n📌 Type: %s\n📝 Description: %s",
		t.ID,
		telegram.EscapeHTML(contactName(owner)),
		t.TicketType.Label(),
		telegram.EscapeHTML(t.Description))
}

func claimedMessage(t *models.Ticket, judge *models.User) string {
	return fmt.Sprintf("🟡 Your ticket #%d has been taken into work by judge %s",
		t.ID, telegram.EscapeHTML(judge.FirstName))
}

func commentMessage(ticketID uint, author *models.User, text string) string {
	return fmt.Sprintf("💬 New comment on your ticket #%d\n\nJudge %s: %s",
		ticketID, telegram.EscapeHTML(author.FirstName), telegram.EscapeHTML(text))
}

func closedByJudgeMessage(t *models.Ticket, judge *models.User) string {
	return fmt.Sprintf("✅ Your ticket #%d has been closed by judge %s",
		t.ID, telegram.EscapeHTML(judge.FirstName))
}

func closedByOwnerMessage(t *models.Ticket, owner *models.User) string {
	return fmt.Sprintf("🔒 Ticket #%d was closed by player %s",
		t.ID, telegram.EscapeHTML(owner.FirstName))
}

func autoClosedOwnerMessage(t *models.Ticket, days int) string {
	return fmt.Sprintf("⏰ Your ticket #%d was closed automatically: no resolution within %d days.\n\n"+
		"If the problem is still relevant, please create a new ticket.", t.ID, days)
}

func autoClosedStaffMessage(t *models.Ticket, days int) string {
	return fmt.Sprintf("⏰ Ticket #%d was closed automatically (older than %d days)", t.ID, days)
}

// System comment texts.

func claimComment(judge *models.User) string {
	return "Taken into work by judge " + judge.FirstName
}

func judgeCloseComment(judge *models.User) string {
	return "Closed by judge " + judge.FirstName
}

func autoCloseComment(days int) string {
	return fmt.Sprintf("🤖 Automatically closed after %d days of inactivity", days)
}

// contactName renders "First (@handle)" so judges can reach the player directly.
func contactName(u *models.User) string {
	if u == nil {
		return "Unknown"
	}
	if u.Username != nil && *u.Username != "" {
		return fmt.Sprintf("%s (@%s)", u.FirstName, *u.Username)
	}
	return u.FirstName + " (no username)"
}
