package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

// Telegram rejects messages longer than 4096 characters after entity parsing.
const maxMessageRunes = 4000

const timeLayout = "02.01.2006 15:04"

const (
	msgRateLimited    = "⏳ Too many requests. Please wait a minute and try again."
	msgAccessDenied   = "⛔ You don't have access to this action."
	msgGenericError   = "⚠️ Something went wrong. Please try again later."
	msgUnknownAction  = "This button is no longer valid. Use /start to open the menu."
	msgNotFound       = "❌ Ticket not found."
	msgAlreadyTaken   = "This ticket has already been taken or closed."
	msgAlreadyClosed  = "This ticket is already closed."
	msgFormExpired    = "This form has expired. Please start again."
	msgCancelled      = "❌ Cancelled."
	msgTicketTypes    = "📌 <b>Choose the ticket type:</b>"
	msgTicketAborted  = "❌ Ticket creation cancelled."
	msgCommentAborted = "❌ Comment cancelled."
	msgUnknownCommand = "Unknown command. Use /help to see what I can do."
)

func welcomeText(u *models.User) string {
	name := telegram.EscapeHTML(u.FirstName)
	switch u.Role {
	case models.RoleAdmin:
		return fmt.Sprintf("👋 Hello, %s!\n\nYou are an <b>administrator</b>. Choose which tickets to look at:", name)
	case models.RoleJudge:
		return fmt.Sprintf("👋 Hello, %s!\n\nYou are a <b>judge</b>. Choose which tickets to look at:", name)
	default:
		return fmt.Sprintf("👋 Hello, %s!\n\nThis bot connects you with the tournament judges. "+
			"Create a ticket and a judge will pick it up.", name)
	}
}

func menuText(role models.Role) string {
	if role.IsStaff() {
		return "👨‍⚖️ <b>Judge panel</b>\n\nChoose which tickets to look at:"
	}
	return "🏠 <b>Main menu</b>"
}

func helpText(role models.Role) string {
	var b strings.Builder
	b.WriteString("ℹ️ <b>Help</b>\n\n")
	b.WriteString("/start - main menu\n")
	b.WriteString("/help - this message\n")
	b.WriteString("/cancel - cancel the current action\n")
	if role.IsStaff() {
		b.WriteString("\nOpen a ticket from the judge panel to take it, comment on it or close it.\n")
	} else {
		b.WriteString("\nUse <b>Create ticket</b> to contact the judges and <b>My tickets</b> to follow up.\n")
	}
	if role == models.RoleAdmin {
		b.WriteString("\n<b>Administration</b>\n")
		b.WriteString("/add_judge @username - make a user a judge\n")
		b.WriteString("/remove_judge @username - revoke the judge role\n")
		b.WriteString("/list_judges - list judges and administrators\n")
	}
	return b.String()
}

func strayTextHint(state session.State) string {
	switch state {
	case session.StateAwaitingType:
		return "Please choose the ticket type using the buttons above, or /cancel."
	case session.StateAwaitingConfirmation:
		return "Please submit or cancel the ticket using the buttons above."
	default:
		return "Use /start to open the menu."
	}
}

func descriptionPrompt(t models.TicketType, min, max int) string {
	return fmt.Sprintf("📌 Type: %s\n\n📝 Describe your problem in one message (%d to %d characters).",
		t.Label(), min, max)
}

func confirmText(t models.TicketType, description string) string {
	return fmt.Sprintf("📋 <b>Check your ticket</b>\n\n📌 Type: %s\n📝 Description:\n%s\n\nSubmit it to the judges?",
		t.Label(), telegram.EscapeHTML(description))
}

func createdText(t *models.Ticket) string {
	return fmt.Sprintf("✅ Ticket <b>#%d</b> created. A judge will take it soon, you will get a message when that happens.", t.ID)
}

func commentPrompt(id uint, min, max int) string {
	return fmt.Sprintf("💬 Enter your comment for ticket #%d (%d to %d characters):", id, min, max)
}

func validationText(err *tickets.ValidationError) string {
	subject := "Description"
	if err.Field == "comment" {
		subject = "Comment"
	}
	if err.TooLong() {
		return fmt.Sprintf("❌ %s is too long: %d characters, the maximum is %d. Please shorten it and send again.",
			subject, err.Actual, err.Max)
	}
	return fmt.Sprintf("❌ %s is too short: %d characters, the minimum is %d. Please add details and send again.",
		subject, err.Actual, err.Min)
}

func playerListText(p *tickets.Page) string {
	if p.Total == 0 {
		return "📋 You have no tickets yet."
	}
	return fmt.Sprintf("📋 <b>Your tickets</b> (%d)\n\nPick a ticket to see the details:", p.Total)
}

func judgeListText(p *tickets.Page) string {
	if p.Total == 0 {
		return fmt.Sprintf("<b>%s</b>\n\nNo tickets here.", p.Filter.Label())
	}
	return fmt.Sprintf("<b>%s</b> (%d)\n\nPick a ticket to see the details:", p.Filter.Label(), p.Total)
}

// ticketText renders a ticket card. Judges additionally see how to reach the player.
func ticketText(d *tickets.Details, forStaff bool) string {
	t := d.Ticket
	var b strings.Builder

	fmt.Fprintf(&b, "<b>Ticket #%d</b>\n\n", t.ID)
	fmt.Fprintf(&b, "📌 Type: %s\n", t.TicketType.Label())
	fmt.Fprintf(&b, "📊 Status: %s %s\n", t.Status.Emoji(), t.Status.Label())
	if forStaff {
		fmt.Fprintf(&b, "👤 Player: %s\n", telegram.EscapeHTML(contact(d.Owner)))
	}
	if d.Judge != nil {
		fmt.Fprintf(&b, "👨‍⚖️ Judge: %s\n", telegram.EscapeHTML(d.Judge.FirstName))
	}
	fmt.Fprintf(&b, "📅 Created: %s\n", formatTime(t.CreatedAt))
	if t.ClosedAt != nil {
		closer := "System"
		if d.ClosedBy != nil {
			closer = telegram.EscapeHTML(d.ClosedBy.FirstName)
		}
		fmt.Fprintf(&b, "🔒 Closed: %s by %s\n", formatTime(*t.ClosedAt), closer)
	}

	fmt.Fprintf(&b, "\n📝 Description:\n%s\n", telegram.EscapeHTML(t.Description))

	if len(d.Comments) > 0 {
		fmt.Fprintf(&b, "\n💬 <b>Comments (%d):</b>\n", len(d.Comments))
		for _, c := range d.Comments {
			fmt.Fprintf(&b, "\n<b>%s</b> (%s):\n%s\n",
				telegram.EscapeHTML(c.Author), formatTime(c.CreatedAt), telegram.EscapeHTML(c.Text))
		}
	}

	return b.String()
}

func judgesText(judges []models.User) string {
	if len(judges) == 0 {
		return "No judges yet. Add one with /add_judge @username."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👨‍⚖️ <b>Judges</b> (%d)\n\n", len(judges))
	for _, j := range judges {
		role := "judge"
		if j.Role == models.RoleAdmin {
			role = "admin"
		}
		fmt.Fprintf(&b, "• %s - %s\n", telegram.EscapeHTML(contact(&j)), role)
	}
	return b.String()
}

func contact(u *models.User) string {
	if u == nil {
		return "Unknown"
	}
	if u.Username != nil && *u.Username != "" {
		return fmt.Sprintf("%s (@%s)", u.FirstName, *u.Username)
	}
	return fmt.Sprintf("%s (id %d)", u.FirstName, u.ID)
}

// truncateHTML shortens an HTML message to limit characters. It prefers to
// cut at a line break and never cuts inside an escaped entity.
func truncateHTML(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	head := s[:runeByteOffset(s, limit-1)]
	if i := strings.LastIndex(head, "\n"); i > len(head)/2 {
		head = head[:i]
	} else if amp := strings.LastIndex(head, "&"); amp > strings.LastIndex(head, ";") {
		head = head[:amp]
	}
	return head + "…"
}

// runeByteOffset returns the byte offset of the n-th rune in s.
func runeByteOffset(s string, n int) int {
	offset := 0
	for i := 0; i < n && offset < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
	}
	return offset
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
