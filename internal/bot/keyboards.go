package bot

import (
	"fmt"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
)

var (
	btn = telegram.NewInlineKeyboardButton
	row = telegram.NewInlineKeyboardRow
)

func playerMenuKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(
		row(btn("📝 Create ticket", callback(ActionCreateTicket))),
		row(btn("📋 My tickets", callback(ActionMyTickets))),
	)
}

func judgeMenuKeyboard() *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(tickets.Filters))
	for _, f := range tickets.Filters {
		rows = append(rows, row(btn(f.Label(), callback(ActionJudgeFilter, f))))
	}
	return telegram.NewInlineKeyboard(rows...)
}

func menuKeyboard(role models.Role) *telegram.InlineKeyboardMarkup {
	if role.IsStaff() {
		return judgeMenuKeyboard()
	}
	return playerMenuKeyboard()
}

func ticketTypeKeyboard() *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(models.TicketTypes)+1)
	for _, t := range models.TicketTypes {
		rows = append(rows, row(btn(t.Label(), callback(ActionTicketType, t))))
	}
	rows = append(rows, row(btn("❌ Cancel", callback(ActionCancelTicket))))
	return telegram.NewInlineKeyboard(rows...)
}

func cancelTicketKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(row(btn("❌ Cancel", callback(ActionCancelTicket))))
}

func confirmTicketKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(row(
		btn("✅ Submit", callback(ActionConfirmTicket)),
		btn("❌ Cancel", callback(ActionCancelTicket)),
	))
}

func cancelCommentKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(row(btn("❌ Cancel", callback(ActionCancelComment))))
}

func backKeyboard(target string) *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(row(btn("⬅️ Back", target)))
}

// listKeyboard renders one button per ticket followed by page navigation.
// view builds the button data for a ticket, page the data for a page index.
func listKeyboard(p *tickets.Page, view func(id uint) string, page func(n int) string, back string) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(p.Tickets)+3)
	for _, t := range p.Tickets {
		label := fmt.Sprintf("%s #%d %s", t.Status.Emoji(), t.ID, t.TicketType.Label())
		rows = append(rows, row(btn(label, view(t.ID))))
	}

	if p.TotalPages > 1 {
		nav := make([]telegram.InlineKeyboardButton, 0, 3)
		if p.HasPrev() {
			nav = append(nav, btn("◀️", page(p.Page-1)))
		}
		nav = append(nav, btn(fmt.Sprintf("%d/%d", p.Page+1, p.TotalPages), callback(ActionNoop)))
		if p.HasNext() {
			nav = append(nav, btn("▶️", page(p.Page+1)))
		}
		rows = append(rows, nav)
	}

	rows = append(rows, row(
		btn("🔄 Refresh", page(p.Page)),
		btn("⬅️ Back", back),
	))
	return telegram.NewInlineKeyboard(rows...)
}

func playerListKeyboard(p *tickets.Page) *telegram.InlineKeyboardMarkup {
	return listKeyboard(p,
		func(id uint) string { return callback(ActionMyView, id) },
		func(n int) string { return callback(ActionMyPage, n) },
		callback(ActionMenu),
	)
}

func judgeListKeyboard(p *tickets.Page) *telegram.InlineKeyboardMarkup {
	return listKeyboard(p,
		func(id uint) string { return callback(ActionJudgeView, id) },
		func(n int) string { return callback(ActionJudgePage, p.Filter, n) },
		callback(ActionJudgeMenu),
	)
}

func playerTicketKeyboard(t *models.Ticket) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	if !t.IsClosed() {
		rows = append(rows, row(btn("🔒 Close ticket", callback(ActionMyClose, t.ID))))
	}
	rows = append(rows, row(
		btn("🔄 Refresh", callback(ActionMyView, t.ID)),
		btn("⬅️ Back", callback(ActionMyTickets)),
	))
	return telegram.NewInlineKeyboard(rows...)
}

func judgeTicketKeyboard(t *models.Ticket) *telegram.InlineKeyboardMarkup {
	var actions []telegram.InlineKeyboardButton
	if t.Status == models.StatusOpen {
		actions = append(actions, btn("🛠 Take", callback(ActionTake, t.ID)))
	}
	actions = append(actions, btn("💬 Comment", callback(ActionComment, t.ID)))
	if !t.IsClosed() {
		actions = append(actions, btn("✅ Close", callback(ActionJudgeClose, t.ID)))
	}

	return telegram.NewInlineKeyboard(
		actions,
		row(
			btn("🔄 Refresh", callback(ActionJudgeView, t.ID)),
			btn("⬅️ Back", callback(ActionJudgeMenu)),
		),
	)
}

func openTicketKeyboard(id uint) *telegram.InlineKeyboardMarkup {
	return telegram.NewInlineKeyboard(row(btn(fmt.Sprintf("🔎 Open ticket #%d", id), callback(ActionJudgeView, id))))
}
