package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Action names a route. Callback data is "<action>[:arg[:arg]]".
type Action string

// Player actions.
const (
	ActionStart           Action = "start"
	ActionMenu            Action = "menu"
	ActionHelp            Action = "help"
	ActionCancel          Action = "cancel"
	ActionCreateTicket    Action = "create_ticket"
	ActionTicketType      Action = "ticket_type"
	ActionConfirmTicket   Action = "confirm_ticket"
	ActionCancelTicket    Action = "cancel_ticket"
	ActionMyTickets       Action = "my_tickets"
	ActionMyPage          Action = "my_page"
	ActionMyView          Action = "my_view"
	ActionMyClose         Action = "my_close"
	ActionNoop            Action = "noop"
	ActionDescriptionText Action = "description_text"
	ActionStrayText       Action = "stray_text"
	ActionUnknownCommand  Action = "unknown_command"
	ActionUnknownCallback Action = "unknown_callback"
)

// Judge actions.
const (
	ActionJudgeMenu     Action = "judge_menu"
	ActionJudgeFilter   Action = "judge_filter"
	ActionJudgePage     Action = "judge_page"
	ActionJudgeView     Action = "judge_view"
	ActionTake          Action = "take"
	ActionComment       Action = "comment"
	ActionCancelComment Action = "cancel_comment"
	ActionJudgeClose    Action = "judge_close"
	ActionCommentText   Action = "comment_text"
)

// Admin actions.
const (
	ActionAddJudge    Action = "add_judge"
	ActionRemoveJudge Action = "remove_judge"
	ActionListJudges  Action = "list_judges"
)

// callback encodes button data.
func callback(action Action, args ...any) string {
	if len(args) == 0 {
		return string(action)
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, string(action))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

// parseCallback splits button data into its action and arguments.
func parseCallback(data string) (Action, []string) {
	parts := strings.Split(data, ":")
	return Action(parts[0]), parts[1:]
}

// argID parses the i-th argument as a ticket ID.
func argID(args []string, i int) (uint, bool) {
	if i >= len(args) {
		return 0, false
	}
	id, err := strconv.ParseUint(args[i], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// argPage parses the i-th argument as a page index. Missing or malformed
// pages fall back to the first one.
func argPage(args []string, i int) int {
	if i >= len(args) {
		return 0
	}
	page, err := strconv.Atoi(args[i])
	if err != nil || page < 0 {
		return 0
	}
	return page
}
