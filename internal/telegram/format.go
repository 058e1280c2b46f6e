package telegram

import "strings"

var htmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
)

// EscapeHTML escapes user supplied text for an HTML parse mode message.
// Telegram only requires &, < and > to be escaped; nothing is removed.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
