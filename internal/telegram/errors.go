package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// APIError represents a structured Telegram Bot API error response.
type APIError struct {
	Method      string
	ErrorCode   int // e.g. 400, 403, 429
	Description string
	RetryAfter  int // seconds, only for 429
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s error %d: %s (retry_after=%ds)", e.Method, e.ErrorCode, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s error %d: %s", e.Method, e.ErrorCode, e.Description)
}

// IsBotBlocked returns true if the error indicates the bot was blocked by the user (403).
func IsBotBlocked(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == 403
	}
	return false
}

// IsMessageNotModified reports an edit that would leave the message unchanged,
// e.g. pressing "refresh" when nothing changed.
func IsMessageNotModified(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == 400 && strings.Contains(apiErr.Description, "message is not modified")
	}
	return false
}

// IsRetryAfter returns true if the error is a 429 Too Many Requests with retry_after.
func IsRetryAfter(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == 429 && apiErr.RetryAfter > 0
	}
	return false
}
