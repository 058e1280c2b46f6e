package tickets

import (
	"errors"
	"fmt"
)

// Lifecycle errors. All of them leave the ticket unchanged.
var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrAlreadyClaimed = errors.New("ticket is already taken")
	ErrAlreadyClosed  = errors.New("ticket is already closed")
	ErrInvalidType    = errors.New("unknown ticket type")
	ErrInvalidFilter  = errors.New("unknown ticket filter")
)

// ValidationError reports user text whose length is out of bounds.
// Lengths are counted in characters.
type ValidationError struct {
	Field  string
	Min    int
	Max    int
	Actual int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s must be %d to %d characters, got %d", e.Field, e.Min, e.Max, e.Actual)
}

// TooLong reports whether the text exceeded the maximum.
func (e *ValidationError) TooLong() bool {
	return e.Actual > e.Max
}
