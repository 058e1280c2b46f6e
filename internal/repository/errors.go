package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a conditional status update finds the
	// ticket in a state other than the expected ones.
	ErrStatusConflict = errors.New("ticket status changed concurrently")
)
