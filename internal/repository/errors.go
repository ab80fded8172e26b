package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup or mutation targets a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when the store rejects a write on a uniqueness or exclusion rule.
	ErrConflict = errors.New("record conflicts with existing data")
)
