// Package repository defines the persistence-level sentinel errors
// shared by every store implementation. Domain services translate these
// into their own error kinds at the boundary.
package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write loses the race:
	// the applet's current version no longer matches the expected one
	ErrConflict = errors.New("conflict: applet was modified concurrently")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)
