package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the storage layer.
// HTTP handlers should use errors.Is() to map these to appropriate HTTP status codes.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the operation conflicts with existing state
	// (e.g., a duplicate IdP slug).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates the input failed validation
	// (e.g., missing required fields).
	ErrValidation = errors.New("validation error")

	// ErrDuplicateDomain indicates the email domain already maps to another
	// active IdP configuration. A domain maps to at most one active IdP.
	ErrDuplicateDomain = errors.New("email domain already mapped")
)

// WrapIfConflict wraps a database error as ErrConflict if it represents a
// unique constraint violation. This detects UNIQUE errors from the SQLite
// driver and duplicate-key errors from PostgreSQL.
func WrapIfConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "duplicate") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
