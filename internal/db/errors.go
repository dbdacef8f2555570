package db

import (
	"database/sql"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the acting user does not own the row.
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	// ErrTermsRequired guards actions that need accepted terms.
	ErrTermsRequired = errors.New("terms must be accepted first")
	ErrInvalid       = errors.New("invalid input")
)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
