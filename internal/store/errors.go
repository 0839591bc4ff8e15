package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when a write would give two accounts
// the same username. Nothing is committed.
var ErrDuplicateUsername = errors.New("username already exists")

const (
	pqUniqueViolation  = "23505"
	usernameConstraint = "users_username_key"
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
}
