package types

import (
	"encoding/json"
	"time"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account represents a registered user of the task tracker.
// It contains identity, profile, role, and audit metadata.
type Account struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen at registration.
	Username string `json:"username" db:"username"`

	// FirstName is required and never blank.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is optional.
	LastName string `json:"last_name" db:"last_name"`

	// Role is either RoleUser or RoleAdmin. It is exposed as the
	// is_admin flag in API responses.
	Role Role `json:"-" db:"role"`

	// PasswordHash stores the bcrypt hash of the account's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the account has the administrative role.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// MarshalJSON adds the is_admin flag to the serialized account.
func (a Account) MarshalJSON() ([]byte, error) {
	type plain Account
	return json.Marshal(struct {
		plain
		IsAdmin bool `json:"is_admin"`
	}{
		plain:   plain(a),
		IsAdmin: a.IsAdmin(),
	})
}
