package types

import "time"

// User represents an account in the system.
// It contains identity, authorization, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"user_id"`

	// Email is the unique address the user logs in with.
	Email string `json:"email" db:"email"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// IsAdmin indicates whether the user may manage the shared catalog
	// and other users' data.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// RegisteredAt is the timestamp when the account was created.
	RegisteredAt time.Time `json:"registered_at" db:"registration_date"`

	// LastLogin is the timestamp of the most recent successful login,
	// nil until the user has logged in at least once.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// UserProfile is a user together with everything assigned to them.
type UserProfile struct {
	User
	Diagnoses   []Assignment `json:"diagnoses"`
	Symptoms    []Assignment `json:"symptoms"`
	Medications []Assignment `json:"medications"`
}
