package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is a coarse-grained permission held by a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a façade account holder. Users own ledger accounts by username.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose
	Roles        []Role    `json:"roles"`
	Blocked      bool      `json:"blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return slices.Contains(u.Roles, RoleAdmin)
}

// Actor returns the engine identity for this user.
func (u *User) Actor() Actor {
	return Actor{Username: u.Username, Admin: u.IsAdmin()}
}
