package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the sharing role granted on an event.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether the role is one of the known sharing roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// CanWrite reports whether the role permits mutating the event.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleEditor
}

// EventPermission grants a role on an event to a user.
type EventPermission struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
