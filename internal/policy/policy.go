// Package policy decides what a user may do with a note. It performs no I/O.
package policy

import "notes-server/internal/domain"

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
)

// Role is the capability a user holds on one note.
type Role int

const (
	RoleNone Role = iota
	// RoleEditor is held by every share-list member. Editors can read and write
	// but cannot share or delete.
	RoleEditor
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleEditor:
		return "editor"
	default:
		return "none"
	}
}

type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) Allowed() bool { return bool(d) }

var minimumRole = map[Action]Role{
	ActionRead:   RoleEditor,
	ActionWrite:  RoleEditor,
	ActionShare:  RoleOwner,
	ActionDelete: RoleOwner,
}

func RoleOf(userID string, note *domain.Note) Role {
	switch {
	case userID == "" || note == nil:
		return RoleNone
	case note.IsOwner(userID):
		return RoleOwner
	case note.IsSharedWith(userID):
		return RoleEditor
	default:
		return RoleNone
	}
}

// Decide returns Deny for unknown actions.
func Decide(userID string, note *domain.Note, action Action) Decision {
	required, ok := minimumRole[action]
	if !ok {
		return Deny
	}
	return Decision(RoleOf(userID, note) >= required)
}
