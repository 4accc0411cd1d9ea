// Package group defines the Group entity, its membership roster,
// and their store interfaces.
package group

import (
	"time"

	"github.com/xraph/steward/id"
)

// Role is the position a user holds within a group.
type Role string

// Membership roles. Managers administer the roster; members only
// inherit the group's node grants.
const (
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Valid reports whether r is a defined membership role.
func (r Role) Valid() bool {
	return r == RoleManager || r == RoleMember
}

// Group is a named collection of users granted permissions as a unit.
type Group struct {
	ID        id.GroupID `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	CreatorID id.UserID  `json:"creator_id" db:"creator_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Membership links a user to a group with a role. A user holds at most
// one membership per group.
type Membership struct {
	GroupID   id.GroupID `json:"group_id" db:"group_id"`
	UserID    id.UserID  `json:"user_id" db:"user_id"`
	Role      Role       `json:"role" db:"role"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing groups.
type ListFilter struct {
	CreatorID *id.UserID `json:"creator_id,omitempty"`
	Search    string     `json:"search,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}
