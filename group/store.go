package group

import (
	"context"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for groups and memberships.
type Store interface {
	// CreateGroup persists a new group.
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup retrieves a group by ID.
	GetGroup(ctx context.Context, groupID id.GroupID) (*Group, error)

	// UpdateGroup persists changes to a group.
	UpdateGroup(ctx context.Context, g *Group) error

	// DeleteGroup removes a group by ID. Memberships and grants are
	// removed separately by the caller.
	DeleteGroup(ctx context.Context, groupID id.GroupID) error

	// ListGroups returns groups matching the filter.
	ListGroups(ctx context.Context, filter *ListFilter) ([]*Group, error)

	// CountGroups returns the number of groups matching the filter.
	CountGroups(ctx context.Context, filter *ListFilter) (int64, error)

	// SetMembership creates or updates the membership of a user in a group.
	SetMembership(ctx context.Context, m *Membership) error

	// GetMembership retrieves a user's membership in a group, or nil
	// with no error if the user is not a member.
	GetMembership(ctx context.Context, groupID id.GroupID, userID id.UserID) (*Membership, error)

	// DeleteMembership removes a user from a group.
	DeleteMembership(ctx context.Context, groupID id.GroupID, userID id.UserID) error

	// ListMemberships returns all memberships of a group.
	ListMemberships(ctx context.Context, groupID id.GroupID) ([]*Membership, error)

	// ListMembershipsForUser returns all memberships a user holds.
	ListMembershipsForUser(ctx context.Context, userID id.UserID) ([]*Membership, error)

	// DeleteMembershipsByGroup removes every membership of a group.
	DeleteMembershipsByGroup(ctx context.Context, groupID id.GroupID) error
}
