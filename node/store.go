package node

import (
	"context"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for nodes, contributors, and
// group grants.
type Store interface {
	// CreateNode persists a new node.
	CreateNode(ctx context.Context, n *Node) error

	// GetNode retrieves a node by ID, tombstoned or not.
	GetNode(ctx context.Context, nodeID id.NodeID) (*Node, error)

	// UpdateNode persists changes to a node.
	UpdateNode(ctx context.Context, n *Node) error

	// ListNodes returns nodes matching the filter. Tombstoned nodes are
	// excluded unless the filter asks for them.
	ListNodes(ctx context.Context, filter *ListFilter) ([]*Node, error)

	// CountNodes returns the number of nodes matching the filter.
	CountNodes(ctx context.Context, filter *ListFilter) (int64, error)

	// ListChildren returns the live direct children of a node.
	ListChildren(ctx context.Context, nodeID id.NodeID) ([]*Node, error)

	// UpsertContributor creates or updates a contributor entry.
	UpsertContributor(ctx context.Context, c *Contributor) error

	// GetContributor retrieves a user's contributor entry on a node, or
	// nil with no error if the user is not a contributor.
	GetContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID) (*Contributor, error)

	// DeleteContributor removes a user's contributor entry from a node.
	DeleteContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID) error

	// ListContributors returns a node's contributors ordered by their
	// position in the listing.
	ListContributors(ctx context.Context, nodeID id.NodeID) ([]*Contributor, error)

	// ListContributions returns every contributor entry a user holds
	// across all nodes.
	ListContributions(ctx context.Context, userID id.UserID) ([]*Contributor, error)

	// UpsertGroupGrant creates or updates a group's grant on a node.
	UpsertGroupGrant(ctx context.Context, g *GroupGrant) error

	// GetGroupGrant retrieves a group's grant on a node, or nil with no
	// error if the group holds no grant there.
	GetGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID) (*GroupGrant, error)

	// DeleteGroupGrant removes a group's grant from a node.
	DeleteGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID) error

	// ListGroupGrants returns all group grants on a node.
	ListGroupGrants(ctx context.Context, nodeID id.NodeID) ([]*GroupGrant, error)

	// ListGrantsForGroup returns every grant a group holds across nodes.
	ListGrantsForGroup(ctx context.Context, groupID id.GroupID) ([]*GroupGrant, error)

	// DeleteGrantsByGroup removes every grant a group holds.
	DeleteGrantsByGroup(ctx context.Context, groupID id.GroupID) error
}
