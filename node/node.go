// Package node defines the resource node entity, its contributor ledger,
// group grants, and their store interface.
package node

import (
	"time"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
)

// Kind classifies a node. Registrations and preprints carry stricter
// lifecycle rules than ordinary projects.
type Kind string

// Node kinds.
const (
	KindProject      Kind = "project"
	KindRegistration Kind = "registration"
	KindPreprint     Kind = "preprint"
)

// Valid reports whether k is a defined node kind.
func (k Kind) Valid() bool {
	return k == KindProject || k == KindRegistration || k == KindPreprint
}

// Node is a permission-bearing resource in the hierarchy. Nodes form a
// tree via ParentID; deletion is a tombstone, never a hard delete.
type Node struct {
	ID        id.NodeID  `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Kind      Kind       `json:"kind" db:"kind"`
	CreatorID id.UserID  `json:"creator_id" db:"creator_id"`
	ParentID  *id.NodeID `json:"parent_id,omitempty" db:"parent_id"`
	IsDeleted bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLive reports whether the node has not been tombstoned.
func (n *Node) IsLive() bool {
	return !n.IsDeleted
}

// Contributor is a direct per-node permission entry for a single user.
// Order is the position in the node's contributor listing.
type Contributor struct {
	NodeID    id.NodeID   `json:"node_id" db:"node_id"`
	UserID    id.UserID   `json:"user_id" db:"user_id"`
	Level     level.Level `json:"level" db:"level"`
	Visible   bool        `json:"visible" db:"visible"`
	Order     int         `json:"order" db:"ordering"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// GroupGrant gives every member of a group the same permission level on
// a node. A group holds at most one grant per node.
type GroupGrant struct {
	NodeID    id.NodeID   `json:"node_id" db:"node_id"`
	GroupID   id.GroupID  `json:"group_id" db:"group_id"`
	Level     level.Level `json:"level" db:"level"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing nodes.
type ListFilter struct {
	Kind           Kind       `json:"kind,omitempty"`
	CreatorID      *id.UserID `json:"creator_id,omitempty"`
	ParentID       *id.NodeID `json:"parent_id,omitempty"`
	IncludeDeleted bool       `json:"include_deleted,omitempty"`
	Search         string     `json:"search,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}
