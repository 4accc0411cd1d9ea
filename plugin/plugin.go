// Package plugin defines the plugin system for Steward.
// Plugins are notified of lifecycle events (permission resolved, accounts
// merged, node deleted, etc.) and can react — logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/user"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Resolution hooks
// ──────────────────────────────────────────────────

// PermissionResolved is called after an effective permission level is
// computed for a (user, node) pair. Cached results do not fire it.
type PermissionResolved interface {
	OnPermissionResolved(ctx context.Context, userID id.UserID, nodeID id.NodeID, lvl level.Level, held bool) error
}

// ──────────────────────────────────────────────────
// User lifecycle hooks
// ──────────────────────────────────────────────────

// UserRegistered is called after an account is registered, including
// placeholder accounts created through an invitation.
type UserRegistered interface {
	OnUserRegistered(ctx context.Context, u *user.User) error
}

// UsersMerged is called after a duplicate account is absorbed into a
// primary one.
type UsersMerged interface {
	OnUsersMerged(ctx context.Context, primaryID, duplicateID id.UserID) error
}

// UserErased is called after an account is erased.
type UserErased interface {
	OnUserErased(ctx context.Context, userID id.UserID) error
}

// ──────────────────────────────────────────────────
// Group lifecycle hooks
// ──────────────────────────────────────────────────

// GroupCreated is called after a group is created.
type GroupCreated interface {
	OnGroupCreated(ctx context.Context, g *group.Group) error
}

// GroupDeleted is called after a group is deleted.
type GroupDeleted interface {
	OnGroupDeleted(ctx context.Context, groupID id.GroupID) error
}

// ──────────────────────────────────────────────────
// Node lifecycle hooks
// ──────────────────────────────────────────────────

// NodeCreated is called after a node is created.
type NodeCreated interface {
	OnNodeCreated(ctx context.Context, n *node.Node) error
}

// NodeDeleted is called after a node is tombstoned.
type NodeDeleted interface {
	OnNodeDeleted(ctx context.Context, nodeID id.NodeID) error
}

// ──────────────────────────────────────────────────
// Audit hook
// ──────────────────────────────────────────────────

// ActionLogged is called after any mutation is recorded in the action
// log. It fires for every audited mutation, so a plugin that needs the
// full event stream can implement this single hook.
type ActionLogged interface {
	OnActionLogged(ctx context.Context, e *actionlog.Entry) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
