// Package store defines the aggregate persistence interface. Each subsystem
// (user, group, node, actionlog, throttle) defines its own store interface.
// The composite Store composes them all.
// Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/throttle"
	"github.com/xraph/steward/user"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, sqlite, memory) implements all of them.
type Store interface {
	user.Store
	group.Store
	node.Store
	actionlog.Store
	throttle.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
