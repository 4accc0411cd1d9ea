// Package steward provides hierarchical authorization for collaborative
// resource trees.
//
// Steward resolves effective permissions from three sources: direct
// per-node contributor entries, group grants that give every member of a
// group the same level on a node, and inherited ADMIN from ancestor
// nodes. Mutations are guarded so that no live node is ever left without
// an ADMIN holder and no group is left without a manager.
//
//	eng, err := steward.NewEngine(
//	    steward.WithStore(memStore),
//	)
//	lvl, ok, err := eng.Resolve(ctx, userID, nodeID)
package steward

import (
	"context"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
)

// Level is the permission level granted on a node. See package level.
type Level = level.Level

// Permission levels re-exported for callers of the root package.
const (
	LevelRead  = level.Read
	LevelWrite = level.Write
	LevelAdmin = level.Admin
)

// DefaultGroupGrantLevel is the level applied when a group grant is
// created without an explicit level.
const DefaultGroupGrantLevel = level.Write

// SourceKind identifies how a user derives permission on a node.
type SourceKind string

const (
	// SourceDirect is a contributor entry on the node itself.
	SourceDirect SourceKind = "direct"

	// SourceGroup is a grant held by a group the user belongs to.
	SourceGroup SourceKind = "group"

	// SourceAncestor is ADMIN inherited from an ancestor node.
	SourceAncestor SourceKind = "ancestor"
)

// SourceSet is the set of sources through which a user currently
// derives permission on a node.
type SourceSet map[SourceKind]struct{}

// Has reports whether the set contains the given source.
func (s SourceSet) Has(k SourceKind) bool {
	_, ok := s[k]
	return ok
}

// Empty reports whether the user derives no permission at all.
func (s SourceSet) Empty() bool { return len(s) == 0 }

func (s SourceSet) add(k SourceKind) { s[k] = struct{}{} }

// ExternalState lets the engine tear down per-(user, node) state held
// by the host application — addon credentials, file checkouts, and
// notification subscriptions — once a user loses their last permission
// source on a node. Implementations must tolerate release calls for
// state that does not exist.
type ExternalState interface {
	// CredentialsForUser returns the external credentials a user has
	// attached to nodes. Used by the deletion guard.
	CredentialsForUser(ctx context.Context, userID id.UserID) ([]CredentialRef, error)

	// ReleaseCredentials detaches the user's credentials from a node.
	ReleaseCredentials(ctx context.Context, nodeID id.NodeID, userID id.UserID) error

	// ReleaseCheckouts releases files the user has checked out on a node.
	ReleaseCheckouts(ctx context.Context, nodeID id.NodeID, userID id.UserID) error

	// RemoveSubscriptions removes the user's notification subscriptions
	// for a node.
	RemoveSubscriptions(ctx context.Context, nodeID id.NodeID, userID id.UserID) error
}

// CredentialRef identifies one external credential attached to a node.
type CredentialRef struct {
	NodeID   id.NodeID `json:"node_id"`
	Provider string    `json:"provider"`
}

// NopExternalState is an ExternalState with no external state to manage.
type NopExternalState struct{}

// CredentialsForUser implements ExternalState.
func (NopExternalState) CredentialsForUser(context.Context, id.UserID) ([]CredentialRef, error) {
	return nil, nil
}

// ReleaseCredentials implements ExternalState.
func (NopExternalState) ReleaseCredentials(context.Context, id.NodeID, id.UserID) error { return nil }

// ReleaseCheckouts implements ExternalState.
func (NopExternalState) ReleaseCheckouts(context.Context, id.NodeID, id.UserID) error { return nil }

// RemoveSubscriptions implements ExternalState.
func (NopExternalState) RemoveSubscriptions(context.Context, id.NodeID, id.UserID) error { return nil }
