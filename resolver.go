package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
	"github.com/xraph/steward/node"
)

// ResolveOption adjusts a single resolution.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	includeGroupAdmin bool
}

// WithGroupAdminInheritance makes ADMIN held through a group grant on an
// ancestor node propagate down, the same way directly held ancestor
// ADMIN always does. Off by default.
func WithGroupAdminInheritance() ResolveOption {
	return func(o *resolveOptions) { o.includeGroupAdmin = true }
}

// Resolve computes the effective permission level a user holds on a
// node. It unions three sources: the node's own contributor entry for
// the user, grants held by groups the user belongs to, and ADMIN
// inherited from ancestor nodes. The boolean reports whether the user
// holds any permission at all.
//
// Resolution consults only the ledgers. Account state is not checked
// here, and superuser status grants nothing: a superuser with no entry
// resolves to no permission. A nil user resolves to no permission; a
// tombstoned node resolves to no permission for everyone.
func (e *Engine) Resolve(ctx context.Context, userID id.UserID, nodeID id.NodeID, opts ...ResolveOption) (Level, bool, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	if userID.IsNil() {
		return "", false, nil
	}

	if e.cache != nil {
		if lvl, held, hit := e.cache.Get(ctx, userID, nodeID, o.includeGroupAdmin); hit {
			return lvl, held, nil
		}
	}

	lvl, held, err := e.resolve(ctx, userID, nodeID, o.includeGroupAdmin)
	if err != nil {
		return "", false, err
	}

	if e.cache != nil {
		e.cache.Set(ctx, userID, nodeID, o.includeGroupAdmin, lvl, held)
	}

	e.plugins.EmitPermissionResolved(ctx, userID, nodeID, lvl, held)

	return lvl, held, nil
}

// Permissions returns every level the user effectively holds on the
// node, lowest first. Group-derived ancestor ADMIN is included only
// when requested via WithGroupAdminInheritance.
func (e *Engine) Permissions(ctx context.Context, userID id.UserID, nodeID id.NodeID, opts ...ResolveOption) ([]Level, error) {
	lvl, held, err := e.Resolve(ctx, userID, nodeID, opts...)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, nil
	}
	return level.Expand(lvl), nil
}

// HasPermission reports whether the user's effective level satisfies
// the required one. This is the gate the engine itself uses for its
// mutations, so group-derived ancestor ADMIN is included.
func (e *Engine) HasPermission(ctx context.Context, userID id.UserID, nodeID id.NodeID, required Level) (bool, error) {
	if !required.Valid() {
		return false, fmt.Errorf("%w: invalid level %q", ErrInvalidOperation, required)
	}
	lvl, held, err := e.Resolve(ctx, userID, nodeID, WithGroupAdminInheritance())
	if err != nil {
		return false, err
	}
	return held && level.Satisfies(lvl, required), nil
}

func (e *Engine) resolve(ctx context.Context, userID id.UserID, nodeID id.NodeID, includeGroupAdmin bool) (Level, bool, error) {
	n, err := e.getNode(ctx, nodeID)
	if err != nil {
		return "", false, err
	}
	if !n.IsLive() {
		return "", false, nil
	}

	var (
		held bool
		lvl  Level
	)
	union := func(l Level) {
		if !held {
			lvl, held = l, true
			return
		}
		lvl = level.Union(lvl, l)
	}

	// 1. Direct contributor entry on the node itself.
	c, err := e.store.GetContributor(ctx, nodeID, userID)
	if err != nil {
		return "", false, fmt.Errorf("steward: load contributor: %w", err)
	}
	if c != nil {
		union(c.Level)
	}

	// 2. Grants held by groups the user belongs to.
	if err := e.unionGroupGrants(ctx, userID, nodeID, "", union); err != nil {
		return "", false, err
	}

	// 3. ADMIN inherited from ancestors. Directly held ancestor ADMIN
	// always propagates; group-derived ancestor ADMIN only on request.
	visited := map[string]struct{}{nodeID.String(): {}}
	cur := n
	for depth := 0; cur.ParentID != nil; depth++ {
		if depth >= e.config.MaxTreeDepth {
			return "", false, fmt.Errorf("%w: at node %s", ErrTreeDepthExceeded, cur.ID)
		}

		parent, err := e.getNode(ctx, *cur.ParentID)
		if err != nil {
			return "", false, err
		}
		if _, seen := visited[parent.ID.String()]; seen {
			break
		}
		visited[parent.ID.String()] = struct{}{}

		if parent.IsLive() {
			pc, err := e.store.GetContributor(ctx, parent.ID, userID)
			if err != nil {
				return "", false, fmt.Errorf("steward: load contributor: %w", err)
			}
			if pc != nil && pc.Level == LevelAdmin {
				union(LevelAdmin)
			}

			if includeGroupAdmin {
				if err := e.unionGroupGrants(ctx, userID, parent.ID, LevelAdmin, union); err != nil {
					return "", false, err
				}
			}
		}

		cur = parent
	}

	return lvl, held, nil
}

// unionGroupGrants feeds the levels of grants held on nodeID by groups
// the user belongs to into union. When only is non-empty, grants at
// other levels are skipped.
func (e *Engine) unionGroupGrants(ctx context.Context, userID id.UserID, nodeID id.NodeID, only Level, union func(Level)) error {
	grants, err := e.store.ListGroupGrants(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("steward: list group grants: %w", err)
	}
	for _, g := range grants {
		if only != "" && g.Level != only {
			continue
		}
		m, err := e.store.GetMembership(ctx, g.GroupID, userID)
		if err != nil {
			return fmt.Errorf("steward: load membership: %w", err)
		}
		if m != nil {
			union(g.Level)
		}
	}
	return nil
}

// Contributors returns the node's contributor ledger in listing order.
func (e *Engine) Contributors(ctx context.Context, nodeID id.NodeID) ([]*node.Contributor, error) {
	if _, err := e.getNode(ctx, nodeID); err != nil {
		return nil, err
	}
	cs, err := e.store.ListContributors(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("steward: list contributors: %w", err)
	}
	return cs, nil
}

// GroupGrants returns the grants held on a node.
func (e *Engine) GroupGrants(ctx context.Context, nodeID id.NodeID) ([]*node.GroupGrant, error) {
	if _, err := e.getNode(ctx, nodeID); err != nil {
		return nil, err
	}
	gs, err := e.store.ListGroupGrants(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("steward: list group grants: %w", err)
	}
	return gs, nil
}
