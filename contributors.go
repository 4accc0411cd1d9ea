package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
)

// AddContributor adds a user to a node's contributor ledger at the given
// level. Adding a user who is already a contributor updates their level
// and visibility in place without disturbing their listing position.
// Adding a merged account redirects to the account that absorbed it.
func (e *Engine) AddContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID, lvl Level, visible bool, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}
	if !lvl.Valid() {
		return fmt.Errorf("%w: invalid level %q", ErrInvalidOperation, lvl)
	}

	target, err := e.getUser(ctx, userID)
	if err != nil {
		return err
	}
	target, err = e.mergeTarget(ctx, target)
	if err != nil {
		return err
	}
	userID = target.ID
	if target.IsDisabled || target.DeletedAt != nil {
		return fmt.Errorf("%w: user %s is not active", ErrInvalidOperation, userID)
	}

	if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
		return err
	}

	existing, err := e.store.GetContributor(ctx, nodeID, userID)
	if err != nil {
		return fmt.Errorf("steward: load contributor: %w", err)
	}

	now := e.now()
	if existing != nil {
		if existing.Level == LevelAdmin && lvl != LevelAdmin {
			if err := e.checkAdminInvariant(ctx, nodeID, hypothetical{
				contributorLevels: map[string]Level{userID.String(): lvl},
			}); err != nil {
				return err
			}
		}

		existing.Level = lvl
		existing.Visible = visible
		existing.UpdatedAt = now
		if err := e.store.UpsertContributor(ctx, existing); err != nil {
			return fmt.Errorf("steward: upsert contributor: %w", err)
		}

		if err := e.audit(ctx, &actionlog.Entry{
			Action:   actionlog.ActionPermissionsUpdated,
			ActorID:  actorID,
			NodeID:   nodeID,
			TargetID: userID,
			Params:   map[string]any{"level": string(lvl)},
		}); err != nil {
			return err
		}

		e.invalidateUser(ctx, userID)

		return nil
	}

	contribs, err := e.store.ListContributors(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("steward: list contributors: %w", err)
	}

	if err := e.store.UpsertContributor(ctx, &node.Contributor{
		NodeID:    nodeID,
		UserID:    userID,
		Level:     lvl,
		Visible:   visible,
		Order:     len(contribs),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("steward: upsert contributor: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionContributorAdded,
		ActorID:  actorID,
		NodeID:   nodeID,
		TargetID: userID,
		Params:   map[string]any{"level": string(lvl)},
	}); err != nil {
		return err
	}

	e.invalidateUser(ctx, userID)

	return nil
}

// RemoveContributor removes a user from a node's contributor ledger.
// Admins may remove anyone; contributors may remove themselves. A
// removal that would leave the node without an ADMIN holder is rejected.
func (e *Engine) RemoveContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}

	c, err := e.store.GetContributor(ctx, nodeID, userID)
	if err != nil {
		return fmt.Errorf("steward: load contributor: %w", err)
	}
	if c == nil {
		return fmt.Errorf("%w: user %s is not a contributor on node %s", ErrNotFound, userID, nodeID)
	}

	if !isSystem(actorID) && actorID != userID {
		if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
			return err
		}
	}

	if err := e.checkAdminInvariant(ctx, nodeID, hypothetical{removedContributor: userID}); err != nil {
		return err
	}

	if err := e.store.DeleteContributor(ctx, nodeID, userID); err != nil {
		return fmt.Errorf("steward: delete contributor: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionContributorRemoved,
		ActorID:  actorID,
		NodeID:   nodeID,
		TargetID: userID,
	}); err != nil {
		return err
	}

	e.teardownIfUnreferenced(ctx, userID, nodeID)
	e.invalidateUser(ctx, userID)

	return nil
}

// SetContributorPermission changes a contributor's level. A downgrade
// that would leave the node without an ADMIN holder is rejected.
func (e *Engine) SetContributorPermission(ctx context.Context, nodeID id.NodeID, userID id.UserID, lvl Level, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}
	if !lvl.Valid() {
		return fmt.Errorf("%w: invalid level %q", ErrInvalidOperation, lvl)
	}
	if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
		return err
	}

	c, err := e.store.GetContributor(ctx, nodeID, userID)
	if err != nil {
		return fmt.Errorf("steward: load contributor: %w", err)
	}
	if c == nil {
		return fmt.Errorf("%w: user %s is not a contributor on node %s", ErrNotFound, userID, nodeID)
	}
	if c.Level == lvl {
		return nil
	}

	if c.Level == LevelAdmin && lvl != LevelAdmin {
		if err := e.checkAdminInvariant(ctx, nodeID, hypothetical{
			contributorLevels: map[string]Level{userID.String(): lvl},
		}); err != nil {
			return err
		}
	}

	old := c.Level
	c.Level = lvl
	c.UpdatedAt = e.now()
	if err := e.store.UpsertContributor(ctx, c); err != nil {
		return fmt.Errorf("steward: upsert contributor: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionPermissionsUpdated,
		ActorID:  actorID,
		NodeID:   nodeID,
		TargetID: userID,
		Params:   map[string]any{"old_level": string(old), "new_level": string(lvl)},
	}); err != nil {
		return err
	}

	e.invalidateUser(ctx, userID)

	return nil
}

// SetContributorVisibility changes whether a contributor appears in the
// node's public listing. Visibility has no effect on permissions.
func (e *Engine) SetContributorVisibility(ctx context.Context, nodeID id.NodeID, userID id.UserID, visible bool, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}
	if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
		return err
	}

	c, err := e.store.GetContributor(ctx, nodeID, userID)
	if err != nil {
		return fmt.Errorf("steward: load contributor: %w", err)
	}
	if c == nil {
		return fmt.Errorf("%w: user %s is not a contributor on node %s", ErrNotFound, userID, nodeID)
	}
	if c.Visible == visible {
		return nil
	}

	c.Visible = visible
	c.UpdatedAt = e.now()
	if err := e.store.UpsertContributor(ctx, c); err != nil {
		return fmt.Errorf("steward: upsert contributor: %w", err)
	}

	return e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionVisibilityUpdated,
		ActorID:  actorID,
		NodeID:   nodeID,
		TargetID: userID,
		Params:   map[string]any{"visible": visible},
	})
}
