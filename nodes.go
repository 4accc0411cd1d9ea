package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/notify"
)

// CreateNode creates a node with the creator as its first ADMIN
// contributor. Creating a child requires WRITE on the parent.
func (e *Engine) CreateNode(ctx context.Context, title string, kind node.Kind, parentID *id.NodeID, creatorID id.UserID) (*node.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if title == "" {
		return nil, fmt.Errorf("%w: node title is required", ErrInvalidOperation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: invalid node kind %q", ErrInvalidOperation, kind)
	}
	if _, err := e.getActiveUser(ctx, creatorID); err != nil {
		return nil, err
	}

	if parentID != nil {
		if _, err := e.getLiveNode(ctx, *parentID); err != nil {
			return nil, err
		}
		ok, err := e.HasPermission(ctx, creatorID, *parentID, LevelWrite)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: user %s lacks write on parent %s", ErrPermissionDenied, creatorID, *parentID)
		}
	}

	now := e.now()
	n := &node.Node{
		ID:        id.NewNodeID(),
		Title:     title,
		Kind:      kind,
		CreatorID: creatorID,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateNode(ctx, n); err != nil {
		return nil, fmt.Errorf("steward: create node: %w", err)
	}
	if err := e.store.UpsertContributor(ctx, &node.Contributor{
		NodeID:    n.ID,
		UserID:    creatorID,
		Level:     LevelAdmin,
		Visible:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("steward: upsert contributor: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionNodeCreated,
		ActorID: creatorID,
		NodeID:  n.ID,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitNodeCreated(ctx, n)
	e.logger.Info("node created",
		"node", n.ID.String(), "kind", string(kind), "creator", creatorID.String())

	return n, nil
}

// DeleteNode tombstones a node. Only projects may be deleted, only by
// an admin, and only when they have no live children. System-initiated
// deletions (account erasure cascades) bypass the kind and child checks.
func (e *Engine) DeleteNode(ctx context.Context, nodeID id.NodeID, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.deleteNodeLocked(ctx, nodeID, actorID)
}

func (e *Engine) deleteNodeLocked(ctx context.Context, nodeID id.NodeID, actorID id.UserID) error {
	n, err := e.getLiveNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
		return err
	}

	if !isSystem(actorID) {
		if n.Kind != node.KindProject {
			return fmt.Errorf("%w: %s nodes cannot be deleted", ErrInvalidOperation, n.Kind)
		}
		children, err := e.store.ListChildren(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("steward: list children: %w", err)
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: node %s has live children", ErrInvalidOperation, nodeID)
		}
	}

	now := e.now()
	n.IsDeleted = true
	n.DeletedAt = &now
	n.UpdatedAt = now
	if err := e.store.UpdateNode(ctx, n); err != nil {
		return fmt.Errorf("steward: update node: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionNodeDeleted,
		ActorID: actorID,
		NodeID:  nodeID,
	}); err != nil {
		return err
	}

	// Descendants may have resolved ADMIN inherited through this node,
	// so node-scoped invalidation is not enough.
	e.invalidateAll(ctx)
	e.plugins.EmitNodeDeleted(ctx, nodeID)

	return nil
}

// Node retrieves a node by ID, tombstoned or not.
func (e *Engine) Node(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	return e.getNode(ctx, nodeID)
}

// AddGroupGrant grants a group a permission level on a node. The actor
// must hold ADMIN on the node and manage the group. An empty level
// applies DefaultGroupGrantLevel. Granting a group that already holds a
// grant replaces its level.
func (e *Engine) AddGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID, lvl Level, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lvl == "" {
		lvl = DefaultGroupGrantLevel
	}
	if !lvl.Valid() {
		return fmt.Errorf("%w: invalid level %q", ErrInvalidOperation, lvl)
	}
	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}
	if _, err := e.getGroup(ctx, groupID); err != nil {
		return err
	}

	if !isSystem(actorID) {
		if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
			return err
		}
		manages, err := e.isManager(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		if !manages {
			return fmt.Errorf("%w: user %s is not a manager of group %s", ErrPermissionDenied, actorID, groupID)
		}
	}

	existing, err := e.store.GetGroupGrant(ctx, nodeID, groupID)
	if err != nil {
		return fmt.Errorf("steward: load grant: %w", err)
	}
	if existing != nil {
		return e.setGrantLevelLocked(ctx, existing, lvl, actorID)
	}

	now := e.now()
	if err := e.store.UpsertGroupGrant(ctx, &node.GroupGrant{
		NodeID:    nodeID,
		GroupID:   groupID,
		Level:     lvl,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("steward: upsert grant: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionGroupGrantAdded,
		ActorID: actorID,
		GroupID: groupID,
		NodeID:  nodeID,
		Params:  map[string]any{"level": string(lvl)},
	}); err != nil {
		return err
	}

	members, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}
	for _, m := range members {
		if m.UserID != actorID {
			e.emit(ctx, &notify.Event{
				Kind:        notify.KindGroupAddedToNode,
				RecipientID: m.UserID,
				ActorID:     actorID,
				GroupID:     groupID,
				NodeID:      nodeID,
			})
		}
		e.invalidateUser(ctx, m.UserID)
	}

	return nil
}

// UpdateGroupGrant changes the level of an existing grant. Unlike the
// initial grant, updating requires only ADMIN on the node. A downgrade
// that would leave the node without an ADMIN holder is rejected.
func (e *Engine) UpdateGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID, lvl Level, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !lvl.Valid() {
		return fmt.Errorf("%w: invalid level %q", ErrInvalidOperation, lvl)
	}
	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}
	if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
		return err
	}

	existing, err := e.store.GetGroupGrant(ctx, nodeID, groupID)
	if err != nil {
		return fmt.Errorf("steward: load grant: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("%w: group %s holds no grant on node %s", ErrNotFound, groupID, nodeID)
	}

	return e.setGrantLevelLocked(ctx, existing, lvl, actorID)
}

func (e *Engine) setGrantLevelLocked(ctx context.Context, grant *node.GroupGrant, lvl Level, actorID id.UserID) error {
	if grant.Level == lvl {
		return nil
	}

	if grant.Level == LevelAdmin && lvl != LevelAdmin {
		if err := e.checkAdminInvariant(ctx, grant.NodeID, hypothetical{
			grantLevels: map[string]Level{grant.GroupID.String(): lvl},
		}); err != nil {
			return err
		}
	}

	old := grant.Level
	grant.Level = lvl
	grant.UpdatedAt = e.now()
	if err := e.store.UpsertGroupGrant(ctx, grant); err != nil {
		return fmt.Errorf("steward: upsert grant: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionGroupGrantUpdated,
		ActorID: actorID,
		GroupID: grant.GroupID,
		NodeID:  grant.NodeID,
		Params:  map[string]any{"old_level": string(old), "new_level": string(lvl)},
	}); err != nil {
		return err
	}

	members, err := e.store.ListMemberships(ctx, grant.GroupID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}
	for _, m := range members {
		e.invalidateUser(ctx, m.UserID)
	}

	return nil
}

// RemoveGroupGrant withdraws a group's grant from a node. Node admins
// may remove any grant; a group's managers may withdraw their own group
// even without node permissions. Rejected when the node would be left
// without an ADMIN holder.
func (e *Engine) RemoveGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getLiveNode(ctx, nodeID); err != nil {
		return err
	}
	if _, err := e.getGroup(ctx, groupID); err != nil {
		return err
	}

	grant, err := e.store.GetGroupGrant(ctx, nodeID, groupID)
	if err != nil {
		return fmt.Errorf("steward: load grant: %w", err)
	}
	if grant == nil {
		return fmt.Errorf("%w: group %s holds no grant on node %s", ErrNotFound, groupID, nodeID)
	}

	if !isSystem(actorID) {
		manages, err := e.isManager(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		if !manages {
			if err := e.requireNodeAdmin(ctx, nodeID, actorID); err != nil {
				return err
			}
		}
	}

	if grant.Level == LevelAdmin {
		if err := e.checkAdminInvariant(ctx, nodeID, hypothetical{removedGrantGroup: groupID}); err != nil {
			return err
		}
	}

	if err := e.store.DeleteGroupGrant(ctx, nodeID, groupID); err != nil {
		return fmt.Errorf("steward: delete grant: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionGroupGrantRemoved,
		ActorID: actorID,
		GroupID: groupID,
		NodeID:  nodeID,
	}); err != nil {
		return err
	}

	members, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}
	for _, m := range members {
		e.teardownIfUnreferenced(ctx, m.UserID, nodeID)
		e.invalidateUser(ctx, m.UserID)
	}

	return nil
}
