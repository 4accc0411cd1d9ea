package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/notify"
	"github.com/xraph/steward/user"
)

// CreateGroup creates a group with the creator as its first manager.
func (e *Engine) CreateGroup(ctx context.Context, name string, creatorID id.UserID) (*group.Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidOperation)
	}
	if _, err := e.getActiveUser(ctx, creatorID); err != nil {
		return nil, err
	}

	now := e.now()
	g := &group.Group{
		ID:        id.NewGroupID(),
		Name:      name,
		CreatorID: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("steward: create group: %w", err)
	}
	if err := e.store.SetMembership(ctx, &group.Membership{
		GroupID:   g.ID,
		UserID:    creatorID,
		Role:      group.RoleManager,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("steward: set membership: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionGroupCreated,
		ActorID: creatorID,
		GroupID: g.ID,
	}); err != nil {
		return nil, err
	}
	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionManagerAdded,
		ActorID:  creatorID,
		GroupID:  g.ID,
		TargetID: creatorID,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitGroupCreated(ctx, g)
	e.logger.Info("group created", "group", g.ID.String(), "creator", creatorID.String())

	return g, nil
}

// SetGroupRole adds a user to a group or changes their role. Setting the
// role a user already holds is a full no-op: no log entry, no
// notification. Demoting the sole manager is rejected.
func (e *Engine) SetGroupRole(ctx context.Context, groupID id.GroupID, userID id.UserID, role group.Role, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !role.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrInvalidOperation, role)
	}
	if _, err := e.getGroup(ctx, groupID); err != nil {
		return err
	}
	target, err := e.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if target.IsMerged() {
		return fmt.Errorf("%w: user %s has been merged", ErrInvalidOperation, userID)
	}
	if target.IsDisabled || target.DeletedAt != nil {
		return fmt.Errorf("%w: user %s is not active", ErrInvalidOperation, userID)
	}
	if err := e.requireManager(ctx, groupID, actorID); err != nil {
		return err
	}

	existing, err := e.store.GetMembership(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("steward: load membership: %w", err)
	}
	if existing != nil && existing.Role == role {
		return nil
	}

	now := e.now()
	if existing == nil {
		if err := e.store.SetMembership(ctx, &group.Membership{
			GroupID:   groupID,
			UserID:    userID,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("steward: set membership: %w", err)
		}

		action := actionlog.ActionMemberAdded
		if role == group.RoleManager {
			action = actionlog.ActionManagerAdded
		}
		if err := e.audit(ctx, &actionlog.Entry{
			Action:   action,
			ActorID:  actorID,
			GroupID:  groupID,
			TargetID: userID,
		}); err != nil {
			return err
		}

		if userID != actorID {
			e.emit(ctx, &notify.Event{
				Kind:        notify.KindMemberAdded,
				RecipientID: userID,
				ActorID:     actorID,
				GroupID:     groupID,
			})
		}

		e.invalidateUser(ctx, userID)

		return nil
	}

	if existing.Role == group.RoleManager && role == group.RoleMember {
		count, err := e.managerCount(ctx, groupID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: group %s must retain at least one manager", ErrInvariantViolation, groupID)
		}
	}

	existing.Role = role
	existing.UpdatedAt = now
	if err := e.store.SetMembership(ctx, existing); err != nil {
		return fmt.Errorf("steward: set membership: %w", err)
	}

	return e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionRoleUpdated,
		ActorID:  actorID,
		GroupID:  groupID,
		TargetID: userID,
		Params:   map[string]any{"new_role": string(role)},
	})
}

// RemoveGroupMember removes a user from a group. Managers may remove
// anyone; members may remove themselves. Removing the sole manager is
// rejected, as is a removal that would strip the last ADMIN holder from
// any node the group is granted on.
func (e *Engine) RemoveGroupMember(ctx context.Context, groupID id.GroupID, userID id.UserID, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getGroup(ctx, groupID); err != nil {
		return err
	}
	m, err := e.store.GetMembership(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("steward: load membership: %w", err)
	}
	if m == nil {
		return fmt.Errorf("%w: user %s is not a member of group %s", ErrNotFound, userID, groupID)
	}

	if !isSystem(actorID) && actorID != userID {
		if err := e.requireManager(ctx, groupID, actorID); err != nil {
			return err
		}
	}

	if m.Role == group.RoleManager {
		count, err := e.managerCount(ctx, groupID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: group %s must retain at least one manager", ErrInvariantViolation, groupID)
		}
	}

	grants, err := e.store.ListGrantsForGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("steward: list grants: %w", err)
	}
	for _, g := range grants {
		if g.Level != LevelAdmin {
			continue
		}
		if err := e.checkAdminInvariant(ctx, g.NodeID, hypothetical{
			removedMemberGroup: groupID,
			removedMemberUser:  userID,
		}); err != nil {
			return err
		}
	}

	if err := e.store.DeleteMembership(ctx, groupID, userID); err != nil {
		return fmt.Errorf("steward: delete membership: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionMemberRemoved,
		ActorID:  actorID,
		GroupID:  groupID,
		TargetID: userID,
	}); err != nil {
		return err
	}

	for _, g := range grants {
		e.teardownIfUnreferenced(ctx, userID, g.NodeID)
	}
	e.invalidateUser(ctx, userID)

	return nil
}

// AddUnregisteredGroupMember invites a person by email, creating a
// placeholder account with a claim record for the group. The email must
// not collide with any existing identity, registered or pending, and
// its domain must not be blocked.
func (e *Engine) AddUnregisteredGroupMember(ctx context.Context, groupID id.GroupID, fullName, email string, role group.Role, actorID id.UserID) (*user.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !role.Valid() {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidOperation, role)
	}
	if _, err := e.getGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := e.requireManager(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidOperation)
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidOperation)
	}
	if e.blockedDomain(email) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedDomain, email)
	}

	existing, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("steward: lookup email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email %s", ErrDuplicateIdentity, email)
	}

	now := e.now()
	u := &user.User{
		ID:       id.NewUserID(),
		FullName: fullName,
		Email:    email,
		Unclaimed: []user.ClaimRecord{{
			GroupID:    groupID,
			ReferrerID: actorID,
			Email:      email,
			Name:       fullName,
			Token:      claimToken(),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("steward: create user: %w", err)
	}
	if err := e.store.SetMembership(ctx, &group.Membership{
		GroupID:   groupID,
		UserID:    u.ID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("steward: set membership: %w", err)
	}

	action := actionlog.ActionMemberAdded
	if role == group.RoleManager {
		action = actionlog.ActionManagerAdded
	}
	if err := e.audit(ctx, &actionlog.Entry{
		Action:   action,
		ActorID:  actorID,
		GroupID:  groupID,
		TargetID: u.ID,
		Params:   map[string]any{"unregistered": true},
	}); err != nil {
		return nil, err
	}

	e.emit(ctx, &notify.Event{
		Kind:        notify.KindMemberAdded,
		RecipientID: u.ID,
		ActorID:     actorID,
		GroupID:     groupID,
	})

	e.plugins.EmitUserRegistered(ctx, u)

	return u, nil
}

// RenameGroup changes a group's name.
func (e *Engine) RenameGroup(ctx context.Context, groupID id.GroupID, name string, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return fmt.Errorf("%w: group name is required", ErrInvalidOperation)
	}
	g, err := e.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := e.requireManager(ctx, groupID, actorID); err != nil {
		return err
	}
	if g.Name == name {
		return nil
	}

	old := g.Name
	g.Name = name
	g.UpdatedAt = e.now()
	if err := e.store.UpdateGroup(ctx, g); err != nil {
		return fmt.Errorf("steward: update group: %w", err)
	}

	return e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionGroupRenamed,
		ActorID: actorID,
		GroupID: groupID,
		Params:  map[string]any{"old_name": old, "new_name": name},
	})
}

// DeleteGroup removes a group, its roster, and every grant it holds.
// Rejected when dropping the group's grants would leave any node
// without an ADMIN holder.
func (e *Engine) DeleteGroup(ctx context.Context, groupID id.GroupID, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.getGroup(ctx, groupID); err != nil {
		return err
	}
	if err := e.requireManager(ctx, groupID, actorID); err != nil {
		return err
	}

	grants, err := e.store.ListGrantsForGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("steward: list grants: %w", err)
	}
	for _, g := range grants {
		if g.Level != LevelAdmin {
			continue
		}
		if err := e.checkAdminInvariant(ctx, g.NodeID, hypothetical{removedGroup: groupID}); err != nil {
			return err
		}
	}

	members, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}

	if err := e.store.DeleteGrantsByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("steward: delete grants: %w", err)
	}
	if err := e.store.DeleteMembershipsByGroup(ctx, groupID); err != nil {
		return fmt.Errorf("steward: delete memberships: %w", err)
	}
	if err := e.store.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("steward: delete group: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:  actionlog.ActionGroupDeleted,
		ActorID: actorID,
		GroupID: groupID,
	}); err != nil {
		return err
	}

	for _, m := range members {
		for _, g := range grants {
			e.teardownIfUnreferenced(ctx, m.UserID, g.NodeID)
		}
		e.invalidateUser(ctx, m.UserID)
	}

	e.plugins.EmitGroupDeleted(ctx, groupID)
	e.logger.Info("group deleted", "group", groupID.String())

	return nil
}

// Group retrieves a group by ID.
func (e *Engine) Group(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	return e.getGroup(ctx, groupID)
}

// GroupMembers returns a group's roster.
func (e *Engine) GroupMembers(ctx context.Context, groupID id.GroupID) ([]*group.Membership, error) {
	if _, err := e.getGroup(ctx, groupID); err != nil {
		return nil, err
	}
	ms, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("steward: list memberships: %w", err)
	}
	return ms, nil
}

func (e *Engine) managerCount(ctx context.Context, groupID id.GroupID) (int, error) {
	ms, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("steward: list memberships: %w", err)
	}
	count := 0
	for _, m := range ms {
		if m.Role == group.RoleManager {
			count++
		}
	}
	return count, nil
}
