package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/user"
)

// CanGDPRDelete reports whether an account can be erased. A nil return
// means erasure would succeed; otherwise the error is a *UserStateError
// naming the blocking resource. Erasure is blocked while the user has
// registrations or preprints, is the last registered admin other
// contributors depend on, is the only registered manager of a group
// with other members, belongs alone to a group whose ADMIN grant is the
// last admin source of a surviving node, or has external credentials
// attached to shared nodes.
func (e *Engine) CanGDPRDelete(ctx context.Context, userID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.canGDPRDeleteLocked(ctx, userID)
}

// GDPRDelete erases an account. Nodes where the user is the only
// contributor are tombstoned; on shared nodes the user's entry is
// removed. Groups where the user is the only member are deleted; other
// rosters just lose the user. The account record itself is scrubbed of
// personal data and disabled.
func (e *Engine) GDPRDelete(ctx context.Context, userID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.canGDPRDeleteLocked(ctx, userID); err != nil {
		return err
	}

	u, err := e.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := e.erodeContributions(ctx, userID); err != nil {
		return err
	}
	if err := e.erodeMemberships(ctx, userID); err != nil {
		return err
	}

	now := e.now()
	u.FullName = "Deleted user"
	u.Email = ""
	u.ExternalAccounts = nil
	u.Affiliations = nil
	u.MailingLists = nil
	u.Unclaimed = nil
	u.IsDisabled = true
	u.DeletedAt = &now
	u.UpdatedAt = now
	if err := e.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("steward: update user: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionUserGDPRDeleted,
		TargetID: userID,
	}); err != nil {
		return err
	}

	e.invalidateUser(ctx, userID)
	e.plugins.EmitUserErased(ctx, userID)
	e.logger.Info("user erased", "user", userID.String())

	return nil
}

func (e *Engine) canGDPRDeleteLocked(ctx context.Context, userID id.UserID) error {
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.IsMerged() {
		return fmt.Errorf("%w: user %s has been merged", ErrInvalidOperation, userID)
	}

	nodes, err := e.liveContributedNodes(ctx, userID)
	if err != nil {
		return err
	}

	for _, n := range nodes {
		if n.Kind == node.KindRegistration {
			return &UserStateError{
				UserID: userID,
				NodeID: n.ID,
				Reason: "user has one or more registrations",
			}
		}
	}
	for _, n := range nodes {
		if n.Kind == node.KindPreprint {
			return &UserStateError{
				UserID: userID,
				NodeID: n.ID,
				Reason: "user has one or more preprints",
			}
		}
	}

	for _, n := range nodes {
		shared, err := e.hasOtherContributors(ctx, n.ID, userID)
		if err != nil {
			return err
		}
		if !shared {
			continue
		}

		ok, err := e.hasOtherRegisteredAdmin(ctx, n.ID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return &UserStateError{
				UserID: userID,
				NodeID: n.ID,
				Reason: fmt.Sprintf("node %s has other contributors but no other registered admin", n.ID),
			}
		}
	}

	ms, err := e.store.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}
	for _, m := range ms {
		if m.Role != group.RoleManager {
			continue
		}
		blocked, err := e.isIndispensableManager(ctx, m.GroupID, userID)
		if err != nil {
			return err
		}
		if blocked {
			return &UserStateError{
				UserID:  userID,
				GroupID: m.GroupID,
				Reason:  fmt.Sprintf("user is the only registered manager of group %s, which contains other members", m.GroupID),
			}
		}
	}

	// Erasure deletes groups where the user is alone, taking their
	// grants with them. A live node whose only ADMIN source is such a
	// grant would be left admin-orphaned, so the deletion is blocked.
	for _, m := range ms {
		alone, err := e.soleGroupOccupant(ctx, m.GroupID, userID)
		if err != nil {
			return err
		}
		if !alone {
			continue
		}

		grants, err := e.store.ListGrantsForGroup(ctx, m.GroupID)
		if err != nil {
			return fmt.Errorf("steward: list grants: %w", err)
		}
		for _, g := range grants {
			if g.Level != LevelAdmin {
				continue
			}
			n, err := e.getNode(ctx, g.NodeID)
			if err != nil {
				return err
			}
			if !n.IsLive() {
				continue
			}

			// Nodes the user contributes to alone are tombstoned by the
			// cascade; the invariant does not apply to them.
			c, err := e.store.GetContributor(ctx, g.NodeID, userID)
			if err != nil {
				return fmt.Errorf("steward: load contributor: %w", err)
			}
			if c != nil {
				shared, err := e.hasOtherContributors(ctx, g.NodeID, userID)
				if err != nil {
					return err
				}
				if !shared {
					continue
				}
			}

			holders, err := e.adminHolders(ctx, g.NodeID, hypothetical{
				removedGroup:       m.GroupID,
				removedContributor: userID,
			})
			if err != nil {
				return err
			}
			orphaned := true
			for _, holderID := range holders {
				if holderID != userID {
					orphaned = false
					break
				}
			}
			if orphaned {
				return &UserStateError{
					UserID:  userID,
					NodeID:  g.NodeID,
					GroupID: m.GroupID,
					Reason:  fmt.Sprintf("deleting group %s would leave node %s without an admin", m.GroupID, g.NodeID),
				}
			}
		}
	}

	creds, err := e.external.CredentialsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("steward: list credentials: %w", err)
	}
	for _, cred := range creds {
		n, err := e.getNode(ctx, cred.NodeID)
		if err != nil {
			return err
		}
		if !n.IsLive() {
			continue
		}
		shared, err := e.hasOtherContributors(ctx, n.ID, userID)
		if err != nil {
			return err
		}
		if shared {
			return &UserStateError{
				UserID:   userID,
				NodeID:   n.ID,
				Provider: cred.Provider,
				Reason:   fmt.Sprintf("user has a %s credential attached to node %s, which has other contributors", cred.Provider, n.ID),
			}
		}
	}

	return nil
}

// erodeContributions tombstones sole-contributed nodes and withdraws
// the user from shared ones.
func (e *Engine) erodeContributions(ctx context.Context, userID id.UserID) error {
	nodes, err := e.liveContributedNodes(ctx, userID)
	if err != nil {
		return err
	}

	for _, n := range nodes {
		shared, err := e.hasOtherContributors(ctx, n.ID, userID)
		if err != nil {
			return err
		}

		if !shared {
			if err := e.deleteNodeLocked(ctx, n.ID, id.Nil); err != nil {
				return err
			}
			continue
		}

		if err := e.store.DeleteContributor(ctx, n.ID, userID); err != nil {
			return fmt.Errorf("steward: delete contributor: %w", err)
		}
		if err := e.audit(ctx, &actionlog.Entry{
			Action:   actionlog.ActionContributorRemoved,
			NodeID:   n.ID,
			TargetID: userID,
		}); err != nil {
			return err
		}
		e.teardownIfUnreferenced(ctx, userID, n.ID)
	}

	return nil
}

// erodeMemberships deletes groups where the user is alone and removes
// the user from every other roster.
func (e *Engine) erodeMemberships(ctx context.Context, userID id.UserID) error {
	ms, err := e.store.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}

	for _, m := range ms {
		alone, err := e.soleGroupOccupant(ctx, m.GroupID, userID)
		if err != nil {
			return err
		}

		if alone {
			if err := e.store.DeleteGrantsByGroup(ctx, m.GroupID); err != nil {
				return fmt.Errorf("steward: delete grants: %w", err)
			}
			if err := e.store.DeleteMembershipsByGroup(ctx, m.GroupID); err != nil {
				return fmt.Errorf("steward: delete memberships: %w", err)
			}
			if err := e.store.DeleteGroup(ctx, m.GroupID); err != nil {
				return fmt.Errorf("steward: delete group: %w", err)
			}
			if err := e.audit(ctx, &actionlog.Entry{
				Action:  actionlog.ActionGroupDeleted,
				GroupID: m.GroupID,
			}); err != nil {
				return err
			}
			e.plugins.EmitGroupDeleted(ctx, m.GroupID)
			continue
		}

		grants, err := e.store.ListGrantsForGroup(ctx, m.GroupID)
		if err != nil {
			return fmt.Errorf("steward: list grants: %w", err)
		}
		if err := e.store.DeleteMembership(ctx, m.GroupID, userID); err != nil {
			return fmt.Errorf("steward: delete membership: %w", err)
		}
		if err := e.audit(ctx, &actionlog.Entry{
			Action:   actionlog.ActionMemberRemoved,
			GroupID:  m.GroupID,
			TargetID: userID,
		}); err != nil {
			return err
		}
		for _, g := range grants {
			e.teardownIfUnreferenced(ctx, userID, g.NodeID)
		}
	}

	return nil
}

// liveContributedNodes returns the live nodes the user contributes to.
func (e *Engine) liveContributedNodes(ctx context.Context, userID id.UserID) ([]*node.Node, error) {
	contribs, err := e.store.ListContributions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("steward: list contributions: %w", err)
	}

	nodes := make([]*node.Node, 0, len(contribs))
	for _, c := range contribs {
		n, err := e.getNode(ctx, c.NodeID)
		if err != nil {
			return nil, err
		}
		if n.IsLive() {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// soleGroupOccupant reports whether the user is the group's only member.
func (e *Engine) soleGroupOccupant(ctx context.Context, groupID id.GroupID, userID id.UserID) (bool, error) {
	roster, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("steward: list memberships: %w", err)
	}
	for _, m := range roster {
		if m.UserID != userID {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) hasOtherContributors(ctx context.Context, nodeID id.NodeID, userID id.UserID) (bool, error) {
	contribs, err := e.store.ListContributors(ctx, nodeID)
	if err != nil {
		return false, fmt.Errorf("steward: list contributors: %w", err)
	}
	for _, c := range contribs {
		if c.UserID != userID {
			return true, nil
		}
	}
	return false, nil
}

// hasOtherRegisteredAdmin reports whether the node would keep a
// registered ADMIN holder besides the given user. Unregistered
// placeholder admins do not count.
func (e *Engine) hasOtherRegisteredAdmin(ctx context.Context, nodeID id.NodeID, userID id.UserID) (bool, error) {
	holders, err := e.adminHolders(ctx, nodeID, hypothetical{})
	if err != nil {
		return false, err
	}

	for _, holderID := range holders {
		if holderID == userID {
			continue
		}
		h, err := e.getUser(ctx, holderID)
		if err != nil {
			return false, err
		}
		if registeredAndPresent(h) {
			return true, nil
		}
	}
	return false, nil
}

// isIndispensableManager reports whether the user is the only registered
// manager of a group that still has other members.
func (e *Engine) isIndispensableManager(ctx context.Context, groupID id.GroupID, userID id.UserID) (bool, error) {
	roster, err := e.store.ListMemberships(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("steward: list memberships: %w", err)
	}

	hasOthers := false
	for _, m := range roster {
		if m.UserID == userID {
			continue
		}
		hasOthers = true

		if m.Role != group.RoleManager {
			continue
		}
		other, err := e.getUser(ctx, m.UserID)
		if err != nil {
			return false, err
		}
		if registeredAndPresent(other) {
			return false, nil
		}
	}

	return hasOthers, nil
}

func registeredAndPresent(u *user.User) bool {
	return u.IsRegistered && !u.IsMerged() && !u.IsDisabled && u.DeletedAt == nil
}
