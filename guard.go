package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/id"
)

// hypothetical describes a mutation the guard evaluates before it is
// applied: entries removed or re-leveled, a grant removed or re-leveled,
// a member leaving a group, or a whole group disappearing.
type hypothetical struct {
	removedContributor id.UserID
	contributorLevels  map[string]Level

	removedGrantGroup id.GroupID
	grantLevels       map[string]Level

	removedMemberGroup id.GroupID
	removedMemberUser  id.UserID

	removedGroup id.GroupID
}

// adminHolders returns the users who would hold ADMIN on the node after
// the hypothetical mutation, counting the node's own contributor entries
// and ADMIN-level group grants. Inherited ancestor ADMIN does not count:
// the admin invariant is local to each node's ledger.
func (e *Engine) adminHolders(ctx context.Context, nodeID id.NodeID, hyp hypothetical) (map[string]id.UserID, error) {
	holders := make(map[string]id.UserID)

	contribs, err := e.store.ListContributors(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("steward: list contributors: %w", err)
	}
	for _, c := range contribs {
		if !hyp.removedContributor.IsNil() && c.UserID == hyp.removedContributor {
			continue
		}
		lvl := c.Level
		if override, ok := hyp.contributorLevels[c.UserID.String()]; ok {
			lvl = override
		}
		if lvl == LevelAdmin {
			holders[c.UserID.String()] = c.UserID
		}
	}

	grants, err := e.store.ListGroupGrants(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("steward: list group grants: %w", err)
	}
	for _, g := range grants {
		if !hyp.removedGrantGroup.IsNil() && g.GroupID == hyp.removedGrantGroup {
			continue
		}
		if !hyp.removedGroup.IsNil() && g.GroupID == hyp.removedGroup {
			continue
		}
		lvl := g.Level
		if override, ok := hyp.grantLevels[g.GroupID.String()]; ok {
			lvl = override
		}
		if lvl != LevelAdmin {
			continue
		}

		members, err := e.store.ListMemberships(ctx, g.GroupID)
		if err != nil {
			return nil, fmt.Errorf("steward: list memberships: %w", err)
		}
		for _, m := range members {
			if m.GroupID == hyp.removedMemberGroup && m.UserID == hyp.removedMemberUser {
				continue
			}
			holders[m.UserID.String()] = m.UserID
		}
	}

	return holders, nil
}

// checkAdminInvariant rejects a mutation that would leave a live node
// without a single ADMIN holder. Tombstoned nodes are exempt.
func (e *Engine) checkAdminInvariant(ctx context.Context, nodeID id.NodeID, hyp hypothetical) error {
	n, err := e.getNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if !n.IsLive() {
		return nil
	}

	holders, err := e.adminHolders(ctx, nodeID, hyp)
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		return fmt.Errorf("%w: node %s would be left without an admin", ErrInvariantViolation, nodeID)
	}
	return nil
}

// ResidualSources reports the sources through which a user still derives
// permission on a node: a direct contributor entry, a grant held by one
// of their groups, or ADMIN inherited from an ancestor. The engine
// tears down external state for the pair only once the set is empty.
func (e *Engine) ResidualSources(ctx context.Context, userID id.UserID, nodeID id.NodeID) (SourceSet, error) {
	sources := make(SourceSet)
	if userID.IsNil() {
		return sources, nil
	}

	n, err := e.getNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	c, err := e.store.GetContributor(ctx, nodeID, userID)
	if err != nil {
		return nil, fmt.Errorf("steward: load contributor: %w", err)
	}
	if c != nil {
		sources.add(SourceDirect)
	}

	grants, err := e.store.ListGroupGrants(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("steward: list group grants: %w", err)
	}
	for _, g := range grants {
		m, err := e.store.GetMembership(ctx, g.GroupID, userID)
		if err != nil {
			return nil, fmt.Errorf("steward: load membership: %w", err)
		}
		if m != nil {
			sources.add(SourceGroup)
			break
		}
	}

	visited := map[string]struct{}{nodeID.String(): {}}
	cur := n
	for depth := 0; cur.ParentID != nil; depth++ {
		if depth >= e.config.MaxTreeDepth {
			return nil, fmt.Errorf("%w: at node %s", ErrTreeDepthExceeded, cur.ID)
		}

		parent, err := e.getNode(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		if _, seen := visited[parent.ID.String()]; seen {
			break
		}
		visited[parent.ID.String()] = struct{}{}

		if parent.IsLive() && !sources.Has(SourceAncestor) {
			pc, err := e.store.GetContributor(ctx, parent.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("steward: load contributor: %w", err)
			}
			if pc != nil && pc.Level == LevelAdmin {
				sources.add(SourceAncestor)
			} else {
				pgrants, err := e.store.ListGroupGrants(ctx, parent.ID)
				if err != nil {
					return nil, fmt.Errorf("steward: list group grants: %w", err)
				}
				for _, g := range pgrants {
					if g.Level != LevelAdmin {
						continue
					}
					m, err := e.store.GetMembership(ctx, g.GroupID, userID)
					if err != nil {
						return nil, fmt.Errorf("steward: load membership: %w", err)
					}
					if m != nil {
						sources.add(SourceAncestor)
						break
					}
				}
			}
		}

		cur = parent
	}

	return sources, nil
}

// teardownIfUnreferenced releases the external state the host holds for
// a (user, node) pair once the user derives no permission there at all.
// Release failures are logged; the revocation itself has already
// committed and is not rolled back.
func (e *Engine) teardownIfUnreferenced(ctx context.Context, userID id.UserID, nodeID id.NodeID) {
	sources, err := e.ResidualSources(ctx, userID, nodeID)
	if err != nil {
		e.logger.Warn("residual source check failed",
			"user", userID.String(), "node", nodeID.String(), "error", err)
		return
	}
	if !sources.Empty() {
		return
	}

	if err := e.external.ReleaseCredentials(ctx, nodeID, userID); err != nil {
		e.logger.Warn("credential release failed",
			"user", userID.String(), "node", nodeID.String(), "error", err)
	}
	if err := e.external.ReleaseCheckouts(ctx, nodeID, userID); err != nil {
		e.logger.Warn("checkout release failed",
			"user", userID.String(), "node", nodeID.String(), "error", err)
	}
	if err := e.external.RemoveSubscriptions(ctx, nodeID, userID); err != nil {
		e.logger.Warn("subscription removal failed",
			"user", userID.String(), "node", nodeID.String(), "error", err)
	}

	e.logger.Debug("external state released",
		"user", userID.String(), "node", nodeID.String())
}
