package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/notify"
	"github.com/xraph/steward/user"
)

// MergeUsers absorbs the duplicate account into the primary one.
// Contributor entries move to the primary, unioning levels and OR-ing
// visibility where both accounts contributed to the same node; the
// primary's listing position wins. Group memberships transfer with the
// stronger role surviving on conflict. The duplicate keeps its record,
// marked with the account that absorbed it, so later operations can
// redirect. Only the primary account holder (or the system) may merge.
func (e *Engine) MergeUsers(ctx context.Context, primaryID, duplicateID id.UserID, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mergeUsersLocked(ctx, primaryID, duplicateID, actorID)
}

// MergeByEmail merges the account owning the given email address into
// the primary account. This is the confirmation step of the "add a
// second email" flow.
func (e *Engine) MergeByEmail(ctx context.Context, primaryID id.UserID, email string, actorID id.UserID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dup, err := e.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("steward: lookup email: %w", err)
	}
	if dup == nil {
		return fmt.Errorf("%w: no account with email %s", ErrNotFound, email)
	}

	return e.mergeUsersLocked(ctx, primaryID, dup.ID, actorID)
}

func (e *Engine) mergeUsersLocked(ctx context.Context, primaryID, duplicateID id.UserID, actorID id.UserID) error {
	if primaryID == duplicateID {
		return fmt.Errorf("%w: cannot merge an account into itself", ErrInvalidOperation)
	}

	primary, err := e.getUser(ctx, primaryID)
	if err != nil {
		return err
	}
	dup, err := e.getUser(ctx, duplicateID)
	if err != nil {
		return err
	}
	if primary.IsMerged() {
		return fmt.Errorf("%w: primary account %s has itself been merged", ErrInvalidOperation, primaryID)
	}
	if dup.IsMerged() {
		return fmt.Errorf("%w: account %s has already been merged", ErrInvalidOperation, duplicateID)
	}

	if !isSystem(actorID) && actorID != primaryID {
		return fmt.Errorf("%w: only the primary account holder may merge", ErrPermissionDenied)
	}

	now := e.now()

	if err := e.mergeContributions(ctx, primary, dup); err != nil {
		return err
	}
	if err := e.mergeMemberships(ctx, primary, dup); err != nil {
		return err
	}

	// Nodes created by the duplicate now list the primary as creator.
	dupID := dup.ID
	created, err := e.store.ListNodes(ctx, &node.ListFilter{CreatorID: &dupID, IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("steward: list nodes: %w", err)
	}
	for _, n := range created {
		n.CreatorID = primary.ID
		n.UpdatedAt = now
		if err := e.store.UpdateNode(ctx, n); err != nil {
			return fmt.Errorf("steward: update node: %w", err)
		}
	}

	mergeProfile(primary, dup)
	primary.UpdatedAt = now
	if err := e.store.UpdateUser(ctx, primary); err != nil {
		return fmt.Errorf("steward: update user: %w", err)
	}

	dup.MergedBy = &primary.ID
	dup.ExternalAccounts = nil
	dup.MailingLists = nil
	dup.UpdatedAt = now
	if err := e.store.UpdateUser(ctx, dup); err != nil {
		return fmt.Errorf("steward: update user: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionUsersMerged,
		ActorID:  actorID,
		TargetID: dup.ID,
		Params:   map[string]any{"into": primary.ID.String()},
	}); err != nil {
		return err
	}

	e.emit(ctx, &notify.Event{
		Kind:        notify.KindAccountMerged,
		RecipientID: primary.ID,
		ActorID:     actorID,
		MergedID:    dup.ID,
	})

	e.invalidateUser(ctx, primary.ID)
	e.invalidateUser(ctx, dup.ID)
	e.plugins.EmitUsersMerged(ctx, primary.ID, dup.ID)

	e.logger.Info("accounts merged",
		"primary", primary.ID.String(), "duplicate", dup.ID.String())

	return nil
}

func (e *Engine) mergeContributions(ctx context.Context, primary, dup *user.User) error {
	contribs, err := e.store.ListContributions(ctx, dup.ID)
	if err != nil {
		return fmt.Errorf("steward: list contributions: %w", err)
	}

	now := e.now()
	for _, c := range contribs {
		if err := e.store.DeleteContributor(ctx, c.NodeID, dup.ID); err != nil {
			return fmt.Errorf("steward: delete contributor: %w", err)
		}

		p, err := e.store.GetContributor(ctx, c.NodeID, primary.ID)
		if err != nil {
			return fmt.Errorf("steward: load contributor: %w", err)
		}
		if p != nil {
			p.Level = level.Union(p.Level, c.Level)
			p.Visible = p.Visible || c.Visible
			p.UpdatedAt = now
			if err := e.store.UpsertContributor(ctx, p); err != nil {
				return fmt.Errorf("steward: upsert contributor: %w", err)
			}
			continue
		}

		if err := e.store.UpsertContributor(ctx, &node.Contributor{
			NodeID:    c.NodeID,
			UserID:    primary.ID,
			Level:     c.Level,
			Visible:   c.Visible,
			Order:     c.Order,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("steward: upsert contributor: %w", err)
		}
	}

	return nil
}

func (e *Engine) mergeMemberships(ctx context.Context, primary, dup *user.User) error {
	ms, err := e.store.ListMembershipsForUser(ctx, dup.ID)
	if err != nil {
		return fmt.Errorf("steward: list memberships: %w", err)
	}

	now := e.now()
	for _, m := range ms {
		pm, err := e.store.GetMembership(ctx, m.GroupID, primary.ID)
		if err != nil {
			return fmt.Errorf("steward: load membership: %w", err)
		}

		if err := e.store.DeleteMembership(ctx, m.GroupID, dup.ID); err != nil {
			return fmt.Errorf("steward: delete membership: %w", err)
		}

		if pm == nil {
			if err := e.store.SetMembership(ctx, &group.Membership{
				GroupID:   m.GroupID,
				UserID:    primary.ID,
				Role:      m.Role,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return fmt.Errorf("steward: set membership: %w", err)
			}
			continue
		}

		// The stronger role survives: a primary member absorbing a
		// duplicate manager inherits the manager role.
		if pm.Role == group.RoleMember && m.Role == group.RoleManager {
			pm.Role = group.RoleManager
			pm.UpdatedAt = now
			if err := e.store.SetMembership(ctx, pm); err != nil {
				return fmt.Errorf("steward: set membership: %w", err)
			}
		}
	}

	return nil
}

// mergeProfile folds the duplicate's linked accounts and subscriptions
// into the primary.
func mergeProfile(primary, dup *user.User) {
	for _, a := range dup.ExternalAccounts {
		if !primary.HasExternalAccount(a.Provider, a.AccountID) {
			primary.ExternalAccounts = append(primary.ExternalAccounts, a)
		}
	}

	primary.Affiliations = unionStrings(primary.Affiliations, dup.Affiliations)
	primary.MailingLists = unionStrings(primary.MailingLists, dup.MailingLists)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := a
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
