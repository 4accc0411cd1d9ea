// Package sqlite provides a SQLite-backed Steward store using grove.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/store"
	"github.com/xraph/steward/throttle"
	"github.com/xraph/steward/user"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite Steward store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// User operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	m, err := userToModel(u)
	if err != nil {
		return fmt.Errorf("steward: create user: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).Where("id = ?", userID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get user: %w", err)
	}
	return userFromModel(m)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("email != ''").
		Where("LOWER(email) = LOWER(?)", email).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get user by email: %w", err)
	}
	return userFromModel(m)
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m, err := userToModel(u)
	if err != nil {
		return fmt.Errorf("steward: update user: %w", err)
	}
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward: update user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, filter *user.ListFilter) ([]*user.User, error) {
	var models []userModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.IsRegistered != nil {
			q = q.Where("is_registered = ?", *filter.IsRegistered)
		}
		if filter.IsDisabled != nil {
			q = q.Where("is_disabled = ?", *filter.IsDisabled)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(full_name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list users: %w", err)
	}
	result := make([]*user.User, len(models))
	for i := range models {
		u, err := userFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: list users: %w", err)
		}
		result[i] = u
	}
	return result, nil
}

func (s *Store) CountUsers(ctx context.Context, filter *user.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*userModel)(nil))
	if filter != nil {
		if filter.IsRegistered != nil {
			q = q.Where("is_registered = ?", *filter.IsRegistered)
		}
		if filter.IsDisabled != nil {
			q = q.Where("is_disabled = ?", *filter.IsDisabled)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(full_name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count users: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Group operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	if _, err := s.sdb.NewInsert(groupToModel(g)).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	m := new(groupModel)
	err := s.sdb.NewSelect(m).Where("id = ?", groupID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get group: %w", err)
	}
	return groupFromModel(m), nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	if _, err := s.sdb.NewUpdate(groupToModel(g)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward: update group: %w", err)
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID id.GroupID) error {
	_, err := s.sdb.NewDelete((*groupModel)(nil)).
		Where("id = ?", groupID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete group: %w", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context, filter *group.ListFilter) ([]*group.Group, error) {
	var models []groupModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.CreatorID != nil {
			q = q.Where("creator_id = ?", filter.CreatorID.String())
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list groups: %w", err)
	}
	result := make([]*group.Group, len(models))
	for i := range models {
		result[i] = groupFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountGroups(ctx context.Context, filter *group.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*groupModel)(nil))
	if filter != nil {
		if filter.CreatorID != nil {
			q = q.Where("creator_id = ?", filter.CreatorID.String())
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count groups: %w", err)
	}
	return count, nil
}

func (s *Store) SetMembership(ctx context.Context, m *group.Membership) error {
	_, err := s.sdb.NewInsert(membershipToModel(m)).
		OnConflict("(group_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: set membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, groupID id.GroupID, userID id.UserID) (*group.Membership, error) {
	m := new(membershipModel)
	err := s.sdb.NewSelect(m).
		Where("group_id = ?", groupID.String()).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get membership: %w", err)
	}
	return membershipFromModel(m), nil
}

func (s *Store) DeleteMembership(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	_, err := s.sdb.NewDelete((*membershipModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("user_id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete membership: %w", err)
	}
	return nil
}

func (s *Store) ListMemberships(ctx context.Context, groupID id.GroupID) ([]*group.Membership, error) {
	var models []membershipModel
	err := s.sdb.NewSelect(&models).
		Where("group_id = ?", groupID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list memberships: %w", err)
	}
	result := make([]*group.Membership, len(models))
	for i := range models {
		result[i] = membershipFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListMembershipsForUser(ctx context.Context, userID id.UserID) ([]*group.Membership, error) {
	var models []membershipModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list memberships for user: %w", err)
	}
	result := make([]*group.Membership, len(models))
	for i := range models {
		result[i] = membershipFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteMembershipsByGroup(ctx context.Context, groupID id.GroupID) error {
	_, err := s.sdb.NewDelete((*membershipModel)(nil)).
		Where("group_id = ?", groupID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete memberships by group: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Node operations
// ──────────────────────────────────────────────────

func (s *Store) CreateNode(ctx context.Context, n *node.Node) error {
	if _, err := s.sdb.NewInsert(nodeToModel(n)).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create node: %w", err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	m := new(nodeModel)
	err := s.sdb.NewSelect(m).Where("id = ?", nodeID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get node: %w", err)
	}
	return nodeFromModel(m), nil
}

func (s *Store) UpdateNode(ctx context.Context, n *node.Node) error {
	if _, err := s.sdb.NewUpdate(nodeToModel(n)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward: update node: %w", err)
	}
	return nil
}

func (s *Store) ListNodes(ctx context.Context, filter *node.ListFilter) ([]*node.Node, error) {
	var models []nodeModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter == nil || !filter.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where("kind = ?", string(filter.Kind))
		}
		if filter.CreatorID != nil {
			q = q.Where("creator_id = ?", filter.CreatorID.String())
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
		if filter.Search != "" {
			q = q.Where("LOWER(title) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list nodes: %w", err)
	}
	result := make([]*node.Node, len(models))
	for i := range models {
		result[i] = nodeFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountNodes(ctx context.Context, filter *node.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*nodeModel)(nil))
	if filter == nil || !filter.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where("kind = ?", string(filter.Kind))
		}
		if filter.CreatorID != nil {
			q = q.Where("creator_id = ?", filter.CreatorID.String())
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
		if filter.Search != "" {
			q = q.Where("LOWER(title) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count nodes: %w", err)
	}
	return count, nil
}

func (s *Store) ListChildren(ctx context.Context, nodeID id.NodeID) ([]*node.Node, error) {
	var models []nodeModel
	err := s.sdb.NewSelect(&models).
		Where("parent_id = ?", nodeID.String()).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list children: %w", err)
	}
	result := make([]*node.Node, len(models))
	for i := range models {
		result[i] = nodeFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpsertContributor(ctx context.Context, c *node.Contributor) error {
	_, err := s.sdb.NewInsert(contributorToModel(c)).
		OnConflict("(node_id, user_id) DO UPDATE SET level = EXCLUDED.level, visible = EXCLUDED.visible, ordering = EXCLUDED.ordering, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: upsert contributor: %w", err)
	}
	return nil
}

func (s *Store) GetContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID) (*node.Contributor, error) {
	m := new(contributorModel)
	err := s.sdb.NewSelect(m).
		Where("node_id = ?", nodeID.String()).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get contributor: %w", err)
	}
	return contributorFromModel(m)
}

func (s *Store) DeleteContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID) error {
	_, err := s.sdb.NewDelete((*contributorModel)(nil)).
		Where("node_id = ?", nodeID.String()).
		Where("user_id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete contributor: %w", err)
	}
	return nil
}

func (s *Store) ListContributors(ctx context.Context, nodeID id.NodeID) ([]*node.Contributor, error) {
	var models []contributorModel
	err := s.sdb.NewSelect(&models).
		Where("node_id = ?", nodeID.String()).
		OrderExpr("ordering ASC, user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list contributors: %w", err)
	}
	result := make([]*node.Contributor, len(models))
	for i := range models {
		c, err := contributorFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: list contributors: %w", err)
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) ListContributions(ctx context.Context, userID id.UserID) ([]*node.Contributor, error) {
	var models []contributorModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list contributions: %w", err)
	}
	result := make([]*node.Contributor, len(models))
	for i := range models {
		c, err := contributorFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: list contributions: %w", err)
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpsertGroupGrant(ctx context.Context, g *node.GroupGrant) error {
	_, err := s.sdb.NewInsert(groupGrantToModel(g)).
		OnConflict("(node_id, group_id) DO UPDATE SET level = EXCLUDED.level, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: upsert group grant: %w", err)
	}
	return nil
}

func (s *Store) GetGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID) (*node.GroupGrant, error) {
	m := new(groupGrantModel)
	err := s.sdb.NewSelect(m).
		Where("node_id = ?", nodeID.String()).
		Where("group_id = ?", groupID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get group grant: %w", err)
	}
	return groupGrantFromModel(m)
}

func (s *Store) DeleteGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID) error {
	_, err := s.sdb.NewDelete((*groupGrantModel)(nil)).
		Where("node_id = ?", nodeID.String()).
		Where("group_id = ?", groupID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete group grant: %w", err)
	}
	return nil
}

func (s *Store) ListGroupGrants(ctx context.Context, nodeID id.NodeID) ([]*node.GroupGrant, error) {
	var models []groupGrantModel
	err := s.sdb.NewSelect(&models).
		Where("node_id = ?", nodeID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list group grants: %w", err)
	}
	result := make([]*node.GroupGrant, len(models))
	for i := range models {
		g, err := groupGrantFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: list group grants: %w", err)
		}
		result[i] = g
	}
	return result, nil
}

func (s *Store) ListGrantsForGroup(ctx context.Context, groupID id.GroupID) ([]*node.GroupGrant, error) {
	var models []groupGrantModel
	err := s.sdb.NewSelect(&models).
		Where("group_id = ?", groupID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list grants for group: %w", err)
	}
	result := make([]*node.GroupGrant, len(models))
	for i := range models {
		g, err := groupGrantFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: list grants for group: %w", err)
		}
		result[i] = g
	}
	return result, nil
}

func (s *Store) DeleteGrantsByGroup(ctx context.Context, groupID id.GroupID) error {
	_, err := s.sdb.NewDelete((*groupGrantModel)(nil)).
		Where("group_id = ?", groupID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete grants by group: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Action log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateEntry(ctx context.Context, e *actionlog.Entry) error {
	m, err := actionLogToModel(e)
	if err != nil {
		return fmt.Errorf("steward: create log entry: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create log entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, logID id.LogID) (*actionlog.Entry, error) {
	m := new(actionLogModel)
	err := s.sdb.NewSelect(m).Where("id = ?", logID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get log entry: %w", err)
	}
	return actionLogFromModel(m)
}

func (s *Store) ListEntries(ctx context.Context, filter *actionlog.QueryFilter) ([]*actionlog.Entry, error) {
	var models []actionLogModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if filter != nil {
		if filter.Action != "" {
			q = q.Where("action = ?", string(filter.Action))
		}
		if !filter.ActorID.IsNil() {
			q = q.Where("actor_id = ?", filter.ActorID.String())
		}
		if !filter.GroupID.IsNil() {
			q = q.Where("group_id = ?", filter.GroupID.String())
		}
		if !filter.NodeID.IsNil() {
			q = q.Where("node_id = ?", filter.NodeID.String())
		}
		if !filter.TargetID.IsNil() {
			q = q.Where("target_id = ?", filter.TargetID.String())
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list log entries: %w", err)
	}
	result := make([]*actionlog.Entry, len(models))
	for i := range models {
		e, err := actionLogFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: list log entries: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context, filter *actionlog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*actionLogModel)(nil))
	if filter != nil {
		if filter.Action != "" {
			q = q.Where("action = ?", string(filter.Action))
		}
		if !filter.ActorID.IsNil() {
			q = q.Where("actor_id = ?", filter.ActorID.String())
		}
		if !filter.GroupID.IsNil() {
			q = q.Where("group_id = ?", filter.GroupID.String())
		}
		if !filter.NodeID.IsNil() {
			q = q.Where("node_id = ?", filter.NodeID.String())
		}
		if !filter.TargetID.IsNil() {
			q = q.Where("target_id = ?", filter.TargetID.String())
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count log entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*actionLogModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge log entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("steward: purge log entries rows: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Throttle record operations
// ──────────────────────────────────────────────────

func (s *Store) GetRecord(ctx context.Context, key string) (*throttle.Record, error) {
	m := new(throttleRecordModel)
	err := s.sdb.NewSelect(m).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get throttle record: %w", err)
	}
	return throttleRecordFromModel(m), nil
}

func (s *Store) PutRecord(ctx context.Context, r *throttle.Record) error {
	_, err := s.sdb.NewInsert(throttleRecordToModel(r)).
		OnConflict("(key) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: put throttle record: %w", err)
	}
	return nil
}

func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*throttleRecordModel)(nil)).
		Where("last_sent_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge throttle records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("steward: purge throttle records rows: %w", err)
	}
	return n, nil
}
