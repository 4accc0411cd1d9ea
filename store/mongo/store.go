// Package mongo provides a MongoDB implementation of the Steward
// composite store backed by grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/store"
	"github.com/xraph/steward/throttle"
	"github.com/xraph/steward/user"
)

// Collection name constants.
const (
	colUsers           = "steward_users"
	colGroups          = "steward_groups"
	colMemberships     = "steward_group_memberships"
	colNodes           = "steward_nodes"
	colContributors    = "steward_contributors"
	colGroupGrants     = "steward_group_grants"
	colActionLog       = "steward_action_log"
	colThrottleRecords = "steward_throttle_records"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Steward store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all steward collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("steward/mongo: migrate %s indexes: %w", col, err)
		}
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all steward collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
			{Keys: bson.D{{Key: "merged_by", Value: 1}}},
		},
		colGroups: {
			{Keys: bson.D{{Key: "creator_id", Value: 1}}},
		},
		colMemberships: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colNodes: {
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
			{Keys: bson.D{{Key: "creator_id", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}}},
		},
		colContributors: {
			{
				Keys:    bson.D{{Key: "node_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colGroupGrants: {
			{
				Keys:    bson.D{{Key: "node_id", Value: 1}, {Key: "group_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "group_id", Value: 1}}},
		},
		colActionLog: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "actor_id", Value: 1}}},
			{Keys: bson.D{{Key: "node_id", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}}},
		},
		colThrottleRecords: {
			{Keys: bson.D{{Key: "last_sent_at", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// User operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if _, err := s.mdb.NewInsert(userToModel(u)).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get user: %w", err)
	}
	return userFromModel(&m), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"email": bson.M{"$regex": "^" + regexp.QuoteMeta(email) + "$", "$options": "i"}}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get user by email: %w", err)
	}
	return userFromModel(&m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := userToModel(u)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: update user: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("steward: update user: no document for %s", u.ID)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, filter *user.ListFilter) ([]*user.User, error) {
	var models []userModel
	f := bson.M{}
	if filter != nil {
		if filter.IsRegistered != nil {
			f["is_registered"] = *filter.IsRegistered
		}
		if filter.IsDisabled != nil {
			f["is_disabled"] = *filter.IsDisabled
		}
		if filter.Search != "" {
			f["full_name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list users: %w", err)
	}
	result := make([]*user.User, len(models))
	for i := range models {
		result[i] = userFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountUsers(ctx context.Context, filter *user.ListFilter) (int64, error) {
	f := bson.M{}
	if filter != nil {
		if filter.IsRegistered != nil {
			f["is_registered"] = *filter.IsRegistered
		}
		if filter.IsDisabled != nil {
			f["is_disabled"] = *filter.IsDisabled
		}
		if filter.Search != "" {
			f["full_name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	count, err := s.mdb.NewFind((*userModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count users: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Group operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	if _, err := s.mdb.NewInsert(groupToModel(g)).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	var m groupModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": groupID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get group: %w", err)
	}
	return groupFromModel(&m), nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	m := groupToModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: update group: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("steward: update group: no document for %s", g.ID)
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID id.GroupID) error {
	_, err := s.mdb.NewDelete((*groupModel)(nil)).
		Filter(bson.M{"_id": groupID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete group: %w", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context, filter *group.ListFilter) ([]*group.Group, error) {
	var models []groupModel
	f := bson.M{}
	if filter != nil {
		if filter.CreatorID != nil {
			f["creator_id"] = filter.CreatorID.String()
		}
		if filter.Search != "" {
			f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	f := bson.M{}
	if filter != nil {
		if filter.CreatorID != nil {
			f["creator_id"] = filter.CreatorID.String()
		}
		if filter.Search != "" {
			f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	count, err := s.mdb.NewFind((*groupModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count groups: %w", err)
	}
	return count, nil
}

func (s *Store) SetMembership(ctx context.Context, m *group.Membership) error {
	model := membershipToModel(m)
	filter := bson.M{"group_id": model.GroupID, "user_id": model.UserID}
	res, err := s.mdb.NewUpdate(model).
		Filter(filter).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: set membership: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.mdb.NewInsert(model).Exec(ctx); err != nil {
			return fmt.Errorf("steward: set membership: %w", err)
		}
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, groupID id.GroupID, userID id.UserID) (*group.Membership, error) {
	var m membershipModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"group_id": groupID.String(), "user_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get membership: %w", err)
	}
	return membershipFromModel(&m), nil
}

func (s *Store) DeleteMembership(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	_, err := s.mdb.NewDelete((*membershipModel)(nil)).
		Filter(bson.M{"group_id": groupID.String(), "user_id": userID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete membership: %w", err)
	}
	return nil
}

func (s *Store) ListMemberships(ctx context.Context, groupID id.GroupID) ([]*group.Membership, error) {
	var models []membershipModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"group_id": groupID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
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
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list memberships for user: %w", err)
	}
	result := make([]*group.Membership, len(models))
	for i := range models {
		result[i] = membershipFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteMembershipsByGroup(ctx context.Context, groupID id.GroupID) error {
	_, err := s.mdb.NewDelete((*membershipModel)(nil)).
		Many().
		Filter(bson.M{"group_id": groupID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete memberships by group: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Node operations
// ──────────────────────────────────────────────────

func (s *Store) CreateNode(ctx context.Context, n *node.Node) error {
	if _, err := s.mdb.NewInsert(nodeToModel(n)).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create node: %w", err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	var m nodeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": nodeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get node: %w", err)
	}
	return nodeFromModel(&m), nil
}

func (s *Store) UpdateNode(ctx context.Context, n *node.Node) error {
	m := nodeToModel(n)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: update node: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("steward: update node: no document for %s", n.ID)
	}
	return nil
}

func nodeFilter(filter *node.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil || !filter.IncludeDeleted {
		f["is_deleted"] = false
	}
	if filter != nil {
		if filter.Kind != "" {
			f["kind"] = string(filter.Kind)
		}
		if filter.CreatorID != nil {
			f["creator_id"] = filter.CreatorID.String()
		}
		if filter.ParentID != nil {
			f["parent_id"] = filter.ParentID.String()
		}
		if filter.Search != "" {
			f["title"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	return f
}

func (s *Store) ListNodes(ctx context.Context, filter *node.ListFilter) ([]*node.Node, error) {
	var models []nodeModel
	q := s.mdb.NewFind(&models).
		Filter(nodeFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*nodeModel)(nil)).
		Filter(nodeFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count nodes: %w", err)
	}
	return count, nil
}

func (s *Store) ListChildren(ctx context.Context, nodeID id.NodeID) ([]*node.Node, error) {
	var models []nodeModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"parent_id": nodeID.String(), "is_deleted": false}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list children: %w", err)
	}
	result := make([]*node.Node, len(models))
	for i := range models {
		result[i] = nodeFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpsertContributor(ctx context.Context, c *node.Contributor) error {
	model := contributorToModel(c)
	filter := bson.M{"node_id": model.NodeID, "user_id": model.UserID}
	res, err := s.mdb.NewUpdate(model).
		Filter(filter).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: upsert contributor: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.mdb.NewInsert(model).Exec(ctx); err != nil {
			return fmt.Errorf("steward: upsert contributor: %w", err)
		}
	}
	return nil
}

func (s *Store) GetContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID) (*node.Contributor, error) {
	var m contributorModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"node_id": nodeID.String(), "user_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get contributor: %w", err)
	}
	return contributorFromModel(&m), nil
}

func (s *Store) DeleteContributor(ctx context.Context, nodeID id.NodeID, userID id.UserID) error {
	_, err := s.mdb.NewDelete((*contributorModel)(nil)).
		Filter(bson.M{"node_id": nodeID.String(), "user_id": userID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete contributor: %w", err)
	}
	return nil
}

func (s *Store) ListContributors(ctx context.Context, nodeID id.NodeID) ([]*node.Contributor, error) {
	var models []contributorModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"node_id": nodeID.String()}).
		Sort(bson.D{{Key: "ordering", Value: 1}, {Key: "user_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list contributors: %w", err)
	}
	result := make([]*node.Contributor, len(models))
	for i := range models {
		result[i] = contributorFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListContributions(ctx context.Context, userID id.UserID) ([]*node.Contributor, error) {
	var models []contributorModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list contributions: %w", err)
	}
	result := make([]*node.Contributor, len(models))
	for i := range models {
		result[i] = contributorFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpsertGroupGrant(ctx context.Context, g *node.GroupGrant) error {
	model := groupGrantToModel(g)
	filter := bson.M{"node_id": model.NodeID, "group_id": model.GroupID}
	res, err := s.mdb.NewUpdate(model).
		Filter(filter).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: upsert group grant: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.mdb.NewInsert(model).Exec(ctx); err != nil {
			return fmt.Errorf("steward: upsert group grant: %w", err)
		}
	}
	return nil
}

func (s *Store) GetGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID) (*node.GroupGrant, error) {
	var m groupGrantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"node_id": nodeID.String(), "group_id": groupID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get group grant: %w", err)
	}
	return groupGrantFromModel(&m), nil
}

func (s *Store) DeleteGroupGrant(ctx context.Context, nodeID id.NodeID, groupID id.GroupID) error {
	_, err := s.mdb.NewDelete((*groupGrantModel)(nil)).
		Filter(bson.M{"node_id": nodeID.String(), "group_id": groupID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete group grant: %w", err)
	}
	return nil
}

func (s *Store) ListGroupGrants(ctx context.Context, nodeID id.NodeID) ([]*node.GroupGrant, error) {
	var models []groupGrantModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"node_id": nodeID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list group grants: %w", err)
	}
	result := make([]*node.GroupGrant, len(models))
	for i := range models {
		result[i] = groupGrantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListGrantsForGroup(ctx context.Context, groupID id.GroupID) ([]*node.GroupGrant, error) {
	var models []groupGrantModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"group_id": groupID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list grants for group: %w", err)
	}
	result := make([]*node.GroupGrant, len(models))
	for i := range models {
		result[i] = groupGrantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteGrantsByGroup(ctx context.Context, groupID id.GroupID) error {
	_, err := s.mdb.NewDelete((*groupGrantModel)(nil)).
		Many().
		Filter(bson.M{"group_id": groupID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete grants by group: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Action log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateEntry(ctx context.Context, e *actionlog.Entry) error {
	if _, err := s.mdb.NewInsert(actionLogToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create log entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, logID id.LogID) (*actionlog.Entry, error) {
	var m actionLogModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": logID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get log entry: %w", err)
	}
	return actionLogFromModel(&m), nil
}

func logFilter(filter *actionlog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Action != "" {
		f["action"] = string(filter.Action)
	}
	if !filter.ActorID.IsNil() {
		f["actor_id"] = filter.ActorID.String()
	}
	if !filter.GroupID.IsNil() {
		f["group_id"] = filter.GroupID.String()
	}
	if !filter.NodeID.IsNil() {
		f["node_id"] = filter.NodeID.String()
	}
	if !filter.TargetID.IsNil() {
		f["target_id"] = filter.TargetID.String()
	}
	created := bson.M{}
	if filter.After != nil {
		created["$gte"] = *filter.After
	}
	if filter.Before != nil {
		created["$lte"] = *filter.Before
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
	return f
}

func (s *Store) ListEntries(ctx context.Context, filter *actionlog.QueryFilter) ([]*actionlog.Entry, error) {
	var models []actionLogModel
	q := s.mdb.NewFind(&models).
		Filter(logFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list log entries: %w", err)
	}
	result := make([]*actionlog.Entry, len(models))
	for i := range models {
		result[i] = actionLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context, filter *actionlog.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*actionLogModel)(nil)).
		Filter(logFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count log entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*actionLogModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge log entries: %w", err)
	}
	return res.DeletedCount(), nil
}

// ──────────────────────────────────────────────────
// Throttle record operations
// ──────────────────────────────────────────────────

func (s *Store) GetRecord(ctx context.Context, key string) (*throttle.Record, error) {
	var m throttleRecordModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("steward: get throttle record: %w", err)
	}
	return throttleRecordFromModel(&m), nil
}

func (s *Store) PutRecord(ctx context.Context, r *throttle.Record) error {
	model := throttleRecordToModel(r)
	res, err := s.mdb.NewUpdate(model).
		Filter(bson.M{"_id": model.Key}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: put throttle record: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.mdb.NewInsert(model).Exec(ctx); err != nil {
			return fmt.Errorf("steward: put throttle record: %w", err)
		}
	}
	return nil
}

func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*throttleRecordModel)(nil)).
		Many().
		Filter(bson.M{"last_sent_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge throttle records: %w", err)
	}
	return res.DeletedCount(), nil
}
