// Package memory provides an in-memory implementation of the Steward
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/throttle"
	"github.com/xraph/steward/user"
)

// Compile-time interface checks.
var (
	_ user.Store      = (*Store)(nil)
	_ group.Store     = (*Store)(nil)
	_ node.Store      = (*Store)(nil)
	_ actionlog.Store = (*Store)(nil)
	_ throttle.Store  = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Steward entities.
type Store struct {
	mu sync.RWMutex

	users        map[string]*user.User
	groups       map[string]*group.Group
	memberships  map[string]map[string]*group.Membership // groupID -> userID -> membership
	nodes        map[string]*node.Node
	contributors map[string]map[string]*node.Contributor // nodeID -> userID -> contributor
	grants       map[string]map[string]*node.GroupGrant  // nodeID -> groupID -> grant
	logs         map[string]*actionlog.Entry
	throttles    map[string]*throttle.Record
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]*user.User),
		groups:       make(map[string]*group.Group),
		memberships:  make(map[string]map[string]*group.Membership),
		nodes:        make(map[string]*node.Node),
		contributors: make(map[string]map[string]*node.Contributor),
		grants:       make(map[string]map[string]*node.GroupGrant),
		logs:         make(map[string]*actionlog.Entry),
		throttles:    make(map[string]*throttle.Record),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// User Store
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID.String()] = copyUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID.String()]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	if email == "" {
		return nil, nil
	}
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID.String()] = copyUser(u)
	return nil
}

func (s *Store) ListUsers(_ context.Context, filter *user.ListFilter) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		if filter != nil {
			if filter.IsRegistered != nil && u.IsRegistered != *filter.IsRegistered {
				continue
			}
			if filter.IsDisabled != nil && u.IsDisabled != *filter.IsDisabled {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(u.FullName), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyUser(u))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	if filter != nil {
		result = applyPagination(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) CountUsers(ctx context.Context, filter *user.ListFilter) (int64, error) {
	var f user.ListFilter
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListUsers(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ──────────────────────────────────────────────────
// Group Store
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID.String()] = copyGroup(g)
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID id.GroupID) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID.String()]
	if !ok {
		return nil, nil
	}
	return copyGroup(g), nil
}

func (s *Store) UpdateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID.String()] = copyGroup(g)
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID.String())
	return nil
}

func (s *Store) ListGroups(_ context.Context, filter *group.ListFilter) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*group.Group, 0, len(s.groups))
	for _, g := range s.groups {
		if filter != nil {
			if filter.CreatorID != nil && g.CreatorID != *filter.CreatorID {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyGroup(g))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	if filter != nil {
		result = applyPagination(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) CountGroups(ctx context.Context, filter *group.ListFilter) (int64, error) {
	var f group.ListFilter
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListGroups(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) SetMembership(_ context.Context, m *group.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := m.GroupID.String()
	if s.memberships[gk] == nil {
		s.memberships[gk] = make(map[string]*group.Membership)
	}
	s.memberships[gk][m.UserID.String()] = copyMembership(m)
	return nil
}

func (s *Store) GetMembership(_ context.Context, groupID id.GroupID, userID id.UserID) (*group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[groupID.String()][userID.String()]
	if !ok {
		return nil, nil
	}
	return copyMembership(m), nil
}

func (s *Store) DeleteMembership(_ context.Context, groupID id.GroupID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms, ok := s.memberships[groupID.String()]; ok {
		delete(ms, userID.String())
	}
	return nil
}

func (s *Store) ListMemberships(_ context.Context, groupID id.GroupID) ([]*group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms := s.memberships[groupID.String()]
	result := make([]*group.Membership, 0, len(ms))
	for _, m := range ms {
		result = append(result, copyMembership(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID.String() < result[j].UserID.String() })
	return result, nil
}

func (s *Store) ListMembershipsForUser(_ context.Context, userID id.UserID) ([]*group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uk := userID.String()
	var result []*group.Membership
	for _, ms := range s.memberships {
		if m, ok := ms[uk]; ok {
			result = append(result, copyMembership(m))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GroupID.String() < result[j].GroupID.String() })
	return result, nil
}

func (s *Store) DeleteMembershipsByGroup(_ context.Context, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, groupID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Node Store
// ──────────────────────────────────────────────────

func (s *Store) CreateNode(_ context.Context, n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID.String()] = copyNode(n)
	return nil
}

func (s *Store) GetNode(_ context.Context, nodeID id.NodeID) (*node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID.String()]
	if !ok {
		return nil, nil
	}
	return copyNode(n), nil
}

func (s *Store) UpdateNode(_ context.Context, n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID.String()] = copyNode(n)
	return nil
}

func (s *Store) ListNodes(_ context.Context, filter *node.ListFilter) ([]*node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*node.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if filter == nil || !filter.IncludeDeleted {
			if n.IsDeleted {
				continue
			}
		}
		if filter != nil {
			if filter.Kind != "" && n.Kind != filter.Kind {
				continue
			}
			if filter.CreatorID != nil && n.CreatorID != *filter.CreatorID {
				continue
			}
			if filter.ParentID != nil && (n.ParentID == nil || *n.ParentID != *filter.ParentID) {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(n.Title), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyNode(n))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	if filter != nil {
		result = applyPagination(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) CountNodes(ctx context.Context, filter *node.ListFilter) (int64, error) {
	var f node.ListFilter
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListNodes(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListChildren(_ context.Context, nodeID id.NodeID) ([]*node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nk := nodeID.String()
	var result []*node.Node
	for _, n := range s.nodes {
		if n.ParentID != nil && n.ParentID.String() == nk && !n.IsDeleted {
			result = append(result, copyNode(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) UpsertContributor(_ context.Context, c *node.Contributor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nk := c.NodeID.String()
	if s.contributors[nk] == nil {
		s.contributors[nk] = make(map[string]*node.Contributor)
	}
	s.contributors[nk][c.UserID.String()] = copyContributor(c)
	return nil
}

func (s *Store) GetContributor(_ context.Context, nodeID id.NodeID, userID id.UserID) (*node.Contributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contributors[nodeID.String()][userID.String()]
	if !ok {
		return nil, nil
	}
	return copyContributor(c), nil
}

func (s *Store) DeleteContributor(_ context.Context, nodeID id.NodeID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.contributors[nodeID.String()]; ok {
		delete(cs, userID.String())
	}
	return nil
}

func (s *Store) ListContributors(_ context.Context, nodeID id.NodeID) ([]*node.Contributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.contributors[nodeID.String()]
	result := make([]*node.Contributor, 0, len(cs))
	for _, c := range cs {
		result = append(result, copyContributor(c))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].UserID.String() < result[j].UserID.String()
	})
	return result, nil
}

func (s *Store) ListContributions(_ context.Context, userID id.UserID) ([]*node.Contributor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uk := userID.String()
	var result []*node.Contributor
	for _, cs := range s.contributors {
		if c, ok := cs[uk]; ok {
			result = append(result, copyContributor(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NodeID.String() < result[j].NodeID.String() })
	return result, nil
}

func (s *Store) UpsertGroupGrant(_ context.Context, g *node.GroupGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nk := g.NodeID.String()
	if s.grants[nk] == nil {
		s.grants[nk] = make(map[string]*node.GroupGrant)
	}
	s.grants[nk][g.GroupID.String()] = copyGrant(g)
	return nil
}

func (s *Store) GetGroupGrant(_ context.Context, nodeID id.NodeID, groupID id.GroupID) (*node.GroupGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[nodeID.String()][groupID.String()]
	if !ok {
		return nil, nil
	}
	return copyGrant(g), nil
}

func (s *Store) DeleteGroupGrant(_ context.Context, nodeID id.NodeID, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gs, ok := s.grants[nodeID.String()]; ok {
		delete(gs, groupID.String())
	}
	return nil
}

func (s *Store) ListGroupGrants(_ context.Context, nodeID id.NodeID) ([]*node.GroupGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs := s.grants[nodeID.String()]
	result := make([]*node.GroupGrant, 0, len(gs))
	for _, g := range gs {
		result = append(result, copyGrant(g))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GroupID.String() < result[j].GroupID.String() })
	return result, nil
}

func (s *Store) ListGrantsForGroup(_ context.Context, groupID id.GroupID) ([]*node.GroupGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gk := groupID.String()
	var result []*node.GroupGrant
	for _, gs := range s.grants {
		if g, ok := gs[gk]; ok {
			result = append(result, copyGrant(g))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NodeID.String() < result[j].NodeID.String() })
	return result, nil
}

func (s *Store) DeleteGrantsByGroup(_ context.Context, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	for _, gs := range s.grants {
		delete(gs, gk)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Action Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateEntry(_ context.Context, e *actionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[e.ID.String()] = copyEntry(e)
	return nil
}

func (s *Store) GetEntry(_ context.Context, logID id.LogID) (*actionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.logs[logID.String()]
	if !ok {
		return nil, nil
	}
	return copyEntry(e), nil
}

func (s *Store) ListEntries(_ context.Context, filter *actionlog.QueryFilter) ([]*actionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*actionlog.Entry, 0, len(s.logs))
	for _, e := range s.logs {
		if filter != nil {
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if !filter.ActorID.IsNil() && e.ActorID != filter.ActorID {
				continue
			}
			if !filter.GroupID.IsNil() && e.GroupID != filter.GroupID {
				continue
			}
			if !filter.NodeID.IsNil() && e.NodeID != filter.NodeID {
				continue
			}
			if !filter.TargetID.IsNil() && e.TargetID != filter.TargetID {
				continue
			}
			if filter.After != nil && e.CreatedAt.Before(*filter.After) {
				continue
			}
			if filter.Before != nil && e.CreatedAt.After(*filter.Before) {
				continue
			}
		}
		result = append(result, copyEntry(e))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	if filter != nil {
		result = applyPagination(result, filter.Limit, filter.Offset)
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context, filter *actionlog.QueryFilter) (int64, error) {
	var f actionlog.QueryFilter
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListEntries(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, e := range s.logs {
		if e.CreatedAt.Before(before) {
			delete(s.logs, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Throttle Store
// ──────────────────────────────────────────────────

func (s *Store) GetRecord(_ context.Context, key string) (*throttle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.throttles[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) PutRecord(_ context.Context, r *throttle.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.throttles[r.Key] = &cp
	return nil
}

func (s *Store) PurgeRecords(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, r := range s.throttles {
		if r.LastSentAt.Before(before) {
			delete(s.throttles, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyUser(u *user.User) *user.User {
	c := *u
	if u.MergedBy != nil {
		mb := *u.MergedBy
		c.MergedBy = &mb
	}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	if u.ExternalAccounts != nil {
		c.ExternalAccounts = make([]user.ExternalAccount, len(u.ExternalAccounts))
		copy(c.ExternalAccounts, u.ExternalAccounts)
	}
	if u.Affiliations != nil {
		c.Affiliations = make([]string, len(u.Affiliations))
		copy(c.Affiliations, u.Affiliations)
	}
	if u.MailingLists != nil {
		c.MailingLists = make([]string, len(u.MailingLists))
		copy(c.MailingLists, u.MailingLists)
	}
	if u.Unclaimed != nil {
		c.Unclaimed = make([]user.ClaimRecord, len(u.Unclaimed))
		copy(c.Unclaimed, u.Unclaimed)
	}
	return &c
}

func copyGroup(g *group.Group) *group.Group {
	c := *g
	return &c
}

func copyMembership(m *group.Membership) *group.Membership {
	c := *m
	return &c
}

func copyNode(n *node.Node) *node.Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func copyContributor(c *node.Contributor) *node.Contributor {
	cp := *c
	return &cp
}

func copyGrant(g *node.GroupGrant) *node.GroupGrant {
	c := *g
	return &c
}

func copyEntry(e *actionlog.Entry) *actionlog.Entry {
	c := *e
	if e.Params != nil {
		c.Params = make(map[string]any, len(e.Params))
		for k, v := range e.Params {
			c.Params[k] = v
		}
	}
	return &c
}

func applyPagination[T any](items []*T, limit, offset int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return nil
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
