package memory

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/throttle"
	"github.com/xraph/steward/user"
)

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &user.User{
		ID:           id.NewUserID(),
		FullName:     "Ada Lovelace",
		Email:        "Ada@Example.org",
		IsRegistered: true,
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil || got.FullName != "Ada Lovelace" {
		t.Fatalf("got %+v", got)
	}

	// Lookup by email is case-insensitive; empty email never matches.
	got, err = s.GetUserByEmail(ctx, "ada@example.ORG")
	if err != nil || got == nil {
		t.Fatalf("GetUserByEmail: %v %v", got, err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, got.ID)
	}
	got, err = s.GetUserByEmail(ctx, "")
	if err != nil || got != nil {
		t.Fatalf("empty email must not match, got %v err %v", got, err)
	}

	u.FullName = "Ada K. Lovelace"
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.FullName != "Ada K. Lovelace" {
		t.Fatalf("update not applied: %+v", got)
	}

	// Missing rows read back as nil, nil.
	got, err = s.GetUser(ctx, id.NewUserID())
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing user, got %v %v", got, err)
	}
}

func TestUserCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &user.User{
		ID:           id.NewUserID(),
		FullName:     "Original",
		Email:        "orig@example.org",
		Affiliations: []string{"One"},
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Mutating the caller's struct or a returned copy must not leak in.
	u.FullName = "Mutated"
	u.Affiliations[0] = "Two"

	got, _ := s.GetUser(ctx, u.ID)
	if got.FullName != "Original" || got.Affiliations[0] != "One" {
		t.Fatalf("store shares memory with caller: %+v", got)
	}

	got.Email = "changed@example.org"
	again, _ := s.GetUser(ctx, u.ID)
	if again.Email != "orig@example.org" {
		t.Fatal("store shares memory with reader")
	}
}

func TestListUsersFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	reg := true
	unreg := false
	mustCreate := func(name string, registered bool) {
		t.Helper()
		if err := s.CreateUser(ctx, &user.User{
			ID:           id.NewUserID(),
			FullName:     name,
			IsRegistered: registered,
		}); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	mustCreate("Alpha One", true)
	mustCreate("Alpha Two", false)
	mustCreate("Beta", true)

	list, err := s.ListUsers(ctx, &user.ListFilter{IsRegistered: &reg})
	if err != nil || len(list) != 2 {
		t.Fatalf("registered filter: %d users, err %v", len(list), err)
	}
	list, err = s.ListUsers(ctx, &user.ListFilter{IsRegistered: &unreg})
	if err != nil || len(list) != 1 {
		t.Fatalf("unregistered filter: %d users, err %v", len(list), err)
	}
	list, err = s.ListUsers(ctx, &user.ListFilter{Search: "alpha"})
	if err != nil || len(list) != 2 {
		t.Fatalf("search filter: %d users, err %v", len(list), err)
	}

	// Pagination slices the ID-ordered listing.
	all, _ := s.ListUsers(ctx, nil)
	page, err := s.ListUsers(ctx, &user.ListFilter{Limit: 2, Offset: 1})
	if err != nil || len(page) != 2 {
		t.Fatalf("page: %d users, err %v", len(page), err)
	}
	if page[0].ID != all[1].ID || page[1].ID != all[2].ID {
		t.Fatal("pagination window misaligned")
	}
	empty, err := s.ListUsers(ctx, &user.ListFilter{Offset: 10})
	if err != nil || len(empty) != 0 {
		t.Fatalf("offset past end: %d users, err %v", len(empty), err)
	}

	n, err := s.CountUsers(ctx, &user.ListFilter{Search: "alpha", Limit: 1})
	if err != nil || n != 2 {
		t.Fatalf("count must ignore pagination, got %d err %v", n, err)
	}
}

func TestMemberships(t *testing.T) {
	ctx := context.Background()
	s := New()

	g1, g2 := id.NewGroupID(), id.NewGroupID()
	u1, u2 := id.NewUserID(), id.NewUserID()

	set := func(gid id.GroupID, uid id.UserID, role group.Role) {
		t.Helper()
		if err := s.SetMembership(ctx, &group.Membership{GroupID: gid, UserID: uid, Role: role}); err != nil {
			t.Fatalf("SetMembership: %v", err)
		}
	}
	set(g1, u1, group.RoleManager)
	set(g1, u2, group.RoleMember)
	set(g2, u1, group.RoleMember)

	m, err := s.GetMembership(ctx, g1, u1)
	if err != nil || m == nil || m.Role != group.RoleManager {
		t.Fatalf("GetMembership: %+v %v", m, err)
	}

	// Set replaces in place.
	set(g1, u2, group.RoleManager)
	m, _ = s.GetMembership(ctx, g1, u2)
	if m.Role != group.RoleManager {
		t.Fatalf("expected replacement, got %q", m.Role)
	}

	roster, err := s.ListMemberships(ctx, g1)
	if err != nil || len(roster) != 2 {
		t.Fatalf("ListMemberships: %d, err %v", len(roster), err)
	}
	mine, err := s.ListMembershipsForUser(ctx, u1)
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListMembershipsForUser: %d, err %v", len(mine), err)
	}

	if err := s.DeleteMembership(ctx, g1, u1); err != nil {
		t.Fatalf("DeleteMembership: %v", err)
	}
	if m, _ := s.GetMembership(ctx, g1, u1); m != nil {
		t.Fatal("membership should be gone")
	}

	if err := s.DeleteMembershipsByGroup(ctx, g1); err != nil {
		t.Fatalf("DeleteMembershipsByGroup: %v", err)
	}
	roster, _ = s.ListMemberships(ctx, g1)
	if len(roster) != 0 {
		t.Fatalf("expected empty roster, got %d", len(roster))
	}
	// g2 untouched.
	if m, _ := s.GetMembership(ctx, g2, u1); m == nil {
		t.Fatal("other group's roster must survive")
	}
}

func TestNodeFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	creator := id.NewUserID()
	parent := &node.Node{ID: id.NewNodeID(), Title: "Parent", Kind: node.KindProject, CreatorID: creator}
	child := &node.Node{ID: id.NewNodeID(), Title: "Child", Kind: node.KindProject, CreatorID: creator, ParentID: &parent.ID}
	reg := &node.Node{ID: id.NewNodeID(), Title: "Frozen", Kind: node.KindRegistration, CreatorID: id.NewUserID()}
	gone := &node.Node{ID: id.NewNodeID(), Title: "Gone", Kind: node.KindProject, CreatorID: creator, IsDeleted: true}

	for _, n := range []*node.Node{parent, child, reg, gone} {
		if err := s.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}

	// Tombstones are hidden unless asked for.
	list, err := s.ListNodes(ctx, nil)
	if err != nil || len(list) != 3 {
		t.Fatalf("default listing: %d, err %v", len(list), err)
	}
	list, err = s.ListNodes(ctx, &node.ListFilter{IncludeDeleted: true})
	if err != nil || len(list) != 4 {
		t.Fatalf("IncludeDeleted listing: %d, err %v", len(list), err)
	}

	list, err = s.ListNodes(ctx, &node.ListFilter{Kind: node.KindRegistration})
	if err != nil || len(list) != 1 || list[0].ID != reg.ID {
		t.Fatalf("kind filter: %+v, err %v", list, err)
	}
	list, err = s.ListNodes(ctx, &node.ListFilter{CreatorID: &creator})
	if err != nil || len(list) != 2 {
		t.Fatalf("creator filter: %d, err %v", len(list), err)
	}
	list, err = s.ListNodes(ctx, &node.ListFilter{ParentID: &parent.ID})
	if err != nil || len(list) != 1 || list[0].ID != child.ID {
		t.Fatalf("parent filter: %+v, err %v", list, err)
	}

	children, err := s.ListChildren(ctx, parent.ID)
	if err != nil || len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("ListChildren: %+v, err %v", children, err)
	}

	// Tombstoned children don't count as live.
	child.IsDeleted = true
	if err := s.UpdateNode(ctx, child); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	children, _ = s.ListChildren(ctx, parent.ID)
	if len(children) != 0 {
		t.Fatalf("expected no live children, got %d", len(children))
	}
}

func TestContributorOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()

	nodeID := id.NewNodeID()
	first := id.NewUserID()
	second := id.NewUserID()
	third := id.NewUserID()

	add := func(uid id.UserID, order int, lvl level.Level) {
		t.Helper()
		if err := s.UpsertContributor(ctx, &node.Contributor{
			NodeID: nodeID, UserID: uid, Level: lvl, Visible: true, Order: order,
		}); err != nil {
			t.Fatalf("UpsertContributor: %v", err)
		}
	}
	add(third, 2, level.Read)
	add(first, 0, level.Admin)
	add(second, 1, level.Write)

	cs, err := s.ListContributors(ctx, nodeID)
	if err != nil || len(cs) != 3 {
		t.Fatalf("ListContributors: %d, err %v", len(cs), err)
	}
	if cs[0].UserID != first || cs[1].UserID != second || cs[2].UserID != third {
		t.Fatalf("listing out of order: %+v", cs)
	}

	// Upsert replaces without duplicating.
	add(second, 1, level.Admin)
	cs, _ = s.ListContributors(ctx, nodeID)
	if len(cs) != 3 || cs[1].Level != level.Admin {
		t.Fatalf("expected in-place replacement, got %+v", cs)
	}

	other := id.NewNodeID()
	if err := s.UpsertContributor(ctx, &node.Contributor{NodeID: other, UserID: first, Level: level.Read}); err != nil {
		t.Fatalf("UpsertContributor: %v", err)
	}
	contribs, err := s.ListContributions(ctx, first)
	if err != nil || len(contribs) != 2 {
		t.Fatalf("ListContributions: %d, err %v", len(contribs), err)
	}

	if err := s.DeleteContributor(ctx, nodeID, second); err != nil {
		t.Fatalf("DeleteContributor: %v", err)
	}
	if c, _ := s.GetContributor(ctx, nodeID, second); c != nil {
		t.Fatal("contributor should be gone")
	}
}

func TestGroupGrants(t *testing.T) {
	ctx := context.Background()
	s := New()

	n1, n2 := id.NewNodeID(), id.NewNodeID()
	g := id.NewGroupID()

	put := func(nid id.NodeID, lvl level.Level) {
		t.Helper()
		if err := s.UpsertGroupGrant(ctx, &node.GroupGrant{NodeID: nid, GroupID: g, Level: lvl}); err != nil {
			t.Fatalf("UpsertGroupGrant: %v", err)
		}
	}
	put(n1, level.Write)
	put(n2, level.Read)

	grant, err := s.GetGroupGrant(ctx, n1, g)
	if err != nil || grant == nil || grant.Level != level.Write {
		t.Fatalf("GetGroupGrant: %+v %v", grant, err)
	}

	held, err := s.ListGrantsForGroup(ctx, g)
	if err != nil || len(held) != 2 {
		t.Fatalf("ListGrantsForGroup: %d, err %v", len(held), err)
	}
	on, err := s.ListGroupGrants(ctx, n1)
	if err != nil || len(on) != 1 {
		t.Fatalf("ListGroupGrants: %d, err %v", len(on), err)
	}

	if err := s.DeleteGroupGrant(ctx, n1, g); err != nil {
		t.Fatalf("DeleteGroupGrant: %v", err)
	}
	if grant, _ := s.GetGroupGrant(ctx, n1, g); grant != nil {
		t.Fatal("grant should be gone")
	}

	put(n1, level.Write)
	if err := s.DeleteGrantsByGroup(ctx, g); err != nil {
		t.Fatalf("DeleteGrantsByGroup: %v", err)
	}
	held, _ = s.ListGrantsForGroup(ctx, g)
	if len(held) != 0 {
		t.Fatalf("expected all grants gone, got %d", len(held))
	}
}

func TestActionLogQueries(t *testing.T) {
	ctx := context.Background()
	s := New()

	actor := id.NewUserID()
	nodeID := id.NewNodeID()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	put := func(action actionlog.Action, at time.Time, nid id.NodeID) *actionlog.Entry {
		t.Helper()
		e := &actionlog.Entry{
			ID:        id.NewLogID(),
			Action:    action,
			ActorID:   actor,
			NodeID:    nid,
			CreatedAt: at,
		}
		if err := s.CreateEntry(ctx, e); err != nil {
			t.Fatalf("CreateEntry: %v", err)
		}
		return e
	}
	oldest := put(actionlog.ActionNodeCreated, base, nodeID)
	middle := put(actionlog.ActionContributorAdded, base.Add(time.Hour), nodeID)
	newest := put(actionlog.ActionNodeDeleted, base.Add(2*time.Hour), id.NewNodeID())

	// Newest first.
	all, err := s.ListEntries(ctx, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListEntries: %d, err %v", len(all), err)
	}
	if all[0].ID != newest.ID || all[2].ID != oldest.ID {
		t.Fatalf("listing out of order: %+v", all)
	}

	byNode, err := s.ListEntries(ctx, &actionlog.QueryFilter{NodeID: nodeID})
	if err != nil || len(byNode) != 2 {
		t.Fatalf("node filter: %d, err %v", len(byNode), err)
	}
	byAction, err := s.ListEntries(ctx, &actionlog.QueryFilter{Action: actionlog.ActionContributorAdded})
	if err != nil || len(byAction) != 1 || byAction[0].ID != middle.ID {
		t.Fatalf("action filter: %+v, err %v", byAction, err)
	}

	after := base.Add(30 * time.Minute)
	windowed, err := s.ListEntries(ctx, &actionlog.QueryFilter{After: &after})
	if err != nil || len(windowed) != 2 {
		t.Fatalf("after filter: %d, err %v", len(windowed), err)
	}

	n, err := s.CountEntries(ctx, &actionlog.QueryFilter{ActorID: actor})
	if err != nil || n != 3 {
		t.Fatalf("CountEntries: %d, err %v", n, err)
	}

	purged, err := s.PurgeEntries(ctx, base.Add(90*time.Minute))
	if err != nil || purged != 2 {
		t.Fatalf("PurgeEntries: %d, err %v", purged, err)
	}
	all, _ = s.ListEntries(ctx, nil)
	if len(all) != 1 || all[0].ID != newest.ID {
		t.Fatalf("expected only newest to survive, got %+v", all)
	}
}

func TestThrottleRecords(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if r, err := s.GetRecord(ctx, "missing"); err != nil || r != nil {
		t.Fatalf("expected nil, nil for missing record, got %v %v", r, err)
	}

	if err := s.PutRecord(ctx, &throttle.Record{Key: "a", LastSentAt: now}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	if err := s.PutRecord(ctx, &throttle.Record{Key: "b", LastSentAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	r, err := s.GetRecord(ctx, "a")
	if err != nil || r == nil || !r.LastSentAt.Equal(now) {
		t.Fatalf("GetRecord: %+v %v", r, err)
	}

	// Put replaces.
	if err := s.PutRecord(ctx, &throttle.Record{Key: "a", LastSentAt: now.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	r, _ = s.GetRecord(ctx, "a")
	if !r.LastSentAt.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("expected replacement, got %v", r.LastSentAt)
	}

	purged, err := s.PurgeRecords(ctx, now.Add(90*time.Minute))
	if err != nil || purged != 1 {
		t.Fatalf("PurgeRecords: %d, err %v", purged, err)
	}
	if r, _ := s.GetRecord(ctx, "b"); r != nil {
		t.Fatal("record b should be purged")
	}
	if r, _ := s.GetRecord(ctx, "a"); r == nil {
		t.Fatal("record a should survive")
	}
}
