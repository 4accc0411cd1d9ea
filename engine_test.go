package steward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/notify"
	"github.com/xraph/steward/store/memory"
	"github.com/xraph/steward/user"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, s
}

func registerUser(t *testing.T, eng *Engine, name, email string) *user.User {
	t.Helper()
	u, err := eng.RegisterUser(context.Background(), name, email)
	if err != nil {
		t.Fatalf("RegisterUser(%s): %v", email, err)
	}
	return u
}

func createProject(t *testing.T, eng *Engine, title string, parentID *id.NodeID, creatorID id.UserID) *node.Node {
	t.Helper()
	n, err := eng.CreateNode(context.Background(), title, node.KindProject, parentID, creatorID)
	if err != nil {
		t.Fatalf("CreateNode(%s): %v", title, err)
	}
	return n
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	u := registerUser(t, eng, "Ada Lovelace", "Ada@Example.org")
	if !u.IsRegistered {
		t.Fatal("expected registered account")
	}
	if u.Email != "ada@example.org" {
		t.Fatalf("expected normalized email, got %q", u.Email)
	}

	// Same address with different casing collides.
	if _, err := eng.RegisterUser(ctx, "Other", "ADA@example.org"); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	if _, err := eng.RegisterUser(ctx, "", "nobody@example.org"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation for empty name, got %v", err)
	}
	if _, err := eng.RegisterUser(ctx, "No Email", ""); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation for empty email, got %v", err)
	}
}

func TestRegisterUserBlockedDomain(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.BlockedEmailDomains = []string{"mailinator.com"}
	eng, _ := newTestEngine(t, WithConfig(cfg))

	if _, err := eng.RegisterUser(ctx, "Spammer", "x@Mailinator.com"); !errors.Is(err, ErrBlockedDomain) {
		t.Fatalf("expected ErrBlockedDomain, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Resolution
// ──────────────────────────────────────────────────

func TestResolveDirectEntry(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	admin := registerUser(t, eng, "Admin", "admin@example.org")
	writer := registerUser(t, eng, "Writer", "writer@example.org")
	outsider := registerUser(t, eng, "Outsider", "out@example.org")

	n := createProject(t, eng, "Crater Counts", nil, admin.ID)

	if err := eng.AddContributor(ctx, n.ID, writer.ID, LevelWrite, true, admin.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	lvl, held, err := eng.Resolve(ctx, writer.ID, n.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !held || lvl != LevelWrite {
		t.Fatalf("expected write, got %q held=%v", lvl, held)
	}

	perms, err := eng.Permissions(ctx, writer.ID, n.ID)
	if err != nil {
		t.Fatalf("Permissions: %v", err)
	}
	if len(perms) != 2 || perms[0] != LevelRead || perms[1] != LevelWrite {
		t.Fatalf("expected [read write], got %v", perms)
	}

	if _, held, _ := eng.Resolve(ctx, outsider.ID, n.ID); held {
		t.Fatal("outsider should hold no permission")
	}

	ok, err := eng.HasPermission(ctx, writer.ID, n.ID, LevelRead)
	if err != nil || !ok {
		t.Fatalf("expected write to satisfy read, ok=%v err=%v", ok, err)
	}
	ok, err = eng.HasPermission(ctx, writer.ID, n.ID, LevelAdmin)
	if err != nil || ok {
		t.Fatalf("write must not satisfy admin, ok=%v err=%v", ok, err)
	}
}

func TestResolveAncestorAdmin(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	root := registerUser(t, eng, "Root Admin", "root@example.org")
	helper := registerUser(t, eng, "Helper", "helper@example.org")

	top := createProject(t, eng, "Top", nil, root.ID)
	child := createProject(t, eng, "Child", &top.ID, root.ID)
	grandchild := createProject(t, eng, "Grandchild", &child.ID, root.ID)

	// ADMIN on the top node propagates all the way down.
	lvl, held, err := eng.Resolve(ctx, root.ID, grandchild.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !held || lvl != LevelAdmin {
		t.Fatalf("expected inherited admin, got %q held=%v", lvl, held)
	}

	// WRITE on an ancestor does not propagate.
	if err := eng.AddContributor(ctx, top.ID, helper.ID, LevelWrite, true, root.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	if _, held, _ := eng.Resolve(ctx, helper.ID, child.ID); held {
		t.Fatal("ancestor write must not be inherited")
	}
}

func TestResolveGroupGrant(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	member := registerUser(t, eng, "Member", "member@example.org")

	g, err := eng.CreateGroup(ctx, "Lab", owner.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, owner.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	n := createProject(t, eng, "Shared", nil, owner.ID)
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, LevelWrite, owner.ID); err != nil {
		t.Fatalf("AddGroupGrant: %v", err)
	}

	lvl, held, err := eng.Resolve(ctx, member.ID, n.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !held || lvl != LevelWrite {
		t.Fatalf("expected group-derived write, got %q held=%v", lvl, held)
	}

	// Direct entry and group grant union to the higher level.
	if err := eng.AddContributor(ctx, n.ID, member.ID, LevelRead, true, owner.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	lvl, held, err = eng.Resolve(ctx, member.ID, n.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !held || lvl != LevelWrite {
		t.Fatalf("expected union write, got %q held=%v", lvl, held)
	}
}

func TestResolveGroupAdminInheritanceOptIn(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	member := registerUser(t, eng, "Member", "member@example.org")

	g, err := eng.CreateGroup(ctx, "Stewards", owner.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, owner.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	parent := createProject(t, eng, "Parent", nil, owner.ID)
	child := createProject(t, eng, "Child", &parent.ID, owner.ID)

	if err := eng.AddGroupGrant(ctx, parent.ID, g.ID, LevelAdmin, owner.ID); err != nil {
		t.Fatalf("AddGroupGrant: %v", err)
	}

	// Off by default.
	if _, held, _ := eng.Resolve(ctx, member.ID, child.ID); held {
		t.Fatal("group-derived ancestor admin must not propagate by default")
	}

	lvl, held, err := eng.Resolve(ctx, member.ID, child.ID, WithGroupAdminInheritance())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !held || lvl != LevelAdmin {
		t.Fatalf("expected inherited group admin, got %q held=%v", lvl, held)
	}
}

func TestResolveTombstonedNode(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	n := createProject(t, eng, "Doomed", nil, owner.ID)

	if err := eng.DeleteNode(ctx, n.ID, owner.ID); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, held, err := eng.Resolve(ctx, owner.ID, n.ID); err != nil || held {
		t.Fatalf("tombstoned node must resolve to nothing, held=%v err=%v", held, err)
	}

	if err := eng.AddContributor(ctx, n.ID, owner.ID, LevelWrite, true, owner.ID); !errors.Is(err, ErrGone) {
		t.Fatalf("expected ErrGone on tombstoned node, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Admin invariant
// ──────────────────────────────────────────────────

func TestAdminInvariant(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	a := registerUser(t, eng, "A", "a@example.org")
	b := registerUser(t, eng, "B", "b@example.org")

	n := createProject(t, eng, "Guarded", nil, a.ID)

	// Removing or demoting the only admin is rejected.
	if err := eng.RemoveContributor(ctx, n.ID, a.ID, a.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	if err := eng.SetContributorPermission(ctx, n.ID, a.ID, LevelWrite, a.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation on downgrade, got %v", err)
	}

	// With a second admin in place, the same mutations succeed.
	if err := eng.AddContributor(ctx, n.ID, b.ID, LevelAdmin, true, a.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	if err := eng.SetContributorPermission(ctx, n.ID, a.ID, LevelWrite, a.ID); err != nil {
		t.Fatalf("SetContributorPermission: %v", err)
	}
	if err := eng.RemoveContributor(ctx, n.ID, a.ID, b.ID); err != nil {
		t.Fatalf("RemoveContributor: %v", err)
	}
}

func TestAdminInvariantCountsGroupGrants(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	a := registerUser(t, eng, "A", "a@example.org")
	n := createProject(t, eng, "Guarded", nil, a.ID)

	g, err := eng.CreateGroup(ctx, "Admins", a.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, LevelAdmin, a.ID); err != nil {
		t.Fatalf("AddGroupGrant: %v", err)
	}

	// The ADMIN grant keeps the node covered once the direct entry goes.
	if err := eng.RemoveContributor(ctx, n.ID, a.ID, a.ID); err != nil {
		t.Fatalf("RemoveContributor: %v", err)
	}

	// Now the grant is the last admin source: downgrading it is rejected.
	if err := eng.UpdateGroupGrant(ctx, n.ID, g.ID, LevelWrite, a.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	if err := eng.RemoveGroupGrant(ctx, n.ID, g.ID, a.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Groups
// ──────────────────────────────────────────────────

func TestLastManagerInvariant(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	mgr := registerUser(t, eng, "Manager", "mgr@example.org")
	other := registerUser(t, eng, "Other", "other@example.org")

	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := eng.SetGroupRole(ctx, g.ID, mgr.ID, group.RoleMember, mgr.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation on demoting sole manager, got %v", err)
	}
	if err := eng.RemoveGroupMember(ctx, g.ID, mgr.ID, mgr.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation on removing sole manager, got %v", err)
	}

	if err := eng.SetGroupRole(ctx, g.ID, other.ID, group.RoleManager, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, mgr.ID, group.RoleMember, other.ID); err != nil {
		t.Fatalf("demotion with second manager should succeed: %v", err)
	}
}

func TestSetGroupRoleSameRoleIsNoOp(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	mgr := registerUser(t, eng, "Manager", "mgr@example.org")
	member := registerUser(t, eng, "Member", "member@example.org")

	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	before, err := s.CountEntries(ctx, nil)
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}

	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole repeat: %v", err)
	}

	after, err := s.CountEntries(ctx, nil)
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if after != before {
		t.Fatalf("same-role set must not log, entries %d -> %d", before, after)
	}
}

func TestManagerGate(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	mgr := registerUser(t, eng, "Manager", "mgr@example.org")
	member := registerUser(t, eng, "Member", "member@example.org")
	stranger := registerUser(t, eng, "Stranger", "str@example.org")

	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	// Only managers mutate the roster; members may remove themselves.
	if err := eng.SetGroupRole(ctx, g.ID, stranger.ID, group.RoleMember, member.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := eng.RemoveGroupMember(ctx, g.ID, member.ID, stranger.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := eng.RemoveGroupMember(ctx, g.ID, member.ID, member.ID); err != nil {
		t.Fatalf("self-removal should succeed: %v", err)
	}
}

func TestAddUnregisteredGroupMember(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.BlockedEmailDomains = []string{"spam.test"}
	eng, _ := newTestEngine(t, WithConfig(cfg))

	mgr := registerUser(t, eng, "Manager", "mgr@example.org")
	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	u, err := eng.AddUnregisteredGroupMember(ctx, g.ID, "Invited One", "Invite@Example.org", group.RoleMember, mgr.ID)
	if err != nil {
		t.Fatalf("AddUnregisteredGroupMember: %v", err)
	}
	if u.IsRegistered {
		t.Fatal("invited placeholder must not be registered")
	}
	if len(u.Unclaimed) != 1 || u.Unclaimed[0].GroupID != g.ID || u.Unclaimed[0].Token == "" {
		t.Fatalf("expected one claim record with a token, got %+v", u.Unclaimed)
	}

	// The placeholder's email now collides with registrations and repeat invites.
	if _, err := eng.RegisterUser(ctx, "Late", "invite@example.org"); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if _, err := eng.AddUnregisteredGroupMember(ctx, g.ID, "Again", "invite@example.org", group.RoleMember, mgr.ID); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if _, err := eng.AddUnregisteredGroupMember(ctx, g.ID, "Spam", "x@spam.test", group.RoleMember, mgr.ID); !errors.Is(err, ErrBlockedDomain) {
		t.Fatalf("expected ErrBlockedDomain, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Nodes
// ──────────────────────────────────────────────────

func TestCreateChildRequiresParentWrite(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	reader := registerUser(t, eng, "Reader", "reader@example.org")

	parent := createProject(t, eng, "Parent", nil, owner.ID)
	if err := eng.AddContributor(ctx, parent.ID, reader.ID, LevelRead, true, owner.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	if _, err := eng.CreateNode(ctx, "Child", node.KindProject, &parent.ID, reader.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for read-only parent, got %v", err)
	}

	if err := eng.SetContributorPermission(ctx, parent.ID, reader.ID, LevelWrite, owner.ID); err != nil {
		t.Fatalf("SetContributorPermission: %v", err)
	}
	if _, err := eng.CreateNode(ctx, "Child", node.KindProject, &parent.ID, reader.ID); err != nil {
		t.Fatalf("CreateNode with write on parent: %v", err)
	}
}

func TestDeleteNodeRules(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")

	reg, err := eng.CreateNode(ctx, "Study", node.KindRegistration, nil, owner.ID)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if err := eng.DeleteNode(ctx, reg.ID, owner.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation for registration, got %v", err)
	}

	parent := createProject(t, eng, "Parent", nil, owner.ID)
	child := createProject(t, eng, "Child", &parent.ID, owner.ID)

	if err := eng.DeleteNode(ctx, parent.ID, owner.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation with live children, got %v", err)
	}
	if err := eng.DeleteNode(ctx, child.ID, owner.ID); err != nil {
		t.Fatalf("DeleteNode child: %v", err)
	}
	if err := eng.DeleteNode(ctx, parent.ID, owner.ID); err != nil {
		t.Fatalf("DeleteNode parent after child gone: %v", err)
	}

	got, err := eng.Node(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if !got.IsDeleted || got.DeletedAt == nil {
		t.Fatal("expected tombstone")
	}
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]fakeCacheEntry
}

type fakeCacheEntry struct {
	lvl  Level
	held bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]fakeCacheEntry)}
}

func cacheTestKey(userID id.UserID, nodeID id.NodeID, groupAdmin bool) string {
	return fmt.Sprintf("%s|%s|%t", userID, nodeID, groupAdmin)
}

func (c *fakeCache) Get(_ context.Context, userID id.UserID, nodeID id.NodeID, groupAdmin bool) (Level, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheTestKey(userID, nodeID, groupAdmin)]
	return e.lvl, e.held, ok
}

func (c *fakeCache) Set(_ context.Context, userID id.UserID, nodeID id.NodeID, groupAdmin bool, lvl Level, held bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheTestKey(userID, nodeID, groupAdmin)] = fakeCacheEntry{lvl: lvl, held: held}
}

func (c *fakeCache) InvalidateUser(_ context.Context, userID id.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, userID.String()+"|") {
			delete(c.entries, k)
		}
	}
}

func (c *fakeCache) InvalidateNode(_ context.Context, nodeID id.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.Contains(k, "|"+nodeID.String()+"|") {
			delete(c.entries, k)
		}
	}
}

func (c *fakeCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]fakeCacheEntry)
}

func TestDeleteNodeDropsInheritedResolutions(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, WithCache(newFakeCache()))

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	helper := registerUser(t, eng, "Helper", "helper@example.org")

	root := createProject(t, eng, "Root", nil, owner.ID)
	child := createProject(t, eng, "Child", &root.ID, owner.ID)

	if err := eng.AddContributor(ctx, root.ID, helper.ID, LevelAdmin, true, owner.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	// Inherited admin on the child, now cached.
	lvl, held, err := eng.Resolve(ctx, helper.ID, child.ID)
	if err != nil || !held || lvl != LevelAdmin {
		t.Fatalf("expected inherited admin, got %q held=%v err=%v", lvl, held, err)
	}

	// System deletion may tombstone a node with live children. The
	// child's resolution flowed through the root and must not survive
	// in the cache.
	if err := eng.DeleteNode(ctx, root.ID, id.Nil); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, held, err := eng.Resolve(ctx, helper.ID, child.ID); err != nil || held {
		t.Fatalf("expected no permission after ancestor deletion, held=%v err=%v", held, err)
	}
}

func TestGroupGrantActorMustManageAndAdmin(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	mgr := registerUser(t, eng, "Mgr", "mgr@example.org")

	n := createProject(t, eng, "Node", nil, owner.ID)
	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	// Owner holds ADMIN but does not manage the group.
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, LevelWrite, owner.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	// Manager manages the group but lacks ADMIN on the node.
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, LevelWrite, mgr.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if err := eng.AddContributor(ctx, n.ID, mgr.ID, LevelAdmin, true, owner.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, "", mgr.ID); err != nil {
		t.Fatalf("AddGroupGrant: %v", err)
	}

	grant, err := eng.Store().GetGroupGrant(ctx, n.ID, g.ID)
	if err != nil || grant == nil {
		t.Fatalf("GetGroupGrant: %v %v", grant, err)
	}
	if grant.Level != DefaultGroupGrantLevel {
		t.Fatalf("expected default level %q, got %q", DefaultGroupGrantLevel, grant.Level)
	}
}

// ──────────────────────────────────────────────────
// Merge
// ──────────────────────────────────────────────────

func TestMergeUsers(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	primary := registerUser(t, eng, "Primary", "primary@example.org")
	dup := registerUser(t, eng, "Duplicate", "dup@example.org")
	third := registerUser(t, eng, "Third", "third@example.org")

	// Shared node: primary holds READ visible, duplicate ADMIN invisible.
	shared := createProject(t, eng, "Shared", nil, third.ID)
	if err := eng.AddContributor(ctx, shared.ID, primary.ID, LevelRead, true, third.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	if err := eng.AddContributor(ctx, shared.ID, dup.ID, LevelAdmin, false, third.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	// Node only the duplicate created.
	solo := createProject(t, eng, "Solo", nil, dup.ID)

	// Group where the duplicate is the sole manager and primary a member.
	g, err := eng.CreateGroup(ctx, "Lab", dup.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, primary.ID, group.RoleMember, dup.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	// Group with a second manager: the duplicate's manager role must
	// still carry over to the primary member.
	g2, err := eng.CreateGroup(ctx, "Second Lab", dup.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g2.ID, third.ID, group.RoleManager, dup.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g2.ID, primary.ID, group.RoleMember, dup.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	if err := eng.MergeUsers(ctx, primary.ID, dup.ID, third.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for non-primary actor, got %v", err)
	}
	if err := eng.MergeUsers(ctx, primary.ID, primary.ID, primary.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation for self-merge, got %v", err)
	}

	if err := eng.MergeUsers(ctx, primary.ID, dup.ID, primary.ID); err != nil {
		t.Fatalf("MergeUsers: %v", err)
	}

	// Levels union, visibility ORs.
	c, err := eng.Store().GetContributor(ctx, shared.ID, primary.ID)
	if err != nil || c == nil {
		t.Fatalf("GetContributor: %v %v", c, err)
	}
	if c.Level != LevelAdmin || !c.Visible {
		t.Fatalf("expected admin visible after merge, got %q visible=%v", c.Level, c.Visible)
	}
	if old, _ := eng.Store().GetContributor(ctx, shared.ID, dup.ID); old != nil {
		t.Fatal("duplicate's entry should be gone")
	}

	// Creator rewritten on nodes the duplicate created.
	sn, err := eng.Node(ctx, solo.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if sn.CreatorID != primary.ID {
		t.Fatalf("expected creator rewritten to primary, got %s", sn.CreatorID)
	}

	// The duplicate's manager role carries over to the primary member,
	// in the group where the duplicate was the last manager and in the
	// group that still has another.
	m, err := eng.Store().GetMembership(ctx, g.ID, primary.ID)
	if err != nil || m == nil {
		t.Fatalf("GetMembership: %v %v", m, err)
	}
	if m.Role != group.RoleManager {
		t.Fatalf("expected promotion to manager, got %q", m.Role)
	}
	m, err = eng.Store().GetMembership(ctx, g2.ID, primary.ID)
	if err != nil || m == nil {
		t.Fatalf("GetMembership: %v %v", m, err)
	}
	if m.Role != group.RoleManager {
		t.Fatalf("expected inherited manager role, got %q", m.Role)
	}

	// The duplicate stays, marked as absorbed, and further merges fail.
	du, err := eng.User(ctx, dup.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if !du.IsMerged() || *du.MergedBy != primary.ID {
		t.Fatal("duplicate should be marked merged into primary")
	}
	if err := eng.MergeUsers(ctx, third.ID, dup.ID, third.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation re-merging, got %v", err)
	}
}

func TestAddContributorRedirectsMergedAccount(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	primary := registerUser(t, eng, "Primary", "primary@example.org")
	dup := registerUser(t, eng, "Duplicate", "dup@example.org")
	owner := registerUser(t, eng, "Owner", "owner@example.org")

	if err := eng.MergeUsers(ctx, primary.ID, dup.ID, primary.ID); err != nil {
		t.Fatalf("MergeUsers: %v", err)
	}

	n := createProject(t, eng, "Node", nil, owner.ID)
	if err := eng.AddContributor(ctx, n.ID, dup.ID, LevelWrite, true, owner.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	if c, _ := eng.Store().GetContributor(ctx, n.ID, dup.ID); c != nil {
		t.Fatal("merged account must not get a ledger entry")
	}
	c, err := eng.Store().GetContributor(ctx, n.ID, primary.ID)
	if err != nil || c == nil {
		t.Fatalf("expected redirect to primary, got %v %v", c, err)
	}
	if c.Level != LevelWrite {
		t.Fatalf("expected write, got %q", c.Level)
	}
}

func TestMergeByEmail(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	primary := registerUser(t, eng, "Primary", "primary@example.org")
	dup := registerUser(t, eng, "Duplicate", "second@example.org")

	if err := eng.MergeByEmail(ctx, primary.ID, "Second@Example.org", primary.ID); err != nil {
		t.Fatalf("MergeByEmail: %v", err)
	}
	du, err := eng.User(ctx, dup.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if !du.IsMerged() {
		t.Fatal("expected duplicate merged")
	}

	if err := eng.MergeByEmail(ctx, primary.ID, "unknown@example.org", primary.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// GDPR deletion
// ──────────────────────────────────────────────────

func TestCanGDPRDeleteBlockedByRegistration(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	u := registerUser(t, eng, "U", "u@example.org")
	if _, err := eng.CreateNode(ctx, "Study", node.KindRegistration, nil, u.ID); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	err := eng.CanGDPRDelete(ctx, u.ID)
	var state *UserStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected *UserStateError, got %v", err)
	}
	if state.Reason != "user has one or more registrations" {
		t.Fatalf("unexpected reason %q", state.Reason)
	}
}

func TestCanGDPRDeleteBlockedByOrphanedAdmins(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	admin := registerUser(t, eng, "Admin", "admin@example.org")
	writer := registerUser(t, eng, "Writer", "writer@example.org")

	n := createProject(t, eng, "Shared", nil, admin.ID)
	if err := eng.AddContributor(ctx, n.ID, writer.ID, LevelWrite, true, admin.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	err := eng.CanGDPRDelete(ctx, admin.ID)
	var state *UserStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected *UserStateError, got %v", err)
	}
	if state.NodeID != n.ID {
		t.Fatalf("expected blocking node %s, got %s", n.ID, state.NodeID)
	}

	// A second registered admin clears the block.
	if err := eng.SetContributorPermission(ctx, n.ID, writer.ID, LevelAdmin, admin.ID); err != nil {
		t.Fatalf("SetContributorPermission: %v", err)
	}
	if err := eng.CanGDPRDelete(ctx, admin.ID); err != nil {
		t.Fatalf("expected erasure allowed, got %v", err)
	}
}

func TestCanGDPRDeleteBlockedBySoleManagership(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	mgr := registerUser(t, eng, "Manager", "mgr@example.org")
	member := registerUser(t, eng, "Member", "member@example.org")

	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}

	err = eng.CanGDPRDelete(ctx, mgr.ID)
	var state *UserStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected *UserStateError, got %v", err)
	}
	if state.GroupID != g.ID {
		t.Fatalf("expected blocking group %s, got %s", g.ID, state.GroupID)
	}
}

func TestCanGDPRDeleteBlockedByOrphaningGroupGrant(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	u := registerUser(t, eng, "U", "u@example.org")
	n := createProject(t, eng, "Backed", nil, u.ID)

	g, err := eng.CreateGroup(ctx, "Solo Lab", u.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, LevelAdmin, u.ID); err != nil {
		t.Fatalf("AddGroupGrant: %v", err)
	}

	// A second contributor keeps the node alive through erasure, and the
	// grant becomes the node's only ADMIN source once u's entry goes.
	other := registerUser(t, eng, "Other", "other@example.org")
	if err := eng.AddContributor(ctx, n.ID, other.ID, LevelWrite, true, u.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	if err := eng.RemoveContributor(ctx, n.ID, u.ID, u.ID); err != nil {
		t.Fatalf("RemoveContributor: %v", err)
	}

	// Erasing u would delete the singleton group and orphan the node.
	err = eng.CanGDPRDelete(ctx, u.ID)
	var state *UserStateError
	if !errors.As(err, &state) {
		t.Fatalf("expected *UserStateError, got %v", err)
	}
	if state.NodeID != n.ID || state.GroupID != g.ID {
		t.Fatalf("expected blocking node %s and group %s, got %+v", n.ID, g.ID, state)
	}
	if err := eng.GDPRDelete(ctx, u.ID); !errors.As(err, &state) {
		t.Fatalf("expected GDPRDelete blocked, got %v", err)
	}

	// Another direct ADMIN clears the block.
	if err := eng.SetContributorPermission(ctx, n.ID, other.ID, LevelAdmin, u.ID); err != nil {
		t.Fatalf("SetContributorPermission: %v", err)
	}
	if err := eng.CanGDPRDelete(ctx, u.ID); err != nil {
		t.Fatalf("expected erasure allowed, got %v", err)
	}
	if err := eng.GDPRDelete(ctx, u.ID); err != nil {
		t.Fatalf("GDPRDelete: %v", err)
	}
	if got, _ := eng.Store().GetGroup(ctx, g.ID); got != nil {
		t.Fatal("expected singleton group deleted")
	}
	got, err := eng.Node(ctx, n.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if !got.IsLive() {
		t.Fatal("shared node must survive the erasure")
	}
}

func TestGDPRDelete(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	u := registerUser(t, eng, "Erase Me", "erase@example.org")
	other := registerUser(t, eng, "Other", "other@example.org")

	solo := createProject(t, eng, "Solo", nil, u.ID)

	// Shared node where u is a plain contributor.
	shared := createProject(t, eng, "Shared", nil, other.ID)
	if err := eng.AddContributor(ctx, shared.ID, u.ID, LevelWrite, true, other.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}

	// Group where u is alone.
	g, err := eng.CreateGroup(ctx, "Solo Lab", u.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := eng.GDPRDelete(ctx, u.ID); err != nil {
		t.Fatalf("GDPRDelete: %v", err)
	}

	// Sole-contributed node is tombstoned; shared entry removed.
	sn, err := eng.Node(ctx, solo.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if !sn.IsDeleted {
		t.Fatal("expected solo node tombstoned")
	}
	if c, _ := s.GetContributor(ctx, shared.ID, u.ID); c != nil {
		t.Fatal("expected shared entry removed")
	}

	// The singleton group is gone.
	if got, _ := s.GetGroup(ctx, g.ID); got != nil {
		t.Fatal("expected singleton group deleted")
	}

	// Account scrubbed and disabled.
	eu, err := eng.User(ctx, u.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if eu.FullName != "Deleted user" || eu.Email != "" || !eu.IsDisabled || eu.DeletedAt == nil {
		t.Fatalf("expected scrubbed account, got %+v", eu)
	}

	// Erased accounts cannot act.
	if _, err := eng.CreateNode(ctx, "After", node.KindProject, nil, u.ID); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Revocation teardown
// ──────────────────────────────────────────────────

type fakeExternal struct {
	NopExternalState
	mu       sync.Mutex
	released map[string]int // userID:nodeID -> release count
}

func newFakeExternal() *fakeExternal {
	return &fakeExternal{released: make(map[string]int)}
}

func (f *fakeExternal) ReleaseCredentials(_ context.Context, nodeID id.NodeID, userID id.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[userID.String()+":"+nodeID.String()]++
	return nil
}

func (f *fakeExternal) releases(userID id.UserID, nodeID id.NodeID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[userID.String()+":"+nodeID.String()]
}

func TestTeardownOnlyWhenLastSourceGone(t *testing.T) {
	ctx := context.Background()
	ext := newFakeExternal()
	eng, _ := newTestEngine(t, WithExternalState(ext))

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	u := registerUser(t, eng, "U", "u@example.org")

	n := createProject(t, eng, "Node", nil, owner.ID)

	g, err := eng.CreateGroup(ctx, "Lab", u.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := eng.AddContributor(ctx, n.ID, u.ID, LevelWrite, true, owner.ID); err != nil {
		t.Fatalf("AddContributor: %v", err)
	}
	if err := eng.AddGroupGrant(ctx, n.ID, g.ID, LevelRead, id.Nil); err != nil {
		t.Fatalf("AddGroupGrant: %v", err)
	}

	// The group grant still covers u: no release yet.
	if err := eng.RemoveContributor(ctx, n.ID, u.ID, owner.ID); err != nil {
		t.Fatalf("RemoveContributor: %v", err)
	}
	if got := ext.releases(u.ID, n.ID); got != 0 {
		t.Fatalf("expected no release while group source remains, got %d", got)
	}

	// Dropping the grant removes the last source.
	if err := eng.RemoveGroupGrant(ctx, n.ID, g.ID, u.ID); err != nil {
		t.Fatalf("RemoveGroupGrant: %v", err)
	}
	if got := ext.releases(u.ID, n.ID); got != 1 {
		t.Fatalf("expected one release, got %d", got)
	}
}

func TestResidualSources(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	parent := createProject(t, eng, "Parent", nil, owner.ID)
	child := createProject(t, eng, "Child", &parent.ID, owner.ID)

	sources, err := eng.ResidualSources(ctx, owner.ID, child.ID)
	if err != nil {
		t.Fatalf("ResidualSources: %v", err)
	}
	if !sources.Has(SourceDirect) || !sources.Has(SourceAncestor) {
		t.Fatalf("expected direct+ancestor, got %v", sources)
	}
	if sources.Has(SourceGroup) {
		t.Fatalf("unexpected group source: %v", sources)
	}
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

type fakeSink struct {
	mu     sync.Mutex
	events []*notify.Event
}

func (f *fakeSink) Deliver(_ context.Context, e *notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) count(kind notify.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestMemberAddedNotificationThrottled(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	eng, _ := newTestEngine(t, WithSink(sink))

	mgr := registerUser(t, eng, "Manager", "mgr@example.org")
	member := registerUser(t, eng, "Member", "member@example.org")

	g, err := eng.CreateGroup(ctx, "Lab", mgr.ID)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}
	if got := sink.count(notify.KindMemberAdded); got != 1 {
		t.Fatalf("expected one member_added event, got %d", got)
	}

	// Removing and re-adding inside the window is suppressed.
	if err := eng.RemoveGroupMember(ctx, g.ID, member.ID, mgr.ID); err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}
	if err := eng.SetGroupRole(ctx, g.ID, member.ID, group.RoleMember, mgr.ID); err != nil {
		t.Fatalf("SetGroupRole: %v", err)
	}
	if got := sink.count(notify.KindMemberAdded); got != 1 {
		t.Fatalf("expected repeat suppressed, got %d events", got)
	}
}

func TestMergeNotifiesPrimary(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	eng, _ := newTestEngine(t, WithSink(sink))

	primary := registerUser(t, eng, "Primary", "primary@example.org")
	dup := registerUser(t, eng, "Duplicate", "dup@example.org")

	if err := eng.MergeUsers(ctx, primary.ID, dup.ID, primary.ID); err != nil {
		t.Fatalf("MergeUsers: %v", err)
	}
	if got := sink.count(notify.KindAccountMerged); got != 1 {
		t.Fatalf("expected one account_merged event, got %d", got)
	}
}

// ──────────────────────────────────────────────────
// Audit log
// ──────────────────────────────────────────────────

func TestMutationsAreAudited(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	owner := registerUser(t, eng, "Owner", "owner@example.org")
	n := createProject(t, eng, "Node", nil, owner.ID)

	entries, err := s.ListEntries(ctx, &actionlog.QueryFilter{NodeID: n.ID})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != actionlog.ActionNodeCreated {
		t.Fatalf("expected one node_created entry, got %+v", entries)
	}
	if entries[0].ActorID != owner.ID {
		t.Fatalf("expected actor %s, got %s", owner.ID, entries[0].ActorID)
	}
}
