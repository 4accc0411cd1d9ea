package steward

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/notify"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/store"
	"github.com/xraph/steward/user"
)

// Engine is the central authorization engine. It owns the contributor
// ledgers, group rosters, and group grants, resolves effective
// permissions, and enforces the admin and manager invariants on every
// mutation.
//
// Mutations are serialized by an internal mutex so that invariant
// checks and the writes they guard are atomic with respect to each
// other. Reads (Resolve and friends) do not take the mutex.
//
// A nil actor ID marks a system-initiated mutation: gates are skipped
// and the audit entry records no actor.
type Engine struct {
	mu       sync.Mutex
	store    store.Store
	cache    Cache
	sink     notify.Sink
	notifier *notify.Dispatcher
	external ExternalState
	logger   *slog.Logger
	config   Config
	now      func() time.Time

	plugins    *plugin.Registry
	pluginList []plugin.Plugin
}

// NewEngine creates a new Steward engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		sink:     notify.NopSink{},
		external: NopExternalState{},
		logger:   slog.Default(),
		config:   DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("steward: store is required")
	}
	if e.config.MaxTreeDepth <= 0 {
		e.config.MaxTreeDepth = DefaultConfig().MaxTreeDepth
	}
	e.notifier = notify.NewDispatcher(e.sink, e.store, e.config.NotifyThrottle, e.logger)
	e.plugins = plugin.NewRegistry(e.logger)
	for _, p := range e.pluginList {
		e.plugins.Register(p)
	}
	return e, nil
}

// Shutdown notifies plugins that the engine is shutting down.
func (e *Engine) Shutdown(ctx context.Context) {
	e.plugins.EmitShutdown(ctx)
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// ──────────────────────────────────────────────────────────────────────
// Shared helpers
// ──────────────────────────────────────────────────────────────────────

// isSystem reports whether the actor marks a system-initiated mutation.
func isSystem(actorID id.UserID) bool { return actorID.IsNil() }

// getUser loads a user, mapping a missing row to ErrNotFound.
func (e *Engine) getUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("steward: load user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return u, nil
}

// getActiveUser loads a user and verifies the account can act.
func (e *Engine) getActiveUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	u, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive() {
		return nil, fmt.Errorf("%w: user %s is not active", ErrInvalidOperation, userID)
	}
	return u, nil
}

// getGroup loads a group, mapping a missing row to ErrNotFound.
func (e *Engine) getGroup(ctx context.Context, groupID id.GroupID) (*group.Group, error) {
	g, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("steward: load group: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	return g, nil
}

// getNode loads a node, tombstoned or not, mapping a missing row to
// ErrNotFound.
func (e *Engine) getNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	n, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("steward: load node: %w", err)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}
	return n, nil
}

// getLiveNode loads a node and rejects tombstones.
func (e *Engine) getLiveNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	n, err := e.getNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if !n.IsLive() {
		return nil, fmt.Errorf("%w: node %s", ErrGone, nodeID)
	}
	return n, nil
}

// mergeTarget follows the merged-by chain to the account that absorbed
// u, returning u itself when not merged.
func (e *Engine) mergeTarget(ctx context.Context, u *user.User) (*user.User, error) {
	const maxHops = 10
	for hops := 0; u.IsMerged(); hops++ {
		if hops >= maxHops {
			return nil, fmt.Errorf("%w: merge chain too deep for user %s", ErrInvalidOperation, u.ID)
		}
		next, err := e.getUser(ctx, *u.MergedBy)
		if err != nil {
			return nil, err
		}
		u = next
	}
	return u, nil
}

// isManager reports whether the user holds the manager role in a group.
func (e *Engine) isManager(ctx context.Context, groupID id.GroupID, userID id.UserID) (bool, error) {
	if userID.IsNil() {
		return false, nil
	}
	m, err := e.store.GetMembership(ctx, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("steward: load membership: %w", err)
	}
	return m != nil && m.Role == group.RoleManager, nil
}

// requireManager gates a group mutation on manager role, unless the
// mutation is system-initiated.
func (e *Engine) requireManager(ctx context.Context, groupID id.GroupID, actorID id.UserID) error {
	if isSystem(actorID) {
		return nil
	}
	ok, err := e.isManager(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s is not a manager of group %s", ErrPermissionDenied, actorID, groupID)
	}
	return nil
}

// requireNodeAdmin gates a node mutation on effective ADMIN, unless the
// mutation is system-initiated. Inherited and group-derived ADMIN count.
func (e *Engine) requireNodeAdmin(ctx context.Context, nodeID id.NodeID, actorID id.UserID) error {
	if isSystem(actorID) {
		return nil
	}
	ok, err := e.HasPermission(ctx, actorID, nodeID, LevelAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s lacks admin on node %s", ErrPermissionDenied, actorID, nodeID)
	}
	return nil
}

// blockedDomain reports whether the email's domain is on the block list.
func (e *Engine) blockedDomain(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range e.config.BlockedEmailDomains {
		if strings.ToLower(d) == domain {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// claimToken generates the token an invited placeholder user presents
// to claim their account.
func claimToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("steward: claim token: %v", err))
	}
	return hex.EncodeToString(buf)
}

// audit records a mutation in the action log. Audit failures fail the
// mutation: every change must leave a trace.
func (e *Engine) audit(ctx context.Context, entry *actionlog.Entry) error {
	entry.ID = id.NewLogID()
	entry.CreatedAt = e.now()
	if err := e.store.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("steward: audit %s: %w", entry.Action, err)
	}
	e.plugins.EmitActionLogged(ctx, entry)
	return nil
}

// emit dispatches a notification. Delivery problems are logged, never
// propagated: the mutation has already been committed.
func (e *Engine) emit(ctx context.Context, evt *notify.Event) {
	if _, err := e.notifier.Dispatch(ctx, evt); err != nil {
		e.logger.Warn("notification dispatch failed",
			"kind", evt.Kind,
			"recipient", evt.RecipientID.String(),
			"error", err)
	}
}

// invalidateUser drops cached resolutions for a user.
func (e *Engine) invalidateUser(ctx context.Context, userID id.UserID) {
	if e.cache != nil {
		e.cache.InvalidateUser(ctx, userID)
	}
}

// invalidateAll drops every cached resolution.
func (e *Engine) invalidateAll(ctx context.Context) {
	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
}
