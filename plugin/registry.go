package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/user"
)

// Named entry types pair a hook with the plugin name for logging.

type permissionResolvedEntry struct {
	name string
	hook PermissionResolved
}
type userRegisteredEntry struct {
	name string
	hook UserRegistered
}
type usersMergedEntry struct {
	name string
	hook UsersMerged
}
type userErasedEntry struct {
	name string
	hook UserErased
}
type groupCreatedEntry struct {
	name string
	hook GroupCreated
}
type groupDeletedEntry struct {
	name string
	hook GroupDeleted
}
type nodeCreatedEntry struct {
	name string
	hook NodeCreated
}
type nodeDeletedEntry struct {
	name string
	hook NodeDeleted
}
type actionLoggedEntry struct {
	name string
	hook ActionLogged
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	permissionResolved []permissionResolvedEntry
	userRegistered     []userRegisteredEntry
	usersMerged        []usersMergedEntry
	userErased         []userErasedEntry
	groupCreated       []groupCreatedEntry
	groupDeleted       []groupDeletedEntry
	nodeCreated        []nodeCreatedEntry
	nodeDeleted        []nodeDeletedEntry
	actionLogged       []actionLoggedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(PermissionResolved); ok {
		r.permissionResolved = append(r.permissionResolved, permissionResolvedEntry{name, h})
	}
	if h, ok := p.(UserRegistered); ok {
		r.userRegistered = append(r.userRegistered, userRegisteredEntry{name, h})
	}
	if h, ok := p.(UsersMerged); ok {
		r.usersMerged = append(r.usersMerged, usersMergedEntry{name, h})
	}
	if h, ok := p.(UserErased); ok {
		r.userErased = append(r.userErased, userErasedEntry{name, h})
	}
	if h, ok := p.(GroupCreated); ok {
		r.groupCreated = append(r.groupCreated, groupCreatedEntry{name, h})
	}
	if h, ok := p.(GroupDeleted); ok {
		r.groupDeleted = append(r.groupDeleted, groupDeletedEntry{name, h})
	}
	if h, ok := p.(NodeCreated); ok {
		r.nodeCreated = append(r.nodeCreated, nodeCreatedEntry{name, h})
	}
	if h, ok := p.(NodeDeleted); ok {
		r.nodeDeleted = append(r.nodeDeleted, nodeDeletedEntry{name, h})
	}
	if h, ok := p.(ActionLogged); ok {
		r.actionLogged = append(r.actionLogged, actionLoggedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// EmitPermissionResolved notifies all plugins that implement PermissionResolved.
func (r *Registry) EmitPermissionResolved(ctx context.Context, userID id.UserID, nodeID id.NodeID, lvl level.Level, held bool) {
	for _, e := range r.permissionResolved {
		if err := e.hook.OnPermissionResolved(ctx, userID, nodeID, lvl, held); err != nil {
			r.logHookError("OnPermissionResolved", e.name, err)
		}
	}
}

// EmitUserRegistered notifies all plugins that implement UserRegistered.
func (r *Registry) EmitUserRegistered(ctx context.Context, u *user.User) {
	for _, e := range r.userRegistered {
		if err := e.hook.OnUserRegistered(ctx, u); err != nil {
			r.logHookError("OnUserRegistered", e.name, err)
		}
	}
}

// EmitUsersMerged notifies all plugins that implement UsersMerged.
func (r *Registry) EmitUsersMerged(ctx context.Context, primaryID, duplicateID id.UserID) {
	for _, e := range r.usersMerged {
		if err := e.hook.OnUsersMerged(ctx, primaryID, duplicateID); err != nil {
			r.logHookError("OnUsersMerged", e.name, err)
		}
	}
}

// EmitUserErased notifies all plugins that implement UserErased.
func (r *Registry) EmitUserErased(ctx context.Context, userID id.UserID) {
	for _, e := range r.userErased {
		if err := e.hook.OnUserErased(ctx, userID); err != nil {
			r.logHookError("OnUserErased", e.name, err)
		}
	}
}

// EmitGroupCreated notifies all plugins that implement GroupCreated.
func (r *Registry) EmitGroupCreated(ctx context.Context, g *group.Group) {
	for _, e := range r.groupCreated {
		if err := e.hook.OnGroupCreated(ctx, g); err != nil {
			r.logHookError("OnGroupCreated", e.name, err)
		}
	}
}

// EmitGroupDeleted notifies all plugins that implement GroupDeleted.
func (r *Registry) EmitGroupDeleted(ctx context.Context, groupID id.GroupID) {
	for _, e := range r.groupDeleted {
		if err := e.hook.OnGroupDeleted(ctx, groupID); err != nil {
			r.logHookError("OnGroupDeleted", e.name, err)
		}
	}
}

// EmitNodeCreated notifies all plugins that implement NodeCreated.
func (r *Registry) EmitNodeCreated(ctx context.Context, n *node.Node) {
	for _, e := range r.nodeCreated {
		if err := e.hook.OnNodeCreated(ctx, n); err != nil {
			r.logHookError("OnNodeCreated", e.name, err)
		}
	}
}

// EmitNodeDeleted notifies all plugins that implement NodeDeleted.
func (r *Registry) EmitNodeDeleted(ctx context.Context, nodeID id.NodeID) {
	for _, e := range r.nodeDeleted {
		if err := e.hook.OnNodeDeleted(ctx, nodeID); err != nil {
			r.logHookError("OnNodeDeleted", e.name, err)
		}
	}
}

// EmitActionLogged notifies all plugins that implement ActionLogged.
func (r *Registry) EmitActionLogged(ctx context.Context, entry *actionlog.Entry) {
	for _, e := range r.actionLogged {
		if err := e.hook.OnActionLogged(ctx, entry); err != nil {
			r.logHookError("OnActionLogged", e.name, err)
		}
	}
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
