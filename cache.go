package steward

import (
	"context"

	"github.com/xraph/steward/id"
)

// Cache provides caching for permission resolution results. Entries are
// keyed by (user, node, group-admin inheritance flag); a cached entry
// stores both the resolved level and whether any permission was held.
type Cache interface {
	// Get returns a cached resolution, if available. The second return
	// is the stored "permission held" flag; the third reports a hit.
	Get(ctx context.Context, userID id.UserID, nodeID id.NodeID, groupAdmin bool) (Level, bool, bool)

	// Set stores a resolution result.
	Set(ctx context.Context, userID id.UserID, nodeID id.NodeID, groupAdmin bool, lvl Level, held bool)

	// InvalidateUser removes all cached resolutions for a user.
	InvalidateUser(ctx context.Context, userID id.UserID)

	// InvalidateNode removes all cached resolutions for a node.
	InvalidateNode(ctx context.Context, nodeID id.NodeID)

	// InvalidateAll removes every cached resolution.
	InvalidateAll(ctx context.Context)
}
