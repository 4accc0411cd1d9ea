package actionlog

import (
	"context"
	"time"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for the action log.
type Store interface {
	// CreateEntry persists a new action log entry.
	CreateEntry(ctx context.Context, e *Entry) error

	// GetEntry retrieves an action log entry by ID.
	GetEntry(ctx context.Context, logID id.LogID) (*Entry, error)

	// ListEntries returns action log entries matching the filter, newest
	// first.
	ListEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountEntries returns the number of entries matching the filter.
	CountEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeEntries removes entries older than the given time and returns
	// how many were removed.
	PurgeEntries(ctx context.Context, before time.Time) (int64, error)
}
