// Package throttle defines the delivery record used to rate-limit
// repeat notifications for the same subject and recipient.
package throttle

import (
	"context"
	"time"
)

// Record remembers when a notification for a given key was last sent.
// Keys encode the notification kind, subject, and recipient, so each
// pairing is throttled independently.
type Record struct {
	Key        string    `json:"key" db:"key"`
	LastSentAt time.Time `json:"last_sent_at" db:"last_sent_at"`
}

// Store defines persistence operations for throttle records.
type Store interface {
	// GetRecord retrieves the record for a key, or nil with no error if
	// none exists.
	GetRecord(ctx context.Context, key string) (*Record, error)

	// PutRecord creates or updates the record for a key.
	PutRecord(ctx context.Context, r *Record) error

	// PurgeRecords removes records last updated before the given time
	// and returns how many were removed.
	PurgeRecords(ctx context.Context, before time.Time) (int64, error)
}
