package steward

import (
	"errors"
	"fmt"

	"github.com/xraph/steward/id"
)

var (
	// ErrPermissionDenied is returned when the acting user lacks the
	// permission or role an operation requires.
	ErrPermissionDenied = errors.New("steward: permission denied")

	// ErrInvariantViolation is returned when a mutation would leave a
	// node without an ADMIN holder or a group without a manager.
	ErrInvariantViolation = errors.New("steward: invariant violation")

	// ErrDuplicateIdentity is returned when an email already belongs to
	// a registered or pending identity.
	ErrDuplicateIdentity = errors.New("steward: identity already exists")

	// ErrBlockedDomain is returned when an email domain is on the block list.
	ErrBlockedDomain = errors.New("steward: email domain is blocked")

	// ErrInvalidOperation is returned when an operation is structurally
	// invalid, such as merging an account into itself.
	ErrInvalidOperation = errors.New("steward: invalid operation")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("steward: not found")

	// ErrGone is returned when an operation targets a tombstoned node.
	ErrGone = errors.New("steward: resource is deleted")

	// ErrTreeDepthExceeded is returned when node ancestry is deeper than
	// the configured maximum.
	ErrTreeDepthExceeded = errors.New("steward: node tree depth exceeded")
)

// UserStateError explains why an account cannot be erased. Exactly one
// of NodeID or GroupID names the blocking resource when one is involved.
type UserStateError struct {
	UserID   id.UserID
	NodeID   id.NodeID
	GroupID  id.GroupID
	Provider string
	Reason   string
}

// Error implements error.
func (e *UserStateError) Error() string {
	return fmt.Sprintf("steward: cannot delete user %s: %s", e.UserID, e.Reason)
}
