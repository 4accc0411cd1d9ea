package user

import (
	"context"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for users.
type Store interface {
	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID id.UserID) (*User, error)

	// GetUserByEmail retrieves a user by email address (case-insensitive).
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser persists changes to a user.
	UpdateUser(ctx context.Context, u *User) error

	// ListUsers returns users matching the filter.
	ListUsers(ctx context.Context, filter *ListFilter) ([]*User, error)

	// CountUsers returns the number of users matching the filter.
	CountUsers(ctx context.Context, filter *ListFilter) (int64, error)
}
