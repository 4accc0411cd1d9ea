package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/user"
)

// RegisterUser creates a fully registered account.
func (e *Engine) RegisterUser(ctx context.Context, fullName, email string) (*user.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidOperation)
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidOperation)
	}
	if e.blockedDomain(email) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedDomain, email)
	}

	existing, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("steward: lookup email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email %s", ErrDuplicateIdentity, email)
	}

	now := e.now()
	u := &user.User{
		ID:           id.NewUserID(),
		FullName:     fullName,
		Email:        email,
		IsRegistered: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("steward: create user: %w", err)
	}

	if err := e.audit(ctx, &actionlog.Entry{
		Action:   actionlog.ActionUserRegistered,
		TargetID: u.ID,
	}); err != nil {
		return nil, err
	}

	e.plugins.EmitUserRegistered(ctx, u)
	e.logger.Info("user registered", "user", u.ID.String())

	return u, nil
}

// User retrieves an account by ID.
func (e *Engine) User(ctx context.Context, userID id.UserID) (*user.User, error) {
	return e.getUser(ctx, userID)
}

// UserByEmail retrieves an account by email address, or nil with no
// error if the address is unknown.
func (e *Engine) UserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := e.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("steward: lookup email: %w", err)
	}
	return u, nil
}
