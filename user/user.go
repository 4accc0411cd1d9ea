// Package user defines the User identity entity and its store interface.
package user

import (
	"time"

	"github.com/xraph/steward/id"
)

// User represents an account known to the system. A user may be fully
// registered, or a placeholder created when an unregistered person is
// invited into a group by email.
type User struct {
	ID           id.UserID  `json:"id" db:"id"`
	FullName     string     `json:"full_name" db:"full_name"`
	Email        string     `json:"email,omitempty" db:"email"`
	IsRegistered bool       `json:"is_registered" db:"is_registered"`
	IsSuperuser  bool       `json:"is_superuser" db:"is_superuser"`
	IsDisabled   bool       `json:"is_disabled" db:"is_disabled"`
	MergedBy     *id.UserID `json:"merged_by,omitempty" db:"merged_by"`

	// ExternalAccounts are third-party credentials linked to this account.
	ExternalAccounts []ExternalAccount `json:"external_accounts,omitempty" db:"external_accounts"`

	// Affiliations are institution identifiers the user is affiliated with.
	Affiliations []string `json:"affiliations,omitempty" db:"affiliations"`

	// MailingLists are list identifiers the user is subscribed to.
	MailingLists []string `json:"mailing_lists,omitempty" db:"mailing_lists"`

	// Unclaimed holds one claim record per group that invited this
	// placeholder user. Empty for registered users.
	Unclaimed []ClaimRecord `json:"unclaimed,omitempty" db:"unclaimed"`

	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ExternalAccount is a credential for a third-party service linked to a user.
type ExternalAccount struct {
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
}

// ClaimRecord lets an unregistered placeholder user later claim the
// account created on their behalf.
type ClaimRecord struct {
	GroupID    id.GroupID `json:"group_id"`
	ReferrerID id.UserID  `json:"referrer_id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Token      string     `json:"token"`
}

// IsMerged reports whether this account has been absorbed into another.
func (u *User) IsMerged() bool {
	return u.MergedBy != nil
}

// IsActive reports whether the account can act: registered, not disabled,
// not merged away, and not deleted.
func (u *User) IsActive() bool {
	return u.IsRegistered && !u.IsDisabled && !u.IsMerged() && u.DeletedAt == nil
}

// HasExternalAccount reports whether the given provider account is linked.
func (u *User) HasExternalAccount(provider, accountID string) bool {
	for _, a := range u.ExternalAccounts {
		if a.Provider == provider && a.AccountID == accountID {
			return true
		}
	}

	return false
}

// ListFilter contains filters for listing users.
type ListFilter struct {
	IsRegistered *bool  `json:"is_registered,omitempty"`
	IsDisabled   *bool  `json:"is_disabled,omitempty"`
	Search       string `json:"search,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}
