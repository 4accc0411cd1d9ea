// Package actionlog defines the audit log Entry entity recording every
// mutation the engine performs.
package actionlog

import (
	"time"

	"github.com/xraph/steward/id"
)

// Action identifies what a log entry records.
type Action string

// Actions recorded by the engine.
const (
	ActionUserRegistered  Action = "user_registered"
	ActionUsersMerged     Action = "users_merged"
	ActionUserGDPRDeleted Action = "user_gdpr_deleted"

	ActionGroupCreated  Action = "group_created"
	ActionGroupRenamed  Action = "group_renamed"
	ActionGroupDeleted  Action = "group_deleted"
	ActionManagerAdded  Action = "manager_added"
	ActionMemberAdded   Action = "member_added"
	ActionRoleUpdated   Action = "role_updated"
	ActionMemberRemoved Action = "member_removed"

	ActionNodeCreated Action = "node_created"
	ActionNodeDeleted Action = "node_deleted"

	ActionContributorAdded   Action = "contributor_added"
	ActionContributorRemoved Action = "contributor_removed"
	ActionPermissionsUpdated Action = "permissions_updated"
	ActionVisibilityUpdated  Action = "visibility_updated"

	ActionGroupGrantAdded   Action = "group_grant_added"
	ActionGroupGrantUpdated Action = "group_grant_updated"
	ActionGroupGrantRemoved Action = "group_grant_removed"
)

// Entry is a single audit record. ActorID is nil for system-initiated
// mutations. GroupID, NodeID, and TargetID are set when relevant to the
// action; Params carries action-specific detail such as old and new
// role or level values.
type Entry struct {
	ID        id.LogID       `json:"id" db:"id"`
	Action    Action         `json:"action" db:"action"`
	ActorID   id.UserID      `json:"actor_id,omitempty" db:"actor_id"`
	GroupID   id.GroupID     `json:"group_id,omitempty" db:"group_id"`
	NodeID    id.NodeID      `json:"node_id,omitempty" db:"node_id"`
	TargetID  id.UserID      `json:"target_id,omitempty" db:"target_id"`
	Params    map[string]any `json:"params,omitempty" db:"params"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying the action log.
type QueryFilter struct {
	Action   Action     `json:"action,omitempty"`
	ActorID  id.UserID  `json:"actor_id,omitempty"`
	GroupID  id.GroupID `json:"group_id,omitempty"`
	NodeID   id.NodeID  `json:"node_id,omitempty"`
	TargetID id.UserID  `json:"target_id,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
