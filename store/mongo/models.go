package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/steward/actionlog"
	"github.com/xraph/steward/group"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/level"
	"github.com/xraph/steward/node"
	"github.com/xraph/steward/throttle"
	"github.com/xraph/steward/user"
)

// ──────────────────────────────────────────────────
// User model
// ──────────────────────────────────────────────────

type userModel struct {
	grove.BaseModel  `grove:"table:steward_users"`
	ID               string                 `grove:"id,pk"             bson:"_id"`
	FullName         string                 `grove:"full_name"         bson:"full_name"`
	Email            string                 `grove:"email"             bson:"email"`
	IsRegistered     bool                   `grove:"is_registered"     bson:"is_registered"`
	IsSuperuser      bool                   `grove:"is_superuser"      bson:"is_superuser"`
	IsDisabled       bool                   `grove:"is_disabled"       bson:"is_disabled"`
	MergedBy         *string                `grove:"merged_by"         bson:"merged_by,omitempty"`
	ExternalAccounts []user.ExternalAccount `grove:"external_accounts" bson:"external_accounts,omitempty"`
	Affiliations     []string               `grove:"affiliations"      bson:"affiliations,omitempty"`
	MailingLists     []string               `grove:"mailing_lists"     bson:"mailing_lists,omitempty"`
	Unclaimed        []user.ClaimRecord     `grove:"unclaimed"         bson:"unclaimed,omitempty"`
	DeletedAt        *time.Time             `grove:"deleted_at"        bson:"deleted_at,omitempty"`
	CreatedAt        time.Time              `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time              `grove:"updated_at"        bson:"updated_at"`
}

func userToModel(u *user.User) *userModel {
	m := &userModel{
		ID:               u.ID.String(),
		FullName:         u.FullName,
		Email:            u.Email,
		IsRegistered:     u.IsRegistered,
		IsSuperuser:      u.IsSuperuser,
		IsDisabled:       u.IsDisabled,
		ExternalAccounts: u.ExternalAccounts,
		Affiliations:     u.Affiliations,
		MailingLists:     u.MailingLists,
		Unclaimed:        u.Unclaimed,
		DeletedAt:        u.DeletedAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.MergedBy != nil {
		s := u.MergedBy.String()
		m.MergedBy = &s
	}
	return m
}

func userFromModel(m *userModel) *user.User {
	uid, _ := id.ParseUserID(m.ID) //nolint:errcheck // stored IDs are always valid
	u := &user.User{
		ID:               uid,
		FullName:         m.FullName,
		Email:            m.Email,
		IsRegistered:     m.IsRegistered,
		IsSuperuser:      m.IsSuperuser,
		IsDisabled:       m.IsDisabled,
		ExternalAccounts: m.ExternalAccounts,
		Affiliations:     m.Affiliations,
		MailingLists:     m.MailingLists,
		Unclaimed:        m.Unclaimed,
		DeletedAt:        m.DeletedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.MergedBy != nil {
		mid, err := id.ParseUserID(*m.MergedBy)
		if err == nil {
			u.MergedBy = &mid
		}
	}
	return u
}

// ──────────────────────────────────────────────────
// Group model
// ──────────────────────────────────────────────────

type groupModel struct {
	grove.BaseModel `grove:"table:steward_groups"`
	ID              string    `grove:"id,pk"      bson:"_id"`
	Name            string    `grove:"name"       bson:"name"`
	CreatorID       string    `grove:"creator_id" bson:"creator_id"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
}

func groupToModel(g *group.Group) *groupModel {
	return &groupModel{
		ID:        g.ID.String(),
		Name:      g.Name,
		CreatorID: g.CreatorID.String(),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func groupFromModel(m *groupModel) *group.Group {
	gid, _ := id.ParseGroupID(m.ID)       //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseUserID(m.CreatorID) //nolint:errcheck // stored IDs are always valid
	return &group.Group{
		ID:        gid,
		Name:      m.Name,
		CreatorID: cid,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Membership model
// ──────────────────────────────────────────────────

type membershipModel struct {
	grove.BaseModel `grove:"table:steward_group_memberships"`
	GroupID         string    `grove:"group_id,pk" bson:"group_id"`
	UserID          string    `grove:"user_id,pk"  bson:"user_id"`
	Role            string    `grove:"role"        bson:"role"`
	CreatedAt       time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"  bson:"updated_at"`
}

func membershipToModel(m *group.Membership) *membershipModel {
	return &membershipModel{
		GroupID:   m.GroupID.String(),
		UserID:    m.UserID.String(),
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func membershipFromModel(m *membershipModel) *group.Membership {
	gid, _ := id.ParseGroupID(m.GroupID) //nolint:errcheck // stored IDs are always valid
	uid, _ := id.ParseUserID(m.UserID)   //nolint:errcheck // stored IDs are always valid
	return &group.Membership{
		GroupID:   gid,
		UserID:    uid,
		Role:      group.Role(m.Role),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Node model
// ──────────────────────────────────────────────────

type nodeModel struct {
	grove.BaseModel `grove:"table:steward_nodes"`
	ID              string     `grove:"id,pk"      bson:"_id"`
	Title           string     `grove:"title"      bson:"title"`
	Kind            string     `grove:"kind"       bson:"kind"`
	CreatorID       string     `grove:"creator_id" bson:"creator_id"`
	ParentID        *string    `grove:"parent_id"  bson:"parent_id,omitempty"`
	IsDeleted       bool       `grove:"is_deleted" bson:"is_deleted"`
	DeletedAt       *time.Time `grove:"deleted_at" bson:"deleted_at,omitempty"`
	CreatedAt       time.Time  `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at" bson:"updated_at"`
}

func nodeToModel(n *node.Node) *nodeModel {
	m := &nodeModel{
		ID:        n.ID.String(),
		Title:     n.Title,
		Kind:      string(n.Kind),
		CreatorID: n.CreatorID.String(),
		IsDeleted: n.IsDeleted,
		DeletedAt: n.DeletedAt,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	if n.ParentID != nil {
		s := n.ParentID.String()
		m.ParentID = &s
	}
	return m
}

func nodeFromModel(m *nodeModel) *node.Node {
	nid, _ := id.ParseNodeID(m.ID)        //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseUserID(m.CreatorID) //nolint:errcheck // stored IDs are always valid
	n := &node.Node{
		ID:        nid,
		Title:     m.Title,
		Kind:      node.Kind(m.Kind),
		CreatorID: cid,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ParentID != nil {
		pid, err := id.ParseNodeID(*m.ParentID)
		if err == nil {
			n.ParentID = &pid
		}
	}
	return n
}

// ──────────────────────────────────────────────────
// Contributor model
// ──────────────────────────────────────────────────

type contributorModel struct {
	grove.BaseModel `grove:"table:steward_contributors"`
	NodeID          string    `grove:"node_id,pk" bson:"node_id"`
	UserID          string    `grove:"user_id,pk" bson:"user_id"`
	Level           string    `grove:"level"      bson:"level"`
	Visible         bool      `grove:"visible"    bson:"visible"`
	Ordering        int       `grove:"ordering"   bson:"ordering"`
	CreatedAt       time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at" bson:"updated_at"`
}

func contributorToModel(c *node.Contributor) *contributorModel {
	return &contributorModel{
		NodeID:    c.NodeID.String(),
		UserID:    c.UserID.String(),
		Level:     string(c.Level),
		Visible:   c.Visible,
		Ordering:  c.Order,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func contributorFromModel(m *contributorModel) *node.Contributor {
	nid, _ := id.ParseNodeID(m.NodeID) //nolint:errcheck // stored IDs are always valid
	uid, _ := id.ParseUserID(m.UserID) //nolint:errcheck // stored IDs are always valid
	return &node.Contributor{
		NodeID:    nid,
		UserID:    uid,
		Level:     level.Level(m.Level),
		Visible:   m.Visible,
		Order:     m.Ordering,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Group grant model
// ──────────────────────────────────────────────────

type groupGrantModel struct {
	grove.BaseModel `grove:"table:steward_group_grants"`
	NodeID          string    `grove:"node_id,pk"  bson:"node_id"`
	GroupID         string    `grove:"group_id,pk" bson:"group_id"`
	Level           string    `grove:"level"       bson:"level"`
	CreatedAt       time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"  bson:"updated_at"`
}

func groupGrantToModel(g *node.GroupGrant) *groupGrantModel {
	return &groupGrantModel{
		NodeID:    g.NodeID.String(),
		GroupID:   g.GroupID.String(),
		Level:     string(g.Level),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func groupGrantFromModel(m *groupGrantModel) *node.GroupGrant {
	nid, _ := id.ParseNodeID(m.NodeID)   //nolint:errcheck // stored IDs are always valid
	gid, _ := id.ParseGroupID(m.GroupID) //nolint:errcheck // stored IDs are always valid
	return &node.GroupGrant{
		NodeID:    nid,
		GroupID:   gid,
		Level:     level.Level(m.Level),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Action log model
// ──────────────────────────────────────────────────

type actionLogModel struct {
	grove.BaseModel `grove:"table:steward_action_log"`
	ID              string         `grove:"id,pk"      bson:"_id"`
	Action          string         `grove:"action"     bson:"action"`
	ActorID         string         `grove:"actor_id"   bson:"actor_id,omitempty"`
	GroupID         string         `grove:"group_id"   bson:"group_id,omitempty"`
	NodeID          string         `grove:"node_id"    bson:"node_id,omitempty"`
	TargetID        string         `grove:"target_id"  bson:"target_id,omitempty"`
	Params          map[string]any `grove:"params"     bson:"params,omitempty"`
	CreatedAt       time.Time      `grove:"created_at" bson:"created_at"`
}

func actionLogToModel(e *actionlog.Entry) *actionLogModel {
	return &actionLogModel{
		ID:        e.ID.String(),
		Action:    string(e.Action),
		ActorID:   e.ActorID.String(),
		GroupID:   e.GroupID.String(),
		NodeID:    e.NodeID.String(),
		TargetID:  e.TargetID.String(),
		Params:    e.Params,
		CreatedAt: e.CreatedAt,
	}
}

func actionLogFromModel(m *actionLogModel) *actionlog.Entry {
	lid, _ := id.ParseLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	e := &actionlog.Entry{
		ID:        lid,
		Action:    actionlog.Action(m.Action),
		Params:    m.Params,
		CreatedAt: m.CreatedAt,
	}
	if m.ActorID != "" {
		e.ActorID, _ = id.ParseUserID(m.ActorID) //nolint:errcheck // stored IDs are always valid
	}
	if m.GroupID != "" {
		e.GroupID, _ = id.ParseGroupID(m.GroupID) //nolint:errcheck // stored IDs are always valid
	}
	if m.NodeID != "" {
		e.NodeID, _ = id.ParseNodeID(m.NodeID) //nolint:errcheck // stored IDs are always valid
	}
	if m.TargetID != "" {
		e.TargetID, _ = id.ParseUserID(m.TargetID) //nolint:errcheck // stored IDs are always valid
	}
	return e
}

// ──────────────────────────────────────────────────
// Throttle record model
// ──────────────────────────────────────────────────

type throttleRecordModel struct {
	grove.BaseModel `grove:"table:steward_throttle_records"`
	Key             string    `grove:"key,pk"       bson:"_id"`
	LastSentAt      time.Time `grove:"last_sent_at" bson:"last_sent_at"`
}

func throttleRecordToModel(r *throttle.Record) *throttleRecordModel {
	return &throttleRecordModel{
		Key:        r.Key,
		LastSentAt: r.LastSentAt,
	}
}

func throttleRecordFromModel(m *throttleRecordModel) *throttle.Record {
	return &throttle.Record{
		Key:        m.Key,
		LastSentAt: m.LastSentAt,
	}
}
