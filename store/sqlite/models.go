package sqlite

import (
	"encoding/json"
	"fmt"
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
	ID               string     `grove:"id,pk"`
	FullName         string     `grove:"full_name,notnull"`
	Email            string     `grove:"email"`
	IsRegistered     bool       `grove:"is_registered,notnull"`
	IsSuperuser      bool       `grove:"is_superuser,notnull"`
	IsDisabled       bool       `grove:"is_disabled,notnull"`
	MergedBy         *string    `grove:"merged_by"`
	ExternalAccounts string     `grove:"external_accounts"` // JSON text
	Affiliations     string     `grove:"affiliations"`      // JSON text
	MailingLists     string     `grove:"mailing_lists"`     // JSON text
	Unclaimed        string     `grove:"unclaimed"`         // JSON text
	DeletedAt        *time.Time `grove:"deleted_at"`
	CreatedAt        time.Time  `grove:"created_at,notnull"`
	UpdatedAt        time.Time  `grove:"updated_at,notnull"`
}

func userToModel(u *user.User) (*userModel, error) {
	accounts, err := json.Marshal(u.ExternalAccounts)
	if err != nil {
		return nil, fmt.Errorf("marshal external accounts: %w", err)
	}
	affiliations, err := json.Marshal(u.Affiliations)
	if err != nil {
		return nil, fmt.Errorf("marshal affiliations: %w", err)
	}
	lists, err := json.Marshal(u.MailingLists)
	if err != nil {
		return nil, fmt.Errorf("marshal mailing lists: %w", err)
	}
	unclaimed, err := json.Marshal(u.Unclaimed)
	if err != nil {
		return nil, fmt.Errorf("marshal claim records: %w", err)
	}
	m := &userModel{
		ID:               u.ID.String(),
		FullName:         u.FullName,
		Email:            u.Email,
		IsRegistered:     u.IsRegistered,
		IsSuperuser:      u.IsSuperuser,
		IsDisabled:       u.IsDisabled,
		ExternalAccounts: string(accounts),
		Affiliations:     string(affiliations),
		MailingLists:     string(lists),
		Unclaimed:        string(unclaimed),
		DeletedAt:        u.DeletedAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.MergedBy != nil {
		s := u.MergedBy.String()
		m.MergedBy = &s
	}
	return m, nil
}

func userFromModel(m *userModel) (*user.User, error) {
	uid, _ := id.ParseUserID(m.ID) //nolint:errcheck // stored IDs are always valid
	var accounts []user.ExternalAccount
	if m.ExternalAccounts != "" {
		if err := json.Unmarshal([]byte(m.ExternalAccounts), &accounts); err != nil {
			return nil, fmt.Errorf("unmarshal external accounts: %w", err)
		}
	}
	var affiliations []string
	if m.Affiliations != "" {
		if err := json.Unmarshal([]byte(m.Affiliations), &affiliations); err != nil {
			return nil, fmt.Errorf("unmarshal affiliations: %w", err)
		}
	}
	var lists []string
	if m.MailingLists != "" {
		if err := json.Unmarshal([]byte(m.MailingLists), &lists); err != nil {
			return nil, fmt.Errorf("unmarshal mailing lists: %w", err)
		}
	}
	var unclaimed []user.ClaimRecord
	if m.Unclaimed != "" {
		if err := json.Unmarshal([]byte(m.Unclaimed), &unclaimed); err != nil {
			return nil, fmt.Errorf("unmarshal claim records: %w", err)
		}
	}
	u := &user.User{
		ID:               uid,
		FullName:         m.FullName,
		Email:            m.Email,
		IsRegistered:     m.IsRegistered,
		IsSuperuser:      m.IsSuperuser,
		IsDisabled:       m.IsDisabled,
		ExternalAccounts: accounts,
		Affiliations:     affiliations,
		MailingLists:     lists,
		Unclaimed:        unclaimed,
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
	return u, nil
}

// ──────────────────────────────────────────────────
// Group model
// ──────────────────────────────────────────────────

type groupModel struct {
	grove.BaseModel `grove:"table:steward_groups"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	CreatorID       string    `grove:"creator_id,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	GroupID         string    `grove:"group_id,pk"`
	UserID          string    `grove:"user_id,pk"`
	Role            string    `grove:"role,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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
	ID              string     `grove:"id,pk"`
	Title           string     `grove:"title,notnull"`
	Kind            string     `grove:"kind,notnull"`
	CreatorID       string     `grove:"creator_id,notnull"`
	ParentID        *string    `grove:"parent_id"`
	IsDeleted       bool       `grove:"is_deleted,notnull"`
	DeletedAt       *time.Time `grove:"deleted_at"`
	CreatedAt       time.Time  `grove:"created_at,notnull"`
	UpdatedAt       time.Time  `grove:"updated_at,notnull"`
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
	NodeID          string    `grove:"node_id,pk"`
	UserID          string    `grove:"user_id,pk"`
	Level           string    `grove:"level,notnull"`
	Visible         bool      `grove:"visible,notnull"`
	Ordering        int       `grove:"ordering,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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

func contributorFromModel(m *contributorModel) (*node.Contributor, error) {
	nid, _ := id.ParseNodeID(m.NodeID) //nolint:errcheck // stored IDs are always valid
	uid, _ := id.ParseUserID(m.UserID) //nolint:errcheck // stored IDs are always valid
	lvl, err := level.Parse(m.Level)
	if err != nil {
		return nil, fmt.Errorf("parse contributor level: %w", err)
	}
	return &node.Contributor{
		NodeID:    nid,
		UserID:    uid,
		Level:     lvl,
		Visible:   m.Visible,
		Order:     m.Ordering,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Group grant model
// ──────────────────────────────────────────────────

type groupGrantModel struct {
	grove.BaseModel `grove:"table:steward_group_grants"`
	NodeID          string    `grove:"node_id,pk"`
	GroupID         string    `grove:"group_id,pk"`
	Level           string    `grove:"level,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
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

func groupGrantFromModel(m *groupGrantModel) (*node.GroupGrant, error) {
	nid, _ := id.ParseNodeID(m.NodeID)   //nolint:errcheck // stored IDs are always valid
	gid, _ := id.ParseGroupID(m.GroupID) //nolint:errcheck // stored IDs are always valid
	lvl, err := level.Parse(m.Level)
	if err != nil {
		return nil, fmt.Errorf("parse grant level: %w", err)
	}
	return &node.GroupGrant{
		NodeID:    nid,
		GroupID:   gid,
		Level:     lvl,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Action log model
// ──────────────────────────────────────────────────

type actionLogModel struct {
	grove.BaseModel `grove:"table:steward_action_log"`
	ID              string    `grove:"id,pk"`
	Action          string    `grove:"action,notnull"`
	ActorID         string    `grove:"actor_id"`
	GroupID         string    `grove:"group_id"`
	NodeID          string    `grove:"node_id"`
	TargetID        string    `grove:"target_id"`
	Params          string    `grove:"params"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func actionLogToModel(e *actionlog.Entry) (*actionLogModel, error) {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal log params: %w", err)
	}
	return &actionLogModel{
		ID:        e.ID.String(),
		Action:    string(e.Action),
		ActorID:   e.ActorID.String(),
		GroupID:   e.GroupID.String(),
		NodeID:    e.NodeID.String(),
		TargetID:  e.TargetID.String(),
		Params:    string(params),
		CreatedAt: e.CreatedAt,
	}, nil
}

func actionLogFromModel(m *actionLogModel) (*actionlog.Entry, error) {
	lid, _ := id.ParseLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	var params map[string]any
	if m.Params != "" {
		if err := json.Unmarshal([]byte(m.Params), &params); err != nil {
			return nil, fmt.Errorf("unmarshal log params: %w", err)
		}
	}
	e := &actionlog.Entry{
		ID:        lid,
		Action:    actionlog.Action(m.Action),
		Params:    params,
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
	return e, nil
}

// ──────────────────────────────────────────────────
// Throttle record model
// ──────────────────────────────────────────────────

type throttleRecordModel struct {
	grove.BaseModel `grove:"table:steward_throttle_records"`
	Key             string    `grove:"key,pk"`
	LastSentAt      time.Time `grove:"last_sent_at,notnull"`
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
