// Package notify delivers event notifications to an application-supplied
// sink, suppressing repeats for the same subject and recipient within a
// throttle window.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/steward/id"
)

// Kind identifies the event being notified.
type Kind string

// Notification kinds emitted by the engine.
const (
	// KindMemberAdded fires when a user is added to a group.
	KindMemberAdded Kind = "member_added"

	// KindGroupAddedToNode fires for each group member when their group
	// is granted permissions on a node.
	KindGroupAddedToNode Kind = "group_added_to_node"

	// KindAccountMerged fires when a duplicate account is absorbed into
	// the recipient's account.
	KindAccountMerged Kind = "account_merged"
)

// Event is a single notification addressed to one recipient.
type Event struct {
	Kind        Kind       `json:"kind"`
	RecipientID id.UserID  `json:"recipient_id"`
	ActorID     id.UserID  `json:"actor_id,omitempty"`
	GroupID     id.GroupID `json:"group_id,omitempty"`
	NodeID      id.NodeID  `json:"node_id,omitempty"`
	MergedID    id.UserID  `json:"merged_id,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// ThrottleKey returns the deduplication key for an event: one key per
// (kind, subject, recipient) triple.
func (e *Event) ThrottleKey() string {
	subject := e.GroupID.String()
	switch e.Kind {
	case KindGroupAddedToNode:
		subject = e.NodeID.String()
	case KindAccountMerged:
		subject = e.MergedID.String()
	}

	return fmt.Sprintf("%s:%s:%s", e.Kind, subject, e.RecipientID.String())
}

// Sink receives events that pass throttling. Implementations send
// email, push, or whatever the host application uses.
type Sink interface {
	// Deliver sends a single event. Delivery errors are reported to the
	// caller but do not roll back the mutation that produced the event.
	Deliver(ctx context.Context, e *Event) error
}

// NopSink discards every event.
type NopSink struct{}

// Deliver implements Sink.
func (NopSink) Deliver(context.Context, *Event) error { return nil }
