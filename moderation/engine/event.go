package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role is the privilege level of a message's author within a group.
type Role string

var (
	RoleMember     Role = "member"
	RolePrivileged Role = "privileged"
	RoleOwner      Role = "owner"
)

// Sender identifies the author of a message. The role is deliberately not
// carried here: it is resolved fresh per event through a RoleResolver, so a
// promotion or demotion takes effect immediately.
type Sender struct {
	UserID      int64
	DisplayName string
}

// MessageEvent is one inbound unit of work. Immutable once constructed;
// consumed exactly once by the pipeline.
type MessageEvent struct {
	GroupID   int64
	MessageID int64
	Sender    Sender
	Text      string
	// unix timestamp of the edit that produced this event, 0 for an
	// original message
	EditDate       int64
	IsGroupContext bool
}

// CountKey is the serialization key: all ledger and platform work for the
// same (group, user) pair runs in a single critical section.
func (evt *MessageEvent) CountKey() string {
	return fmt.Sprintf("%d/%d", evt.GroupID, evt.Sender.UserID)
}

// DedupeKey identifies a delivered message for duplicate suppression. The
// edit timestamp is part of the key: each edit of a message is a distinct
// delivery, so a link edited into an already-checked message is re-checked.
func (evt *MessageEvent) DedupeKey() string {
	return fmt.Sprintf("%d/%d/%d", evt.GroupID, evt.MessageID, evt.EditDate)
}

// Reports whether the pipeline should consider this event at all. Non-text
// events, one-to-one chats, and platform commands (handled by a separate
// command router) are skipped.
func (evt *MessageEvent) Eligible() bool {
	if !evt.IsGroupContext {
		return false
	}
	if evt.Text == "" {
		return false
	}
	if strings.HasPrefix(evt.Text, "/") {
		return false
	}
	return true
}

// ActionExecutor performs the platform-level effects of a sanction. Each call
// may fail independently; the engine logs per-effect failures and continues
// with the remaining effects.
type ActionExecutor interface {
	DeleteMessage(ctx context.Context, groupID, messageID int64) error
	RestrictMember(ctx context.Context, groupID, userID int64, until time.Time) error
	BanMember(ctx context.Context, groupID, userID int64) error
	SendNotice(ctx context.Context, groupID int64, text string) error
}

// RoleResolver looks up the sender's current role in a group. Results must
// not be cached across events.
type RoleResolver interface {
	ResolveRole(ctx context.Context, groupID, userID int64) (Role, error)
}
