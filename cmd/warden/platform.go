package main

import (
	"context"
	"time"

	"github.com/groupwarden/warden/moderation/engine"
	"github.com/groupwarden/warden/telegram"
)

// platformExecutor adapts the Bot API client to the engine's action boundary.
type platformExecutor struct {
	tg     *telegram.Client
	policy engine.Policy
}

var _ engine.ActionExecutor = (*platformExecutor)(nil)

func (x *platformExecutor) DeleteMessage(ctx context.Context, groupID, messageID int64) error {
	return x.tg.DeleteMessage(ctx, groupID, messageID)
}

func (x *platformExecutor) RestrictMember(ctx context.Context, groupID, userID int64, until time.Time) error {
	mute := false
	perms := telegram.ChatPermissions{CanSendMessages: &mute}
	return x.tg.RestrictChatMember(ctx, groupID, userID, perms, until)
}

func (x *platformExecutor) BanMember(ctx context.Context, groupID, userID int64) error {
	return x.tg.BanChatMember(ctx, groupID, userID)
}

func (x *platformExecutor) SendNotice(ctx context.Context, groupID int64, text string) error {
	_, err := x.tg.SendMessage(ctx, groupID, text)
	return err
}

// platformRoles resolves group membership status to an engine role, per
// event, so promotions and demotions apply without restart.
type platformRoles struct {
	tg *telegram.Client
}

var _ engine.RoleResolver = (*platformRoles)(nil)

func (r *platformRoles) ResolveRole(ctx context.Context, groupID, userID int64) (engine.Role, error) {
	m, err := r.tg.GetChatMember(ctx, groupID, userID)
	if err != nil {
		return engine.RoleMember, err
	}
	return roleFromStatus(m.Status), nil
}

func roleFromStatus(status string) engine.Role {
	switch status {
	case telegram.MemberStatusCreator:
		return engine.RoleOwner
	case telegram.MemberStatusAdministrator:
		return engine.RolePrivileged
	default:
		return engine.RoleMember
	}
}

// messageEvent maps one Bot API message into the engine's event shape.
func messageEvent(msg *telegram.Message) *engine.MessageEvent {
	return &engine.MessageEvent{
		GroupID:   msg.Chat.ID,
		MessageID: msg.MessageID,
		Sender: engine.Sender{
			UserID:      msg.From.ID,
			DisplayName: msg.From.DisplayName(),
		},
		Text:           msg.Text,
		EditDate:       msg.EditDate,
		IsGroupContext: msg.Chat.IsGroup(),
	}
}
