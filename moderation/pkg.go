package moderation

import (
	"github.com/groupwarden/warden/moderation/detector"
	"github.com/groupwarden/warden/moderation/engine"
	"github.com/groupwarden/warden/moderation/ledger"
)

type Engine = engine.Engine
type EngineConfig = engine.EngineConfig
type Policy = engine.Policy
type Action = engine.Action
type ActionKind = engine.ActionKind
type MessageEvent = engine.MessageEvent
type Sender = engine.Sender
type Role = engine.Role

type ActionExecutor = engine.ActionExecutor
type RoleResolver = engine.RoleResolver
type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

type Ledger = ledger.Ledger
type LinkDetector = detector.LinkDetector

var (
	NewEngine     = engine.NewEngine
	DefaultPolicy = engine.DefaultPolicy

	RoleMember     = engine.RoleMember
	RolePrivileged = engine.RolePrivileged
	RoleOwner      = engine.RoleOwner

	ActionNone       = engine.ActionNone
	ActionNoticeWarn = engine.ActionNoticeWarn
	ActionRestrict   = engine.ActionRestrict
	ActionBan        = engine.ActionBan

	DefaultLinkTokens    = detector.DefaultLinkTokens
	ErrLedgerUnavailable = ledger.ErrUnavailable
)
