package engine

import (
	"fmt"
	"time"
)

type ActionKind string

var (
	ActionNone       ActionKind = "none"
	ActionNoticeWarn ActionKind = "warn"
	ActionRestrict   ActionKind = "restrict"
	ActionBan        ActionKind = "ban"
)

// Action is the sanction computed for a violation count.
type Action struct {
	Kind  ActionKind
	Count int
	// only set for ActionRestrict
	RestrictFor time.Duration
}

// Policy holds the escalation thresholds and related knobs. The zero value is
// not usable; start from DefaultPolicy.
type Policy struct {
	// counts below WarnThreshold get a notice; counts in
	// [WarnThreshold, BanThreshold) get a temporary restriction
	WarnThreshold int
	// counts at or above BanThreshold get a permanent ban
	BanThreshold int
	RestrictFor  time.Duration
	// whether a ban resets the warning count to zero
	ResetOnBan bool
	// user exempt from enforcement everywhere, if non-zero
	GlobalAdminID int64
}

func DefaultPolicy() Policy {
	return Policy{
		WarnThreshold: 3,
		BanThreshold:  5,
		RestrictFor:   5 * time.Minute,
		ResetOnBan:    true,
	}
}

// Evaluate maps a violation count to the sanction for that count. The mapping
// is level-triggered: a repeat violation at the same escalation level
// re-issues the same sanction, deterministically. Pure function; no side
// effects.
func (p Policy) Evaluate(count int) Action {
	switch {
	case count <= 0:
		return Action{Kind: ActionNone}
	case count >= p.BanThreshold:
		return Action{Kind: ActionBan, Count: count}
	case count >= p.WarnThreshold:
		return Action{Kind: ActionRestrict, Count: count, RestrictFor: p.RestrictFor}
	default:
		return Action{Kind: ActionNoticeWarn, Count: count}
	}
}

// NoticeText renders the group notice for a sanction.
func (p Policy) NoticeText(a Action, displayName string) string {
	switch a.Kind {
	case ActionNoticeWarn:
		return fmt.Sprintf("⚠️ %s, no links! (%d/%d)", displayName, a.Count, p.BanThreshold)
	case ActionRestrict:
		return fmt.Sprintf("🔇 %s muted for %s (%d/%d warnings).", displayName, a.RestrictFor, a.Count, p.BanThreshold)
	case ActionBan:
		return fmt.Sprintf("🚫 %s banned (%d/%d warnings).", displayName, a.Count, p.BanThreshold)
	}
	return ""
}
