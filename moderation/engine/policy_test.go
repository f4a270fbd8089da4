package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyEvaluate(t *testing.T) {
	assert := assert.New(t)
	p := DefaultPolicy()

	fixtures := []struct {
		count int
		kind  ActionKind
	}{
		{0, ActionNone},
		{1, ActionNoticeWarn},
		{2, ActionNoticeWarn},
		{3, ActionRestrict},
		{4, ActionRestrict},
		{5, ActionBan},
		{6, ActionBan},
		{100, ActionBan},
	}
	for _, fix := range fixtures {
		a := p.Evaluate(fix.count)
		assert.Equal(fix.kind, a.Kind, "count=%d", fix.count)
		if fix.kind != ActionNone {
			assert.Equal(fix.count, a.Count)
		}
	}

	// level-triggered: same count, same action, every time
	assert.Equal(p.Evaluate(4), p.Evaluate(4))
}

func TestPolicyEvaluateCustomThresholds(t *testing.T) {
	assert := assert.New(t)
	p := Policy{
		WarnThreshold: 2,
		BanThreshold:  3,
		RestrictFor:   10 * time.Minute,
	}

	assert.Equal(ActionNoticeWarn, p.Evaluate(1).Kind)
	assert.Equal(ActionRestrict, p.Evaluate(2).Kind)
	assert.Equal(10*time.Minute, p.Evaluate(2).RestrictFor)
	assert.Equal(ActionBan, p.Evaluate(3).Kind)
}

func TestPolicyNoticeText(t *testing.T) {
	assert := assert.New(t)
	p := DefaultPolicy()

	assert.Equal("⚠️ Mallory, no links! (1/5)", p.NoticeText(p.Evaluate(1), "Mallory"))
	assert.Contains(p.NoticeText(p.Evaluate(3), "Mallory"), "muted")
	assert.Contains(p.NoticeText(p.Evaluate(3), "Mallory"), "(3/5")
	assert.Contains(p.NoticeText(p.Evaluate(5), "Mallory"), "banned")
}
