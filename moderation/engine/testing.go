package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groupwarden/warden/moderation/detector"
	"github.com/groupwarden/warden/moderation/ledger"
)

// CapturedCall records one platform effect the engine attempted.
type CapturedCall struct {
	Kind      string // "delete", "restrict", "ban", "notice"
	GroupID   int64
	UserID    int64
	MessageID int64
	Text      string
	Until     time.Time
}

// CaptureExecutor records platform calls instead of performing them.
// Intentionally exported, for use in other packages' tests.
type CaptureExecutor struct {
	lk    sync.Mutex
	Calls []CapturedCall

	FailDelete   bool
	FailRestrict bool
	FailBan      bool
	FailNotice   bool
}

func (x *CaptureExecutor) record(c CapturedCall) {
	x.lk.Lock()
	defer x.lk.Unlock()
	x.Calls = append(x.Calls, c)
}

func (x *CaptureExecutor) DeleteMessage(ctx context.Context, groupID, messageID int64) error {
	if x.FailDelete {
		return fmt.Errorf("simulated delete failure")
	}
	x.record(CapturedCall{Kind: "delete", GroupID: groupID, MessageID: messageID})
	return nil
}

func (x *CaptureExecutor) RestrictMember(ctx context.Context, groupID, userID int64, until time.Time) error {
	if x.FailRestrict {
		return fmt.Errorf("simulated restrict failure")
	}
	x.record(CapturedCall{Kind: "restrict", GroupID: groupID, UserID: userID, Until: until})
	return nil
}

func (x *CaptureExecutor) BanMember(ctx context.Context, groupID, userID int64) error {
	if x.FailBan {
		return fmt.Errorf("simulated ban failure")
	}
	x.record(CapturedCall{Kind: "ban", GroupID: groupID, UserID: userID})
	return nil
}

func (x *CaptureExecutor) SendNotice(ctx context.Context, groupID int64, text string) error {
	if x.FailNotice {
		return fmt.Errorf("simulated notice failure")
	}
	x.record(CapturedCall{Kind: "notice", GroupID: groupID, Text: text})
	return nil
}

// CallsOf returns the recorded calls of one kind, in order.
func (x *CaptureExecutor) CallsOf(kind string) []CapturedCall {
	x.lk.Lock()
	defer x.lk.Unlock()
	var out []CapturedCall
	for _, c := range x.Calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// StaticRoleResolver serves roles from a fixed map keyed "group/user";
// unlisted senders are plain members. Set Err to simulate a lookup outage.
type StaticRoleResolver struct {
	Roles map[string]Role
	Err   error
}

func (r *StaticRoleResolver) ResolveRole(ctx context.Context, groupID, userID int64) (Role, error) {
	if r.Err != nil {
		return "", r.Err
	}
	if role, ok := r.Roles[fmt.Sprintf("%d/%d", groupID, userID)]; ok {
		return role, nil
	}
	return RoleMember, nil
}

// EngineTestFixture returns an engine wired to in-memory stores and capture
// stubs, with the default policy.
func EngineTestFixture() (*Engine, *CaptureExecutor, *StaticRoleResolver) {
	executor := &CaptureExecutor{}
	resolver := &StaticRoleResolver{Roles: make(map[string]Role)}
	eng, err := NewEngine(EngineConfig{
		Logger:   slog.Default(),
		Policy:   DefaultPolicy(),
		Detector: detector.NewLinkDetector(detector.DefaultLinkTokens),
		Ledger:   ledger.NewMemLedger(),
		Actions:  executor,
		Roles:    resolver,
	})
	if err != nil {
		panic(err)
	}
	return eng, executor, resolver
}
