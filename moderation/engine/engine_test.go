package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/groupwarden/warden/moderation/detector"
	"github.com/groupwarden/warden/moderation/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationEvent(groupID, userID, messageID int64) *MessageEvent {
	return &MessageEvent{
		GroupID:        groupID,
		MessageID:      messageID,
		Sender:         Sender{UserID: userID, DisplayName: "Mallory"},
		Text:           "join here: https://evil.link",
		IsGroupContext: true,
	}
}

func TestEscalationSequence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, _ := EngineTestFixture()

	// calls 1 and 2: notice only
	for i := int64(1); i <= 2; i++ {
		assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, i)))
	}
	notices := executor.CallsOf("notice")
	require.Len(t, notices, 2)
	assert.Contains(notices[0].Text, "(1/5)")
	assert.Contains(notices[1].Text, "(2/5)")
	assert.Empty(executor.CallsOf("restrict"))

	// call 3: temporary restriction, ledger count exactly 3
	assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, 3)))
	restricts := executor.CallsOf("restrict")
	require.Len(t, restricts, 1)
	assert.Equal(int64(7), restricts[0].UserID)
	c, err := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(3, c)

	// call 4: re-restricted, not skipped (level-triggered)
	assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, 4)))
	assert.Len(executor.CallsOf("restrict"), 2)
	assert.Empty(executor.CallsOf("ban"))

	// call 5: permanent ban, ledger reset to zero
	assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, 5)))
	bans := executor.CallsOf("ban")
	require.Len(t, bans, 1)
	assert.Equal(int64(100), bans[0].GroupID)
	assert.Equal(int64(7), bans[0].UserID)
	c, err = eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(0, c)

	// every violation deleted the offending message
	assert.Len(executor.CallsOf("delete"), 5)
}

func TestExemptSenders(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, resolver := EngineTestFixture()
	resolver.Roles["100/8"] = RolePrivileged
	resolver.Roles["100/9"] = RoleOwner
	eng.Policy.GlobalAdminID = 555

	for _, userID := range []int64{8, 9, 555} {
		evt := violationEvent(100, userID, userID)
		assert.NoError(eng.ProcessMessage(ctx, evt))
		c, err := eng.Ledger.GetCount(ctx, 100, userID)
		assert.NoError(err)
		assert.Equal(0, c)
	}
	assert.Empty(executor.Calls)
}

func TestFilteredEvents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, _ := EngineTestFixture()

	private := violationEvent(100, 7, 1)
	private.IsGroupContext = false
	command := &MessageEvent{
		GroupID: 100, MessageID: 2,
		Sender: Sender{UserID: 7}, Text: "/start", IsGroupContext: true,
	}
	empty := &MessageEvent{
		GroupID: 100, MessageID: 3,
		Sender: Sender{UserID: 7}, IsGroupContext: true,
	}
	clean := &MessageEvent{
		GroupID: 100, MessageID: 4,
		Sender: Sender{UserID: 7}, Text: "hello all", IsGroupContext: true,
	}

	for _, evt := range []*MessageEvent{private, command, empty, clean} {
		assert.NoError(eng.ProcessMessage(ctx, evt))
	}
	assert.Empty(executor.Calls)
	c, err := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestRoleLookupFailsOpen(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, resolver := EngineTestFixture()
	resolver.Err = fmt.Errorf("platform unavailable")

	assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, 1)))
	assert.Empty(executor.Calls)
	c, err := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(0, c)
}

type failingLedger struct{}

func (failingLedger) GetCount(ctx context.Context, groupID, userID int64) (int, error) {
	return 0, fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
}

func (failingLedger) IncrementAndGet(ctx context.Context, groupID, userID int64) (int, error) {
	return 0, fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
}

func (failingLedger) Reset(ctx context.Context, groupID, userID int64) error {
	return fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
}

func TestLedgerUnavailableAbortsBeforePlatformEffects(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	executor := &CaptureExecutor{}
	eng, err := NewEngine(EngineConfig{
		Logger:   slog.Default(),
		Policy:   DefaultPolicy(),
		Detector: detector.NewLinkDetector(detector.DefaultLinkTokens),
		Ledger:   failingLedger{},
		Actions:  executor,
		Roles:    &StaticRoleResolver{},
	})
	assert.NoError(err)

	err = eng.ProcessMessage(ctx, violationEvent(100, 7, 1))
	assert.ErrorIs(err, ledger.ErrUnavailable)
	assert.Empty(executor.Calls)
}

func TestAllEffectsRejectedLeavesCount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, _ := EngineTestFixture()
	executor.FailDelete = true
	executor.FailNotice = true
	executor.FailRestrict = true
	executor.FailBan = true

	err := eng.ProcessMessage(ctx, violationEvent(100, 7, 1))
	assert.Error(err)
	c, lerr := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(lerr)
	assert.Equal(0, c)

	// a failed deletion alone must not block the rest of the sanction
	executor.FailDelete = true
	executor.FailNotice = false
	assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, 2)))
	c, lerr = eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(lerr)
	assert.Equal(1, c)
}

func TestDuplicateDeliverySuppressed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	executor := &CaptureExecutor{}
	eng, err := NewEngine(EngineConfig{
		Logger:          slog.Default(),
		Policy:          DefaultPolicy(),
		Detector:        detector.NewLinkDetector(detector.DefaultLinkTokens),
		Ledger:          ledger.NewMemLedger(),
		Actions:         executor,
		Roles:           &StaticRoleResolver{},
		DedupeCacheSize: 16,
	})
	assert.NoError(err)

	evt := violationEvent(100, 7, 1)
	assert.NoError(eng.ProcessMessage(ctx, evt))
	assert.NoError(eng.ProcessMessage(ctx, evt)) // redelivery

	c, err := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(1, c)
	assert.Len(executor.CallsOf("delete"), 1)
}

func TestEditedMessageRechecked(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	executor := &CaptureExecutor{}
	eng, err := NewEngine(EngineConfig{
		Logger:          slog.Default(),
		Policy:          DefaultPolicy(),
		Detector:        detector.NewLinkDetector(detector.DefaultLinkTokens),
		Ledger:          ledger.NewMemLedger(),
		Actions:         executor,
		Roles:           &StaticRoleResolver{},
		DedupeCacheSize: 16,
	})
	assert.NoError(err)

	// clean original passes through untouched
	original := &MessageEvent{
		GroupID: 100, MessageID: 1,
		Sender: Sender{UserID: 7, DisplayName: "Mallory"},
		Text:   "hello all", IsGroupContext: true,
	}
	assert.NoError(eng.ProcessMessage(ctx, original))
	assert.Empty(executor.Calls)

	// the same message with a link edited in must still be sanctioned
	edited := &MessageEvent{
		GroupID: 100, MessageID: 1,
		Sender: Sender{UserID: 7, DisplayName: "Mallory"},
		Text:   "join https://evil.link", EditDate: 1700000000,
		IsGroupContext: true,
	}
	assert.NoError(eng.ProcessMessage(ctx, edited))
	assert.Len(executor.CallsOf("delete"), 1)
	c, err := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(1, c)

	// but a redelivery of that same edit is suppressed
	assert.NoError(eng.ProcessMessage(ctx, edited))
	assert.Len(executor.CallsOf("delete"), 1)
}

type flakyLedger struct {
	inner ledger.Ledger
	fail  bool
}

func (l *flakyLedger) GetCount(ctx context.Context, groupID, userID int64) (int, error) {
	if l.fail {
		return 0, fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
	}
	return l.inner.GetCount(ctx, groupID, userID)
}

func (l *flakyLedger) IncrementAndGet(ctx context.Context, groupID, userID int64) (int, error) {
	if l.fail {
		return 0, fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
	}
	return l.inner.IncrementAndGet(ctx, groupID, userID)
}

func (l *flakyLedger) Reset(ctx context.Context, groupID, userID int64) error {
	if l.fail {
		return fmt.Errorf("%w: connection refused", ledger.ErrUnavailable)
	}
	return l.inner.Reset(ctx, groupID, userID)
}

func TestAbortedEventRetriedAfterOutage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	lg := &flakyLedger{inner: ledger.NewMemLedger(), fail: true}
	executor := &CaptureExecutor{}
	eng, err := NewEngine(EngineConfig{
		Logger:          slog.Default(),
		Policy:          DefaultPolicy(),
		Detector:        detector.NewLinkDetector(detector.DefaultLinkTokens),
		Ledger:          lg,
		Actions:         executor,
		Roles:           &StaticRoleResolver{},
		DedupeCacheSize: 16,
	})
	assert.NoError(err)

	// first delivery aborts during the outage; nothing is recorded as seen
	evt := violationEvent(100, 7, 1)
	err = eng.ProcessMessage(ctx, evt)
	assert.ErrorIs(err, ledger.ErrUnavailable)
	assert.Empty(executor.Calls)

	// a transport redelivery after the outage must be fully processed, not
	// suppressed as a duplicate
	lg.fail = false
	assert.NoError(eng.ProcessMessage(ctx, evt))
	assert.Len(executor.CallsOf("delete"), 1)
	c, lerr := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(lerr)
	assert.Equal(1, c)
}

func TestLockMapDrained(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, _, _ := EngineTestFixture()

	var wg sync.WaitGroup
	for _, userID := range []int64{1, 2, 3, 4, 5} {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := int64(1); i <= 3; i++ {
				assert.NoError(eng.ProcessMessage(ctx, violationEvent(300, userID, userID*10+i)))
			}
		}(userID)
	}
	wg.Wait()

	// every key's lock entry is released once its last holder is done
	assert.Equal(0, eng.locks.Size())
}

func TestSameKeySerialization(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, _ := EngineTestFixture()

	// ten concurrent violations by one user walk the escalation ladder
	// exactly twice (ban at 5 resets the count): run with `-race`
	var wg sync.WaitGroup
	wg.Add(10)
	for i := int64(1); i <= 10; i++ {
		go func(msgID int64) {
			defer wg.Done()
			assert.NoError(eng.ProcessMessage(ctx, violationEvent(100, 7, msgID)))
		}(i)
	}
	wg.Wait()

	assert.Len(executor.CallsOf("delete"), 10)
	assert.Len(executor.CallsOf("restrict"), 4)
	assert.Len(executor.CallsOf("ban"), 2)
	c, err := eng.Ledger.GetCount(ctx, 100, 7)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestCrossKeyIndependence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, executor, _ := EngineTestFixture()

	var wg sync.WaitGroup
	for _, userID := range []int64{1, 2, 3, 4} {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := int64(1); i <= 2; i++ {
				assert.NoError(eng.ProcessMessage(ctx, violationEvent(200, userID, userID*10+i)))
			}
		}(userID)
	}
	wg.Wait()

	for _, userID := range []int64{1, 2, 3, 4} {
		c, err := eng.Ledger.GetCount(ctx, 200, userID)
		assert.NoError(err)
		assert.Equal(2, c)
	}
	assert.Empty(executor.CallsOf("restrict"))
	assert.Empty(executor.CallsOf("ban"))
}
