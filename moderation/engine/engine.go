package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groupwarden/warden/moderation/detector"
	"github.com/groupwarden/warden/moderation/ledger"
	"github.com/groupwarden/warden/moderation/roster"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// runtime for classifying message events, tracking violation counts, and
// driving platform sanctions.
type Engine struct {
	Logger   *slog.Logger
	Policy   Policy
	Detector *detector.LinkDetector
	Ledger   ledger.Ledger
	Actions  ActionExecutor
	Roles    RoleResolver
	// per-group enforcement toggles and service-level admins (optional)
	Roster *roster.Store
	// pinged on restrict/ban actions (optional)
	Notifier Notifier

	dedupe *lru.Cache[string, struct{}]
	locks  *xsync.MapOf[string, *keyedLock]
}

type EngineConfig struct {
	Logger   *slog.Logger
	Policy   Policy
	Detector *detector.LinkDetector
	Ledger   ledger.Ledger
	Actions  ActionExecutor
	Roles    RoleResolver
	Roster   *roster.Store
	Notifier Notifier
	// entries in the redelivery suppression cache; 0 disables dedupe
	DedupeCacheSize int
}

func NewEngine(config EngineConfig) (*Engine, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Detector == nil {
		return nil, fmt.Errorf("engine requires a violation detector")
	}
	if config.Ledger == nil {
		return nil, fmt.Errorf("engine requires a warning ledger")
	}
	if config.Actions == nil {
		return nil, fmt.Errorf("engine requires an action executor")
	}
	if config.Roles == nil {
		return nil, fmt.Errorf("engine requires a role resolver")
	}

	eng := &Engine{
		Logger:   logger,
		Policy:   config.Policy,
		Detector: config.Detector,
		Ledger:   config.Ledger,
		Actions:  config.Actions,
		Roles:    config.Roles,
		Roster:   config.Roster,
		Notifier: config.Notifier,
		locks:    xsync.NewMapOf[string, *keyedLock](),
	}
	if config.DedupeCacheSize > 0 {
		cache, err := lru.New[string, struct{}](config.DedupeCacheSize)
		if err != nil {
			return nil, err
		}
		eng.dedupe = cache
	}
	return eng, nil
}

// ProcessMessage runs one inbound event through the filter, authorization,
// detection, and sanction chain. Safe for arbitrary concurrent invocation;
// work for the same (group, user) key is serialized internally.
//
// Failures are classified per the error taxonomy: detection and authorization
// problems fail open (no sanction), ledger unavailability aborts the event
// before any platform effect, and the returned error is the operator-facing
// signal. Panics from processing are recovered, never propagated.
func (eng *Engine) ProcessMessage(ctx context.Context, evt *MessageEvent) error {
	// similar to an HTTP server, we want to recover any panics
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("moderation event execution exception", "err", r, "group", evt.GroupID, "user", evt.Sender.UserID)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.Observe(time.Since(start).Seconds())
	}()

	logger := eng.Logger.With("group", evt.GroupID, "user", evt.Sender.UserID, "message", evt.MessageID)

	if !evt.Eligible() {
		eventProcessCount.WithLabelValues("filtered").Inc()
		return nil
	}

	// per-key critical section: ledger read-increment-write and platform
	// effects for one (group, user) never interleave
	unlock := eng.lockKey(evt.CountKey())
	defer unlock()

	if eng.dedupe != nil && eng.dedupe.Contains(evt.DedupeKey()) {
		eventDuplicateCount.Inc()
		logger.Debug("suppressing redelivered event")
		return nil
	}

	err := eng.process(ctx, logger, evt)
	if err == nil && eng.dedupe != nil {
		// marked seen only after a complete pass: a redelivery of an event
		// that aborted (eg, during a ledger outage) is processed again
		eng.dedupe.Add(evt.DedupeKey(), struct{}{})
	}
	return err
}

func (eng *Engine) process(ctx context.Context, logger *slog.Logger, evt *MessageEvent) error {
	if eng.Roster != nil {
		enabled, err := eng.Roster.AntiLinkEnabled(ctx, evt.GroupID)
		if err != nil {
			// enforcement stays on when the toggle can't be read
			logger.Warn("roster lookup failed, enforcing default policy", "err", err)
		} else if !enabled {
			eventProcessCount.WithLabelValues("disabled").Inc()
			return nil
		}
	}

	exempt, err := eng.isExempt(ctx, evt)
	if err != nil {
		// fail open: never sanction when we can't verify the sender isn't privileged
		authzFailOpenCount.Inc()
		eventProcessCount.WithLabelValues("authz-fail-open").Inc()
		logger.Warn("role resolution failed, failing open", "err", err)
		return nil
	}
	if exempt {
		eventProcessCount.WithLabelValues("exempt").Inc()
		return nil
	}

	if !eng.Detector.IsViolation(evt.Text) {
		eventProcessCount.WithLabelValues("clean").Inc()
		return nil
	}

	return eng.applySanction(ctx, logger, evt)
}

func (eng *Engine) isExempt(ctx context.Context, evt *MessageEvent) (bool, error) {
	if eng.Policy.GlobalAdminID != 0 && evt.Sender.UserID == eng.Policy.GlobalAdminID {
		return true, nil
	}
	if eng.Roster != nil {
		ok, err := eng.Roster.IsAdmin(ctx, evt.Sender.UserID)
		if err != nil {
			return false, fmt.Errorf("checking service admin roster: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	role, err := eng.Roles.ResolveRole(ctx, evt.GroupID, evt.Sender.UserID)
	if err != nil {
		return false, fmt.Errorf("resolving group role: %w", err)
	}
	return role == RolePrivileged || role == RoleOwner, nil
}

// applySanction runs the sanction sequence for a confirmed violation. Order
// matters: the offending message is suppressed before the notice references
// it, and the ledger write lands only after the platform accepted at least
// one effect, so a fully rejected sanction never advances the counter.
func (eng *Engine) applySanction(ctx context.Context, logger *slog.Logger, evt *MessageEvent) error {
	prior, err := eng.Ledger.GetCount(ctx, evt.GroupID, evt.Sender.UserID)
	if err != nil {
		ledgerErrorCount.Inc()
		eventProcessCount.WithLabelValues("ledger-error").Inc()
		return fmt.Errorf("reading warning ledger: %w", err)
	}
	action := eng.Policy.Evaluate(prior + 1)

	applied := 0
	if err := eng.Actions.DeleteMessage(ctx, evt.GroupID, evt.MessageID); err != nil {
		actionErrorCount.WithLabelValues("delete").Inc()
		logger.Error("deleting message", "err", err)
	} else {
		applied++
	}

	switch action.Kind {
	case ActionRestrict:
		until := time.Now().Add(action.RestrictFor)
		if err := eng.Actions.RestrictMember(ctx, evt.GroupID, evt.Sender.UserID, until); err != nil {
			actionErrorCount.WithLabelValues("restrict").Inc()
			logger.Error("restricting member", "err", err)
		} else {
			applied++
		}
	case ActionBan:
		if err := eng.Actions.BanMember(ctx, evt.GroupID, evt.Sender.UserID); err != nil {
			actionErrorCount.WithLabelValues("ban").Inc()
			logger.Error("banning member", "err", err)
		} else {
			applied++
		}
	}

	notice := eng.Policy.NoticeText(action, evt.Sender.DisplayName)
	if err := eng.Actions.SendNotice(ctx, evt.GroupID, notice); err != nil {
		actionErrorCount.WithLabelValues("notice").Inc()
		logger.Error("sending notice", "err", err)
	} else {
		applied++
	}

	if applied == 0 {
		eventProcessCount.WithLabelValues("action-failed").Inc()
		return fmt.Errorf("no platform effect accepted, leaving warning count at %d", prior)
	}

	count, err := eng.Ledger.IncrementAndGet(ctx, evt.GroupID, evt.Sender.UserID)
	if err != nil {
		ledgerErrorCount.Inc()
		eventProcessCount.WithLabelValues("ledger-error").Inc()
		return fmt.Errorf("persisting warning count: %w", err)
	}
	if count != prior+1 {
		logger.Warn("warning count advanced outside critical section", "expected", prior+1, "got", count)
	}

	actionCount.WithLabelValues(string(action.Kind)).Inc()
	eventProcessCount.WithLabelValues("sanctioned").Inc()
	logger.Info("sanction applied", "action", action.Kind, "count", count)

	if action.Kind == ActionBan && eng.Policy.ResetOnBan {
		if err := eng.Ledger.Reset(ctx, evt.GroupID, evt.Sender.UserID); err != nil {
			ledgerErrorCount.Inc()
			logger.Error("resetting warning count after ban", "err", err)
		}
	}

	if eng.Notifier != nil && (action.Kind == ActionRestrict || action.Kind == ActionBan) {
		if err := eng.Notifier.SendSanction(ctx, evt, action); err != nil {
			logger.Error("sending ops notification", "err", err)
		}
	}
	return nil
}

type keyedLock struct {
	mu sync.Mutex
	// waiters plus holder; guarded by the map's per-key serialization
	refs int
}

// lockKey acquires the critical section for one (group, user) key. Entries
// are reference counted and removed once the last holder releases, so the
// lock map does not grow with every key ever seen.
func (eng *Engine) lockKey(k string) func() {
	l, _ := eng.locks.Compute(k, func(old *keyedLock, loaded bool) (*keyedLock, bool) {
		if !loaded {
			old = &keyedLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		eng.locks.Compute(k, func(old *keyedLock, loaded bool) (*keyedLock, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}
