package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/groupwarden/warden/moderation/detector"
	"github.com/groupwarden/warden/moderation/engine"
	"github.com/groupwarden/warden/moderation/ledger"
	"github.com/groupwarden/warden/moderation/roster"
	"github.com/groupwarden/warden/moderation/scheduler"
	"github.com/groupwarden/warden/telegram"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type Server struct {
	logger *slog.Logger
	engine *engine.Engine
	tg     *telegram.Client
	sched  *scheduler.Scheduler
	roster *roster.Store
	rdb    *redis.Client

	webhookURL string

	// last update_id acknowledged by the processing pipeline
	lastSeq atomic.Int64
}

type Config struct {
	TelegramToken     string
	TelegramHost      string
	TelegramRateLimit int
	RedisURL          string
	WebhookURL        string
	LinkTokens        string
	LinkTokensFile    string
	WarnThreshold     int
	BanThreshold      int
	RestrictDuration  time.Duration
	ResetOnBan        bool
	GlobalAdminID     int64
	Workers           int
	SlackWebhookURL   string
	Logger            *slog.Logger
}

// cursorKey is the redis key holding the last processed update_id, so a
// restart resumes the long-poll without reprocessing.
var cursorKey = "warden/update-cursor"

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tg := telegram.NewClient(config.TelegramToken)
	if config.TelegramHost != "" {
		tg.Host = config.TelegramHost
	}
	if config.TelegramRateLimit > 0 {
		tg.Limiter = rate.NewLimiter(rate.Limit(config.TelegramRateLimit), config.TelegramRateLimit)
	}

	var rdb *redis.Client
	var warnLedger ledger.Ledger
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.TODO()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		warnLedger = &ledger.RedisLedger{Client: rdb}
	} else {
		gl, err := ledger.NewGormLedger(db)
		if err != nil {
			return nil, fmt.Errorf("initializing warning ledger: %w", err)
		}
		warnLedger = gl
	}

	rosterStore, err := roster.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing roster: %w", err)
	}

	det := detector.NewLinkDetector(detector.DefaultLinkTokens)
	if config.LinkTokens != "" {
		det = detector.NewLinkDetector(strings.Split(config.LinkTokens, ","))
	}
	if config.LinkTokensFile != "" {
		if err := det.LoadFromFileJSON(config.LinkTokensFile); err != nil {
			return nil, fmt.Errorf("loading link tokens: %w", err)
		}
	}

	policy := engine.DefaultPolicy()
	if config.WarnThreshold > 0 {
		policy.WarnThreshold = config.WarnThreshold
	}
	if config.BanThreshold > 0 {
		policy.BanThreshold = config.BanThreshold
	}
	if config.RestrictDuration > 0 {
		policy.RestrictFor = config.RestrictDuration
	}
	policy.ResetOnBan = config.ResetOnBan
	policy.GlobalAdminID = config.GlobalAdminID
	if policy.BanThreshold < policy.WarnThreshold {
		return nil, fmt.Errorf("ban threshold (%d) below warn threshold (%d)", policy.BanThreshold, policy.WarnThreshold)
	}

	var notifier engine.Notifier
	if config.SlackWebhookURL != "" {
		notifier = &engine.SlackNotifier{SlackWebhookURL: config.SlackWebhookURL}
	}

	eng, err := engine.NewEngine(engine.EngineConfig{
		Logger:          logger,
		Policy:          policy,
		Detector:        det,
		Ledger:          warnLedger,
		Actions:         &platformExecutor{tg: tg, policy: policy},
		Roles:           &platformRoles{tg: tg},
		Roster:          rosterStore,
		Notifier:        notifier,
		DedupeCacheSize: 8192,
	})
	if err != nil {
		return nil, err
	}

	srv := &Server{
		logger:     logger,
		engine:     eng,
		tg:         tg,
		roster:     rosterStore,
		rdb:        rdb,
		webhookURL: config.WebhookURL,
	}

	workers := config.Workers
	if workers <= 0 {
		workers = 16
	}
	srv.sched = scheduler.NewScheduler(workers, "telegram", srv.handleEvent)

	return srv, nil
}

func (s *Server) handleEvent(ctx context.Context, evt *engine.MessageEvent) error {
	// errors are counted and logged inside the engine; the scheduler only
	// cares about dispatch
	return s.engine.ProcessMessage(ctx, evt)
}

// EnqueueUpdate converts a Bot API update into a moderation event and hands it
// to the scheduler, keyed so that events for one (group, user) pair stay
// ordered.
func (s *Server) EnqueueUpdate(ctx context.Context, upd *telegram.Update) error {
	defer func() {
		for seq := s.lastSeq.Load(); upd.UpdateID > seq; seq = s.lastSeq.Load() {
			if s.lastSeq.CompareAndSwap(seq, upd.UpdateID) {
				break
			}
		}
	}()

	msg := upd.Message
	if msg == nil {
		msg = upd.EditedMessage
	}
	if msg == nil || msg.From == nil {
		return nil
	}

	evt := messageEvent(msg)
	return s.sched.AddWork(ctx, evt.CountKey(), evt)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// ReadLastCursor loads the persisted poll cursor, if any.
func (s *Server) ReadLastCursor(ctx context.Context) (int64, error) {
	if s.rdb == nil {
		// in-memory mode (most likely a test)
		s.logger.Info("redis not configured, skipping cursor read")
		return 0, nil
	}

	val, err := s.rdb.Get(ctx, cursorKey).Int64()
	if err == redis.Nil {
		s.logger.Info("no pre-existing update cursor")
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	s.logger.Info("successfully found update cursor", "seq", val)
	return val, nil
}

// PersistCursor saves the current poll cursor, if possible.
func (s *Server) PersistCursor(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	lastSeq := s.lastSeq.Load()
	if lastSeq <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, cursorKey, lastSeq, 14*24*time.Hour).Err()
}

// RunPersistCursor periodically checkpoints the poll cursor, and does a final
// checkpoint at shutdown.
func (s *Server) RunPersistCursor(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.lastSeq.Load() >= 1 {
				s.logger.Info("persisting final update cursor", "seq", s.lastSeq.Load())
				err := s.PersistCursor(context.Background())
				if err != nil {
					s.logger.Error("failed to persist final update cursor", "seq", s.lastSeq.Load(), "err", err)
				}
			}
			return nil
		case <-ticker.C:
			if s.lastSeq.Load() >= 1 {
				err := s.PersistCursor(ctx)
				if err != nil {
					s.logger.Error("failed to persist update cursor", "seq", s.lastSeq.Load(), "err", err)
				}
			}
		}
	}
}

func (s *Server) Shutdown() error {
	s.sched.Shutdown()
	return nil
}
