package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groupwarden/warden/util"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "link-policy enforcement daemon for group chats",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		adminCmd,
		groupCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "telegram-token",
			Usage:    "Bot API token",
			Required: true,
			EnvVars:  []string{"BOT_TOKEN", "TELEGRAM_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "telegram-host",
			Usage:   "scheme and hostname of the Bot API endpoint",
			Value:   "https://api.telegram.org",
			EnvVars: []string{"TELEGRAM_HOST"},
		},
		&cli.IntFlag{
			Name:    "telegram-rate-limit",
			Usage:   "max number of requests per second to the Bot API",
			Value:   25,
			EnvVars: []string{"TELEGRAM_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the warning ledger and poll cursor; uses the database when empty",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the webhook endpoint",
			Value:   ":8200",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":8201",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Usage:   "public base URL for webhook delivery; long-polls when empty",
			EnvVars: []string{"WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "link-tokens",
			Usage:   "comma-separated link signature tokens (replaces the default set)",
			EnvVars: []string{"WARDEN_LINK_TOKENS"},
		},
		&cli.StringFlag{
			Name:    "link-tokens-file",
			Usage:   "path to a JSON array of additional link signature tokens",
			EnvVars: []string{"WARDEN_LINK_TOKENS_FILE"},
		},
		&cli.IntFlag{
			Name:    "warn-threshold",
			Usage:   "violation count at which temporary restriction starts",
			Value:   3,
			EnvVars: []string{"WARDEN_WARN_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "ban-threshold",
			Usage:   "violation count at which a permanent ban fires",
			Value:   5,
			EnvVars: []string{"WARDEN_BAN_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "restrict-duration",
			Value:   5 * time.Minute,
			EnvVars: []string{"WARDEN_RESTRICT_DURATION"},
		},
		&cli.BoolFlag{
			Name:    "reset-on-ban",
			Usage:   "reset the warning count to zero after a permanent ban",
			Value:   true,
			EnvVars: []string{"WARDEN_RESET_ON_BAN"},
		},
		&cli.Int64Flag{
			Name:    "global-admin-id",
			Usage:   "user exempt from enforcement everywhere",
			EnvVars: []string{"SUPER_ADMIN_ID"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "number of concurrent event processing workers",
			Value:   16,
			EnvVars: []string{"WARDEN_WORKERS"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "incoming webhook pinged on restrict/ban actions",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		db, err := util.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(
			db,
			Config{
				TelegramToken:     cctx.String("telegram-token"),
				TelegramHost:      cctx.String("telegram-host"),
				TelegramRateLimit: cctx.Int("telegram-rate-limit"),
				RedisURL:          cctx.String("redis-url"),
				WebhookURL:        cctx.String("webhook-url"),
				LinkTokens:        cctx.String("link-tokens"),
				LinkTokensFile:    cctx.String("link-tokens-file"),
				WarnThreshold:     cctx.Int("warn-threshold"),
				BanThreshold:      cctx.Int("ban-threshold"),
				RestrictDuration:  cctx.Duration("restrict-duration"),
				ResetOnBan:        cctx.Bool("reset-on-ban"),
				GlobalAdminID:     cctx.Int64("global-admin-id"),
				Workers:           cctx.Int("workers"),
				SlackWebhookURL:   cctx.String("slack-webhook-url"),
				Logger:            logger,
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		go func() {
			if err := srv.RunPersistCursor(ctx); err != nil {
				slog.Error("cursor persist loop failed", "error", err)
			}
		}()

		if cctx.String("webhook-url") != "" {
			return srv.RunWebhook(ctx, cctx.String("bind"))
		}
		return srv.RunConsumer(ctx)
	},
}
