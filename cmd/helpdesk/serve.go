package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aimd54/judge-helpdesk-bot/internal/api"
	"github.com/aimd54/judge-helpdesk-bot/internal/bot"
	"github.com/aimd54/judge-helpdesk-bot/internal/cache"
	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/internal/mattermost"
	"github.com/aimd54/judge-helpdesk-bot/internal/ratelimit"
	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/scheduler"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/stats"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/users"
	"github.com/aimd54/judge-helpdesk-bot/internal/session"
	"github.com/aimd54/judge-helpdesk-bot/internal/telegram"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the scheduler and the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.close()

			return a.run(ctx)
		},
	}
}

// app holds the wired components of a running process.
type app struct {
	cfg *config.Config
	log *logger.Logger

	db        *repository.DB
	redis     *redis.Client // nil when redis is disabled
	telegram  *telegram.Client
	bot       *bot.Bot
	scheduler *scheduler.Service
	poller    *telegram.Poller // nil in webhook mode
	server    *http.Server     // nil when the HTTP server is disabled
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := db.Migrate(ctx); err != nil {
		a.close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
	}

	userRepo := repository.NewUserRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	a.telegram = telegram.NewClient(&cfg.Telegram, log.Component("telegram"))

	var feed tickets.StaffFeed
	if cfg.Mattermost.Enabled {
		feed = mattermost.NewClient(&cfg.Mattermost, log.Component("mattermost"))
	}

	userService := users.NewService(userRepo, a.telegram, log.Component("users"))
	ticketService := tickets.NewService(&cfg.Tickets, ticketRepo, commentRepo, userRepo, a.telegram, feed, log.Component("tickets"))
	statsService := stats.NewService(ticketRepo, userRepo, log.Component("stats"))

	limits := ratelimit.Config{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
	var (
		limiter  ratelimit.Limiter
		sessions session.Store
		offsets  telegram.OffsetStore
	)
	if a.redis != nil {
		limiter = ratelimit.NewRedisLimiter(a.redis, limits)
		sessions = session.NewRedisStore(a.redis, session.DefaultTTL)
		offsets = telegram.NewRedisOffsetStore(a.redis)
	} else {
		limiter = ratelimit.NewMemoryLimiter(limits)
		sessions = session.NewMemoryStore(session.DefaultTTL)
	}

	a.bot = bot.NewBot(a.telegram, userService, ticketService, sessions, limiter, log.Component("bot"))
	a.scheduler = scheduler.NewService(&cfg.Scheduler, ticketService, statsService, log.Component("scheduler"))

	if cfg.Telegram.Mode == config.ModePolling {
		a.poller = telegram.NewPoller(a.telegram, a.bot, offsets, cfg.Telegram.PollTimeout, cfg.Telegram.Workers, log.Component("poller"))
	}

	if cfg.Server.Enabled {
		checks := map[string]api.HealthCheck{
			"database": func(context.Context) error { return db.Health() },
		}
		if a.redis != nil {
			checks["redis"] = func(ctx context.Context) error { return cache.Health(ctx, a.redis) }
		}

		routes := api.Routes{
			API:    api.NewHandler(ticketService, statsService, log.Component("api")),
			Health: api.NewHealthHandler(checks, log.Component("health")),
		}
		if cfg.Telegram.Mode == config.ModeWebhook {
			routes.Webhook = api.NewWebhookHandler(a.bot, cfg.Telegram.WebhookSecret, log.Component("webhook"))
		}

		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewRouter(cfg, routes, log.Component("http")),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}

	return a, nil
}

// run starts every component and blocks until ctx is cancelled or the
// HTTP server fails.
func (a *app) run(ctx context.Context) error {
	me, err := a.telegram.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach telegram: %w", err)
	}
	a.log.Info().Str("bot", me.Username).Int64("bot_id", me.ID).Msg("Connected to Telegram")

	if err := a.telegram.SetMyCommands(ctx, bot.Commands()); err != nil {
		a.log.Warn().Err(err).Msg("Failed to register bot commands")
	}

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("HTTP server starting")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	switch a.cfg.Telegram.Mode {
	case config.ModeWebhook:
		if err := a.telegram.SetWebhook(ctx, a.cfg.Telegram.WebhookURL, a.cfg.Telegram.WebhookSecret); err != nil {
			a.shutdownServer()
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		a.log.Info().Str("url", a.cfg.Telegram.WebhookURL).Msg("Telegram webhook registered")
	default:
		if err := a.poller.Start(ctx); err != nil {
			a.shutdownServer()
			return fmt.Errorf("failed to start polling: %w", err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	if a.poller != nil {
		a.poller.Stop()
	}
	a.shutdownServer()

	a.log.Info().Msg("Helpdesk stopped")
	return runErr
}

func (a *app) shutdownServer() {
	if a.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("HTTP server forced to shut down")
	}
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
