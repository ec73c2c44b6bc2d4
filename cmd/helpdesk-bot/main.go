package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"helpdesk-bot/internal/common/config"
	"helpdesk-bot/internal/common/database"
	"helpdesk-bot/internal/common/gateway"
	httpserver "helpdesk-bot/internal/common/http"
	"helpdesk-bot/internal/common/logger"
	"helpdesk-bot/internal/common/observability"
	"helpdesk-bot/internal/common/ratelimit"
	"helpdesk-bot/internal/models"
	"helpdesk-bot/internal/store"

	formflow "helpdesk-bot/internal/workers/intake/form-flow"
	matchcoordinator "helpdesk-bot/internal/workers/matching/match-coordinator"
	ratingaggregator "helpdesk-bot/internal/workers/matching/rating-aggregator"
	updaterouter "helpdesk-bot/internal/workers/routing/update-router"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// repositories is the storage the handlers run on.
type repositories struct {
	sessions    models.SessionRepository
	engagements models.EngagementRepository
	directory   models.HandleDirectory
	reviews     models.ReviewRepository
	archive     models.FormArchive
	closers     []func() error
}

func (r *repositories) Close(log *zap.Logger) {
	for _, c := range r.closers {
		if err := c(); err != nil {
			log.Warn("error closing storage", zap.Error(err))
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting helpdesk bot...",
		zap.String("mode", cfg.Bot.Mode),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("ratingPolicy", cfg.Ratings.Policy),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var spanProcessors []sdktrace.SpanProcessor
	if cfg.Tracing.Enabled {
		sp, err := observability.NewOTLPProcessor(ctx, cfg.Tracing.Endpoint)
		if err != nil {
			zapLog.Fatal("tracing setup failed", zap.Error(err))
		}
		spanProcessors = append(spanProcessors, sp)
		zapLog.Info("Exporting traces", zap.String("endpoint", cfg.Tracing.Endpoint))
	}
	obs := observability.New(cfg.App.Name, spanProcessors...)
	defer obs.Shutdown()

	repos := openRepositories(ctx, cfg, zapLog)
	defer repos.Close(zapLog)

	// --- Telegram ---
	var bot *tgbotapi.BotAPI
	err = retryWithBackoff(func() error {
		var err error
		bot, err = tgbotapi.NewBotAPIWithClient(
			cfg.Bot.Token,
			tgbotapi.APIEndpoint,
			httpserver.NewClient(httpserver.ClientTimeout(cfg.Bot.PollTimeout)),
		)
		return err
	}, 5, 2*time.Second, zapLog, "Telegram authorization")
	if err != nil {
		zapLog.Fatal("telegram bot failed after retries", zap.Error(err))
	}
	bot.Debug = cfg.Bot.Debug
	zapLog.Info("Authorized on Telegram", zap.String("username", bot.Self.UserName))

	gw := gateway.NewTelegram(bot, repos.directory, log)

	// --- Handlers ---
	ratings := ratingaggregator.NewHandler(ratingaggregator.LoadConfig(cfg.Ratings), repos.reviews, log)
	coordinator := matchcoordinator.NewHandler(
		matchcoordinator.LoadConfig(cfg.Bot),
		repos.sessions, repos.engagements, ratings, gw, log,
	)
	forms := formflow.NewHandler(
		formflow.LoadConfig(cfg.Bot),
		repos.sessions, repos.archive, coordinator, gw, log,
	)
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, time.Duration(cfg.RateLimit.IdleTTL)*time.Second)
	router := updaterouter.NewHandler(
		updaterouter.LoadConfig(cfg.Bot),
		repos.sessions, repos.directory, limiter, forms, coordinator, gw, obs, log,
	)

	// --- HTTP server: webhook, health and metrics ---
	webhookPath := ""
	if cfg.Bot.Mode == config.ModeWebhook {
		webhookPath = cfg.Server.WebhookPath
	}
	srv := httpserver.NewServer(cfg.Server.Address, httpserver.NewMux(webhookPath, router, log))
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Updates ---
	switch cfg.Bot.Mode {
	case config.ModeWebhook:
		if err := registerWebhook(bot, cfg.Server); err != nil {
			zapLog.Fatal("webhook registration failed", zap.Error(err))
		}
		zapLog.Info("Receiving updates via webhook", zap.String("path", cfg.Server.WebhookPath))
		<-ctx.Done()
	default:
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			zapLog.Warn("failed to clear webhook before polling", zap.Error(err))
		}
		poller := gateway.NewPoller(bot, cfg.Bot.PollTimeout, log)
		err := poller.Run(ctx, func(ctx context.Context, u gateway.Update) {
			_, _ = router.Process(ctx, u)
		})
		if err != nil {
			zapLog.Error("polling stopped", zap.Error(err))
		}
	}

	// --- Graceful Shutdown ---
	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Helpdesk bot stopped gracefully")
}

// registerWebhook points the platform at PublicURL + WebhookPath. Without
// a public URL the webhook is assumed to be registered out of band.
func registerWebhook(bot *tgbotapi.BotAPI, cfg config.ServerConfig) error {
	if cfg.PublicURL == "" {
		return nil
	}
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(cfg.PublicURL, "/") + cfg.WebhookPath)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) *repositories {
	repos := &repositories{archive: store.NopArchive{}}

	// --- Sessions, engagements and the handle directory ---
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		var rdb *redis.Client
		err := retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		repos.closers = append(repos.closers, rdb.Close)
		repos.sessions = store.NewRedisSessions(rdb, time.Duration(cfg.Storage.SessionTTL)*time.Second)
		repos.engagements = store.NewRedisEngagements(rdb)
		repos.directory = store.NewRedisDirectory(rdb)
		zapLog.Info("Redis connected successfully")
	default:
		repos.sessions = store.NewMemorySessions()
		repos.engagements = store.NewMemoryEngagements()
		repos.directory = store.NewMemoryDirectory()
	}

	// --- Review history ---
	if cfg.Database.Postgres.Enabled {
		var db *sql.DB
		err := retryWithBackoff(func() error {
			var err error
			db, err = database.NewPostgres(ctx, cfg.Database.Postgres)
			return err
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		repos.closers = append(repos.closers, db.Close)

		reviews := store.NewPostgresReviews(db)
		if err := reviews.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("review schema setup failed", zap.Error(err))
		}
		repos.reviews = reviews
		zapLog.Info("PostgreSQL connected successfully")
	} else {
		repos.reviews = store.NewMemoryReviews()
	}

	// --- Form archive ---
	if cfg.Database.Elasticsearch.Enabled {
		err := retryWithBackoff(func() error {
			es, err := database.NewElasticsearch(ctx, cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			repos.archive = store.NewElasticArchive(es, cfg.Database.Elasticsearch.Index)
			return nil
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	return repos
}
