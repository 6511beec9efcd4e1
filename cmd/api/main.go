package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karoba/wellness/internal/app/migrate"
	httpx "github.com/karoba/wellness/internal/http"
	"github.com/karoba/wellness/internal/repository"
	"github.com/karoba/wellness/internal/repository/memory"
	"github.com/karoba/wellness/internal/repository/postgres"
	"github.com/karoba/wellness/internal/service/account"
	"github.com/karoba/wellness/internal/service/auth"
	"github.com/karoba/wellness/internal/service/notify"
	"github.com/karoba/wellness/internal/ws"
	"github.com/karoba/wellness/pkg/config"
	"github.com/karoba/wellness/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.APIConfig, log *slog.Logger) error {
	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := ws.NewHub()
	defer hub.Close()

	notifier, closeNotifier := buildNotifier(cfg, hub, log)
	defer closeNotifier()

	accountSvc := account.New(repo, notifier, log, account.Options{
		MaxPageSize:   cfg.MaxPageSize,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	authSvc := auth.New(repo, accountSvc, log, cfg)

	if email := strings.TrimSpace(cfg.AdminBootstrapEmail); email != "" {
		admin, err := accountSvc.EnsureAdministrator(ctx, account.CreateInput{
			Email:     email,
			Password:  cfg.AdminBootstrapPassword,
			FirstName: "Karoba",
			LastName:  "Administrator",
			Phone:     "n/a",
		})
		if err != nil {
			return err
		}
		log.Info("administrator ready", "user_id", admin.ID)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, accountSvc, httpx.Options{
		Limiter:       limiter,
		AuthRateLimit: cfg.AuthRateLimit,
		UserRateLimit: cfg.UserRateLimit,
		RateWindow:    cfg.RateLimitWindow,
		AllowedOrigin: cfg.AllowedOrigin,
		DBHealth:      repo.Ping,
		Hub:           hub,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "storage", cfg.StorageDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.AccountRepository, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("using in-memory account store; data is lost on restart")
		return memory.New(memory.WithLogger(log)), func() {}, nil
	case config.StoragePostgres, "":
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}
	if err := runner.Ensure(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}
	return postgres.New(pool, log), runner.Close, nil
}

func buildNotifier(cfg config.APIConfig, hub *ws.Hub, log *slog.Logger) (notify.Notifier, func()) {
	notifiers := notify.Multi{notify.NewLog(log), notify.NewHub(hub)}
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		notifiers = append(notifiers, k)
		closers = append(closers, k.Close)
		log.Info("kafka notifications enabled", "topic", cfg.KafkaTopic)
	}
	if url := strings.TrimSpace(cfg.RabbitMQURL); url != "" {
		r, err := notify.DialRabbitMQ(url, cfg.RabbitMQQueue)
		if err != nil {
			log.Warn("rabbitmq notifications unavailable", "error", err)
		} else {
			notifiers = append(notifiers, r)
			closers = append(closers, r.Close)
			log.Info("rabbitmq notifications enabled", "queue", cfg.RabbitMQQueue)
		}
	}

	if endpoint := strings.TrimSpace(cfg.NotifyWebhookURL); endpoint != "" {
		hook, err := notify.NewWebhook(endpoint, cfg.NotifyWebhookToken, nil)
		if err != nil {
			log.Warn("webhook notifications unavailable", "error", err)
		} else {
			notifiers = append(notifiers, hook)
			log.Info("webhook notifications enabled")
		}
	}

	return notifiers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("notifier close failed", "error", err)
			}
		}
	}
}
