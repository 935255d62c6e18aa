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

	webAdapter "secops-console/internal/adapters/web"
	"secops-console/internal/ai"
	"secops-console/internal/app"
	"secops-console/internal/auth"
	"secops-console/internal/chat"
	"secops-console/internal/config"
	"secops-console/internal/core"
	"secops-console/internal/db"
	"secops-console/internal/logging"
	"secops-console/internal/metrics"
	"secops-console/internal/monitor"
	"secops-console/internal/session"
	"secops-console/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	purgeInterval   = time.Minute
	badgerGCEvery   = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied", zap.Strings("files", applied))

	durable, err := openDurable(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := durable.Close(); err != nil {
			log.Warn("closing durable storage", zap.Error(err))
		}
	}()

	tabs := storage.NewMemory(cfg.SessionIdleTTL)
	tabs.StartPurge(ctx, purgeInterval)
	defer func() { _ = tabs.Close() }()

	registry, m := metrics.NewRegistry()
	svc := app.NewAppService(core.NewUserService(pool))
	tokens := auth.NewTokens(cfg.JWTSecret, auth.TokenTTL)

	// sessions is assigned before the dashboard starts polling.
	var sessions *session.Manager
	client := monitor.NewClient(cfg.DashboardAPIURL, 0)
	dashboard := monitor.NewDashboard(client, monitor.DashboardOptions{
		Log:     log.Named("monitor"),
		Metrics: m,
		OnNewThreats: func(delta int, stats monitor.LogStats) {
			sessions.NotifyThreats(delta, stats.TotalThreats)
		},
	})

	var responder chat.Responder
	if cfg.OpenAIAPIKey != "" {
		responder = ai.NewAgent(cfg.OpenAIAPIKey, dashboard.Briefing)
	} else {
		log.Warn("OPENAI_API_KEY is not set; chat replies are canned")
	}

	sessions = session.NewManager(session.Options{
		Durable:   durable,
		Tabs:      tabs,
		Accounts:  svc,
		Tokens:    tokens,
		Responder: responder,
		IdleTTL:   cfg.SessionIdleTTL,
		Log:       log.Named("session"),
		Metrics:   m,
	})
	sessions.StartPurge(ctx, purgeInterval)
	defer sessions.Shutdown()

	if client.Configured() {
		dashboard.Start(ctx)
		defer dashboard.Wait()
	} else {
		log.Warn("DASHBOARD_API_URL is not set; monitoring panels stay disconnected")
	}

	handler := webAdapter.NewHandler(webAdapter.Options{
		Accounts:       svc,
		Tokens:         tokens,
		Sessions:       sessions,
		Dashboard:      dashboard,
		Metrics:        m,
		Registry:       registry,
		Log:            log.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
		DownloadDir:    cfg.DownloadDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageBackend))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openDurable selects the backend for the durable storage tier.
func openDurable(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendBadger:
		b, err := storage.OpenBadger(storage.BadgerConfig{Path: cfg.BadgerPath}, log.Named("badger"))
		if err != nil {
			return nil, err
		}
		b.StartGC(ctx, badgerGCEvery)
		return b, nil
	case config.BackendMemory:
		log.Warn("durable storage is in memory; preferences are lost on restart")
		return storage.NewMemory(0), nil
	default:
		return storage.NewPostgres(pool), nil
	}
}
