package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goutils "github.com/jkaninda/go-utils"
	"github.com/spf13/cobra"

	"github.com/vaultum/keygate/internal/config"
	"github.com/vaultum/keygate/internal/events"
	"github.com/vaultum/keygate/internal/mail"
	"github.com/vaultum/keygate/internal/observability"
	"github.com/vaultum/keygate/internal/orgauth"
	"github.com/vaultum/keygate/internal/push"
	"github.com/vaultum/keygate/internal/ratelimit"
	"github.com/vaultum/keygate/internal/server"
	"github.com/vaultum/keygate/internal/storage"
	pgstore "github.com/vaultum/keygate/internal/storage/postgres"
	sqlitestore "github.com/vaultum/keygate/internal/storage/sqlite"
	"github.com/vaultum/keygate/internal/sweeper"
)

var (
	configPath string
	portFlag   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the keygate approval service",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().IntVar(&portFlag, "port", 0, "override HTTP listen port")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("KEYGATE_CONFIG", configPath))
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.ListenAddr = fmt.Sprintf(":%d", portFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("keygate starting",
		slog.String("version", version),
		slog.String("storage", cfg.StorageDriverName()),
		slog.String("addr", cfg.Server.Addr()),
	)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating storage: %w", err)
	}
	orgID, err := store.EnsureOrg(ctx, "default")
	if err != nil {
		return fmt.Errorf("ensuring default organization: %w", err)
	}
	logger.Info("default organization ready", slog.String("organization_id", orgID.String()))

	// Observability. Both are optional; nil disables them with zero overhead.
	var metrics *observability.Metrics
	var metricsPath string
	if cfg.Observability != nil && cfg.Observability.Metrics != nil && cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
		metricsPath = cfg.Observability.Metrics.MetricsPath()
	}
	var tracingCfg *config.TracingConfig
	if cfg.Observability != nil {
		tracingCfg = cfg.Observability.Tracing
	}
	tracing, err := observability.StartTracing(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	if tracing != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(shutdownCtx); err != nil {
				logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	eventsSvc := events.NewStoreService(store.Events(), logger)

	var mailer orgauth.Mailer
	if cfg.SMTP != nil {
		mailer = mail.NewSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
		}, logger)
	}

	var pushSender orgauth.PushSender
	var hub *push.Hub
	if cfg.Push != nil {
		var relay *push.Relay
		if cfg.Push.RelayURL != "" {
			relay = push.NewRelay(push.RelayConfig{
				URL:     cfg.Push.RelayURL,
				Token:   cfg.Push.RelayToken,
				Timeout: cfg.Push.RelayTimeout(),
			}, logger)
		}
		if cfg.Push.WebSocket {
			hub = push.NewHub(logger)
		}
		if relay != nil || hub != nil {
			pushSender = push.NewSender(relay, hub, logger)
		}
	}

	command := orgauth.NewCommand(
		store.AuthRequests(),
		store.Users(),
		pushSender,
		mailer,
		eventsSvc,
		metrics,
		logger,
		cfg.Auth.AdminRequestExpiration(),
	)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
	})

	gwConfig := server.Config{
		ListenAddr:  cfg.Server.Addr(),
		EnableDocs:  cfg.Server.EnableDocs,
		APIKeys:     cfg.Server.APIKeys,
		MetricsPath: metricsPath,
		Metrics:     metrics,
	}
	if metrics != nil {
		gwConfig.MetricsRegistry = metrics.Registry
	}
	if tracing != nil {
		gwConfig.Tracer = tracing.Tracer()
	}

	gw := server.NewGateway(gwConfig, command, store, limiter, logger)
	if hub != nil {
		gw.WithHandler("/ws/auth-requests", hub.Handler())
	}

	if cfg.Sweeper != nil && cfg.Sweeper.Enabled {
		sw := sweeper.New(store.AuthRequests(), metrics, logger, cfg.Sweeper.CronSchedule(), cfg.Auth.AdminRequestExpiration())
		stopSweeper, err := sw.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting expiry sweeper: %w", err)
		}
		defer stopSweeper()
	}

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping http server: %w", err)
	}

	logger.Info("keygate stopped")
	return nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageDriverName() {
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		db, err := pgstore.Open(pgstore.Config{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return pgstore.NewStore(db), nil
	default:
		sqliteCfg := sqlitestore.Config{Path: cfg.DatabasePath()}
		if cfg.Storage != nil && cfg.Storage.SQLite != nil {
			if cfg.Storage.SQLite.Path != "" {
				sqliteCfg.Path = cfg.Storage.SQLite.Path
			}
			sqliteCfg.JournalMode = cfg.Storage.SQLite.JournalMode
		}
		s, err := sqlitestore.Open(sqliteCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	}
}
