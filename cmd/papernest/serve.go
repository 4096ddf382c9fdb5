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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/config"
	"github.com/kailas-cloud/papernest/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/papernest/internal/db/redis"
	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/extract"
	logpkg "github.com/kailas-cloud/papernest/internal/logger"
	"github.com/kailas-cloud/papernest/internal/metrics"
	paperrepo "github.com/kailas-cloud/papernest/internal/repository/paper"
	sessionrepo "github.com/kailas-cloud/papernest/internal/repository/session"
	userrepo "github.com/kailas-cloud/papernest/internal/repository/user"
	chiTransport "github.com/kailas-cloud/papernest/internal/transport/chi"
	authuc "github.com/kailas-cloud/papernest/internal/usecase/auth"
	healthuc "github.com/kailas-cloud/papernest/internal/usecase/health"
	paperuc "github.com/kailas-cloud/papernest/internal/usecase/paper"
	"github.com/kailas-cloud/papernest/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, env, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting papernest API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	// Register metrics explicitly (no init())
	metrics.Register()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.Open(postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeSec) * time.Second,
	}, logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = pg.Close() }()

	if err := pg.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("Connected to database")

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Sessions.Addrs,
		Username: cfg.Sessions.Username,
		Password: cfg.Sessions.Password,
		DB:       cfg.Sessions.DB,
	})
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Sessions.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("session store not ready: %w", err)
	}
	logger.Info("Connected to session store", zap.Strings("addrs", cfg.Sessions.Addrs))

	provider, err := buildProvider(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	if c, ok := provider.(domain.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to release embedding provider", zap.Error(err))
			}
		}()
	}
	logger.Info("Embedding provider ready", zap.String("identity", provider.Identity().String()))

	retriever, err := buildRetriever(cfg, provider, logger)
	if err != nil {
		return fmt.Errorf("create retriever: %w", err)
	}

	authSvc := authuc.New(userrepo.New(pg), sessionrepo.New(store, cfg.Sessions.TTL()), logger.Named("auth"))
	paperSvc := paperuc.New(
		paperrepo.New(pg),
		retriever,
		buildGenerator(cfg.Chat, logger),
		extract.New(logpkg.NewSlog(logger.Named("extract"))),
		paperuc.Config{SummaryInputLimit: cfg.Chat.SummaryInputLimit, DefaultTopK: cfg.Retrieval.TopK},
		logger.Named("papers"),
	)

	healthSvc := healthuc.New(2*time.Second, logger.Named("health")).
		Require("postgres", pg).
		Require("redis", healthuc.CheckerFunc(store.Ping)).
		Optional("embedding", providerHealth(provider))

	server := chiTransport.NewServer(authSvc, paperSvc, healthSvc, chiTransport.Config{
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	return shutdown(srv, cfg.HTTP, logger)
}

func shutdown(srv *http.Server, cfg config.HTTPConfig, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// providerHealth returns nil for providers without a health probe (keyword).
func providerHealth(p domain.Provider) healthuc.Checker {
	if hc, ok := p.(domain.HealthChecker); ok {
		return hc
	}
	return nil
}
