// Package main implements the entry point for the vidsmith server,
// which fans user submissions out to AI video generation models, tracks
// every job in a persistent ledger, and recovers orphaned jobs after a
// restart.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vidsmith/vidsmith/internal/api"
	"github.com/vidsmith/vidsmith/internal/config"
	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/generation"
	"github.com/vidsmith/vidsmith/internal/platform/logger"
	"github.com/vidsmith/vidsmith/internal/platform/postgres"
	"github.com/vidsmith/vidsmith/internal/platform/storage"
	"github.com/vidsmith/vidsmith/internal/platform/vcube"
	"github.com/vidsmith/vidsmith/internal/provider"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"models", len(cfg.Generation.Models))

	db, err := openDatabase(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := runMigrations(db, log); err != nil {
		return err
	}

	app, err := buildApplication(cfg, db, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(app.handler, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// In-flight orchestrations keep writing to the ledger until every
	// job settles; the DB pool must outlive them.
	log.Info("waiting for in-flight generations")
	app.orchestrator.Wait()
	log.Info("server stopped")
	return nil
}

// application bundles the wired components run needs after construction.
type application struct {
	orchestrator *generation.Orchestrator
	reconciler   *generation.Reconciler
	handler      *api.GenerationHandler
}

// buildApplication constructs the provider client, stores and services
// from configuration.
func buildApplication(cfg *config.Config, db *sql.DB, log *slog.Logger) (*application, error) {
	providerClient, err := vcube.NewClient(providerConfig(cfg.Provider), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	ledger := postgres.NewLedgerStore(db)
	uploader, err := buildUploader(cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}

	catalog := cfg.Generation.Catalog()

	orchestrator, err := generation.NewOrchestrator(
		providerClient,
		ledger,
		uploader,
		catalog,
		generation.OrchestratorConfig{MaxConcurrent: cfg.Generation.MaxConcurrent},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	reconciler, err := generation.NewReconciler(
		providerClient,
		ledger,
		uploader,
		catalog,
		generation.ReconcilerConfig{
			GraceWindow: time.Duration(cfg.Generation.GraceWindowSeconds) * time.Second,
		},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	return &application{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		handler:      api.NewGenerationHandler(orchestrator, reconciler, ledger, log),
	}, nil
}

// buildUploader selects the storage backend: a PUT-based uploader when
// an endpoint is configured, otherwise a passthrough that leaves
// provider URLs in place.
func buildUploader(cfg config.StorageConfig, log *slog.Logger) (generation.Uploader, error) {
	if cfg.UploadBaseURL == "" {
		log.Info("no storage endpoint configured, provider URLs will not be re-hosted")
		return storage.Passthrough{}, nil
	}
	return storage.NewHTTPUploader(
		cfg.UploadBaseURL,
		cfg.PublicBaseURL,
		time.Duration(cfg.TimeoutSeconds)*time.Second,
		log,
	)
}

// providerConfig maps the flat config group onto the client's config.
func providerConfig(cfg config.ProviderConfig) vcube.Config {
	out := vcube.Config{
		SecretID:         cfg.SecretID,
		SecretKey:        cfg.SecretKey,
		Host:             cfg.Host,
		Region:           cfg.Region,
		Version:          cfg.Version,
		SubAppID:         cfg.SubAppID,
		Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxCreateRetries: cfg.MaxCreateRetries,
		RetryBaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
	}
	if len(cfg.PollPolicies) > 0 {
		out.PollPolicies = make(map[domain.ModelClass]provider.PollPolicy, len(cfg.PollPolicies))
		for class, p := range cfg.PollPolicies {
			out.PollPolicies[domain.ModelClass(class)] = provider.PollPolicy{
				Interval:    time.Duration(p.IntervalSeconds) * time.Second,
				MaxAttempts: p.MaxAttempts,
				MaxElapsed:  time.Duration(p.MaxElapsedSeconds) * time.Second,
			}
		}
	}
	return out
}

// openDatabase opens and verifies the connection pool.
func openDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
