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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/therapyassist/therapy-api/internal/app"
	"github.com/therapyassist/therapy-api/internal/config"
	"github.com/therapyassist/therapy-api/internal/handler/health"
	"github.com/therapyassist/therapy-api/internal/middleware"
	"github.com/therapyassist/therapy-api/internal/repository/postgres"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "therapy-worker",
		Short:        "Relays outbox events to Redis and emails payment receipts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return run(cfg)
		},
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	appLogger := setupLogging(cfg.Logging)

	// The outbox is only shared with the API process through the database.
	if cfg.Storage.Driver != config.StoragePostgres {
		return fmt.Errorf("worker requires storage.driver=%s; run the API with --outbox for in-memory storage", config.StoragePostgres)
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	repos := app.NewPostgresRepositories(db)

	broker, err := app.NewBroker(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry, app.MetricsNamespace)

	srv := healthServer(cfg.Worker.HealthPort, repos, registry)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down worker...")
		cancel()
	}()

	log.Info().
		Int("batch_size", cfg.Outbox.BatchSize).
		Dur("poll_interval", cfg.Outbox.PollInterval).
		Bool("receipts", cfg.SMTP.Enabled).
		Msg("worker started")

	runErr := app.RunOutbox(ctx, cfg, repos, broker, m, appLogger)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	return runErr
}

// healthServer exposes liveness, readiness against the database and the
// worker's metrics.
func healthServer(port int, repos *app.Repositories, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())

	metricsHandler := gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	health.NewHandler(repos.Pinger, metricsHandler).RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func setupLogging(cfg config.LoggingConfig) *logger.Logger {
	level := logger.ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	if !cfg.JSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.NewLogger(&logger.Config{Level: level, JSON: cfg.JSON})
}
