package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/config"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/httpapi"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Daisi WA Cloud Gateway",
		zap.String("environment", cfg.Environment),
		zap.Bool("events_enabled", cfg.Events.Enabled),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize repositories
	postgresRepo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	credentialRepo := storage.NewCredentialRepoAdapter(postgresRepo)

	// Lifecycle event publishing is optional; without NATS the gateway runs
	// with a noop publisher.
	var jsClient *jetstream.Client
	var publisher usecase.IEventPublisher = usecase.NewNoopPublisher()
	if cfg.Events.Enabled {
		jsClient, err = jetstream.NewClient(cfg.NATS.URL)
		if err != nil {
			logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
		}

		streamConfig := &nats.StreamConfig{
			Name:      cfg.Events.Stream,
			Subjects:  []string{cfg.Events.SubjectPrefix + ".>"},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
		}
		if err := jsClient.SetupStream(context.Background(), streamConfig); err != nil {
			logger.Log.Fatal("Failed to set up ledger event stream", zap.Error(err))
		}

		publisher, err = usecase.NewEventPublisher(cfg.WorkerPools.Publisher, cfg.Events.SubjectPrefix, jsClient, logger.Log)
		if err != nil {
			logger.Log.Fatal("Failed to initialize event publisher pool", zap.Error(err))
		}
	}

	// Provider client and service
	providerClient := provider.NewClient(cfg.Provider.Timeout)
	service := usecase.NewGatewayService(messageRepo, credentialRepo, providerClient, publisher, *cfg)

	// HTTP surface: dashboard API, webhook endpoints, health and metrics
	server := httpapi.NewServer(strconv.Itoa(cfg.Server.Port), service, metricsEnabled, logger.Log)
	server.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("send", fmt.Sprintf("http://localhost:%d/api/v1/messages/send", cfg.Server.Port)),
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/webhook", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown HTTP server first so no new work arrives
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done() // Ensure WaitGroup is decremented even in case of panic
	})

	// Shutdown publisher pool so queued ledger events drain
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping event publisher pool")
		start := time.Now()
		publisher.Stop()
		logger.Log.Info("[shutdown] Event publisher pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping event publisher pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and broker connections
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		if jsClient != nil {
			logger.Log.Info("[shutdown] Closing JetStream connection")
			jsStart := time.Now()
			jsClient.Close()
			logger.Log.Info("[shutdown] JetStream connection closed",
				zap.Duration("duration", time.Since(jsStart)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait for all components or the shutdown timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("Graceful shutdown complete")
	case <-shutdownCtx.Done():
		logger.Log.Warn("Graceful shutdown timed out, exiting")
	}
}
