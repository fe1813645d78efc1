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

	"uplinkpolicy/internal/core/services"
	httphandlers "uplinkpolicy/internal/handlers/http"
	"uplinkpolicy/internal/infrastructure/distributed"
	"uplinkpolicy/internal/infrastructure/monitoring"
	"uplinkpolicy/internal/infrastructure/repositories"
	wssignal "uplinkpolicy/internal/infrastructure/signal"
	"uplinkpolicy/pkg/config"
	"uplinkpolicy/pkg/logger"
	"uplinkpolicy/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/uplinkpolicy/config.yaml",
	"config.yaml",
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger.Sugar()); err != nil {
		zapLogger.Sugar().Fatalw("policy server failed", "error", err)
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("UPLINKPOLICY_CONFIG"); path != "" {
		return config.Load(path)
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	// No file anywhere: defaults plus environment overrides.
	return config.Load("")
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instanceID := uuid.NewString()
	log = log.With("instance_id", instanceID)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	repoFactory := repositories.NewRepositoryFactory(ctx, cfg, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := monitoring.NewPrometheusCollector(registry)

	opts := services.PolicyServiceOptions{
		DefaultRules: cfg.Policy.Rules,
		Strict:       cfg.Policy.Strict,
		CacheSize:    cfg.Policy.CacheSize,
		Recorder:     collector,
	}

	var eventBus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		eventBus = distributed.NewEventBus(client, instanceID, log)
		opts.Events = eventBus
	}

	policyService, err := services.NewPolicyService(ctx, repoFactory.CreatePolicyRepository(), opts, log)
	if err != nil {
		return fmt.Errorf("failed to create policy service: %w", err)
	}

	subscriberDone := make(chan struct{})
	if eventBus != nil {
		go func() {
			defer close(subscriberDone)
			if err := eventBus.Subscribe(ctx, distributed.InvalidateOnChange(policyService)); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("policy event subscription stopped", "error", err)
			}
		}()
	} else {
		close(subscriberDone)
	}

	uplinkService := services.NewUplinkService(policyService, collector, log)
	uplinkService.SetMinTimeBetweenSwitches(cfg.Uplink.MinSwitchInterval)
	uplinkService.SetHistorySize(cfg.Uplink.HistorySize)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.APIKey, cfg.Auth.AccessTokenTTL)

	wsOpts := wssignal.Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.ReportsPerSecond = cfg.RateLimiting.WebSocket.ReportsPerSecond
		wsOpts.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	wsServer := wssignal.NewWebSocketServer(uplinkService, collector, wsOpts, log)

	health := monitoring.NewHealthChecker()
	health.AddCheck("policy_store", repoFactory.HealthCheck, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := httphandlers.RouterDeps{
		Config:    cfg,
		Policies:  policyService,
		Uplink:    uplinkService,
		Auth:      authService,
		WebSocket: wsServer,
		Health:    health,
		Logger:    log,
	}
	if cfg.Monitoring.PrometheusEnabled {
		deps.Gatherer = registry
		log.Info("prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      httphandlers.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting uplink policy server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}
	// The subscription ends with ctx; wait for it before closing Redis.
	select {
	case <-subscriberDone:
	case <-shutdownCtx.Done():
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error shutting down tracer provider", "error", err)
	}

	log.Info("uplink policy server stopped")
	return nil
}
