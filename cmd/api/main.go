// Package main provides the entrypoint for the SEWIK API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/api"
	"github.com/sewik-mapa/sewikmapa/internal/api/handler"
	"github.com/sewik-mapa/sewikmapa/internal/api/middleware"
	"github.com/sewik-mapa/sewikmapa/internal/app"
	"github.com/sewik-mapa/sewikmapa/internal/config"
	"github.com/sewik-mapa/sewikmapa/internal/session"
	"github.com/sewik-mapa/sewikmapa/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// sessionMaxAge is the lifetime of a session before the sweep removes it.
const sessionMaxAge = 30 * time.Minute

func main() {
	const serviceName = "sewik-api"

	config.LoadDotEnv()
	cfg := config.FromEnv()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("data_source", cfg.DataSource).
		Msg("starting SEWIK API")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	data, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open data source")
	}
	defer data.Close()

	initCtx, cancelInit := context.WithTimeout(ctx, cfg.FetchTimeout)
	data.Init(initCtx)
	cancelInit()

	sessions := session.NewRegistry(session.RegistryConfig{
		Loader:      data.Loader,
		Logger:      log,
		MaxSessions: cfg.MaxSessions,
		Debounce:    cfg.URLDebounce,
	})

	var sources []handler.HealthReporter
	if data.HTTP != nil {
		sources = append(sources, data.HTTP)
	}
	checks := map[string]handler.Check{}
	if data.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return data.Redis.Ping(ctx).Err() }
	}
	if data.Pool != nil {
		checks["postgres"] = data.Pool.Ping
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.RequireTLS,
		Loader:      data.Loader,
		Sessions:    sessions,
		Sources:     sources,
		Checks:      checks,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions, log)

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

func sweepSessions(ctx context.Context, sessions *session.Registry, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(sessionMaxAge); n > 0 {
				log.Debug().Int("sessions", n).Msg("swept expired sessions")
			}
		}
	}
}
