// Package api provides the HTTP API of the SEWIK accident map.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/api/handler"
	"github.com/sewik-mapa/sewikmapa/internal/api/middleware"
	"github.com/sewik-mapa/sewikmapa/internal/session"
)

// Loader is what the handlers need from the partition loader.
// *dataset.Loader implements it.
type Loader interface {
	handler.Dataset
	handler.StatusProvider
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Loader   Loader
	Sessions *session.Registry
	Sources  []handler.HealthReporter
	Checks   map[string]handler.Check
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "sewik-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	var sessionCount func() int
	if cfg.Sessions != nil {
		sessionCount = cfg.Sessions.Len
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Loader:    cfg.Loader,
		Sources:   cfg.Sources,
		Checks:    cfg.Checks,
		Sessions:  sessionCount,
	})
	metadataHandler := handler.NewMetadataHandler(cfg.Loader)
	accidentsHandler := handler.NewAccidentsHandler(cfg.Loader, cfg.Logger)
	exportHandler := handler.NewExportHandler(cfg.Loader, cfg.Logger)
	stateHandler := handler.NewStateHandler()

	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/metadata", metadataHandler.GetMetadata)
			r.Get("/accidents", accidentsHandler.ListAccidents)
			r.Get("/state/canonical", stateHandler.Canonical)
		})

		r.Group(func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.With(middleware.RequireJSON).Post("/analysis", accidentsHandler.Analyze)
			r.Get("/export", exportHandler.Export)
		})

		if cfg.Sessions != nil {
			sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Logger)
			r.Route("/sessions", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Use(middleware.RequireJSON)
				r.Post("/", sessionHandler.CreateSession)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessionHandler.GetSession)
					r.Delete("/", sessionHandler.DeleteSession)
					r.Post("/commands", sessionHandler.Dispatch)
				})
			})
		}
	})

	return r
}
