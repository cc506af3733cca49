// Package handler provides the HTTP handlers of the SEWIK API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/api/response"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/fetch"
)

// Check probes a dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthReporter is a partition source that tracks its upstream.
// *dataset.HTTPSource implements it.
type HealthReporter interface {
	Name() string
	Health() fetch.Health
}

// StatusProvider reports loader readiness and cache activity.
type StatusProvider interface {
	MetadataLoaded() bool
	Stats() dataset.Stats
}

// OpsConfig configures an OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Loader    StatusProvider
	// Sources are reported by SystemStatus. Optional.
	Sources []HealthReporter
	// Checks probe subsystems such as redis or postgres by name. Optional.
	Checks map[string]Check
	// Sessions returns the number of live sessions. Optional.
	Sessions func() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// metadata document was loaded, even if that fell back to the defaults.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Loader == nil || !h.cfg.Loader.MetadataLoaded() {
		response.ServiceUnavailable(w, r, "metadata not loaded yet")
		return
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem, source and cache status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Sources:    []models.SourceStatus{},
	}

	names := make([]string, 0, len(h.cfg.Checks))
	for name := range h.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sub := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err := h.cfg.Checks[name](ctx); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
		}
		status.Subsystems = append(status.Subsystems, sub)
		status.Status = worst(status.Status, sub.Status)
	}

	for _, src := range h.cfg.Sources {
		s := sourceStatus(src)
		status.Sources = append(status.Sources, s)
		status.Status = worst(status.Status, s.Status)
	}

	if h.cfg.Loader != nil {
		status.Cache = h.cfg.Loader.Stats()
	}
	if h.cfg.Sessions != nil {
		status.Sessions = h.cfg.Sessions()
	}

	response.JSON(w, r, http.StatusOK, status)
}

func sourceStatus(src HealthReporter) models.SourceStatus {
	health := src.Health()
	s := models.SourceStatus{
		Source:        src.Name(),
		Status:        models.HealthStatusOK,
		CircuitState:  health.CircuitState.String(),
		LastSuccessAt: models.TimestampPtr(health.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(health.LastFailureAt),
	}
	switch {
	case health.IsDegraded():
		s.Status = models.HealthStatusDegraded
	case !health.IsHealthy():
		s.Status = models.HealthStatusFail
	}
	if health.LastError != "" {
		msg := health.LastError
		s.Message = &msg
	}
	return s
}

// worst folds b into the overall status a. Any unhealthy dependency makes
// the service DEGRADED, never FAIL.
func worst(a, b models.HealthStatus) models.HealthStatus {
	if a == models.HealthStatusOK && b != models.HealthStatusOK {
		return models.HealthStatusDegraded
	}
	return a
}
