// Package handler provides HTTP handlers for the NutriPlan API.
package handler

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/nutriplan/nutriplan/internal/api/models"
	"github.com/nutriplan/nutriplan/internal/api/response"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
)

// Pinger reports whether a backing store is reachable. *pgxpool.Pool
// satisfies it directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	registry   *resilience.Registry
	subsystems map[string]Pinger
	now        func() time.Time
}

// OpsConfig holds OpsHandler dependencies. Registry and Subsystems are optional.
type OpsConfig struct {
	Version    string
	BuildTime  string
	Registry   *resilience.Registry
	Subsystems map[string]Pinger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:    cfg.Version,
		buildTime:  cfg.BuildTime,
		registry:   cfg.Registry,
		subsystems: cfg.Subsystems,
		now:        time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails when any subsystem
// does not answer a ping.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())

	status := models.HealthStatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusFail
		}
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
// Providers are reported from their circuit breakers.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())

	var providers []models.ProviderStatus
	status := models.HealthStatusOK
	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			providers = append(providers, providerStatus(health))
		}
		switch h.registry.Status() {
		case resilience.StatusDegraded:
			status = models.HealthStatusDegraded
		case resilience.StatusUnavailable:
			status = models.HealthStatusFail
		}
	}
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusFail
		}
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     status,
		Time:       models.Timestamp(h.now()),
		Subsystems: subsystems,
		Providers:  providers,
	})
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := make([]models.SubsystemStatus, 0, len(h.subsystems))
	for _, name := range slices.Sorted(maps.Keys(h.subsystems)) {
		s := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err := h.subsystems[name].Ping(ctx); err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func providerStatus(h *resilience.ProviderHealth) models.ProviderStatus {
	s := models.ProviderStatus{
		Provider:            h.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        h.CircuitState.String(),
		ConsecutiveFailures: h.Counts.ConsecutiveFailures,
	}
	switch {
	case h.IsUnhealthy():
		s.Status = models.HealthStatusFail
	case h.IsDegraded():
		s.Status = models.HealthStatusDegraded
	}
	if h.LastSuccessAt != nil {
		ts := models.Timestamp(*h.LastSuccessAt)
		s.LastSuccessAt = &ts
	}
	if h.LastFailureAt != nil {
		ts := models.Timestamp(*h.LastFailureAt)
		s.LastFailureAt = &ts
	}
	if h.LastError != "" {
		msg := h.LastError
		s.Message = &msg
	}
	return s
}
