// Package api provides the HTTP handlers of the drivehealth server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/analysis"
	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/health"
	"github.com/nuclearlighters/drivehealth/internal/system"
)

// Analyzer is the view of the monitor the handlers need.
type Analyzer interface {
	Latest() (analysis.Report, bool)
	Refresh(ctx context.Context) (analysis.Report, error)
	Status() (lastRun time.Time, lastErr error)
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	Hostname     string  `json:"hostname"`
	Source       string  `json:"source,omitempty"`
	LastAnalysis *string `json:"last_analysis"`
	LastError    string  `json:"last_error,omitempty"`
	TotalDrives  int     `json:"total_drives"`
}

// HealthHandler handles GET /health requests. The service is healthy once
// an analysis has succeeded and the most recent refresh did not fail.
type HealthHandler struct {
	cfg      *config.Settings
	analyzer Analyzer
	logger   zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.Settings, analyzer Analyzer, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, analyzer: analyzer, logger: logger}
}

// ServeHTTP implements http.Handler for the health check endpoint.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Version:  h.cfg.Version,
		Hostname: system.GetInfo(r.Context()).Hostname,
	}

	report, ok := h.analyzer.Latest()
	if ok {
		resp.Source = report.Location
		resp.TotalDrives = report.Health.TotalDrives
		if report.Health.LastUpdated != nil {
			ts := report.Health.LastUpdated.Format(health.TimeLayout)
			resp.LastAnalysis = &ts
		}
	} else {
		resp.Status = "degraded"
	}
	if _, err := h.analyzer.Status(); err != nil {
		resp.Status = "degraded"
		resp.LastError = err.Error()
	}

	status := http.StatusOK
	if resp.Status == "degraded" {
		h.logger.Warn().Str("last_error", resp.LastError).Bool("analyzed", ok).Msg("Health check degraded")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
