package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/analysis"
	"github.com/nuclearlighters/drivehealth/internal/circuitbreaker"
	"github.com/nuclearlighters/drivehealth/internal/health"
)

// DriveResponse is one drive together with its classified status.
type DriveResponse struct {
	Status health.Severity    `json:"status"`
	Drive  health.DriveHealth `json:"drive"`
}

// RefreshResponse reports the outcome of a triggered analysis.
type RefreshResponse struct {
	RunID       string             `json:"run_id"`
	TotalDrives int                `json:"total_drives"`
	Failures    []analysis.Failure `json:"failures"`
	Rejected    []string           `json:"rejected"`
	DurationMS  int64              `json:"duration_ms"`
}

// DrivesHandler serves the cached analysis.
type DrivesHandler struct {
	analyzer Analyzer
	logger   zerolog.Logger
}

// NewDrivesHandler creates a new DrivesHandler.
func NewDrivesHandler(analyzer Analyzer, logger zerolog.Logger) *DrivesHandler {
	return &DrivesHandler{analyzer: analyzer, logger: logger}
}

func (h *DrivesHandler) latest(w http.ResponseWriter, r *http.Request) (analysis.Report, bool) {
	report, ok := h.analyzer.Latest()
	if !ok {
		writeError(w, r, http.StatusServiceUnavailable, "No analysis has completed yet")
		return report, false
	}
	w.Header().Set("X-Run-ID", report.RunID)
	return report, true
}

// Summary handles GET /api/v1/summary
// Returns the full system health document, the same one `analyze -json`
// prints.
func (h *DrivesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	report, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, report.Health)
}

// List handles GET /api/v1/drives
// Query param status=healthy|warning|critical filters by classification.
func (h *DrivesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := strings.ToLower(r.URL.Query().Get("status"))
	if filter != "" && filter != health.Healthy.String() && filter != health.Warning.String() && filter != health.Critical.String() {
		writeError(w, r, http.StatusBadRequest, "Unknown status filter: "+filter)
		return
	}

	report, ok := h.latest(w, r)
	if !ok {
		return
	}

	drives := make([]DriveResponse, 0, len(report.Health.Drives))
	for _, d := range report.Health.Drives {
		sev := health.Classify(d)
		if filter != "" && sev.String() != filter {
			continue
		}
		drives = append(drives, DriveResponse{Status: sev, Drive: d})
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"drives": drives,
		"count":  len(drives),
	})
}

// Get handles GET /api/v1/drives/{serial}
func (h *DrivesHandler) Get(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if serial == "" {
		writeError(w, r, http.StatusBadRequest, "Drive serial is required")
		return
	}

	report, ok := h.latest(w, r)
	if !ok {
		return
	}
	for _, d := range report.Health.Drives {
		if d.Serial == serial {
			writeJSON(w, r, http.StatusOK, DriveResponse{Status: health.Classify(d), Drive: d})
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "Drive not found: "+serial)
}

// Refresh handles POST /api/v1/refresh
// Runs an analysis now instead of waiting for the next scheduled one.
func (h *DrivesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.analyzer.Refresh(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Triggered refresh failed")
		status := http.StatusInternalServerError
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, r, status, "Analysis failed: "+err.Error())
		return
	}

	failures := report.Failures
	if failures == nil {
		failures = []analysis.Failure{}
	}
	rejected := report.Rejected
	if rejected == nil {
		rejected = []string{}
	}
	w.Header().Set("X-Run-ID", report.RunID)
	writeJSON(w, r, http.StatusOK, RefreshResponse{
		RunID:       report.RunID,
		TotalDrives: report.Health.TotalDrives,
		Failures:    failures,
		Rejected:    rejected,
		DurationMS:  report.Duration.Milliseconds(),
	})
}
