package api

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/config"
	"github.com/nuclearlighters/drivehealth/internal/system"
)

// SystemHandler handles host information endpoints.
type SystemHandler struct {
	cfg *config.Settings
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(cfg *config.Settings) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// GetInfo handles GET /api/v1/system/info
// Returns static information about the host running the server.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, system.GetInfo(r.Context()))
}

// GetVersion handles GET /api/v1/system/version
func (h *SystemHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"version":     h.cfg.Version,
		"api_version": "v1",
		"go_version":  runtime.Version(),
	})
}

// --- Helper functions ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
