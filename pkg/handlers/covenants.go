package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/services"
)

// CovenantsHandler serves covenant compliance history and anomaly
// resolution annotations.
type CovenantsHandler struct {
	recorder services.ComplianceRecorder
	logger   *zap.Logger
}

// NewCovenantsHandler creates a new covenants handler.
func NewCovenantsHandler(recorder services.ComplianceRecorder, logger *zap.Logger) *CovenantsHandler {
	return &CovenantsHandler{
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterRoutes registers the covenant routes on the given mux.
func (h *CovenantsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/properties/{property_id}/covenants/{covenant_type}/history", h.ListHistory)
	mux.HandleFunc("POST /api/anomalies/{anomaly_id}/resolve", h.ResolveAnomaly)
}

// ListHistory handles GET /api/properties/{property_id}/covenants/{covenant_type}/history
func (h *CovenantsHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	propertyID, err := uuid.Parse(r.PathValue("property_id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_property_id", "Invalid property ID format")
		return
	}
	covenantType := r.PathValue("covenant_type")

	records, err := h.recorder.ListComplianceHistory(r.Context(), propertyID, covenantType)
	if err != nil {
		h.logger.Error("Failed to list compliance history", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "list_history_failed", err.Error())
		return
	}

	writeData(w, h.logger, http.StatusOK, records)
}

type resolveAnomalyRequest struct {
	ResolutionType string `json:"resolution_type"`
	RootCause      string `json:"root_cause"`
}

// ResolveAnomaly handles POST /api/anomalies/{anomaly_id}/resolve
//
// Resolution is a one-time terminal annotation; a second attempt returns 409.
func (h *CovenantsHandler) ResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	anomalyID, err := uuid.Parse(r.PathValue("anomaly_id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_anomaly_id", "Invalid anomaly ID format")
		return
	}

	var req resolveAnomalyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.ResolutionType == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_resolution_type", "resolution_type is required")
		return
	}

	resolution, err := h.recorder.RecordAnomalyResolution(r.Context(), anomalyID, req.ResolutionType, req.RootCause)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			writeError(w, h.logger, http.StatusConflict, "already_resolved", "Anomaly is already resolved")
			return
		}
		h.logger.Error("Failed to resolve anomaly", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "resolve_anomaly_failed", err.Error())
		return
	}

	writeData(w, h.logger, http.StatusCreated, resolution)
}
