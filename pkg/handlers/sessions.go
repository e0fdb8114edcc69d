package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/services"
)

// SessionsHandler handles reconciliation session HTTP requests.
type SessionsHandler struct {
	reconService services.ReconciliationService
	logger       *zap.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(reconService services.ReconciliationService, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		reconService: reconService,
		logger:       logger,
	}
}

// RegisterRoutes registers the session routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.StartSession)
	mux.HandleFunc("GET /api/sessions/{session_id}", h.GetSession)
	mux.HandleFunc("GET /api/sessions/{session_id}/differences", h.ListDifferences)
	mux.HandleFunc("POST /api/sessions/{session_id}/differences", h.RecordDifference)
	mux.HandleFunc("POST /api/sessions/{session_id}/complete", h.CompleteSession)
	mux.HandleFunc("POST /api/sessions/{session_id}/cancel", h.CancelSession)
	mux.HandleFunc("POST /api/differences/{difference_id}/resolve", h.ResolveDifference)
}

type startSessionRequest struct {
	PropertyID   uuid.UUID `json:"property_id"`
	PeriodID     uuid.UUID `json:"period_id"`
	DocumentType string    `json:"document_type"`
	User         string    `json:"user"`
}

// StartSession handles POST /api/sessions
func (h *SessionsHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.PropertyID == uuid.Nil || req.PeriodID == uuid.Nil || req.DocumentType == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_fields", "property_id, period_id and document_type are required")
		return
	}

	result, err := h.reconService.StartSession(r.Context(), req.PropertyID, req.PeriodID, req.DocumentType, req.User)
	if err != nil {
		h.logger.Error("Failed to start session", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "start_session_failed", err.Error())
		return
	}

	writeData(w, h.logger, http.StatusCreated, result)
}

// GetSession handles GET /api/sessions/{session_id}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	session, err := h.reconService.GetSession(r.Context(), sessionID)
	if err != nil {
		h.handleSessionError(w, err, "get_session_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, session)
}

// ListDifferences handles GET /api/sessions/{session_id}/differences
func (h *SessionsHandler) ListDifferences(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	diffs, err := h.reconService.ListDifferences(r.Context(), sessionID)
	if err != nil {
		h.handleSessionError(w, err, "list_differences_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, diffs)
}

type recordDifferenceRequest struct {
	AccountCode string          `json:"account_code"`
	SourceValue decimal.Decimal `json:"source_value"`
	TargetValue decimal.Decimal `json:"target_value"`
}

// RecordDifference handles POST /api/sessions/{session_id}/differences
func (h *SessionsHandler) RecordDifference(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req recordDifferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	diff, err := h.reconService.RecordDifference(r.Context(), sessionID, req.AccountCode, req.SourceValue, req.TargetValue)
	if err != nil {
		h.handleSessionError(w, err, "record_difference_failed")
		return
	}

	writeData(w, h.logger, http.StatusCreated, diff)
}

type resolveDifferenceRequest struct {
	Action   string           `json:"action"`
	NewValue *decimal.Decimal `json:"new_value,omitempty"`
	Reason   string           `json:"reason"`
	User     string           `json:"user"`
}

// ResolveDifference handles POST /api/differences/{difference_id}/resolve
func (h *SessionsHandler) ResolveDifference(w http.ResponseWriter, r *http.Request) {
	differenceID, err := uuid.Parse(r.PathValue("difference_id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_difference_id", "Invalid difference ID format")
		return
	}

	var req resolveDifferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Reason == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_reason", "A resolution reason is required")
		return
	}

	resolution, err := h.reconService.Resolve(r.Context(), differenceID, req.Action, req.NewValue, req.Reason, req.User)
	if err != nil {
		h.handleSessionError(w, err, "resolve_difference_failed")
		return
	}

	writeData(w, h.logger, http.StatusCreated, resolution)
}

type completeSessionRequest struct {
	Override bool `json:"override"`
}

// CompleteSession handles POST /api/sessions/{session_id}/complete
func (h *SessionsHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req completeSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
	}

	if err := h.reconService.CompleteSession(r.Context(), sessionID, req.Override); err != nil {
		if errors.Is(err, apperrors.ErrUnresolvedDifferences) {
			writeError(w, h.logger, http.StatusConflict, "unresolved_differences", err.Error())
			return
		}
		h.handleSessionError(w, err, "complete_session_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, map[string]string{"status": "completed"})
}

// CancelSession handles POST /api/sessions/{session_id}/cancel
func (h *SessionsHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.reconService.CancelSession(r.Context(), sessionID); err != nil {
		h.handleSessionError(w, err, "cancel_session_failed")
		return
	}

	writeData(w, h.logger, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *SessionsHandler) handleSessionError(w http.ResponseWriter, err error, code string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrSessionNotOpen):
		writeError(w, h.logger, http.StatusConflict, "session_not_open", err.Error())
	default:
		h.logger.Error("Session operation failed", zap.Error(err), zap.String("code", code))
		writeError(w, h.logger, http.StatusInternalServerError, code, err.Error())
	}
}

func parseSessionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_session_id", "Invalid session ID format")
		return uuid.Nil, false
	}
	return sessionID, true
}
