package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/services"
)

// LineItemsHandler handles extraction batch ingestion requests.
type LineItemsHandler struct {
	ingestService services.IngestionService
	logger        *zap.Logger
}

// NewLineItemsHandler creates a new line items handler.
func NewLineItemsHandler(ingestService services.IngestionService, logger *zap.Logger) *LineItemsHandler {
	return &LineItemsHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// RegisterRoutes registers the line item routes on the given mux.
func (h *LineItemsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/properties/{property_id}/periods/{period_id}/line-items"
	mux.HandleFunc("POST "+base, h.IngestBatch)
	mux.HandleFunc("GET "+base+"/unmatched", h.ListUnmatched)
}

type ingestBatchRequest struct {
	DocumentType string                   `json:"document_type"`
	Lines        []services.StatementLine `json:"lines"`
}

// IngestBatch handles POST /api/properties/{property_id}/periods/{period_id}/line-items
func (h *LineItemsHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	propertyID, periodID, ok := parseScopeIDs(w, r, h.logger)
	if !ok {
		return
	}

	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.DocumentType == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_document_type", "document_type is required")
		return
	}

	items, err := h.ingestService.IngestBatch(r.Context(), propertyID, periodID, req.DocumentType, req.Lines)
	if err != nil {
		h.logger.Error("Failed to ingest batch", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "ingest_failed", err.Error())
		return
	}

	writeData(w, h.logger, http.StatusCreated, items)
}

// ListUnmatched handles GET /api/properties/{property_id}/periods/{period_id}/line-items/unmatched
func (h *LineItemsHandler) ListUnmatched(w http.ResponseWriter, r *http.Request) {
	propertyID, periodID, ok := parseScopeIDs(w, r, h.logger)
	if !ok {
		return
	}

	items, err := h.ingestService.ListUnmatched(r.Context(), propertyID, periodID)
	if err != nil {
		h.logger.Error("Failed to list unmatched items", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "list_unmatched_failed", err.Error())
		return
	}

	writeData(w, h.logger, http.StatusOK, items)
}

// parseScopeIDs extracts the property and period path values.
func parseScopeIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	propertyID, err := uuid.Parse(r.PathValue("property_id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_property_id", "Invalid property ID format")
		return uuid.Nil, uuid.Nil, false
	}
	periodID, err := uuid.Parse(r.PathValue("period_id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_period_id", "Invalid period ID format")
		return uuid.Nil, uuid.Nil, false
	}
	return propertyID, periodID, true
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
