package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
	"github.com/clearstate-inc/recon-engine/pkg/services"
	"github.com/clearstate-inc/recon-engine/pkg/services/workqueue"
)

// RunsHandler triggers validation runs and serves their results.
type RunsHandler struct {
	engine       services.RuleEngine
	reservations services.RunReservations
	queue        *workqueue.Queue
	runRepo      repositories.ValidationRunRepository
	logger       *zap.Logger
}

// NewRunsHandler creates a new validation runs handler.
func NewRunsHandler(
	engine services.RuleEngine,
	reservations services.RunReservations,
	queue *workqueue.Queue,
	runRepo repositories.ValidationRunRepository,
	logger *zap.Logger,
) *RunsHandler {
	return &RunsHandler{
		engine:       engine,
		reservations: reservations,
		queue:        queue,
		runRepo:      runRepo,
		logger:       logger,
	}
}

// RegisterRoutes registers the validation run routes on the given mux.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/properties/{property_id}/periods/{period_id}/validation-runs"
	mux.HandleFunc("POST "+base, h.TriggerRun)
	mux.HandleFunc("GET "+base+"/latest", h.GetLatestRun)
	mux.HandleFunc("GET /api/validation-runs/{run_id}/verdicts", h.ListVerdicts)
}

type triggerRunRequest struct {
	DocumentType string `json:"document_type"`
	PeriodEnd    string `json:"period_end"` // YYYY-MM-DD
}

type triggerRunResponse struct {
	TaskID string `json:"task_id"`
	Key    string `json:"key"`
}

// TriggerRun handles POST /api/properties/{property_id}/periods/{period_id}/validation-runs
//
// One task is enqueued per document; the queue serializes tasks that share a
// (property, period, document_type) key.
func (h *RunsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	propertyID, periodID, ok := parseScopeIDs(w, r, h.logger)
	if !ok {
		return
	}

	var req triggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	periodEnd, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_period_end", "period_end must be YYYY-MM-DD")
		return
	}

	key := services.RunKey{
		PropertyID:   propertyID,
		PeriodID:     periodID,
		DocumentType: req.DocumentType,
	}
	task := services.NewValidationRunTask(key, periodEnd, h.engine, h.reservations, h.logger)
	h.queue.Enqueue(task)

	writeData(w, h.logger, http.StatusAccepted, triggerRunResponse{
		TaskID: task.ID(),
		Key:    task.Key(),
	})
}

// GetLatestRun handles GET /api/properties/{property_id}/periods/{period_id}/validation-runs/latest
func (h *RunsHandler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	propertyID, periodID, ok := parseScopeIDs(w, r, h.logger)
	if !ok {
		return
	}

	run, err := h.runRepo.GetLatestCompleted(r.Context(), propertyID, periodID)
	if err != nil {
		h.logger.Error("Failed to load latest run", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get_latest_run_failed", err.Error())
		return
	}
	if run == nil {
		writeError(w, h.logger, http.StatusNotFound, "no_completed_run", "No completed validation run for this period")
		return
	}

	writeData(w, h.logger, http.StatusOK, run)
}

// ListVerdicts handles GET /api/validation-runs/{run_id}/verdicts
func (h *RunsHandler) ListVerdicts(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("run_id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_run_id", "Invalid run ID format")
		return
	}

	if _, err := h.runRepo.GetByID(r.Context(), runID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "run_not_found", "Validation run not found")
			return
		}
		h.logger.Error("Failed to load run", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get_run_failed", err.Error())
		return
	}

	verdicts, err := h.runRepo.ListVerdicts(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to list verdicts", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "list_verdicts_failed", err.Error())
		return
	}

	writeData(w, h.logger, http.StatusOK, verdicts)
}
