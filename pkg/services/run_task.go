package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
)

// ValidationRunTask wraps one rule-engine run for background dispatch: the
// caller submits one task per document batch. The reservation keeps a second
// attempt for the same key from reaching completed while this one is in
// flight, mirroring the advisory single-writer guarantee.
type ValidationRunTask struct {
	id           uuid.UUID
	key          RunKey
	periodEnd    time.Time
	engine       RuleEngine
	reservations RunReservations
	logger       *zap.Logger
}

// NewValidationRunTask creates a task that executes the full rule catalogue
// for one (property, period, document_type).
func NewValidationRunTask(key RunKey, periodEnd time.Time, engine RuleEngine, reservations RunReservations, logger *zap.Logger) *ValidationRunTask {
	return &ValidationRunTask{
		id:           uuid.New(),
		key:          key,
		periodEnd:    periodEnd,
		engine:       engine,
		reservations: reservations,
		logger:       logger,
	}
}

// ID returns the task's unique identifier.
func (t *ValidationRunTask) ID() string {
	return t.id.String()
}

// Name returns a human-readable task name.
func (t *ValidationRunTask) Name() string {
	return fmt.Sprintf("validation run %s", t.key)
}

// Key returns the per-run serialization key.
func (t *ValidationRunTask) Key() string {
	return t.key.String()
}

// Execute acquires the run reservation and executes every rule. The whole run
// is retried on failure; partial runs never commit.
func (t *ValidationRunTask) Execute(ctx context.Context) error {
	release, ok := t.reservations.Acquire(t.key)
	if !ok {
		return fmt.Errorf("key %s: %w", t.key, apperrors.ErrRunConflict)
	}
	defer release()

	summary, _, err := t.engine.ExecuteAllRules(ctx, t.key.PropertyID, t.key.PeriodID, t.periodEnd)
	if err != nil {
		return err
	}

	t.logger.Info("validation run finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("total_rules", summary.TotalRules),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("warnings", summary.Warnings),
		zap.Int("skipped", summary.Skipped))
	return nil
}
