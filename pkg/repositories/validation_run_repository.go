package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// ValidationRunRepository provides data access for validation runs and their
// verdict rows. Completed runs are immutable; a rerun creates a new row.
type ValidationRunRepository interface {
	Create(ctx context.Context, run *models.ValidationRun) error

	// InsertVerdicts writes one row per verdict, preserving catalogue order
	// via an explicit position column.
	InsertVerdicts(ctx context.Context, runID uuid.UUID, verdicts []models.RuleVerdict) error

	// Complete finalizes the run counters and stamps completed_at.
	Complete(ctx context.Context, run *models.ValidationRun) error

	// Abandon marks a cancelled in-flight run. Prior completed runs are
	// untouched.
	Abandon(ctx context.Context, runID uuid.UUID) error

	GetByID(ctx context.Context, runID uuid.UUID) (*models.ValidationRun, error)
	GetLatestCompleted(ctx context.Context, propertyID, periodID uuid.UUID) (*models.ValidationRun, error)
	ListVerdicts(ctx context.Context, runID uuid.UUID) ([]models.RuleVerdict, error)
}

type validationRunRepository struct{}

// NewValidationRunRepository creates a new ValidationRunRepository.
func NewValidationRunRepository() ValidationRunRepository {
	return &validationRunRepository{}
}

var _ ValidationRunRepository = (*validationRunRepository)(nil)

func (r *validationRunRepository) Create(ctx context.Context, run *models.ValidationRun) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	snapshot, err := json.Marshal(run.RulesSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal rules snapshot: %w", err)
	}

	query := `
		INSERT INTO validation_runs (
			property_id, period_id, rules_version_hash, status, started_at,
			total_rules, rules_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	err = q.QueryRow(ctx, query,
		run.PropertyID,
		run.PeriodID,
		run.RulesVersionHash,
		models.RunStatusInProgress,
		now,
		run.TotalRules,
		snapshot,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create validation run: %w", err)
	}

	run.Status = models.RunStatusInProgress
	run.StartedAt = now
	return nil
}

func (r *validationRunRepository) InsertVerdicts(ctx context.Context, runID uuid.UUID, verdicts []models.RuleVerdict) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO rule_verdicts (
			run_id, position, rule_id, rule_name, category, status,
			source_value, target_value, difference, variance_pct, details, severity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for i, v := range verdicts {
		_, err := q.Exec(ctx, query,
			runID,
			i,
			v.RuleID,
			v.RuleName,
			v.Category,
			v.Status,
			v.SourceValue,
			v.TargetValue,
			v.Difference,
			v.VariancePct,
			v.Details,
			v.Severity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert verdict for rule %s: %w", v.RuleID, err)
		}
	}

	return nil
}

func (r *validationRunRepository) Complete(ctx context.Context, run *models.ValidationRun) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		UPDATE validation_runs
		SET status = $2, completed_at = $3, total_rules = $4,
		    passed_count = $5, failed_count = $6, warning_count = $7, skipped_count = $8
		WHERE id = $1 AND status = $9`

	now := time.Now()
	result, err := q.Exec(ctx, query,
		run.ID,
		models.RunStatusCompleted,
		now,
		run.TotalRules,
		run.PassedCount,
		run.FailedCount,
		run.WarningCount,
		run.SkippedCount,
		models.RunStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to complete validation run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	return nil
}

func (r *validationRunRepository) Abandon(ctx context.Context, runID uuid.UUID) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	result, err := q.Exec(ctx,
		`UPDATE validation_runs SET status = $2 WHERE id = $1 AND status = $3`,
		runID, models.RunStatusAbandoned, models.RunStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to abandon validation run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

const runColumns = `
	id, property_id, period_id, rules_version_hash, status, started_at,
	completed_at, total_rules, passed_count, failed_count, warning_count,
	skipped_count`

func (r *validationRunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.ValidationRun, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `SELECT ` + runColumns + ` FROM validation_runs WHERE id = $1`

	run, err := scanRun(q.QueryRow(ctx, query, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *validationRunRepository) GetLatestCompleted(ctx context.Context, propertyID, periodID uuid.UUID) (*models.ValidationRun, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT ` + runColumns + `
		FROM validation_runs
		WHERE property_id = $1 AND period_id = $2 AND status = $3
		ORDER BY completed_at DESC
		LIMIT 1`

	run, err := scanRun(q.QueryRow(ctx, query, propertyID, periodID, models.RunStatusCompleted))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No completed run yet
		}
		return nil, err
	}
	return run, nil
}

func (r *validationRunRepository) ListVerdicts(ctx context.Context, runID uuid.UUID) ([]models.RuleVerdict, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT rule_id, rule_name, category, status, source_value, target_value,
		       difference, variance_pct, details, severity
		FROM rule_verdicts
		WHERE run_id = $1
		ORDER BY position`

	rows, err := q.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []models.RuleVerdict
	for rows.Next() {
		var v models.RuleVerdict
		err := rows.Scan(
			&v.RuleID,
			&v.RuleName,
			&v.Category,
			&v.Status,
			&v.SourceValue,
			&v.TargetValue,
			&v.Difference,
			&v.VariancePct,
			&v.Details,
			&v.Severity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verdicts: %w", err)
	}

	return verdicts, nil
}

func scanRun(row pgx.Row) (*models.ValidationRun, error) {
	var run models.ValidationRun
	err := row.Scan(
		&run.ID,
		&run.PropertyID,
		&run.PeriodID,
		&run.RulesVersionHash,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.TotalRules,
		&run.PassedCount,
		&run.FailedCount,
		&run.WarningCount,
		&run.SkippedCount,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan validation run: %w", err)
	}
	return &run, nil
}
