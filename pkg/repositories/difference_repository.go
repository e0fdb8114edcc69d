package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// DifferenceRepository provides data access for differences and their
// append-only resolution history.
type DifferenceRepository interface {
	Insert(ctx context.Context, diff *models.Difference) error
	GetByID(ctx context.Context, differenceID uuid.UUID) (*models.Difference, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Difference, error)
	CountOpen(ctx context.Context, sessionID uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, differenceID uuid.UUID, status string) error

	// InsertResolution appends one resolution record. Resolutions are never
	// updated or deleted; the latest row is the current disposition.
	InsertResolution(ctx context.Context, res *models.Resolution) error
	ListResolutions(ctx context.Context, differenceID uuid.UUID) ([]*models.Resolution, error)
}

type differenceRepository struct{}

// NewDifferenceRepository creates a new DifferenceRepository.
func NewDifferenceRepository() DifferenceRepository {
	return &differenceRepository{}
}

var _ DifferenceRepository = (*differenceRepository)(nil)

func (r *differenceRepository) Insert(ctx context.Context, diff *models.Difference) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO differences (
			session_id, account_code, source_value, target_value,
			delta, delta_pct, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	err := q.QueryRow(ctx, query,
		diff.SessionID,
		diff.AccountCode,
		diff.SourceValue,
		diff.TargetValue,
		diff.Delta,
		diff.DeltaPct,
		models.DifferenceStatusOpen,
		now,
	).Scan(&diff.ID)
	if err != nil {
		return fmt.Errorf("failed to insert difference: %w", err)
	}

	diff.Status = models.DifferenceStatusOpen
	diff.CreatedAt = now
	return nil
}

func (r *differenceRepository) GetByID(ctx context.Context, differenceID uuid.UUID) (*models.Difference, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT id, session_id, account_code, source_value, target_value,
		       delta, delta_pct, status, created_at
		FROM differences
		WHERE id = $1`

	d, err := scanDifference(q.QueryRow(ctx, query, differenceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *differenceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Difference, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT id, session_id, account_code, source_value, target_value,
		       delta, delta_pct, status, created_at
		FROM differences
		WHERE session_id = $1
		ORDER BY account_code, id`

	rows, err := q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query differences: %w", err)
	}
	defer rows.Close()

	var diffs []*models.Difference
	for rows.Next() {
		d, err := scanDifference(rows)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating differences: %w", err)
	}

	return diffs, nil
}

func (r *differenceRepository) CountOpen(ctx context.Context, sessionID uuid.UUID) (int, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return 0, fmt.Errorf("no querier in context")
	}

	var count int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM differences WHERE session_id = $1 AND status = $2`,
		sessionID, models.DifferenceStatusOpen,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open differences: %w", err)
	}
	return count, nil
}

func (r *differenceRepository) UpdateStatus(ctx context.Context, differenceID uuid.UUID, status string) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	result, err := q.Exec(ctx,
		`UPDATE differences SET status = $2 WHERE id = $1`,
		differenceID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update difference status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *differenceRepository) InsertResolution(ctx context.Context, res *models.Resolution) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO resolutions (
			difference_id, action, old_value, new_value, reason, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	err := q.QueryRow(ctx, query,
		res.DifferenceID,
		res.Action,
		res.OldValue,
		res.NewValue,
		res.Reason,
		res.CreatedBy,
		now,
	).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}

	res.CreatedAt = now
	return nil
}

func (r *differenceRepository) ListResolutions(ctx context.Context, differenceID uuid.UUID) ([]*models.Resolution, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT id, difference_id, action, old_value, new_value, reason, created_by, created_at
		FROM resolutions
		WHERE difference_id = $1
		ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, differenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	var resolutions []*models.Resolution
	for rows.Next() {
		var res models.Resolution
		err := rows.Scan(
			&res.ID,
			&res.DifferenceID,
			&res.Action,
			&res.OldValue,
			&res.NewValue,
			&res.Reason,
			&res.CreatedBy,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		resolutions = append(resolutions, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	return resolutions, nil
}

func scanDifference(row pgx.Row) (*models.Difference, error) {
	var d models.Difference
	err := row.Scan(
		&d.ID,
		&d.SessionID,
		&d.AccountCode,
		&d.SourceValue,
		&d.TargetValue,
		&d.Delta,
		&d.DeltaPct,
		&d.Status,
		&d.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan difference: %w", err)
	}
	return &d, nil
}
