package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// CovenantRepository provides data access for covenant threshold overrides,
// the append-only compliance history, and anomaly dispositions.
type CovenantRepository interface {
	// ListActiveForProperty returns active overrides effective on asOf,
	// ordered by effective_date descending so the latest wins on ties.
	ListActiveForProperty(ctx context.Context, propertyID uuid.UUID, covenantType string, asOf time.Time) ([]*models.CovenantThreshold, error)

	// InsertComplianceRecord appends one compliance history row. Rows are
	// never updated; one row per run is expected and intentional.
	InsertComplianceRecord(ctx context.Context, rec *models.CovenantComplianceRecord) error

	ListComplianceHistory(ctx context.Context, propertyID uuid.UUID, covenantType string) ([]*models.CovenantComplianceRecord, error)

	// InsertAnomalyResolution records the one-time terminal disposition of an
	// externally detected anomaly. A second disposition for the same anomaly
	// fails with ErrConflict.
	InsertAnomalyResolution(ctx context.Context, res *models.AnomalyResolution) error
}

type covenantRepository struct{}

// NewCovenantRepository creates a new CovenantRepository.
func NewCovenantRepository() CovenantRepository {
	return &covenantRepository{}
}

var _ CovenantRepository = (*covenantRepository)(nil)

func (r *covenantRepository) ListActiveForProperty(ctx context.Context, propertyID uuid.UUID, covenantType string, asOf time.Time) ([]*models.CovenantThreshold, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT id, property_id, covenant_type, threshold_value, comparison_operator,
		       effective_date, expiration_date, is_active
		FROM covenant_thresholds
		WHERE property_id = $1 AND covenant_type = $2 AND is_active
		  AND effective_date <= $3
		  AND (expiration_date IS NULL OR expiration_date > $3)
		ORDER BY effective_date DESC, id`

	rows, err := q.Query(ctx, query, propertyID, covenantType, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query covenant thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []*models.CovenantThreshold
	for rows.Next() {
		var t models.CovenantThreshold
		err := rows.Scan(
			&t.ID,
			&t.PropertyID,
			&t.CovenantType,
			&t.ThresholdValue,
			&t.Operator,
			&t.EffectiveDate,
			&t.ExpirationDate,
			&t.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan covenant threshold: %w", err)
		}
		thresholds = append(thresholds, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating covenant thresholds: %w", err)
	}

	return thresholds, nil
}

func (r *covenantRepository) InsertComplianceRecord(ctx context.Context, rec *models.CovenantComplianceRecord) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO covenant_compliance_history (
			property_id, period_id, covenant_type, rule_id,
			calculated_value, threshold_value, is_compliant, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	err := q.QueryRow(ctx, query,
		rec.PropertyID,
		rec.PeriodID,
		rec.CovenantType,
		rec.RuleID,
		rec.CalculatedValue,
		rec.ThresholdValue,
		rec.IsCompliant,
		now,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert compliance record: %w", err)
	}

	rec.RecordedAt = now
	return nil
}

func (r *covenantRepository) ListComplianceHistory(ctx context.Context, propertyID uuid.UUID, covenantType string) ([]*models.CovenantComplianceRecord, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT id, property_id, period_id, covenant_type, rule_id,
		       calculated_value, threshold_value, is_compliant, recorded_at
		FROM covenant_compliance_history
		WHERE property_id = $1 AND covenant_type = $2
		ORDER BY recorded_at DESC, id DESC`

	rows, err := q.Query(ctx, query, propertyID, covenantType)
	if err != nil {
		return nil, fmt.Errorf("failed to query compliance history: %w", err)
	}
	defer rows.Close()

	var records []*models.CovenantComplianceRecord
	for rows.Next() {
		var rec models.CovenantComplianceRecord
		err := rows.Scan(
			&rec.ID,
			&rec.PropertyID,
			&rec.PeriodID,
			&rec.CovenantType,
			&rec.RuleID,
			&rec.CalculatedValue,
			&rec.ThresholdValue,
			&rec.IsCompliant,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compliance record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compliance history: %w", err)
	}

	return records, nil
}

func (r *covenantRepository) InsertAnomalyResolution(ctx context.Context, res *models.AnomalyResolution) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	// ON CONFLICT DO NOTHING keeps the first disposition; a second attempt is
	// reported as a conflict rather than silently overwriting history.
	query := `
		INSERT INTO anomaly_resolutions (anomaly_id, resolution_type, root_cause, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (anomaly_id) DO NOTHING`

	now := time.Now()
	result, err := q.Exec(ctx, query, res.AnomalyID, res.ResolutionType, res.RootCause, now)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly resolution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	res.ResolvedAt = now
	return nil
}
