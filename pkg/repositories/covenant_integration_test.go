package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/testhelpers"
)

func insertThreshold(t *testing.T, pool *pgxpool.Pool, th *models.CovenantThreshold) {
	t.Helper()
	err := pool.QueryRow(t.Context(), `
		INSERT INTO covenant_thresholds (
			property_id, covenant_type, threshold_value, comparison_operator,
			effective_date, expiration_date, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		th.PropertyID, th.CovenantType, th.ThresholdValue, th.Operator,
		th.EffectiveDate, th.ExpirationDate, th.IsActive,
	).Scan(&th.ID)
	require.NoError(t, err)
}

func TestCovenantRepository_ListActiveForProperty(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewCovenantRepository()

	propertyID := uuid.New()
	asOf := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	expired := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &models.CovenantThreshold{
		PropertyID: propertyID, CovenantType: models.CovenantTypeDSCR,
		ThresholdValue: decimal.RequireFromString("1.30"), Operator: models.CompareGTE,
		EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	}
	newer := &models.CovenantThreshold{
		PropertyID: propertyID, CovenantType: models.CovenantTypeDSCR,
		ThresholdValue: decimal.RequireFromString("1.45"), Operator: models.CompareGTE,
		EffectiveDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	}
	lapsed := &models.CovenantThreshold{
		PropertyID: propertyID, CovenantType: models.CovenantTypeDSCR,
		ThresholdValue: decimal.RequireFromString("1.60"), Operator: models.CompareGTE,
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ExpirationDate: &expired, IsActive: true,
	}
	inactive := &models.CovenantThreshold{
		PropertyID: propertyID, CovenantType: models.CovenantTypeDSCR,
		ThresholdValue: decimal.RequireFromString("1.70"), Operator: models.CompareGTE,
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), IsActive: false,
	}
	otherType := &models.CovenantThreshold{
		PropertyID: propertyID, CovenantType: models.CovenantTypeLTV,
		ThresholdValue: decimal.RequireFromString("0.70"), Operator: models.CompareLTE,
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	}
	for _, th := range []*models.CovenantThreshold{older, newer, lapsed, inactive, otherType} {
		insertThreshold(t, tdb.Pool, th)
	}

	active, err := repo.ListActiveForProperty(ctx, propertyID, models.CovenantTypeDSCR, asOf)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, newer.ID, active[0].ID, "latest effective_date first")
	assert.Equal(t, older.ID, active[1].ID)
	assert.True(t, active[0].ThresholdValue.Equal(decimal.RequireFromString("1.45")))
}

func TestCovenantRepository_ComplianceHistory(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewCovenantRepository()

	propertyID := uuid.New()
	periodID := uuid.New()

	first := &models.CovenantComplianceRecord{
		PropertyID: propertyID, PeriodID: periodID,
		CovenantType: models.CovenantTypeDSCR, RuleID: "COV-001",
		CalculatedValue: decimal.RequireFromString("1.333333"),
		ThresholdValue:  decimal.RequireFromString("1.25"),
		IsCompliant:     true,
	}
	require.NoError(t, repo.InsertComplianceRecord(ctx, first))
	require.NotEqual(t, uuid.Nil, first.ID)

	second := &models.CovenantComplianceRecord{
		PropertyID: propertyID, PeriodID: periodID,
		CovenantType: models.CovenantTypeDSCR, RuleID: "COV-001",
		CalculatedValue: decimal.RequireFromString("1.18"),
		ThresholdValue:  decimal.RequireFromString("1.25"),
		IsCompliant:     false,
	}
	require.NoError(t, repo.InsertComplianceRecord(ctx, second))

	history, err := repo.ListComplianceHistory(ctx, propertyID, models.CovenantTypeDSCR)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID, "newest first")
	assert.False(t, history[0].IsCompliant)
	assert.True(t, history[1].IsCompliant)
}

func TestCovenantRepository_AnomalyResolutionOnce(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewCovenantRepository()

	anomalyID := uuid.New()
	first := &models.AnomalyResolution{
		AnomalyID:      anomalyID,
		ResolutionType: "data_entry_error",
		RootCause:      "transposed digits",
	}
	require.NoError(t, repo.InsertAnomalyResolution(ctx, first))
	assert.False(t, first.ResolvedAt.IsZero())

	// The first disposition is permanent.
	second := &models.AnomalyResolution{AnomalyID: anomalyID, ResolutionType: "valid_exception"}
	assert.ErrorIs(t, repo.InsertAnomalyResolution(ctx, second), apperrors.ErrConflict)

	var storedType string
	err := tdb.Pool.QueryRow(t.Context(),
		`SELECT resolution_type FROM anomaly_resolutions WHERE anomaly_id = $1`, anomalyID,
	).Scan(&storedType)
	require.NoError(t, err)
	assert.Equal(t, "data_entry_error", storedType)
}
