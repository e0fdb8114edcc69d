package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/testhelpers"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewSessionRepository()

	session := &models.ReconciliationSession{
		PropertyID:   uuid.New(),
		PeriodID:     uuid.New(),
		DocumentType: models.DocumentTypeBalanceSheet,
		StartedBy:    "analyst@example.com",
	}
	require.NoError(t, repo.Create(ctx, session))
	require.NotEqual(t, uuid.Nil, session.ID)
	assert.Equal(t, models.SessionStatusInProgress, session.Status)

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PropertyID, got.PropertyID)
	assert.Equal(t, models.DocumentTypeBalanceSheet, got.DocumentType)
	assert.Equal(t, "analyst@example.com", got.StartedBy)
	assert.Nil(t, got.CompletedAt)
	assert.Zero(t, got.Summary.Total)
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	ctx := tdb.Ctx()

	_, err := NewSessionRepository().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_FindInProgress(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewSessionRepository()

	propertyID := uuid.New()
	periodID := uuid.New()

	first := &models.ReconciliationSession{PropertyID: propertyID, PeriodID: periodID, DocumentType: models.DocumentTypeRentRoll}
	require.NoError(t, repo.Create(ctx, first))

	// Terminal sessions and other document types are not conflicts.
	done := &models.ReconciliationSession{PropertyID: propertyID, PeriodID: periodID, DocumentType: models.DocumentTypeRentRoll}
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Finalize(ctx, done.ID, models.SessionStatusCompleted, time.Now()))

	other := &models.ReconciliationSession{PropertyID: propertyID, PeriodID: periodID, DocumentType: models.DocumentTypeCashFlow}
	require.NoError(t, repo.Create(ctx, other))

	open, err := repo.FindInProgress(ctx, propertyID, periodID, models.DocumentTypeRentRoll)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)
}

func TestSessionRepository_FinalizeIsTerminal(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewSessionRepository()

	session := &models.ReconciliationSession{PropertyID: uuid.New(), PeriodID: uuid.New(), DocumentType: models.DocumentTypeBalanceSheet}
	require.NoError(t, repo.Create(ctx, session))

	require.NoError(t, repo.Finalize(ctx, session.ID, models.SessionStatusCancelled, time.Now()))

	// A second finalize must not flip the terminal state.
	err := repo.Finalize(ctx, session.ID, models.SessionStatusCompleted, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrSessionNotOpen)

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestSessionRepository_UpdateSummary(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	repo := NewSessionRepository()

	session := &models.ReconciliationSession{PropertyID: uuid.New(), PeriodID: uuid.New(), DocumentType: models.DocumentTypeIncomeStatement}
	require.NoError(t, repo.Create(ctx, session))

	summary := models.SessionSummary{Total: 42, Matches: 39, Differences: 3, Resolved: 1}
	require.NoError(t, repo.UpdateSummary(ctx, session.ID, summary))

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, summary, got.Summary)

	err = repo.UpdateSummary(ctx, uuid.New(), summary)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDifferenceRepository_Lifecycle(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	sessionRepo := NewSessionRepository()
	diffRepo := NewDifferenceRepository()

	session := &models.ReconciliationSession{PropertyID: uuid.New(), PeriodID: uuid.New(), DocumentType: models.DocumentTypeBalanceSheet}
	require.NoError(t, sessionRepo.Create(ctx, session))

	diff := &models.Difference{
		SessionID:   session.ID,
		AccountCode: "40100",
		SourceValue: decimal.RequireFromString("1000.00"),
		TargetValue: decimal.RequireFromString("1100.00"),
		Delta:       decimal.RequireFromString("100.00"),
		DeltaPct:    decimal.RequireFromString("0.1"),
	}
	require.NoError(t, diffRepo.Insert(ctx, diff))
	assert.Equal(t, models.DifferenceStatusOpen, diff.Status)

	open, err := diffRepo.CountOpen(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	got, err := diffRepo.GetByID(ctx, diff.ID)
	require.NoError(t, err)
	assert.True(t, got.SourceValue.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, got.Delta.Equal(decimal.RequireFromString("100.00")))

	require.NoError(t, diffRepo.UpdateStatus(ctx, diff.ID, models.DifferenceStatusResolved))
	open, err = diffRepo.CountOpen(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, open)

	listed, err := diffRepo.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, models.DifferenceStatusResolved, listed[0].Status)
}

func TestDifferenceRepository_ResolutionHistory(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	defer tdb.TruncateAll(t)
	ctx := tdb.Ctx()
	sessionRepo := NewSessionRepository()
	diffRepo := NewDifferenceRepository()

	session := &models.ReconciliationSession{PropertyID: uuid.New(), PeriodID: uuid.New(), DocumentType: models.DocumentTypeBalanceSheet}
	require.NoError(t, sessionRepo.Create(ctx, session))

	diff := &models.Difference{
		SessionID:   session.ID,
		AccountCode: "25000",
		SourceValue: decimal.RequireFromString("500000.00"),
		TargetValue: decimal.RequireFromString("498000.00"),
		Delta:       decimal.RequireFromString("-2000.00"),
		DeltaPct:    decimal.RequireFromString("-0.004"),
	}
	require.NoError(t, diffRepo.Insert(ctx, diff))

	newValue := decimal.RequireFromString("499000.00")
	first := &models.Resolution{
		DifferenceID: diff.ID,
		Action:       models.ResolutionActionManualEntry,
		OldValue:     diff.TargetValue,
		NewValue:     &newValue,
		Reason:       "lender statement shows mid-month paydown",
		CreatedBy:    "analyst@example.com",
	}
	require.NoError(t, diffRepo.InsertResolution(ctx, first))

	second := &models.Resolution{
		DifferenceID: diff.ID,
		Action:       models.ResolutionActionIgnore,
		OldValue:     diff.TargetValue,
		Reason:       "superseded, immaterial",
		CreatedBy:    "reviewer@example.com",
	}
	require.NoError(t, diffRepo.InsertResolution(ctx, second))

	history, err := diffRepo.ListResolutions(ctx, diff.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ResolutionActionManualEntry, history[0].Action)
	require.NotNil(t, history[0].NewValue)
	assert.True(t, history[0].NewValue.Equal(newValue))
	assert.Equal(t, models.ResolutionActionIgnore, history[1].Action)
	assert.Nil(t, history[1].NewValue)
}
