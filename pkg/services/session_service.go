package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

// deltaEpsilon floors the denominator of delta_pct so a zero source value
// never divides by zero.
var deltaEpsilon = decimal.NewFromFloat(0.01)

// StartSessionResult reports the new session plus any concurrent in-progress
// sessions for the same triple. Concurrent sessions are permitted but
// advisory-flagged; the manager does not serialize them itself.
type StartSessionResult struct {
	Session     *models.ReconciliationSession `json:"session"`
	ConflictIDs []uuid.UUID                   `json:"conflict_ids,omitempty"`
}

// ReconciliationService owns the lifecycle of one reconciliation pass for a
// (property, period, document_type): create a session, accumulate differences,
// accept resolutions, finalize summary statistics.
type ReconciliationService interface {
	StartSession(ctx context.Context, propertyID, periodID uuid.UUID, documentType, user string) (*StartSessionResult, error)

	// RecordDifference computes delta and delta_pct and stores the row
	// regardless of magnitude; severity filtering is a rule-engine concern.
	RecordDifference(ctx context.Context, sessionID uuid.UUID, accountCode string, sourceValue, targetValue decimal.Decimal) (*models.Difference, error)

	// Resolve appends a resolution to a difference in an open session, sets
	// the difference status, and recomputes the session summary counters.
	Resolve(ctx context.Context, differenceID uuid.UUID, action string, newValue *decimal.Decimal, reason, user string) (*models.Resolution, error)

	// CompleteSession requires every difference resolved or ignored unless
	// the caller passes an explicit override.
	CompleteSession(ctx context.Context, sessionID uuid.UUID, override bool) error

	CancelSession(ctx context.Context, sessionID uuid.UUID) error
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.ReconciliationSession, error)
	ListDifferences(ctx context.Context, sessionID uuid.UUID) ([]*models.Difference, error)
}

type reconciliationService struct {
	sessionRepo repositories.SessionRepository
	diffRepo    repositories.DifferenceRepository
	logger      *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService.
func NewReconciliationService(sessionRepo repositories.SessionRepository, diffRepo repositories.DifferenceRepository, logger *zap.Logger) ReconciliationService {
	return &reconciliationService{
		sessionRepo: sessionRepo,
		diffRepo:    diffRepo,
		logger:      logger,
	}
}

var _ ReconciliationService = (*reconciliationService)(nil)

func (s *reconciliationService) StartSession(ctx context.Context, propertyID, periodID uuid.UUID, documentType, user string) (*StartSessionResult, error) {
	conflicts, err := s.sessionRepo.FindInProgress(ctx, propertyID, periodID, documentType)
	if err != nil {
		return nil, err
	}

	session := &models.ReconciliationSession{
		PropertyID:   propertyID,
		PeriodID:     periodID,
		DocumentType: documentType,
		StartedBy:    user,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	result := &StartSessionResult{Session: session}
	for _, c := range conflicts {
		result.ConflictIDs = append(result.ConflictIDs, c.ID)
	}
	if len(result.ConflictIDs) > 0 {
		s.logger.Warn("concurrent reconciliation sessions for the same key",
			zap.String("session_id", session.ID.String()),
			zap.String("document_type", documentType),
			zap.Int("conflicts", len(result.ConflictIDs)))
	}

	return result, nil
}

func (s *reconciliationService) RecordDifference(ctx context.Context, sessionID uuid.UUID, accountCode string, sourceValue, targetValue decimal.Decimal) (*models.Difference, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, apperrors.ErrSessionNotOpen
	}

	diff := &models.Difference{
		SessionID:   sessionID,
		AccountCode: accountCode,
		SourceValue: sourceValue,
		TargetValue: targetValue,
		Delta:       targetValue.Sub(sourceValue),
		DeltaPct:    deltaPercent(sourceValue, targetValue),
	}
	if err := s.diffRepo.Insert(ctx, diff); err != nil {
		return nil, err
	}

	session.Summary.Total++
	session.Summary.Differences++
	if err := s.sessionRepo.UpdateSummary(ctx, sessionID, session.Summary); err != nil {
		return nil, err
	}

	return diff, nil
}

func (s *reconciliationService) Resolve(ctx context.Context, differenceID uuid.UUID, action string, newValue *decimal.Decimal, reason, user string) (*models.Resolution, error) {
	diff, err := s.diffRepo.GetByID(ctx, differenceID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, diff.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, apperrors.ErrSessionNotOpen
	}

	status, resolved, err := statusForAction(action, diff, newValue)
	if err != nil {
		return nil, err
	}

	res := &models.Resolution{
		DifferenceID: differenceID,
		Action:       action,
		OldValue:     diff.TargetValue,
		NewValue:     resolved,
		Reason:       reason,
		CreatedBy:    user,
	}
	if err := s.diffRepo.InsertResolution(ctx, res); err != nil {
		return nil, err
	}
	if err := s.diffRepo.UpdateStatus(ctx, differenceID, status); err != nil {
		return nil, err
	}

	// Recompute resolved counter from the difference rows rather than
	// incrementing blindly: a difference can be re-resolved.
	diffs, err := s.diffRepo.ListBySession(ctx, diff.SessionID)
	if err != nil {
		return nil, err
	}
	resolvedCount := 0
	for _, d := range diffs {
		if d.Status != models.DifferenceStatusOpen {
			resolvedCount++
		}
	}
	session.Summary.Resolved = resolvedCount
	if err := s.sessionRepo.UpdateSummary(ctx, diff.SessionID, session.Summary); err != nil {
		return nil, err
	}

	return res, nil
}

func (s *reconciliationService) CompleteSession(ctx context.Context, sessionID uuid.UUID, override bool) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Open() {
		return apperrors.ErrSessionNotOpen
	}

	if !override {
		open, err := s.diffRepo.CountOpen(ctx, sessionID)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%d open differences: %w", open, apperrors.ErrUnresolvedDifferences)
		}
	}

	if err := s.sessionRepo.Finalize(ctx, sessionID, models.SessionStatusCompleted, time.Now()); err != nil {
		return err
	}

	s.logger.Info("reconciliation session completed",
		zap.String("session_id", sessionID.String()),
		zap.Bool("override", override))
	return nil
}

func (s *reconciliationService) CancelSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessionRepo.Finalize(ctx, sessionID, models.SessionStatusCancelled, time.Now())
}

func (s *reconciliationService) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.ReconciliationSession, error) {
	return s.sessionRepo.GetByID(ctx, sessionID)
}

func (s *reconciliationService) ListDifferences(ctx context.Context, sessionID uuid.UUID) ([]*models.Difference, error) {
	return s.diffRepo.ListBySession(ctx, sessionID)
}

// statusForAction maps a resolution action to the resulting difference status
// and the value the resolution records as current.
func statusForAction(action string, diff *models.Difference, newValue *decimal.Decimal) (string, *decimal.Decimal, error) {
	switch action {
	case models.ResolutionActionAcceptSource:
		v := diff.SourceValue
		return models.DifferenceStatusResolved, &v, nil
	case models.ResolutionActionAcceptTarget:
		v := diff.TargetValue
		return models.DifferenceStatusResolved, &v, nil
	case models.ResolutionActionManualEntry:
		if newValue == nil {
			return "", nil, fmt.Errorf("manual_entry requires a new value")
		}
		return models.DifferenceStatusResolved, newValue, nil
	case models.ResolutionActionIgnore:
		return models.DifferenceStatusIgnored, nil, nil
	default:
		return "", nil, fmt.Errorf("unknown resolution action %q", action)
	}
}

// deltaPercent computes (target-source)/max(|source|, epsilon).
func deltaPercent(source, target decimal.Decimal) decimal.Decimal {
	base := source.Abs()
	if base.LessThan(deltaEpsilon) {
		base = deltaEpsilon
	}
	return target.Sub(source).DivRound(base, ratioScale)
}
