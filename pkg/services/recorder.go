package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

// ComplianceRecorder writes per-period covenant compliance and anomaly
// disposition history for the audit trail and dashboards. History is
// cumulative: one covenant row per run, never updated.
type ComplianceRecorder interface {
	RecordCovenantCheck(ctx context.Context, propertyID, periodID uuid.UUID, covenantType, ruleID string, calculated, threshold decimal.Decimal, isCompliant bool) (*models.CovenantComplianceRecord, error)

	// RecordAnomalyResolution is a one-time terminal annotation on an anomaly
	// detected by an external collaborator.
	RecordAnomalyResolution(ctx context.Context, anomalyID uuid.UUID, resolutionType, rootCause string) (*models.AnomalyResolution, error)

	ListComplianceHistory(ctx context.Context, propertyID uuid.UUID, covenantType string) ([]*models.CovenantComplianceRecord, error)
}

type complianceRecorder struct {
	covenantRepo repositories.CovenantRepository
	logger       *zap.Logger
}

// NewComplianceRecorder creates a new ComplianceRecorder.
func NewComplianceRecorder(covenantRepo repositories.CovenantRepository, logger *zap.Logger) ComplianceRecorder {
	return &complianceRecorder{covenantRepo: covenantRepo, logger: logger}
}

var _ ComplianceRecorder = (*complianceRecorder)(nil)

func (s *complianceRecorder) RecordCovenantCheck(ctx context.Context, propertyID, periodID uuid.UUID, covenantType, ruleID string, calculated, threshold decimal.Decimal, isCompliant bool) (*models.CovenantComplianceRecord, error) {
	rec := &models.CovenantComplianceRecord{
		PropertyID:      propertyID,
		PeriodID:        periodID,
		CovenantType:    covenantType,
		RuleID:          ruleID,
		CalculatedValue: calculated,
		ThresholdValue:  threshold,
		IsCompliant:     isCompliant,
	}
	if err := s.covenantRepo.InsertComplianceRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record covenant check: %w", err)
	}

	if !isCompliant {
		s.logger.Warn("covenant breach recorded",
			zap.String("property_id", propertyID.String()),
			zap.String("covenant_type", covenantType),
			zap.String("rule_id", ruleID),
			zap.String("calculated", calculated.String()),
			zap.String("threshold", threshold.String()))
	}
	return rec, nil
}

func (s *complianceRecorder) RecordAnomalyResolution(ctx context.Context, anomalyID uuid.UUID, resolutionType, rootCause string) (*models.AnomalyResolution, error) {
	res := &models.AnomalyResolution{
		AnomalyID:      anomalyID,
		ResolutionType: resolutionType,
		RootCause:      rootCause,
	}
	if err := s.covenantRepo.InsertAnomalyResolution(ctx, res); err != nil {
		return nil, err
	}

	s.logger.Info("anomaly resolution recorded",
		zap.String("anomaly_id", anomalyID.String()),
		zap.String("resolution_type", resolutionType))
	return res, nil
}

func (s *complianceRecorder) ListComplianceHistory(ctx context.Context, propertyID uuid.UUID, covenantType string) ([]*models.CovenantComplianceRecord, error) {
	return s.covenantRepo.ListComplianceHistory(ctx, propertyID, covenantType)
}
