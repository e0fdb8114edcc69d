package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/config"
	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

// ResolvedThreshold is the effective covenant threshold for one check.
type ResolvedThreshold struct {
	Value    decimal.Decimal
	Operator string
	Source   string // property_override or global_default
}

// CovenantResolver resolves the effective threshold for a covenant check by
// overlaying property-specific, date-scoped overrides on top of global
// defaults.
type CovenantResolver interface {
	// Resolve picks the active override with the latest effective_date for
	// the property as of the given date, falling back to the global default.
	// A covenant type with neither is a configuration error; the rule engine
	// reports it as a SKIP on the one rule, never as a run failure.
	Resolve(ctx context.Context, propertyID uuid.UUID, covenantType string, asOf time.Time) (*ResolvedThreshold, error)
}

type covenantResolver struct {
	covenantRepo repositories.CovenantRepository
	defaults     []config.CovenantDefault
	logger       *zap.Logger
}

// NewCovenantResolver creates a new CovenantResolver.
func NewCovenantResolver(covenantRepo repositories.CovenantRepository, defaults []config.CovenantDefault, logger *zap.Logger) CovenantResolver {
	return &covenantResolver{
		covenantRepo: covenantRepo,
		defaults:     defaults,
		logger:       logger,
	}
}

var _ CovenantResolver = (*covenantResolver)(nil)

func (s *covenantResolver) Resolve(ctx context.Context, propertyID uuid.UUID, covenantType string, asOf time.Time) (*ResolvedThreshold, error) {
	overrides, err := s.covenantRepo.ListActiveForProperty(ctx, propertyID, covenantType, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load covenant overrides: %w", err)
	}

	// Rows arrive ordered by effective_date descending: the first one is the
	// latest effective override and wins ties.
	if len(overrides) > 0 {
		o := overrides[0]
		return &ResolvedThreshold{
			Value:    o.ThresholdValue,
			Operator: o.Operator,
			Source:   models.ThresholdSourcePropertyOverride,
		}, nil
	}

	for i := range s.defaults {
		if s.defaults[i].CovenantType == covenantType {
			return &ResolvedThreshold{
				Value:    s.defaults[i].ThresholdValue,
				Operator: s.defaults[i].Operator,
				Source:   models.ThresholdSourceGlobalDefault,
			}, nil
		}
	}

	s.logger.Warn("no threshold configured for covenant type",
		zap.String("covenant_type", covenantType),
		zap.String("property_id", propertyID.String()))
	return nil, fmt.Errorf("covenant type %q: %w", covenantType, apperrors.ErrConfiguration)
}
