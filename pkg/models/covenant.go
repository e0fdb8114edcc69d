package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Covenant types tracked for real-estate lending.
const (
	CovenantTypeDSCR      = "dscr"
	CovenantTypeLTV       = "ltv"
	CovenantTypeDebtYield = "debt_yield"
	CovenantTypeOccupancy = "occupancy"
)

// Comparison operators for covenant thresholds.
const (
	CompareGTE = ">="
	CompareLTE = "<="
	CompareGT  = ">"
	CompareLT  = "<"
)

// Threshold sources reported by the resolver.
const (
	ThresholdSourcePropertyOverride = "property_override"
	ThresholdSourceGlobalDefault    = "global_default"
)

// CovenantThreshold is a property-specific, date-scoped override of a global
// covenant default. It is effective for a period when
// effective_date <= period_end < expiration_date (null expiration = open).
type CovenantThreshold struct {
	ID             uuid.UUID       `json:"id"`
	PropertyID     uuid.UUID       `json:"property_id"`
	CovenantType   string          `json:"covenant_type"`
	ThresholdValue decimal.Decimal `json:"threshold_value"`
	Operator       string          `json:"comparison_operator"`
	EffectiveDate  time.Time       `json:"effective_date"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	IsActive       bool            `json:"is_active"`
}

// EffectiveOn reports whether the threshold applies on the given date.
func (t *CovenantThreshold) EffectiveOn(asOf time.Time) bool {
	if !t.IsActive || t.EffectiveDate.After(asOf) {
		return false
	}
	return t.ExpirationDate == nil || t.ExpirationDate.After(asOf)
}

// Compare evaluates the covenant: calculated <op> threshold.
func Compare(calculated, threshold decimal.Decimal, operator string) (bool, error) {
	switch operator {
	case CompareGTE:
		return calculated.GreaterThanOrEqual(threshold), nil
	case CompareLTE:
		return calculated.LessThanOrEqual(threshold), nil
	case CompareGT:
		return calculated.GreaterThan(threshold), nil
	case CompareLT:
		return calculated.LessThan(threshold), nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", operator)
	}
}

// CovenantComplianceRecord is one append-only compliance history row. One row
// per run per (property, period, covenant_type) is expected and intentional.
type CovenantComplianceRecord struct {
	ID              uuid.UUID       `json:"id"`
	PropertyID      uuid.UUID       `json:"property_id"`
	PeriodID        uuid.UUID       `json:"period_id"`
	CovenantType    string          `json:"covenant_type"`
	RuleID          string          `json:"rule_id"`
	CalculatedValue decimal.Decimal `json:"calculated_value"`
	ThresholdValue  decimal.Decimal `json:"threshold_value"`
	IsCompliant     bool            `json:"is_compliant"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// AnomalyResolution is the one-time terminal disposition of an anomaly
// detected by an external collaborator.
type AnomalyResolution struct {
	AnomalyID      uuid.UUID `json:"anomaly_id"`
	ResolutionType string    `json:"resolution_type"`
	RootCause      string    `json:"root_cause"`
	ResolvedAt     time.Time `json:"resolved_at"`
}
