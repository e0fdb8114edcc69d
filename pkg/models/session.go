package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session lifecycle states. InProgress transitions to Completed or Cancelled;
// both are terminal.
const (
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusCancelled  = "cancelled"
)

// Difference states.
const (
	DifferenceStatusOpen     = "open"
	DifferenceStatusResolved = "resolved"
	DifferenceStatusIgnored  = "ignored"
)

// Resolution actions.
const (
	ResolutionActionAcceptSource = "accept_source"
	ResolutionActionAcceptTarget = "accept_target"
	ResolutionActionManualEntry  = "manual_entry"
	ResolutionActionIgnore       = "ignore"
)

// SessionSummary holds the counters finalized when a session completes.
type SessionSummary struct {
	Total           int `json:"total"`
	Matches         int `json:"matches"`
	Differences     int `json:"differences"`
	MissingInSource int `json:"missing_in_source"`
	MissingInTarget int `json:"missing_in_target"`
	Resolved        int `json:"resolved"`
}

// ReconciliationSession is one comparison pass between two data sources for a
// (property, period, document_type). A session owns its differences.
type ReconciliationSession struct {
	ID           uuid.UUID      `json:"id"`
	PropertyID   uuid.UUID      `json:"property_id"`
	PeriodID     uuid.UUID      `json:"period_id"`
	DocumentType string         `json:"document_type"`
	Status       string         `json:"status"`
	StartedBy    string         `json:"started_by"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Summary      SessionSummary `json:"summary"`
}

// Open reports whether the session still accepts differences and resolutions.
func (s *ReconciliationSession) Open() bool {
	return s.Status == SessionStatusInProgress
}

// Difference is one source/target mismatch recorded during a session. It is
// created during comparison and mutated only by resolution actions.
type Difference struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	AccountCode string          `json:"account_code"`
	SourceValue decimal.Decimal `json:"source_value"`
	TargetValue decimal.Decimal `json:"target_value"`
	Delta       decimal.Decimal `json:"delta"`
	DeltaPct    decimal.Decimal `json:"delta_pct"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Resolution is an append-only audit record for a difference. A difference may
// accumulate resolutions over time; the latest one is current.
type Resolution struct {
	ID           uuid.UUID        `json:"id"`
	DifferenceID uuid.UUID        `json:"difference_id"`
	Action       string           `json:"action"`
	OldValue     decimal.Decimal  `json:"old_value"`
	NewValue     *decimal.Decimal `json:"new_value,omitempty"`
	Reason       string           `json:"reason"`
	CreatedBy    string           `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
}
