package models

import (
	"time"

	"github.com/google/uuid"
)

// Validation run states. Completed runs are immutable; reruns create new rows.
// Abandoned marks a cancelled attempt that never reached completion.
const (
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusAbandoned  = "abandoned"
)

// ValidationRun is the persisted snapshot of one full rule-engine pass over a
// (property, period). The rules_version_hash fingerprints the catalogue the
// run executed against so identical inputs are provably comparable.
type ValidationRun struct {
	ID               uuid.UUID  `json:"id"`
	PropertyID       uuid.UUID  `json:"property_id"`
	PeriodID         uuid.UUID  `json:"period_id"`
	RulesVersionHash string     `json:"rules_version_hash"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TotalRules       int        `json:"total_rules"`
	PassedCount      int        `json:"passed_count"`
	FailedCount      int        `json:"failed_count"`
	WarningCount     int        `json:"warning_count"`
	SkippedCount     int        `json:"skipped_count"`
	RulesSnapshot    []Rule     `json:"rules_snapshot,omitempty"`
}

// RunSummary is returned synchronously to the caller that triggered a run.
type RunSummary struct {
	RunID            uuid.UUID `json:"run_id"`
	TotalRules       int       `json:"total_rules"`
	Passed           int       `json:"passed"`
	Failed           int       `json:"failed"`
	Warnings         int       `json:"warnings"`
	Skipped          int       `json:"skipped"`
	RulesVersionHash string    `json:"rules_version_hash"`
	CompletedAt      time.Time `json:"completed_at"`
}
