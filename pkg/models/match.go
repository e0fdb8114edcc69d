package models

import "github.com/google/uuid"

// Match strategies, in cascade order. The strategy that produced a match is
// persisted alongside the line item it was computed for.
const (
	MatchStrategyExactCode   = "exact_code"
	MatchStrategyFuzzyCode   = "fuzzy_code"
	MatchStrategyExactName   = "exact_name"
	MatchStrategyFuzzyName   = "fuzzy_name"
	MatchStrategyUnmatched   = "unmatched"
	MatchStrategyLegacyMatch = "legacy_match"
)

// MatchResult ties a line item to a canonical chart-of-accounts entry.
// Results are never mutated: a re-run creates new results and supersedes the
// old ones. MatchedCode is empty for unmatched items, which are retained and
// flagged for manual review rather than dropped.
type MatchResult struct {
	LineItemID    uuid.UUID `json:"line_item_id"`
	MatchedCode   string    `json:"matched_code,omitempty"`
	MatchStrategy string    `json:"match_strategy"`
	Confidence    float64   `json:"confidence"`
}

// Matched reports whether the cascade resolved a canonical code.
func (m *MatchResult) Matched() bool {
	return m.MatchStrategy != MatchStrategyUnmatched && m.MatchedCode != ""
}
