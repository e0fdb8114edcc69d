package models

import "github.com/shopspring/decimal"

// Rule categories.
const (
	RuleCategoryBalanceIdentity = "balance_identity"
	RuleCategoryCrossDocument   = "cross_document"
	RuleCategoryRatioThreshold  = "ratio_threshold"
	RuleCategoryCovenant        = "covenant"
	RuleCategoryDataQuality     = "data_quality"
	RuleCategoryInformational   = "informational"
)

// Rule severities.
const (
	RuleSeverityError   = "error"
	RuleSeverityWarning = "warning"
	RuleSeverityInfo    = "info"
)

// Verdict statuses. Every active applicable rule produces exactly one verdict
// per run, even when that verdict is a SKIP.
const (
	VerdictPass    = "PASS"
	VerdictFail    = "FAIL"
	VerdictWarning = "WARNING"
	VerdictSkip    = "SKIP"
	VerdictInfo    = "INFO"
)

// ValueSelector names the slice of matched line-item values a rule side reads:
// one document type plus either explicit account codes or account categories,
// aggregated by sum.
type ValueSelector struct {
	DocumentType string   `json:"document_type" yaml:"document_type"`
	Codes        []string `json:"codes,omitempty" yaml:"codes"`
	Categories   []string `json:"categories,omitempty" yaml:"categories"`
}

// Tolerance bounds a rule's acceptable difference. Both bounds are inclusive;
// when both are set, satisfying either one is a PASS.
type Tolerance struct {
	Absolute *decimal.Decimal `json:"absolute,omitempty"`
	Percent  *decimal.Decimal `json:"percent,omitempty"`
}

// Rule is one entry in the statically declared rule registry. A rule_id is a
// stable identifier never reused for a different formula.
type Rule struct {
	RuleID       string         `json:"rule_id"`
	Name         string         `json:"name"`
	Category     string         `json:"category"`
	DocumentType string         `json:"document_type"`
	Formula      string         `json:"formula"`
	Severity     string         `json:"severity"`
	Active       bool           `json:"active"`
	Tolerance    Tolerance      `json:"tolerance"`
	Requires     []string       `json:"requires,omitempty"`
	CovenantType string         `json:"covenant_type,omitempty"`
	Source       *ValueSelector `json:"source,omitempty"`
	Target       *ValueSelector `json:"target,omitempty"`
	Numerator    *ValueSelector `json:"numerator,omitempty"`
	Denominator  *ValueSelector `json:"denominator,omitempty"`

	// Threshold and Operator bound ratio_threshold and data_quality rules.
	// Covenant rules resolve their threshold through the CovenantResolver
	// instead.
	Threshold *decimal.Decimal `json:"threshold,omitempty"`
	Operator  string           `json:"operator,omitempty"`
}

// RuleVerdict is the outcome of evaluating one rule in one run.
type RuleVerdict struct {
	RuleID      string           `json:"rule_id"`
	RuleName    string           `json:"rule_name"`
	Category    string           `json:"category"`
	Status      string           `json:"status"`
	SourceValue *decimal.Decimal `json:"source_value,omitempty"`
	TargetValue *decimal.Decimal `json:"target_value,omitempty"`
	Difference  *decimal.Decimal `json:"difference,omitempty"`
	VariancePct *decimal.Decimal `json:"variance_pct,omitempty"`
	Details     string           `json:"details,omitempty"`
	Severity    string           `json:"severity"`
}
