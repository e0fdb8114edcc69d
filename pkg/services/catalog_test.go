package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearstate-inc/recon-engine/pkg/models"
)

const registryYAML = `
rules:
  - rule_id: BS-001
    name: Balance sheet identity
    category: balance_identity
    document_type: balance_sheet
    formula: "sum(assets) = sum(liabilities) + sum(equity)"
    severity: error
    active: true
    tolerance:
      absolute: "0.01"
    source:
      document_type: balance_sheet
      categories: [asset]
    target:
      document_type: balance_sheet
      categories: [liability, equity]
  - rule_id: RT-001
    name: Expense ratio
    category: ratio_threshold
    document_type: income_statement
    formula: "expenses / income <= 0.65"
    severity: warning
    active: true
    threshold: "0.65"
    operator: "<="
    numerator:
      document_type: income_statement
      categories: [expense]
    denominator:
      document_type: income_statement
      categories: [income]
  - rule_id: COV-001
    name: Debt service coverage
    category: covenant
    document_type: income_statement
    formula: "NOI / debt service >= threshold"
    severity: error
    active: true
    covenant_type: dscr
    numerator:
      document_type: income_statement
      categories: [income, expense]
    denominator:
      document_type: income_statement
      categories: [debt_service]
  - rule_id: OLD-001
    name: Retired check
    category: informational
    document_type: income_statement
    formula: "legacy"
    severity: info
    active: false
    source:
      document_type: income_statement
      categories: [income]
`

func TestParseRuleCatalog(t *testing.T) {
	catalog, err := ParseRuleCatalog([]byte(registryYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, catalog.Size())

	rules := catalog.Rules()
	require.Len(t, rules, 4)

	// File order is execution order.
	assert.Equal(t, "BS-001", rules[0].RuleID)
	assert.Equal(t, "RT-001", rules[1].RuleID)
	assert.Equal(t, "COV-001", rules[2].RuleID)
	assert.Equal(t, "OLD-001", rules[3].RuleID)

	bs := rules[0]
	require.NotNil(t, bs.Tolerance.Absolute)
	assert.Equal(t, "0.01", bs.Tolerance.Absolute.String())
	assert.Nil(t, bs.Tolerance.Percent)
	require.NotNil(t, bs.Source)
	assert.Equal(t, models.DocumentTypeBalanceSheet, bs.Source.DocumentType)
	assert.Equal(t, []string{"asset"}, bs.Source.Categories)
	require.NotNil(t, bs.Target)
	assert.Equal(t, []string{"liability", "equity"}, bs.Target.Categories)

	rt := rules[1]
	require.NotNil(t, rt.Threshold)
	assert.Equal(t, "0.65", rt.Threshold.String())
	assert.Equal(t, "<=", rt.Operator)

	cov := rules[2]
	assert.Equal(t, models.CovenantTypeDSCR, cov.CovenantType)
}

func TestActiveRulesFiltersInactive(t *testing.T) {
	catalog, err := ParseRuleCatalog([]byte(registryYAML))
	require.NoError(t, err)

	active := catalog.ActiveRules()
	require.Len(t, active, 3)
	for _, r := range active {
		assert.True(t, r.Active)
		assert.NotEqual(t, "OLD-001", r.RuleID)
	}
}

func TestVersionHashDeterministic(t *testing.T) {
	a, err := ParseRuleCatalog([]byte(registryYAML))
	require.NoError(t, err)
	b, err := ParseRuleCatalog([]byte(registryYAML))
	require.NoError(t, err)

	assert.Equal(t, a.VersionHash(), b.VersionHash())
	assert.Len(t, a.VersionHash(), 64)
}

func TestVersionHashChangesWithFormula(t *testing.T) {
	base := []models.Rule{
		{RuleID: "BS-001", Formula: "a = b", Severity: models.RuleSeverityError, Active: true},
	}
	changed := []models.Rule{
		{RuleID: "BS-001", Formula: "a = b + c", Severity: models.RuleSeverityError, Active: true},
	}
	reordered := []models.Rule{
		{RuleID: "BS-002", Formula: "c = d", Severity: models.RuleSeverityError, Active: true},
		{RuleID: "BS-001", Formula: "a = b", Severity: models.RuleSeverityError, Active: true},
	}

	c1, err := NewRuleCatalog(base)
	require.NoError(t, err)
	c2, err := NewRuleCatalog(changed)
	require.NoError(t, err)
	c3, err := NewRuleCatalog(reordered)
	require.NoError(t, err)

	assert.NotEqual(t, c1.VersionHash(), c2.VersionHash())
	assert.NotEqual(t, c1.VersionHash(), c3.VersionHash())
}

func TestCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		rules   []models.Rule
		wantErr string
	}{
		{
			name: "duplicate rule id",
			rules: []models.Rule{
				{RuleID: "R-1", Severity: models.RuleSeverityError},
				{RuleID: "R-1", Severity: models.RuleSeverityError},
			},
			wantErr: "duplicate rule_id",
		},
		{
			name:    "empty rule id",
			rules:   []models.Rule{{Severity: models.RuleSeverityError}},
			wantErr: "empty rule_id",
		},
		{
			name:    "unknown severity",
			rules:   []models.Rule{{RuleID: "R-1", Severity: "fatal"}},
			wantErr: "unknown severity",
		},
		{
			name: "covenant without covenant type",
			rules: []models.Rule{
				{RuleID: "C-1", Category: models.RuleCategoryCovenant, Severity: models.RuleSeverityError},
			},
			wantErr: "missing covenant_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleCatalog(tt.rules)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseRuleCatalogRejectsBadDecimal(t *testing.T) {
	bad := `
rules:
  - rule_id: R-1
    name: broken
    category: balance_identity
    severity: error
    active: true
    tolerance:
      absolute: "not-a-number"
`
	_, err := ParseRuleCatalog([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute tolerance")
}
