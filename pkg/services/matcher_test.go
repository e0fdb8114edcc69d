package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearstate-inc/recon-engine/pkg/config"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

func testChart() []*models.ChartOfAccountsEntry {
	return []*models.ChartOfAccountsEntry{
		{Code: "10000", Name: "Assets", Category: models.AccountCategoryAsset},
		{Code: "11100", Name: "Operating Cash A", ParentCode: "10000", Category: models.AccountCategoryAsset},
		{Code: "11200", Name: "Operating Cash B", ParentCode: "10000", Category: models.AccountCategoryAsset},
		{Code: "12100", Name: "Tenant Receivables", ParentCode: "10000", Category: models.AccountCategoryAsset},
		{Code: "23000", Name: "Security Deposits Held", Category: models.AccountCategoryLiability},
		{Code: "40000", Name: "Income", Category: models.AccountCategoryIncome},
		{Code: "41000", Name: "Rental Income", ParentCode: "40000", Category: models.AccountCategoryIncome},
		{Code: "50000", Name: "Operating Expenses", Category: models.AccountCategoryExpense},
		{Code: "50200", Name: "Repairs and Maintenance", ParentCode: "50000", Category: models.AccountCategoryExpense},
	}
}

func newTestMatcher(t *testing.T) AccountMatcher {
	t.Helper()
	return NewAccountMatcher(config.MatcherConfig{
		SimilarityThreshold: 0.82,
		ConfidenceFloor:     0.60,
	}, testChart())
}

func TestMatchCascade(t *testing.T) {
	m := newTestMatcher(t)

	tests := []struct {
		name         string
		rawLabel     string
		accountCode  string
		legacyCode   string
		wantStrategy string
		wantCode     string
	}{
		{
			name:         "legacy code revalidated first",
			rawLabel:     "Something Unrecognizable",
			accountCode:  "50000",
			legacyCode:   "23000",
			wantStrategy: models.MatchStrategyLegacyMatch,
			wantCode:     "23000",
		},
		{
			name:         "stale legacy code falls through to exact code",
			rawLabel:     "Operating Expenses",
			accountCode:  "50000",
			legacyCode:   "99999",
			wantStrategy: models.MatchStrategyExactCode,
			wantCode:     "50000",
		},
		{
			name:         "exact code",
			rawLabel:     "whatever the extractor said",
			accountCode:  "50000",
			wantStrategy: models.MatchStrategyExactCode,
			wantCode:     "50000",
		},
		{
			name:         "exact code tolerates whitespace",
			rawLabel:     "",
			accountCode:  " 41000 ",
			wantStrategy: models.MatchStrategyExactCode,
			wantCode:     "41000",
		},
		{
			name:         "fuzzy code maps leaf to parent stem",
			rawLabel:     "some detail row",
			accountCode:  "4010-0000",
			wantStrategy: models.MatchStrategyFuzzyCode,
			wantCode:     "40000",
		},
		{
			name:         "fuzzy code with dot suffix",
			rawLabel:     "roof repairs detail",
			accountCode:  "50210.01",
			wantStrategy: models.MatchStrategyFuzzyCode,
			wantCode:     "50200",
		},
		{
			name:         "exact name ignores case and plurals",
			rawLabel:     "repairs AND maintenance",
			wantStrategy: models.MatchStrategyExactName,
			wantCode:     "50200",
		},
		{
			name:         "fuzzy name survives a typo",
			rawLabel:     "Tenan Receivables",
			wantStrategy: models.MatchStrategyFuzzyName,
			wantCode:     "12100",
		},
		{
			name:         "below threshold stays unmatched",
			rawLabel:     "Totally Different Label",
			wantStrategy: models.MatchStrategyUnmatched,
			wantCode:     "",
		},
		{
			name:         "empty input stays unmatched",
			rawLabel:     "",
			accountCode:  "",
			wantStrategy: models.MatchStrategyUnmatched,
			wantCode:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.rawLabel, tt.accountCode, models.DocumentTypeIncomeStatement, MatchContext{LegacyCode: tt.legacyCode})
			assert.Equal(t, tt.wantStrategy, got.MatchStrategy)
			assert.Equal(t, tt.wantCode, got.MatchedCode)
			if tt.wantStrategy == models.MatchStrategyUnmatched {
				assert.False(t, got.Matched())
			} else {
				assert.True(t, got.Matched())
				assert.Greater(t, got.Confidence, 0.0)
			}
		})
	}
}

func TestMatchConfidences(t *testing.T) {
	m := newTestMatcher(t)

	exact := m.Match("", "50000", models.DocumentTypeIncomeStatement, MatchContext{})
	require.Equal(t, models.MatchStrategyExactCode, exact.MatchStrategy)
	assert.Equal(t, 1.0, exact.Confidence)

	fuzzyCode := m.Match("", "4010-0000", models.DocumentTypeIncomeStatement, MatchContext{})
	require.Equal(t, models.MatchStrategyFuzzyCode, fuzzyCode.MatchStrategy)
	assert.Equal(t, 0.9, fuzzyCode.Confidence)

	fuzzyName := m.Match("Tenan Receivables", "", models.DocumentTypeIncomeStatement, MatchContext{})
	require.Equal(t, models.MatchStrategyFuzzyName, fuzzyName.MatchStrategy)
	assert.Greater(t, fuzzyName.Confidence, 0.82)
	assert.Less(t, fuzzyName.Confidence, 1.0)
}

// Two candidates at identical similarity and distance resolve to the first in
// canonical code order, deterministically.
func TestFuzzyNameTieBreak(t *testing.T) {
	m := newTestMatcher(t)

	got := m.Match("Operating Cash X", "", models.DocumentTypeBalanceSheet, MatchContext{})
	require.Equal(t, models.MatchStrategyFuzzyName, got.MatchStrategy)
	assert.Equal(t, "11100", got.MatchedCode)

	// Same input, same answer, every time.
	for i := 0; i < 10; i++ {
		again := m.Match("Operating Cash X", "", models.DocumentTypeBalanceSheet, MatchContext{})
		assert.Equal(t, got, again)
	}
}

func TestNormalizeAccountName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Repairs & Maintenance", "repair maintenance"},
		{"  Late   Fees ", "late fee"},
		{"OPERATING EXPENSES", "operating expense"},
		{"Security Deposits Held", "security deposit held"},
		{"R&M - Plumbing", "r m plumbing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAccountName(tt.in))
		})
	}
}

func TestMatcherWithEmptyChart(t *testing.T) {
	m := NewAccountMatcher(config.MatcherConfig{SimilarityThreshold: 0.82, ConfidenceFloor: 0.60}, nil)

	got := m.Match("Rental Income", "41000", models.DocumentTypeIncomeStatement, MatchContext{})
	assert.Equal(t, models.MatchStrategyUnmatched, got.MatchStrategy)
}
