package models

// Account categories in the chart of accounts.
const (
	AccountCategoryAsset       = "asset"
	AccountCategoryLiability   = "liability"
	AccountCategoryEquity      = "equity"
	AccountCategoryIncome      = "income"
	AccountCategoryExpense     = "expense"
	AccountCategoryDebtService = "debt_service"
)

// ChartOfAccountsEntry is one canonical account in the reference chart.
// The chart is a read-only reference set during reconciliation and rule runs.
type ChartOfAccountsEntry struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ParentCode string `json:"parent_code,omitempty"`
	Category   string `json:"category"`
}
