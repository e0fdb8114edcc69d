package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Document types the extraction pipeline produces line items for.
const (
	DocumentTypeBalanceSheet      = "balance_sheet"
	DocumentTypeIncomeStatement   = "income_statement"
	DocumentTypeCashFlow          = "cash_flow"
	DocumentTypeRentRoll          = "rent_roll"
	DocumentTypeMortgageStatement = "mortgage_statement"
)

// Extraction methods reported by the upstream pipeline.
const (
	ExtractionMethodLayout   = "layout"
	ExtractionMethodOCR      = "ocr"
	ExtractionMethodEnsemble = "ensemble"
	ExtractionMethodManual   = "manual"
)

// LineItem is one extracted value from a financial document. Line items are
// immutable once ingested for a given extraction run. Two items with the same
// (property, period, account_code, account_name) are distinct records:
// hierarchical detail and subtotal rows coexist.
type LineItem struct {
	ID               uuid.UUID       `json:"id"`
	PropertyID       uuid.UUID       `json:"property_id"`
	PeriodID         uuid.UUID       `json:"period_id"`
	DocumentType     string          `json:"document_type"`
	AccountCode      string          `json:"account_code,omitempty"`
	AccountName      string          `json:"account_name"`
	RawLabel         string          `json:"raw_label"`
	Amount           decimal.Decimal `json:"amount"`
	AccountLevel     int             `json:"account_level"`
	ExtractionMethod string          `json:"extraction_method"`
	CreatedAt        time.Time       `json:"created_at"`
}
