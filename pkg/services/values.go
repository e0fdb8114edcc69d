package services

import (
	"github.com/shopspring/decimal"

	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

// ValueIndex aggregates matched line-item values for rule evaluation. It is
// built once per run from the already-matched dataset and never mutated, so
// concurrent runs for different properties/periods share nothing.
type ValueIndex struct {
	byDocCode     map[string]map[string]decimal.Decimal
	byDocCategory map[string]map[string]decimal.Decimal
	docTotals     map[string]decimal.Decimal
	unmatched     map[string]decimal.Decimal
	docPresent    map[string]bool
	itemCount     int
}

// NewValueIndex builds the index from matched line items. Unmatched items are
// never dropped: they contribute to document totals and to the unmatched
// bucket (zero-data-loss policy), just not to any canonical code or category.
func NewValueIndex(items []*repositories.MatchedLineItem, chart []*models.ChartOfAccountsEntry) *ValueIndex {
	categoryByCode := make(map[string]string, len(chart))
	for _, e := range chart {
		categoryByCode[e.Code] = e.Category
	}

	idx := &ValueIndex{
		byDocCode:     make(map[string]map[string]decimal.Decimal),
		byDocCategory: make(map[string]map[string]decimal.Decimal),
		docTotals:     make(map[string]decimal.Decimal),
		unmatched:     make(map[string]decimal.Decimal),
		docPresent:    make(map[string]bool),
	}

	for _, mi := range items {
		doc := mi.Item.DocumentType
		idx.docPresent[doc] = true
		idx.itemCount++
		idx.docTotals[doc] = idx.docTotals[doc].Add(mi.Item.Amount)

		if !mi.Match.Matched() {
			idx.unmatched[doc] = idx.unmatched[doc].Add(mi.Item.Amount)
			continue
		}

		codes := idx.byDocCode[doc]
		if codes == nil {
			codes = make(map[string]decimal.Decimal)
			idx.byDocCode[doc] = codes
		}
		codes[mi.Match.MatchedCode] = codes[mi.Match.MatchedCode].Add(mi.Item.Amount)

		if category, ok := categoryByCode[mi.Match.MatchedCode]; ok {
			cats := idx.byDocCategory[doc]
			if cats == nil {
				cats = make(map[string]decimal.Decimal)
				idx.byDocCategory[doc] = cats
			}
			cats[category] = cats[category].Add(mi.Item.Amount)
		}
	}

	return idx
}

// HasDocument reports whether any line items exist for the document type.
func (idx *ValueIndex) HasDocument(documentType string) bool {
	return idx.docPresent[documentType]
}

// ItemCount returns the number of indexed line items.
func (idx *ValueIndex) ItemCount() int {
	return idx.itemCount
}

// DocumentTotal sums every line item of a document type, unmatched included.
func (idx *ValueIndex) DocumentTotal(documentType string) decimal.Decimal {
	return idx.docTotals[documentType]
}

// UnmatchedTotal sums the unmatched line items of a document type.
func (idx *ValueIndex) UnmatchedTotal(documentType string) decimal.Decimal {
	return idx.unmatched[documentType]
}

// Resolve evaluates a selector: the sum over the named codes, or over the
// named categories when no codes are given. The second return is false when
// the selector's document type has no line items at all (required input
// missing, a SKIP for the calling rule).
func (idx *ValueIndex) Resolve(sel *models.ValueSelector) (decimal.Decimal, bool) {
	if sel == nil {
		return decimal.Zero, false
	}
	if !idx.docPresent[sel.DocumentType] {
		return decimal.Zero, false
	}

	total := decimal.Zero
	if len(sel.Codes) > 0 {
		codes := idx.byDocCode[sel.DocumentType]
		for _, code := range sel.Codes {
			total = total.Add(codes[code])
		}
		return total, true
	}

	cats := idx.byDocCategory[sel.DocumentType]
	for _, category := range sel.Categories {
		total = total.Add(cats[category])
	}
	return total, true
}
