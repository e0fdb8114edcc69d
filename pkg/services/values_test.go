package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

func TestValueIndexResolveByCode(t *testing.T) {
	index := NewValueIndex([]*repositories.MatchedLineItem{
		matchedItem(models.DocumentTypeIncomeStatement, "40000", "1000.00"),
		matchedItem(models.DocumentTypeIncomeStatement, "40000", "250.00"),
		matchedItem(models.DocumentTypeIncomeStatement, "50000", "-300.00"),
	}, engineChart())

	// Two rows with the same code both count: detail and subtotal rows
	// coexist and values aggregate.
	sum, ok := index.Resolve(&models.ValueSelector{
		DocumentType: models.DocumentTypeIncomeStatement,
		Codes:        []string{"40000"},
	})
	require.True(t, ok)
	assert.Equal(t, "1250", sum.String())

	both, ok := index.Resolve(&models.ValueSelector{
		DocumentType: models.DocumentTypeIncomeStatement,
		Codes:        []string{"40000", "50000"},
	})
	require.True(t, ok)
	assert.Equal(t, "950", both.String())
}

func TestValueIndexResolveByCategory(t *testing.T) {
	index := NewValueIndex([]*repositories.MatchedLineItem{
		matchedItem(models.DocumentTypeBalanceSheet, "10000", "500.00"),
		matchedItem(models.DocumentTypeBalanceSheet, "15000", "1500.00"),
		matchedItem(models.DocumentTypeBalanceSheet, "20000", "1200.00"),
	}, engineChart())

	assets, ok := index.Resolve(&models.ValueSelector{
		DocumentType: models.DocumentTypeBalanceSheet,
		Categories:   []string{models.AccountCategoryAsset},
	})
	require.True(t, ok)
	assert.Equal(t, "2000", assets.String())
}

func TestValueIndexMissingDocument(t *testing.T) {
	index := NewValueIndex([]*repositories.MatchedLineItem{
		matchedItem(models.DocumentTypeBalanceSheet, "10000", "500.00"),
	}, engineChart())

	_, ok := index.Resolve(&models.ValueSelector{
		DocumentType: models.DocumentTypeRentRoll,
		Categories:   []string{models.AccountCategoryIncome},
	})
	assert.False(t, ok)

	_, ok = index.Resolve(nil)
	assert.False(t, ok)

	// A present document with no rows for the selection resolves to zero,
	// which is different from an absent document.
	sum, ok := index.Resolve(&models.ValueSelector{
		DocumentType: models.DocumentTypeBalanceSheet,
		Codes:        []string{"25000"},
	})
	require.True(t, ok)
	assert.True(t, sum.IsZero())
}

// Unmatched items never vanish: they are excluded from code and category
// aggregates but still counted in document totals and the unmatched bucket.
func TestValueIndexUnmatchedItems(t *testing.T) {
	index := NewValueIndex([]*repositories.MatchedLineItem{
		matchedItem(models.DocumentTypeIncomeStatement, "40000", "1000.00"),
		unmatchedItem(models.DocumentTypeIncomeStatement, "75.50"),
		unmatchedItem(models.DocumentTypeIncomeStatement, "24.50"),
	}, engineChart())

	assert.Equal(t, 3, index.ItemCount())
	assert.Equal(t, "1100", index.DocumentTotal(models.DocumentTypeIncomeStatement).String())
	assert.Equal(t, "100", index.UnmatchedTotal(models.DocumentTypeIncomeStatement).String())

	income, ok := index.Resolve(&models.ValueSelector{
		DocumentType: models.DocumentTypeIncomeStatement,
		Categories:   []string{models.AccountCategoryIncome},
	})
	require.True(t, ok)
	assert.Equal(t, "1000", income.String())
}

func TestValueIndexHasDocument(t *testing.T) {
	index := NewValueIndex([]*repositories.MatchedLineItem{
		unmatchedItem(models.DocumentTypeCashFlow, "10.00"),
	}, engineChart())

	assert.True(t, index.HasDocument(models.DocumentTypeCashFlow))
	assert.False(t, index.HasDocument(models.DocumentTypeBalanceSheet))
}
