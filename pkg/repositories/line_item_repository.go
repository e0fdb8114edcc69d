package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// MatchedLineItem pairs a line item with the match result persisted for it.
type MatchedLineItem struct {
	Item  models.LineItem
	Match models.MatchResult
}

// LineItemRepository provides data access for extracted line items and the
// match results stored alongside them.
type LineItemRepository interface {
	// InsertBatch persists one extraction batch with its match results.
	// Duplicate (property, period, code, name) combinations are distinct rows:
	// hierarchical statements carry detail and subtotal rows for the same code.
	InsertBatch(ctx context.Context, items []*MatchedLineItem) error

	// ListForPeriod returns all line items for a property/period, ordered by
	// document type then account code for stable iteration.
	ListForPeriod(ctx context.Context, propertyID, periodID uuid.UUID) ([]*MatchedLineItem, error)

	// ListUnmatched returns items flagged for manual review.
	ListUnmatched(ctx context.Context, propertyID, periodID uuid.UUID) ([]*MatchedLineItem, error)
}

type lineItemRepository struct{}

// NewLineItemRepository creates a new LineItemRepository.
func NewLineItemRepository() LineItemRepository {
	return &lineItemRepository{}
}

var _ LineItemRepository = (*lineItemRepository)(nil)

func (r *lineItemRepository) InsertBatch(ctx context.Context, items []*MatchedLineItem) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO line_items (
			property_id, period_id, document_type, account_code, account_name,
			raw_label, amount, account_level, extraction_method,
			matched_code, match_strategy, match_confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	now := time.Now()
	for _, mi := range items {
		err := q.QueryRow(ctx, query,
			mi.Item.PropertyID,
			mi.Item.PeriodID,
			mi.Item.DocumentType,
			nullString(mi.Item.AccountCode),
			mi.Item.AccountName,
			mi.Item.RawLabel,
			mi.Item.Amount,
			mi.Item.AccountLevel,
			mi.Item.ExtractionMethod,
			nullString(mi.Match.MatchedCode),
			mi.Match.MatchStrategy,
			mi.Match.Confidence,
			now,
		).Scan(&mi.Item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert line item %q: %w", mi.Item.RawLabel, err)
		}
		mi.Item.CreatedAt = now
		mi.Match.LineItemID = mi.Item.ID
	}

	return nil
}

func (r *lineItemRepository) ListForPeriod(ctx context.Context, propertyID, periodID uuid.UUID) ([]*MatchedLineItem, error) {
	return r.list(ctx, `
		SELECT id, property_id, period_id, document_type, COALESCE(account_code, ''),
		       account_name, raw_label, amount, account_level, extraction_method,
		       COALESCE(matched_code, ''), match_strategy, match_confidence, created_at
		FROM line_items
		WHERE property_id = $1 AND period_id = $2
		ORDER BY document_type, account_code, id`, propertyID, periodID)
}

func (r *lineItemRepository) ListUnmatched(ctx context.Context, propertyID, periodID uuid.UUID) ([]*MatchedLineItem, error) {
	return r.list(ctx, `
		SELECT id, property_id, period_id, document_type, COALESCE(account_code, ''),
		       account_name, raw_label, amount, account_level, extraction_method,
		       COALESCE(matched_code, ''), match_strategy, match_confidence, created_at
		FROM line_items
		WHERE property_id = $1 AND period_id = $2 AND match_strategy = $3
		ORDER BY document_type, raw_label, id`, propertyID, periodID, models.MatchStrategyUnmatched)
}

func (r *lineItemRepository) list(ctx context.Context, query string, args ...any) ([]*MatchedLineItem, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []*MatchedLineItem
	for rows.Next() {
		var mi MatchedLineItem
		err := rows.Scan(
			&mi.Item.ID,
			&mi.Item.PropertyID,
			&mi.Item.PeriodID,
			&mi.Item.DocumentType,
			&mi.Item.AccountCode,
			&mi.Item.AccountName,
			&mi.Item.RawLabel,
			&mi.Item.Amount,
			&mi.Item.AccountLevel,
			&mi.Item.ExtractionMethod,
			&mi.Match.MatchedCode,
			&mi.Match.MatchStrategy,
			&mi.Match.Confidence,
			&mi.Item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		mi.Match.LineItemID = mi.Item.ID
		items = append(items, &mi)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line items: %w", err)
	}

	return items, nil
}

// nullString returns nil if the string is empty, otherwise returns the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
