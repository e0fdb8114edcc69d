package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/models"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
)

// StatementLine is one raw extracted row handed to ingestion. LegacyCode
// carries a mapping from a prior system; it is re-validated, never trusted.
type StatementLine struct {
	AccountCode      string          `json:"account_code"`
	AccountName      string          `json:"account_name"`
	RawLabel         string          `json:"raw_label"`
	Amount           decimal.Decimal `json:"amount"`
	AccountLevel     int             `json:"account_level"`
	ExtractionMethod string          `json:"extraction_method"`
	LegacyCode       string          `json:"legacy_code,omitempty"`
}

// IngestionService matches and persists extraction batches.
type IngestionService interface {
	// IngestBatch runs every line through the matching cascade and persists
	// the batch with its match results. Unmatched lines are stored and
	// flagged, never dropped.
	IngestBatch(ctx context.Context, propertyID, periodID uuid.UUID, documentType string, lines []StatementLine) ([]*repositories.MatchedLineItem, error)

	// ListUnmatched returns the items awaiting manual review.
	ListUnmatched(ctx context.Context, propertyID, periodID uuid.UUID) ([]*repositories.MatchedLineItem, error)
}

type ingestionService struct {
	matcher      AccountMatcher
	lineItemRepo repositories.LineItemRepository
	logger       *zap.Logger
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(matcher AccountMatcher, lineItemRepo repositories.LineItemRepository, logger *zap.Logger) IngestionService {
	return &ingestionService{
		matcher:      matcher,
		lineItemRepo: lineItemRepo,
		logger:       logger.Named("ingestion"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

func (s *ingestionService) IngestBatch(ctx context.Context, propertyID, periodID uuid.UUID, documentType string, lines []StatementLine) ([]*repositories.MatchedLineItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty batch for document type %s", documentType)
	}

	items := make([]*repositories.MatchedLineItem, 0, len(lines))
	unmatched := 0
	for _, line := range lines {
		label := line.RawLabel
		if label == "" {
			label = line.AccountName
		}
		method := line.ExtractionMethod
		if method == "" {
			method = models.ExtractionMethodLayout
		}

		match := s.matcher.Match(label, line.AccountCode, documentType, MatchContext{
			LegacyCode: line.LegacyCode,
		})
		if !match.Matched() {
			unmatched++
		}

		items = append(items, &repositories.MatchedLineItem{
			Item: models.LineItem{
				PropertyID:       propertyID,
				PeriodID:         periodID,
				DocumentType:     documentType,
				AccountCode:      line.AccountCode,
				AccountName:      line.AccountName,
				RawLabel:         label,
				Amount:           line.Amount,
				AccountLevel:     line.AccountLevel,
				ExtractionMethod: method,
			},
			Match: match,
		})
	}

	if err := s.lineItemRepo.InsertBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}

	s.logger.Info("batch ingested",
		zap.String("property_id", propertyID.String()),
		zap.String("period_id", periodID.String()),
		zap.String("document_type", documentType),
		zap.Int("items", len(items)),
		zap.Int("unmatched", unmatched))

	return items, nil
}

func (s *ingestionService) ListUnmatched(ctx context.Context, propertyID, periodID uuid.UUID) ([]*repositories.MatchedLineItem, error) {
	return s.lineItemRepo.ListUnmatched(ctx, propertyID, periodID)
}
