package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// ChartRepository provides read access to the canonical chart of accounts.
// The chart is reference data: read-only during reconciliation and rule runs.
type ChartRepository interface {
	GetByCode(ctx context.Context, code string) (*models.ChartOfAccountsEntry, error)
	ListAll(ctx context.Context) ([]*models.ChartOfAccountsEntry, error)
	ListByCategory(ctx context.Context, category string) ([]*models.ChartOfAccountsEntry, error)
}

type chartRepository struct{}

// NewChartRepository creates a new ChartRepository.
func NewChartRepository() ChartRepository {
	return &chartRepository{}
}

var _ ChartRepository = (*chartRepository)(nil)

func (r *chartRepository) GetByCode(ctx context.Context, code string) (*models.ChartOfAccountsEntry, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT code, name, COALESCE(parent_code, ''), category
		FROM chart_of_accounts
		WHERE code = $1`

	var e models.ChartOfAccountsEntry
	err := q.QueryRow(ctx, query, code).Scan(&e.Code, &e.Name, &e.ParentCode, &e.Category)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No such account
		}
		return nil, fmt.Errorf("failed to query chart entry: %w", err)
	}

	return &e, nil
}

func (r *chartRepository) ListAll(ctx context.Context) ([]*models.ChartOfAccountsEntry, error) {
	return r.list(ctx, `
		SELECT code, name, COALESCE(parent_code, ''), category
		FROM chart_of_accounts
		ORDER BY code`)
}

func (r *chartRepository) ListByCategory(ctx context.Context, category string) ([]*models.ChartOfAccountsEntry, error) {
	return r.list(ctx, `
		SELECT code, name, COALESCE(parent_code, ''), category
		FROM chart_of_accounts
		WHERE category = $1
		ORDER BY code`, category)
}

func (r *chartRepository) list(ctx context.Context, query string, args ...any) ([]*models.ChartOfAccountsEntry, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chart of accounts: %w", err)
	}
	defer rows.Close()

	var entries []*models.ChartOfAccountsEntry
	for rows.Next() {
		var e models.ChartOfAccountsEntry
		if err := rows.Scan(&e.Code, &e.Name, &e.ParentCode, &e.Category); err != nil {
			return nil, fmt.Errorf("failed to scan chart entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chart of accounts: %w", err)
	}

	return entries, nil
}
