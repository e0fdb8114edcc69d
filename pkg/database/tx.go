package database

import (
	"context"
	"fmt"
)

// WithTransaction runs fn inside a single database transaction and places the
// transaction in the context as the active querier. This is the atomic
// boundary for one reconciliation or rule-engine run: either everything fn
// wrote is committed, or the whole run is rolled back and the caller retries
// the entire run.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := WithQuerier(ctx, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
