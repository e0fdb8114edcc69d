package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clearstate-inc/recon-engine/pkg/apperrors"
	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/models"
)

// SessionRepository provides data access for reconciliation sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ReconciliationSession) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*models.ReconciliationSession, error)

	// FindInProgress returns open sessions for the same triple, used to
	// advisory-flag concurrent passes to the caller.
	FindInProgress(ctx context.Context, propertyID, periodID uuid.UUID, documentType string) ([]*models.ReconciliationSession, error)

	// UpdateSummary persists the recomputed summary counters.
	UpdateSummary(ctx context.Context, sessionID uuid.UUID, summary models.SessionSummary) error

	// Finalize moves the session to a terminal status and stamps completed_at.
	Finalize(ctx context.Context, sessionID uuid.UUID, status string, completedAt time.Time) error
}

type sessionRepository struct{}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepository{}
}

var _ SessionRepository = (*sessionRepository)(nil)

const sessionColumns = `
	id, property_id, period_id, document_type, status, started_by,
	started_at, completed_at, summary_total, summary_matches,
	summary_differences, summary_missing_in_source,
	summary_missing_in_target, summary_resolved`

func (r *sessionRepository) Create(ctx context.Context, session *models.ReconciliationSession) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		INSERT INTO reconciliation_sessions (
			property_id, period_id, document_type, status, started_by, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	now := time.Now()
	err := q.QueryRow(ctx, query,
		session.PropertyID,
		session.PeriodID,
		session.DocumentType,
		models.SessionStatusInProgress,
		session.StartedBy,
		now,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation session: %w", err)
	}

	session.Status = models.SessionStatusInProgress
	session.StartedAt = now
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*models.ReconciliationSession, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions WHERE id = $1`

	s, err := scanSession(q.QueryRow(ctx, query, sessionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) FindInProgress(ctx context.Context, propertyID, periodID uuid.UUID, documentType string) ([]*models.ReconciliationSession, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no querier in context")
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM reconciliation_sessions
		WHERE property_id = $1 AND period_id = $2 AND document_type = $3 AND status = $4
		ORDER BY started_at`

	rows, err := q.Query(ctx, query, propertyID, periodID, documentType, models.SessionStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to query in-progress sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ReconciliationSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func (r *sessionRepository) UpdateSummary(ctx context.Context, sessionID uuid.UUID, summary models.SessionSummary) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	query := `
		UPDATE reconciliation_sessions
		SET summary_total = $2, summary_matches = $3, summary_differences = $4,
		    summary_missing_in_source = $5, summary_missing_in_target = $6,
		    summary_resolved = $7
		WHERE id = $1`

	result, err := q.Exec(ctx, query,
		sessionID,
		summary.Total,
		summary.Matches,
		summary.Differences,
		summary.MissingInSource,
		summary.MissingInTarget,
		summary.Resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to update session summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *sessionRepository) Finalize(ctx context.Context, sessionID uuid.UUID, status string, completedAt time.Time) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no querier in context")
	}

	// Terminal states only; an already-finalized session is never reopened.
	query := `
		UPDATE reconciliation_sessions
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status = $4`

	result, err := q.Exec(ctx, query, sessionID, status, completedAt, models.SessionStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrSessionNotOpen
	}
	return nil
}

func scanSession(row pgx.Row) (*models.ReconciliationSession, error) {
	var s models.ReconciliationSession
	err := row.Scan(
		&s.ID,
		&s.PropertyID,
		&s.PeriodID,
		&s.DocumentType,
		&s.Status,
		&s.StartedBy,
		&s.StartedAt,
		&s.CompletedAt,
		&s.Summary.Total,
		&s.Summary.Matches,
		&s.Summary.Differences,
		&s.Summary.MissingInSource,
		&s.Summary.MissingInTarget,
		&s.Summary.Resolved,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}
