package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a PostgreSQL implementation of approval.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateApproval(ctx context.Context, approval *domain.Approval) error {
	query := `
		INSERT INTO approvals (incident_id, token_hash, token_expires_at, action)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		approval.IncidentID,
		approval.TokenHash,
		approval.TokenExpiresAt,
		approval.Action,
	).Scan(&approval.ID, &approval.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

func (r *Repository) GetByTokenHash(ctx context.Context, incidentID, tokenHash string) (*domain.Approval, error) {
	query := `
		SELECT id, incident_id, token_hash, token_expires_at, used_at, action, created_at
		FROM approvals
		WHERE incident_id = $1 AND token_hash = $2`

	var a domain.Approval
	err := r.pool.QueryRow(ctx, query, incidentID, tokenHash).Scan(
		&a.ID,
		&a.IncidentID,
		&a.TokenHash,
		&a.TokenExpiresAt,
		&a.UsedAt,
		&a.Action,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &a, nil
}

func (r *Repository) ConsumeApproval(ctx context.Context, id string, action domain.ApprovalAction) (bool, error) {
	query := `
		UPDATE approvals
		SET used_at = NOW(), action = $2
		WHERE id = $1 AND used_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, action)
	if err != nil {
		return false, fmt.Errorf("consume approval: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) InvalidateForIncident(ctx context.Context, incidentID string) (int64, error) {
	query := `
		UPDATE approvals
		SET used_at = NOW()
		WHERE incident_id = $1 AND used_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, incidentID)
	if err != nil {
		return 0, fmt.Errorf("invalidate approvals: %w", err)
	}
	return tag.RowsAffected(), nil
}
