package approval

import (
	"context"

	"github.com/bissquit/deploy-sentry/internal/domain"
)

// Repository defines the persistence interface for approval tokens.
type Repository interface {
	CreateApproval(ctx context.Context, approval *domain.Approval) error

	// GetByTokenHash looks an approval up by incident and token digest.
	// Returns nil when no such approval exists.
	GetByTokenHash(ctx context.Context, incidentID, tokenHash string) (*domain.Approval, error)

	// ConsumeApproval marks the approval used and records the redeemed
	// action. The update is conditional on used_at still being NULL, so
	// exactly one concurrent redeemer wins; returns false for the losers.
	ConsumeApproval(ctx context.Context, id string, action domain.ApprovalAction) (bool, error)

	// InvalidateForIncident consumes every outstanding approval for the
	// incident, returning how many were invalidated.
	InvalidateForIncident(ctx context.Context, incidentID string) (int64, error)
}
