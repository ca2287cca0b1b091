package ingest

import (
	"context"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the persistence interface for log ingestion.
type Repository interface {
	// UpsertDeployment registers a deployment or returns the existing row
	// for the provider deployment id.
	UpsertDeployment(ctx context.Context, externalID, target string) (*domain.Deployment, error)
	GetDeploymentByExternalID(ctx context.Context, externalID string) (*domain.Deployment, error)

	// AdvanceHighWaterMark raises the deployment's last processed timestamp
	// (never lowers it) and stamps last_polled_at.
	AdvanceHighWaterMark(ctx context.Context, deploymentID string, timestampMs int64) error

	// Transaction support for the atomic append-or-create decision.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// LockSignatureTx serializes clustering for one signature across
	// concurrent batches. Held until the transaction ends.
	LockSignatureTx(ctx context.Context, tx pgx.Tx, signature string) error

	// FindActiveIncidentTx returns the OPEN incident with the given
	// signature last seen at or after cutoff, or nil if none exists.
	FindActiveIncidentTx(ctx context.Context, tx pgx.Tx, signature string, cutoff time.Time) (*domain.Incident, error)

	// AppendEventTx increments the incident's event count, advances its
	// last_seen_at and inserts the event, all within tx.
	AppendEventTx(ctx context.Context, tx pgx.Tx, incidentID string, lastSeenAt time.Time, event *domain.IncidentEvent) error

	// CreateIncidentTx inserts a new incident together with its first event.
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, event *domain.IncidentEvent) error
}
