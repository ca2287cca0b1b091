package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/ingest"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a PostgreSQL implementation of ingest.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) UpsertDeployment(ctx context.Context, externalID, target string) (*domain.Deployment, error) {
	query := `
		INSERT INTO deployments (external_id, target)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE SET target = EXCLUDED.target
		RETURNING id, external_id, target, last_processed_timestamp_ms, last_polled_at, created_at`

	var dep domain.Deployment
	err := r.pool.QueryRow(ctx, query, externalID, target).Scan(
		&dep.ID,
		&dep.ExternalID,
		&dep.Target,
		&dep.LastProcessedTimestampMs,
		&dep.LastPolledAt,
		&dep.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert deployment: %w", err)
	}
	return &dep, nil
}

func (r *Repository) GetDeploymentByExternalID(ctx context.Context, externalID string) (*domain.Deployment, error) {
	query := `
		SELECT id, external_id, target, last_processed_timestamp_ms, last_polled_at, created_at
		FROM deployments
		WHERE external_id = $1`

	var dep domain.Deployment
	err := r.pool.QueryRow(ctx, query, externalID).Scan(
		&dep.ID,
		&dep.ExternalID,
		&dep.Target,
		&dep.LastProcessedTimestampMs,
		&dep.LastPolledAt,
		&dep.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ingest.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return &dep, nil
}

func (r *Repository) AdvanceHighWaterMark(ctx context.Context, deploymentID string, timestampMs int64) error {
	// GREATEST keeps the mark monotonic under concurrent batches.
	query := `
		UPDATE deployments
		SET last_processed_timestamp_ms = GREATEST(last_processed_timestamp_ms, $2),
		    last_polled_at = NOW()
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, deploymentID, timestampMs); err != nil {
		return fmt.Errorf("advance high-water mark: %w", err)
	}
	return nil
}

func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) LockSignatureTx(ctx context.Context, tx pgx.Tx, signature string) error {
	// Advisory transaction lock keyed by the signature hash. Released
	// automatically on commit or rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, signature); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func (r *Repository) FindActiveIncidentTx(ctx context.Context, tx pgx.Tx, signature string, cutoff time.Time) (*domain.Incident, error) {
	query := `
		SELECT id, error_signature, title, status, severity, deployment_id, request_path,
		       event_count, first_seen_at, last_seen_at, analysis_id, created_at, updated_at
		FROM incidents
		WHERE error_signature = $1 AND status = $2 AND last_seen_at >= $3
		ORDER BY last_seen_at DESC
		LIMIT 1
		FOR UPDATE`

	var inc domain.Incident
	err := tx.QueryRow(ctx, query, signature, domain.IncidentStatusOpen, cutoff).Scan(
		&inc.ID,
		&inc.ErrorSignature,
		&inc.Title,
		&inc.Status,
		&inc.Severity,
		&inc.DeploymentID,
		&inc.RequestPath,
		&inc.EventCount,
		&inc.FirstSeenAt,
		&inc.LastSeenAt,
		&inc.AnalysisID,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active incident: %w", err)
	}
	return &inc, nil
}

func (r *Repository) AppendEventTx(ctx context.Context, tx pgx.Tx, incidentID string, lastSeenAt time.Time, event *domain.IncidentEvent) error {
	update := `
		UPDATE incidents
		SET event_count = event_count + 1,
		    last_seen_at = GREATEST(last_seen_at, $2),
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, update, incidentID, lastSeenAt); err != nil {
		return fmt.Errorf("bump incident: %w", err)
	}

	if err := insertEvent(ctx, tx, incidentID, event); err != nil {
		return err
	}
	return nil
}

func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, event *domain.IncidentEvent) error {
	query := `
		INSERT INTO incidents (error_signature, title, status, severity, deployment_id,
		                       request_path, event_count, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRow(ctx, query,
		incident.ErrorSignature,
		incident.Title,
		incident.Status,
		incident.Severity,
		incident.DeploymentID,
		incident.RequestPath,
		incident.EventCount,
		incident.FirstSeenAt,
		incident.LastSeenAt,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	return insertEvent(ctx, tx, incident.ID, event)
}

func insertEvent(ctx context.Context, tx pgx.Tx, incidentID string, event *domain.IncidentEvent) error {
	query := `
		INSERT INTO incident_events (incident_id, row_id, timestamp_ms, level, source,
		                             request_method, request_path, message, response_status_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		incidentID,
		event.RowID,
		event.TimestampMs,
		event.Level,
		event.Source,
		event.RequestMethod,
		event.RequestPath,
		event.Message,
		event.ResponseStatusCode,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
