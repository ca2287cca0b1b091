// Package postgres provides the PostgreSQL implementation of the lifecycle repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/lifecycle"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the lifecycle.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `id, error_signature, title, status, severity, deployment_id, request_path,
	event_count, first_seen_at, last_seen_at, analysis_id, created_at, updated_at`

func (r *Repository) ListIncidents(ctx context.Context, filter lifecycle.ListFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	args := []any{}
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY last_seen_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	row := r.db.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lifecycle.ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

func (r *Repository) ListNewestEvents(ctx context.Context, incidentID string, limit int) ([]domain.IncidentEvent, error) {
	query := `
		SELECT row_id, timestamp_ms, level, source, request_method, request_path, message, response_status_code
		FROM incident_events
		WHERE incident_id = $1
		ORDER BY timestamp_ms DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, incidentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.IncidentEvent, 0, limit)
	for rows.Next() {
		var ev domain.IncidentEvent
		err := rows.Scan(
			&ev.RowID,
			&ev.TimestampMs,
			&ev.Level,
			&ev.Source,
			&ev.RequestMethod,
			&ev.RequestPath,
			&ev.Message,
			&ev.ResponseStatusCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *Repository) GetAnalysisBySignature(ctx context.Context, signature string) (*domain.Analysis, error) {
	query := `
		SELECT id, error_signature, summary, likely_causes, recommended_action, next_steps, created_at
		FROM analyses
		WHERE error_signature = $1`

	var a domain.Analysis
	err := r.db.QueryRow(ctx, query, signature).Scan(
		&a.ID,
		&a.ErrorSignature,
		&a.Summary,
		&a.LikelyCauses,
		&a.RecommendedAction,
		&a.NextSteps,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &a, nil
}

func (r *Repository) UpsertAnalysis(ctx context.Context, analysis *domain.Analysis) (*domain.Analysis, error) {
	// DO UPDATE on a no-op column change makes RETURNING yield the existing
	// row when a concurrent writer won, so the first stored diagnosis per
	// signature is the canonical one.
	query := `
		INSERT INTO analyses (error_signature, summary, likely_causes, recommended_action, next_steps)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (error_signature) DO UPDATE SET error_signature = EXCLUDED.error_signature
		RETURNING id, error_signature, summary, likely_causes, recommended_action, next_steps, created_at`

	var stored domain.Analysis
	err := r.db.QueryRow(ctx, query,
		analysis.ErrorSignature,
		analysis.Summary,
		analysis.LikelyCauses,
		analysis.RecommendedAction,
		analysis.NextSteps,
	).Scan(
		&stored.ID,
		&stored.ErrorSignature,
		&stored.Summary,
		&stored.LikelyCauses,
		&stored.RecommendedAction,
		&stored.NextSteps,
		&stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	return &stored, nil
}

func (r *Repository) LinkAnalysis(ctx context.Context, incidentID, analysisID string) error {
	query := `UPDATE incidents SET analysis_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, incidentID, analysisID); err != nil {
		return fmt.Errorf("link analysis: %w", err)
	}
	return nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id string, from []domain.IncidentStatus, to domain.IncidentStatus) (bool, error) {
	query := `
		UPDATE incidents
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`

	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}

	tag, err := r.db.Exec(ctx, query, id, to, statuses)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
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
	if err != nil {
		return nil, err
	}
	return &inc, nil
}
