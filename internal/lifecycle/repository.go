package lifecycle

import (
	"context"

	"github.com/bissquit/deploy-sentry/internal/domain"
)

// ListFilter narrows incident listings.
type ListFilter struct {
	Status *domain.IncidentStatus
	Limit  int
}

// Repository defines the persistence interface for incident lifecycle.
type Repository interface {
	ListIncidents(ctx context.Context, filter ListFilter) ([]domain.Incident, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)

	// ListNewestEvents returns up to limit events, newest first.
	ListNewestEvents(ctx context.Context, incidentID string, limit int) ([]domain.IncidentEvent, error)

	// GetAnalysisBySignature returns the cached analysis for a signature,
	// or nil when none exists.
	GetAnalysisBySignature(ctx context.Context, signature string) (*domain.Analysis, error)

	// UpsertAnalysis persists an analysis keyed by its signature. When a
	// concurrent writer got there first, the stored row wins and is
	// returned unchanged.
	UpsertAnalysis(ctx context.Context, analysis *domain.Analysis) (*domain.Analysis, error)

	LinkAnalysis(ctx context.Context, incidentID, analysisID string) error

	// TransitionStatus moves the incident from any of the given statuses to
	// the target in one conditional update. Returns false when the incident
	// was not in an allowed status, which means another actor moved it.
	TransitionStatus(ctx context.Context, id string, from []domain.IncidentStatus, to domain.IncidentStatus) (bool, error)
}
