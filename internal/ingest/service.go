package ingest

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/fingerprint"
	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/deploy-sentry/internal/pkg/metrics"
	"github.com/bissquit/deploy-sentry/internal/redact"
)

const (
	// dedupWindow bounds how far back an OPEN incident may have last been
	// seen and still absorb a new matching event.
	dedupWindow = 30 * time.Minute

	maxTitleRunes = 100
)

// reErrorWorthy matches messages that look like failures even when the log
// level and status code say nothing.
var reErrorWorthy = regexp.MustCompile(`(?i)error|failed|exception`)

// Service clusters raw runtime logs into incidents.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// RegisterDeployment records a provider deployment, returning the existing
// row when it was seen before.
func (s *Service) RegisterDeployment(ctx context.Context, externalID, target string) (*domain.Deployment, error) {
	dep, err := s.repo.UpsertDeployment(ctx, externalID, target)
	if err != nil {
		return nil, fmt.Errorf("upsert deployment: %w", err)
	}
	return dep, nil
}

// ProcessBatch ingests a batch of runtime logs for the deployment identified
// by its provider id. Logs at or below the deployment's high-water mark are
// skipped, error-worthy logs are clustered into incidents, and on success the
// mark advances past everything seen so a log is never clustered twice.
func (s *Service) ProcessBatch(ctx context.Context, deploymentExternalID string, logs []domain.LogRecord) error {
	logger := ctxlog.FromContext(ctx)

	dep, err := s.repo.GetDeploymentByExternalID(ctx, deploymentExternalID)
	if err != nil {
		return fmt.Errorf("get deployment: %w", err)
	}

	fresh := make([]domain.LogRecord, 0, len(logs))
	latest := dep.LastProcessedTimestampMs
	for _, rec := range logs {
		if rec.TimestampMs <= dep.LastProcessedTimestampMs {
			continue
		}
		fresh = append(fresh, rec)
		if rec.TimestampMs > latest {
			latest = rec.TimestampMs
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	metrics.LogsIngested.Add(float64(len(fresh)))

	clustered := 0
	for _, rec := range fresh {
		if !errorWorthy(rec) {
			continue
		}
		if err := s.clusterRecord(ctx, dep.ID, rec); err != nil {
			return fmt.Errorf("cluster log %s: %w", rec.RowID, err)
		}
		clustered++
	}

	if err := s.repo.AdvanceHighWaterMark(ctx, dep.ID, latest); err != nil {
		return fmt.Errorf("advance high-water mark: %w", err)
	}

	logger.Info("batch processed",
		"deployment_id", dep.ID,
		"logs_total", len(logs),
		"logs_fresh", len(fresh),
		"logs_clustered", clustered,
	)
	return nil
}

// clusterRecord attributes one error-worthy log to an incident: either the
// OPEN incident for its signature seen within the dedup window, or a fresh
// one. The decision runs in a transaction serialized per signature so
// concurrent batches cannot both create an incident for the same error.
func (s *Service) clusterRecord(ctx context.Context, deploymentID string, rec domain.LogRecord) error {
	var path string
	if rec.RequestPath != nil {
		path = *rec.RequestPath
	}
	signature := fingerprint.Signature(rec.Message, path)
	seenAt := time.UnixMilli(rec.TimestampMs).UTC()
	cutoff := s.now().Add(-dedupWindow)

	event := &domain.IncidentEvent{
		RowID:              rec.RowID,
		TimestampMs:        rec.TimestampMs,
		Level:              rec.Level,
		Source:             rec.Source,
		RequestMethod:      rec.RequestMethod,
		RequestPath:        rec.RequestPath,
		Message:            redact.Redact(rec.Message),
		ResponseStatusCode: rec.ResponseStatusCode,
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.LockSignatureTx(ctx, tx, signature); err != nil {
		return fmt.Errorf("lock signature: %w", err)
	}

	existing, err := s.repo.FindActiveIncidentTx(ctx, tx, signature, cutoff)
	if err != nil {
		return fmt.Errorf("find active incident: %w", err)
	}

	if existing != nil {
		if err := s.repo.AppendEventTx(ctx, tx, existing.ID, seenAt, event); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		metrics.IncidentsClustered.WithLabelValues("appended").Inc()
	} else {
		incident := &domain.Incident{
			ErrorSignature: signature,
			Title:          truncateRunes(rec.Message, maxTitleRunes),
			Status:         domain.IncidentStatusOpen,
			Severity:       severityFor(rec),
			DeploymentID:   deploymentID,
			RequestPath:    rec.RequestPath,
			EventCount:     1,
			FirstSeenAt:    seenAt,
			LastSeenAt:     seenAt,
		}
		if err := s.repo.CreateIncidentTx(ctx, tx, incident, event); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}
		metrics.IncidentsClustered.WithLabelValues("opened").Inc()
	}

	return tx.Commit(ctx)
}

// errorWorthy reports whether a log record should open or feed an incident.
func errorWorthy(rec domain.LogRecord) bool {
	if rec.Level == "error" {
		return true
	}
	if rec.ResponseStatusCode != nil && *rec.ResponseStatusCode >= 500 {
		return true
	}
	return reErrorWorthy.MatchString(rec.Message)
}

// severityFor grades a record by its strongest failure signal.
func severityFor(rec domain.LogRecord) domain.IncidentSeverity {
	serverError := rec.ResponseStatusCode != nil && *rec.ResponseStatusCode >= 500
	switch {
	case serverError && rec.Level == "error":
		return domain.IncidentSeverityCritical
	case serverError || rec.Level == "error":
		return domain.IncidentSeverityMajor
	default:
		return domain.IncidentSeverityMinor
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
