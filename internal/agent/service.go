// Package agent orchestrates one monitoring cycle: fetch the latest
// deployment, drain its runtime logs, cluster them into incidents and push
// new incidents through notification.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/deploy-sentry/internal/pkg/metrics"
	"github.com/bissquit/deploy-sentry/internal/vercel"
)

// Run outcomes.
const (
	StatusNoDeployment = "no_deployment"
	StatusNoLogs       = "no_logs"
	StatusSuccess      = "success"
)

// ErrRunInProgress means another run is already underway in this process.
var ErrRunInProgress = errors.New("agent run already in progress")

// Result summarizes one agent run.
type Result struct {
	Status            string `json:"status"`
	DeploymentID      string `json:"deployment_id,omitempty"`
	LogsFetched       int    `json:"logs_fetched"`
	IncidentsNotified int    `json:"incidents_notified"`
}

// Ingestor is the slice of the ingest service the agent needs.
type Ingestor interface {
	RegisterDeployment(ctx context.Context, externalID, target string) (*domain.Deployment, error)
	ProcessBatch(ctx context.Context, deploymentExternalID string, logs []domain.LogRecord) error
}

// Notifier pushes new incidents through diagnosis and notification.
type Notifier interface {
	HandleNewIncidents(ctx context.Context) (int, error)
}

// Service runs monitoring cycles.
type Service struct {
	provider vercel.Client
	ingestor Ingestor
	notifier Notifier
	running  atomic.Bool
}

func NewService(provider vercel.Client, ingestor Ingestor, notifier Notifier) *Service {
	return &Service{
		provider: provider,
		ingestor: ingestor,
		notifier: notifier,
	}
}

// Run executes one monitoring cycle. Overlapping runs in the same process are
// rejected; runs on other instances are safe because every state change is a
// conditional database update.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	defer func() {
		metrics.AgentRunDuration.Observe(time.Since(start).Seconds())
	}()

	dep, err := s.provider.LatestDeployment(ctx)
	if errors.Is(err, vercel.ErrNoDeployment) {
		logger.Info("agent run: no production deployment")
		return &Result{Status: StatusNoDeployment}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest deployment: %w", err)
	}

	if _, err := s.ingestor.RegisterDeployment(ctx, dep.UID, dep.Target); err != nil {
		return nil, fmt.Errorf("register deployment: %w", err)
	}

	logs, err := s.provider.StreamRuntimeLogs(ctx, dep.UID)
	if err != nil {
		return nil, fmt.Errorf("stream runtime logs: %w", err)
	}

	result := &Result{DeploymentID: dep.UID, LogsFetched: len(logs)}

	if len(logs) > 0 {
		if err := s.ingestor.ProcessBatch(ctx, dep.UID, logs); err != nil {
			return nil, fmt.Errorf("process batch: %w", err)
		}
	}

	// Notification also covers incidents left OPEN by earlier failed runs.
	notified, err := s.notifier.HandleNewIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("handle new incidents: %w", err)
	}
	result.IncidentsNotified = notified

	if len(logs) == 0 {
		result.Status = StatusNoLogs
	} else {
		result.Status = StatusSuccess
	}

	logger.Info("agent run finished",
		"status", result.Status,
		"deployment_id", result.DeploymentID,
		"logs_fetched", result.LogsFetched,
		"incidents_notified", result.IncidentsNotified,
	)
	return result, nil
}
