package agent

import (
	"context"
	"time"

	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
)

// Scheduler runs the agent on a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration
}

func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	return &Scheduler{service: service, interval: interval}
}

// Start blocks, running the agent every interval until ctx is cancelled.
// A failed run is logged and the schedule continues.
func (s *Scheduler) Start(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("agent scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("agent scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.service.Run(ctx); err != nil {
				logger.Error("scheduled agent run failed", "error", err)
			}
		}
	}
}
