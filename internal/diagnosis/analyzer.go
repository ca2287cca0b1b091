package diagnosis

import (
	"context"

	"github.com/bissquit/deploy-sentry/internal/domain"
)

// Request carries the evidence for one incident signature.
type Request struct {
	ErrorSignature string
	Title          string
	EvidenceLines  []string
}

// Report is a structured diagnosis produced by a provider.
type Report struct {
	Summary           string
	LikelyCauses      []domain.LikelyCause
	RecommendedAction string
	NextSteps         []string
}

// Analyzer produces a diagnosis report for an incident.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request) (*Report, error)
}
