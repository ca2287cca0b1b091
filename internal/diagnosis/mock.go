package diagnosis

import (
	"context"

	"github.com/bissquit/deploy-sentry/internal/domain"
)

// MockProvider satisfies Analyzer without calling any external API. Used in
// tests and in deployments that want the pipeline without an LLM bill.
type MockProvider struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req Request) (*Report, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Analyze(ctx context.Context, req Request) (*Report, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return &Report{}, nil
}

// NewMockProvider returns a MockProvider with a deterministic default report.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, req Request) (*Report, error) {
			return &Report{
				Summary: "Simulated diagnosis for signature " + req.ErrorSignature,
				LikelyCauses: []domain.LikelyCause{
					{Cause: "Simulated root cause", Confidence: 0.85, Evidence: "mock evidence"},
				},
				RecommendedAction: "investigate",
				NextSteps:         []string{"Check application logs for more context"},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ Request) (*Report, error) {
			return nil, err
		},
	}
}

var _ Analyzer = (*MockProvider)(nil)
