package diagnosis

import (
	"fmt"

	"github.com/bissquit/deploy-sentry/internal/config"
)

// NewAnalyzer constructs the configured diagnosis provider.
// Called once at server startup.
func NewAnalyzer(cfg config.DiagnosisConfig) (Analyzer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown diagnosis provider %q: must be one of openai, mock", cfg.Provider)
	}
}
