package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/deploy-sentry/internal/config"
	"github.com/bissquit/deploy-sentry/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are a production incident analyst. You receive an error signature and recent log evidence from a serverless deployment. Respond with a single JSON object with keys:
  "summary": one-paragraph description of what is failing,
  "likely_causes": array of {"cause": string, "confidence": number 0..1, "evidence": string},
  "recommended_action": one of "redeploy", "rollback", "investigate", "ignore",
  "next_steps": array of short imperative strings.
Base every cause on the evidence given. Do not invent log lines.`

const (
	maxCauses    = 5
	maxNextSteps = 8
)

// OpenAIProvider implements Analyzer against the OpenAI chat completions API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIProvider(cfg config.DiagnosisConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Analyze(ctx context.Context, req Request) (*Report, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	report, err := parseReport(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse diagnosis: %w", err)
	}
	return report, nil
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error signature: %s\n", req.ErrorSignature)
	if req.Title != "" {
		fmt.Fprintf(&b, "Incident title: %s\n", req.Title)
	}
	b.WriteString("Recent log evidence (newest first):\n")
	for _, line := range req.EvidenceLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

type reportPayload struct {
	Summary      string `json:"summary"`
	LikelyCauses []struct {
		Cause      string  `json:"cause"`
		Confidence float64 `json:"confidence"`
		Evidence   string  `json:"evidence"`
	} `json:"likely_causes"`
	RecommendedAction string   `json:"recommended_action"`
	NextSteps         []string `json:"next_steps"`
}

// parseReport decodes the model output, clamping confidences to [0, 1] and
// capping list lengths. Model output is untrusted input.
func parseReport(raw string) (*Report, error) {
	var payload reportPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	if payload.Summary == "" {
		return nil, fmt.Errorf("missing summary")
	}

	report := &Report{
		Summary:           payload.Summary,
		RecommendedAction: payload.RecommendedAction,
	}

	for i, c := range payload.LikelyCauses {
		if i == maxCauses {
			break
		}
		confidence := c.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		report.LikelyCauses = append(report.LikelyCauses, domain.LikelyCause{
			Cause:      c.Cause,
			Confidence: confidence,
			Evidence:   c.Evidence,
		})
	}

	for i, step := range payload.NextSteps {
		if i == maxNextSteps {
			break
		}
		report.NextSteps = append(report.NextSteps, step)
	}

	return report, nil
}

var _ Analyzer = (*OpenAIProvider)(nil)
