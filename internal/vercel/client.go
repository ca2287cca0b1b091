package vercel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bissquit/deploy-sentry/internal/config"
	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
)

// Sentinel errors for Vercel client failures.
var (
	ErrAPIError     = errors.New("vercel api error")
	ErrNoDeployment = errors.New("no production deployment found")
	ErrNoDeployHook = errors.New("deploy hook url not configured")
)

// Client is the interface to the deployment provider.
type Client interface {
	// LatestDeployment returns the newest production deployment, or
	// ErrNoDeployment when the project has none.
	LatestDeployment(ctx context.Context) (*ProviderDeployment, error)

	// StreamRuntimeLogs drains the NDJSON runtime log stream for a
	// deployment, bounded by the configured event and duration caps.
	StreamRuntimeLogs(ctx context.Context, deploymentID string) ([]domain.LogRecord, error)

	// TriggerDeployHook fires the configured deploy hook.
	TriggerDeployHook(ctx context.Context) error
}

// ProviderDeployment is a deployment as reported by the provider API.
type ProviderDeployment struct {
	UID    string `json:"uid"`
	Target string `json:"target"`
	State  string `json:"state"`
}

// HTTPClient implements Client against the Vercel REST API.
type HTTPClient struct {
	baseURL       string
	apiToken      string
	teamID        string
	projectID     string
	deployHookURL string
	maxEvents     int
	maxDuration   time.Duration
	client        *http.Client
}

func NewHTTPClient(cfg config.VercelConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:       cfg.BaseURL,
		apiToken:      cfg.APIToken,
		teamID:        cfg.TeamID,
		projectID:     cfg.ProjectID,
		deployHookURL: cfg.DeployHookURL,
		maxEvents:     cfg.MaxStreamEvents,
		maxDuration:   cfg.MaxStreamDuration,
		client:        &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type deploymentsResponse struct {
	Deployments []ProviderDeployment `json:"deployments"`
}

func (c *HTTPClient) LatestDeployment(ctx context.Context) (*ProviderDeployment, error) {
	params := url.Values{
		"projectId": {c.projectID},
		"target":    {"production"},
		"limit":     {"1"},
	}
	if c.teamID != "" {
		params.Set("teamId", c.teamID)
	}
	u := fmt.Sprintf("%s/v6/deployments?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	var payload deploymentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding deployments response: %w", err)
	}
	if len(payload.Deployments) == 0 {
		return nil, ErrNoDeployment
	}
	return &payload.Deployments[0], nil
}

// runtimeLogEntry mirrors one NDJSON line of the runtime log stream.
type runtimeLogEntry struct {
	RowID              string `json:"rowId"`
	TimestampInMs      int64  `json:"timestampInMs"`
	Level              string `json:"level"`
	Message            string `json:"message"`
	Source             string `json:"source"`
	RequestMethod      string `json:"requestMethod"`
	RequestPath        string `json:"requestPath"`
	ResponseStatusCode int    `json:"responseStatusCode"`
}

func (c *HTTPClient) StreamRuntimeLogs(ctx context.Context, deploymentID string) ([]domain.LogRecord, error) {
	logger := ctxlog.FromContext(ctx)

	// The stream never closes on its own; the duration cap is the way out.
	ctx, cancel := context.WithTimeout(ctx, c.maxDuration)
	defer cancel()

	params := url.Values{"format": {"json"}}
	if c.teamID != "" {
		params.Set("teamId", c.teamID)
	}
	u := fmt.Sprintf("%s/v1/projects/%s/deployments/%s/runtime-logs?%s",
		c.baseURL, url.PathEscape(c.projectID), url.PathEscape(deploymentID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	// Streaming request: the overall client timeout would kill the read
	// before the duration cap, so use a bare client and rely on ctx.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("open runtime log stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	records := make([]domain.LogRecord, 0, c.maxEvents)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for len(records) < c.maxEvents && scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry runtimeLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// Keepalives and partial lines are expected on this stream.
			logger.Debug("skipping malformed log line", "error", err)
			continue
		}
		if entry.RowID == "" || entry.TimestampInMs == 0 {
			continue
		}
		records = append(records, toLogRecord(entry))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		// A truncated stream still yields what was read so far.
		logger.Warn("runtime log stream closed early", "error", err, "events", len(records))
	}

	return records, nil
}

func (c *HTTPClient) TriggerDeployHook(ctx context.Context) error {
	if c.deployHookURL == "" {
		return ErrNoDeployHook
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.deployHookURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger deploy hook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: deploy hook returned status %d", ErrAPIError, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
}

func toLogRecord(entry runtimeLogEntry) domain.LogRecord {
	rec := domain.LogRecord{
		RowID:       entry.RowID,
		TimestampMs: entry.TimestampInMs,
		Level:       entry.Level,
		Message:     entry.Message,
	}
	if entry.Source != "" {
		rec.Source = &entry.Source
	}
	if entry.RequestMethod != "" {
		rec.RequestMethod = &entry.RequestMethod
	}
	if entry.RequestPath != "" {
		rec.RequestPath = &entry.RequestPath
	}
	if entry.ResponseStatusCode != 0 {
		rec.ResponseStatusCode = &entry.ResponseStatusCode
	}
	return rec
}

var _ Client = (*HTTPClient)(nil)
