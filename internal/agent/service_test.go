package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/vercel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider implements vercel.Client for testing.
type mockProvider struct {
	deployment *vercel.ProviderDeployment
	depErr     error
	logs       []domain.LogRecord
	logsErr    error
	hookCalls  int
	streamWait time.Duration
}

func (m *mockProvider) LatestDeployment(_ context.Context) (*vercel.ProviderDeployment, error) {
	if m.depErr != nil {
		return nil, m.depErr
	}
	return m.deployment, nil
}

func (m *mockProvider) StreamRuntimeLogs(_ context.Context, _ string) ([]domain.LogRecord, error) {
	if m.streamWait > 0 {
		time.Sleep(m.streamWait)
	}
	return m.logs, m.logsErr
}

func (m *mockProvider) TriggerDeployHook(_ context.Context) error {
	m.hookCalls++
	return nil
}

// mockIngestor implements Ingestor for testing.
type mockIngestor struct {
	registered []string
	batches    [][]domain.LogRecord
	batchErr   error
}

func (m *mockIngestor) RegisterDeployment(_ context.Context, externalID, target string) (*domain.Deployment, error) {
	m.registered = append(m.registered, externalID)
	return &domain.Deployment{ID: "dep-row", ExternalID: externalID, Target: target}, nil
}

func (m *mockIngestor) ProcessBatch(_ context.Context, _ string, logs []domain.LogRecord) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	m.batches = append(m.batches, logs)
	return nil
}

// mockNotifier implements Notifier for testing.
type mockNotifier struct {
	notified int
	calls    int
	err      error
}

func (m *mockNotifier) HandleNewIncidents(_ context.Context) (int, error) {
	m.calls++
	return m.notified, m.err
}

func TestRun_Success(t *testing.T) {
	provider := &mockProvider{
		deployment: &vercel.ProviderDeployment{UID: "dpl_1", Target: "production"},
		logs: []domain.LogRecord{
			{RowID: "r1", TimestampMs: 100, Level: "error", Message: "boom"},
		},
	}
	ingestor := &mockIngestor{}
	notifier := &mockNotifier{notified: 2}
	svc := NewService(provider, ingestor, notifier)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "dpl_1", result.DeploymentID)
	assert.Equal(t, 1, result.LogsFetched)
	assert.Equal(t, 2, result.IncidentsNotified)
	assert.Equal(t, []string{"dpl_1"}, ingestor.registered)
	require.Len(t, ingestor.batches, 1)
}

func TestRun_NoDeployment(t *testing.T) {
	provider := &mockProvider{depErr: vercel.ErrNoDeployment}
	ingestor := &mockIngestor{}
	notifier := &mockNotifier{}
	svc := NewService(provider, ingestor, notifier)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusNoDeployment, result.Status)
	assert.Empty(t, ingestor.registered)
	assert.Equal(t, 0, notifier.calls)
}

func TestRun_NoLogs(t *testing.T) {
	provider := &mockProvider{
		deployment: &vercel.ProviderDeployment{UID: "dpl_1", Target: "production"},
	}
	ingestor := &mockIngestor{}
	notifier := &mockNotifier{notified: 1}
	svc := NewService(provider, ingestor, notifier)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusNoLogs, result.Status)
	assert.Empty(t, ingestor.batches)
	// Leftover OPEN incidents still get notified even without fresh logs.
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, 1, result.IncidentsNotified)
}

func TestRun_BatchFailure(t *testing.T) {
	provider := &mockProvider{
		deployment: &vercel.ProviderDeployment{UID: "dpl_1", Target: "production"},
		logs:       []domain.LogRecord{{RowID: "r1", TimestampMs: 100, Level: "error", Message: "boom"}},
	}
	ingestor := &mockIngestor{batchErr: errors.New("db down")}
	notifier := &mockNotifier{}
	svc := NewService(provider, ingestor, notifier)

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, notifier.calls)
}

func TestRun_RejectsOverlap(t *testing.T) {
	provider := &mockProvider{
		deployment: &vercel.ProviderDeployment{UID: "dpl_1", Target: "production"},
		streamWait: 200 * time.Millisecond,
	}
	svc := NewService(provider, &mockIngestor{}, &mockNotifier{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Run(context.Background())
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	wg.Wait()

	// Once the first run finishes, the lock releases.
	_, err = svc.Run(context.Background())
	assert.NoError(t, err)
}
