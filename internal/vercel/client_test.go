package vercel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/deploy-sentry/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.VercelConfig {
	return config.VercelConfig{
		APIToken:          "test-token",
		ProjectID:         "prj_123",
		BaseURL:           baseURL,
		MaxStreamEvents:   300,
		MaxStreamDuration: 2 * time.Second,
		RequestTimeout:    5 * time.Second,
	}
}

func TestLatestDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/deployments", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "prj_123", r.URL.Query().Get("projectId"))
		assert.Equal(t, "production", r.URL.Query().Get("target"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"deployments": [{"uid": "dpl_abc", "target": "production", "state": "READY"}]}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL))
	dep, err := client.LatestDeployment(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "dpl_abc", dep.UID)
	assert.Equal(t, "production", dep.Target)
}

func TestLatestDeployment_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"deployments": []}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL))
	_, err := client.LatestDeployment(context.Background())
	assert.ErrorIs(t, err, ErrNoDeployment)
}

func TestLatestDeployment_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL))
	_, err := client.LatestDeployment(context.Background())
	assert.ErrorIs(t, err, ErrAPIError)
}

func TestStreamRuntimeLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/prj_123/deployments/dpl_abc/runtime-logs", r.URL.Path)

		fmt.Fprintln(w, `{"rowId": "r1", "timestampInMs": 1000, "level": "error", "message": "boom", "requestPath": "/api/x", "responseStatusCode": 500}`)
		fmt.Fprintln(w, `not json at all`)
		fmt.Fprintln(w, `{"rowId": "", "timestampInMs": 0}`)
		fmt.Fprintln(w, `{"rowId": "r2", "timestampInMs": 2000, "level": "info", "message": "ok"}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(testConfig(srv.URL))
	records, err := client.StreamRuntimeLogs(context.Background(), "dpl_abc")
	require.NoError(t, err)

	// Malformed and empty entries are skipped, valid ones kept in order.
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].RowID)
	assert.Equal(t, int64(1000), records[0].TimestampMs)
	require.NotNil(t, records[0].RequestPath)
	assert.Equal(t, "/api/x", *records[0].RequestPath)
	require.NotNil(t, records[0].ResponseStatusCode)
	assert.Equal(t, 500, *records[0].ResponseStatusCode)
	assert.Nil(t, records[0].RequestMethod)
	assert.Equal(t, "r2", records[1].RowID)
}

func TestStreamRuntimeLogs_MaxEventsCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 1; i <= 50; i++ {
			fmt.Fprintf(w, `{"rowId": "r%d", "timestampInMs": %d, "level": "info", "message": "m"}`+"\n", i, i*100)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxStreamEvents = 10
	client := NewHTTPClient(cfg)

	records, err := client.StreamRuntimeLogs(context.Background(), "dpl_abc")
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestStreamRuntimeLogs_MaxDurationCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"rowId": "r1", "timestampInMs": 1000, "level": "info", "message": "m"}`)
		flusher.Flush()
		// Hold the stream open past the cap.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxStreamDuration = 200 * time.Millisecond
	client := NewHTTPClient(cfg)

	start := time.Now()
	records, err := client.StreamRuntimeLogs(context.Background(), "dpl_abc")
	require.NoError(t, err)

	assert.Len(t, records, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTriggerDeployHook(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.DeployHookURL = srv.URL + "/hook"
	client := NewHTTPClient(cfg)

	require.NoError(t, client.TriggerDeployHook(context.Background()))
	assert.True(t, called)
}

func TestTriggerDeployHook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.DeployHookURL = srv.URL + "/hook"
	client := NewHTTPClient(cfg)

	err := client.TriggerDeployHook(context.Background())
	assert.ErrorIs(t, err, ErrAPIError)
}

func TestTriggerDeployHook_NotConfigured(t *testing.T) {
	client := NewHTTPClient(testConfig("http://unused"))
	err := client.TriggerDeployHook(context.Background())
	assert.ErrorIs(t, err, ErrNoDeployHook)
}
