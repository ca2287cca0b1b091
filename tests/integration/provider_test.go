//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// fakeProvider emulates the slice of the Vercel API the agent talks to:
// the deployments listing, the runtime log stream, and a deploy hook.
type fakeProvider struct {
	mu          sync.Mutex
	deployments []map[string]string
	logLines    []string
	hookCalls   int
	server      *httptest.Server
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{}
	mux := http.NewServeMux()

	mux.HandleFunc("/v6/deployments", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"deployments": p.deployments})
	})

	mux.HandleFunc("/v1/projects/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/runtime-logs") {
			http.NotFound(w, r)
			return
		}
		p.mu.Lock()
		lines := make([]string, len(p.logLines))
		copy(lines, p.logLines)
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
		}
		// Closing the stream ends the scan before the duration cap.
	})

	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.hookCalls++
		p.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	p.server = httptest.NewServer(mux)
	return p
}

func (p *fakeProvider) URL() string { return p.server.URL }

func (p *fakeProvider) Close() { p.server.Close() }

// SetDeployment makes the provider report one READY production deployment.
func (p *fakeProvider) SetDeployment(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deployments = []map[string]string{
		{"uid": uid, "target": "production", "state": "READY"},
	}
}

// ClearDeployments makes the provider report no deployments.
func (p *fakeProvider) ClearDeployments() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deployments = nil
}

// SetLogs replaces the runtime log stream contents with the given entries.
func (p *fakeProvider) SetLogs(entries ...map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logLines = p.logLines[:0]
	for _, entry := range entries {
		line, _ := json.Marshal(entry)
		p.logLines = append(p.logLines, string(line))
	}
}

// ClearLogs empties the runtime log stream.
func (p *fakeProvider) ClearLogs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logLines = nil
}

// HookCalls returns how many times the deploy hook was hit.
func (p *fakeProvider) HookCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hookCalls
}
