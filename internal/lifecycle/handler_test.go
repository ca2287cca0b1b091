package lifecycle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/deploy-sentry/internal/approval"
	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Incident ids must be UUIDs to get past path parameter validation.
const (
	incID1      = "6f1b24a0-0c5d-4bb8-9e62-1a2b3c4d5e6f"
	incID2      = "a7c93d12-88f4-4f10-b1de-0f9e8d7c6b5a"
	incIDAbsent = "00000000-0000-0000-0000-000000000000"
)

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(f.service)
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
		h.RegisterOperatorRoutes(r)
	})
	return r
}

func TestHandler_ListIncidents(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusOpen)
	f.addIncident(incID2, domain.IncidentStatusDismissed)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents?status=OPEN", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Incidents []domain.Incident `json:"incidents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Incidents, 1)
	assert.Equal(t, incID1, payload.Incidents[0].ID)
}

func TestHandler_ListIncidents_BadStatus(t *testing.T) {
	router := newTestRouter(newFixture(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents?status=BROKEN", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetIncident(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusOpen)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents/"+incID1, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var detail IncidentDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, incID1, detail.Incident.ID)
	assert.Len(t, detail.Events, 2)
}

func TestHandler_GetIncident_NotFound(t *testing.T) {
	router := newTestRouter(newFixture(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents/"+incIDAbsent, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_GetIncident_MalformedID(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusOpen)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents/not-a-uuid", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ApplyAction(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusNotified)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/"+incID1+"/action",
		strings.NewReader(`{"action": "approve"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.deployer.calls)
	assert.Contains(t, rec.Body.String(), string(domain.IncidentStatusRedeployTriggered))
}

func TestHandler_ApplyAction_Validation(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusNotified)
	router := newTestRouter(f)

	tests := []struct {
		name string
		body string
	}{
		{"bad action", `{"action": "escalate"}`},
		{"missing action", `{}`},
		{"not json", `action=approve`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/"+incID1+"/action", strings.NewReader(tt.body))
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_ApplyAction_Conflict(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusRedeployTriggered)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/"+incID1+"/action",
		strings.NewReader(`{"action": "dismiss"}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ConfirmApprove(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusNotified)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/approve?incidentId="+incID1+"&token=tok", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Redeploy triggered")
	assert.Equal(t, 1, f.deployer.calls)
}

func TestHandler_ConfirmApprove_MissingParams(t *testing.T) {
	router := newTestRouter(newFixture(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/approve?incidentId="+incID1, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ConfirmApprove_BadToken(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusNotified)
	f.approvals.redeemErr = approval.ErrTokenExpired
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/approve?incidentId="+incID1+"&token=old", nil))

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "no longer valid")
}

func TestHandler_ConfirmDismiss(t *testing.T) {
	f := newFixture(t)
	f.addIncident(incID1, domain.IncidentStatusNotified)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dismiss?incidentId="+incID1+"&token=tok", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dismissed")
	assert.Equal(t, domain.IncidentStatusDismissed, f.repo.incidents[incID1].Status)
}
