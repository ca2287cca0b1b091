package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bissquit/deploy-sentry/internal/approval"
	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Pagination constants.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Handler handles HTTP requests for the incident lifecycle.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the incident read and token redemption routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/{id}", h.GetIncident)
	r.Get("/approve", h.ConfirmApprove)
	r.Get("/dismiss", h.ConfirmDismiss)
}

// RegisterOperatorRoutes registers the routes behind operator auth.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Post("/incidents/{id}/action", h.ApplyAction)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: DefaultListLimit}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.IncidentStatus(raw)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", raw))
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, MaxListLimit)
	}

	incidents, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

// incidentID extracts and validates the incident id path parameter.
// A malformed id maps to not-found rather than a database error.
func incidentID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrIncidentNotFound
	}
	return id, nil
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, err := incidentID(r)
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}

	detail, err := h.service.GetIncidentDetail(r.Context(), id)
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, detail)
}

// ActionRequest is the body for the operator action endpoint.
type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve dismiss"`
}

// ApplyAction handles POST /incidents/{id}/action.
func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	id, err := incidentID(r)
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}

	incident, err := h.service.ApplyAction(r.Context(), id, domain.ApprovalAction(req.Action))
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"incident": incident})
}

// ConfirmApprove handles GET /approve?incidentId=...&token=...
// It is the target of the approve link in the notification email, so it
// answers in plain text for a browser, not JSON.
func (h *Handler) ConfirmApprove(w http.ResponseWriter, r *http.Request) {
	incidentID, token, ok := tokenParams(w, r)
	if !ok {
		return
	}

	incident, err := h.service.ConfirmApprove(r.Context(), incidentID, token)
	if err != nil {
		h.handleTokenError(r.Context(), w, err)
		return
	}
	httputil.Text(w, http.StatusOK,
		fmt.Sprintf("Redeploy triggered for incident %s (status: %s).\n", incident.ID, incident.Status))
}

// ConfirmDismiss handles GET /dismiss?incidentId=...&token=...
func (h *Handler) ConfirmDismiss(w http.ResponseWriter, r *http.Request) {
	incidentID, token, ok := tokenParams(w, r)
	if !ok {
		return
	}

	incident, err := h.service.ConfirmDismiss(r.Context(), incidentID, token)
	if err != nil {
		h.handleTokenError(r.Context(), w, err)
		return
	}
	httputil.Text(w, http.StatusOK,
		fmt.Sprintf("Incident %s dismissed.\n", incident.ID))
}

func tokenParams(w http.ResponseWriter, r *http.Request) (id, token string, ok bool) {
	id = r.URL.Query().Get("incidentId")
	token = r.URL.Query().Get("token")
	if id == "" || token == "" {
		httputil.Text(w, http.StatusBadRequest, "incidentId and token query parameters are required\n")
		return "", "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		httputil.Text(w, http.StatusNotFound, "Incident not found.\n")
		return "", "", false
	}
	return id, token, true
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrIncidentNotActionable, Status: http.StatusConflict},
		{Error: ErrRedeployFailed, Status: http.StatusBadGateway},
	})
}

// handleTokenError answers the email link endpoints in plain text. Token
// failures all read the same to the clicker; the logs keep the detail.
func (h *Handler) handleTokenError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIncidentNotFound):
		httputil.Text(w, http.StatusNotFound, "Incident not found.\n")
	case errors.Is(err, approval.ErrTokenInvalid),
		errors.Is(err, approval.ErrTokenAlreadyUsed),
		errors.Is(err, approval.ErrTokenExpired):
		httputil.Text(w, http.StatusGone, "This link is no longer valid.\n")
	case errors.Is(err, ErrIncidentNotActionable):
		httputil.Text(w, http.StatusConflict, "This incident has already been resolved.\n")
	case errors.Is(err, ErrRedeployFailed):
		httputil.Text(w, http.StatusBadGateway, "Approval recorded, but the redeploy hook failed. Retry from the dashboard.\n")
	default:
		httputil.HandleError(ctx, w, err, nil)
	}
}
