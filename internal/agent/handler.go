package agent

import (
	"net/http"

	"github.com/bissquit/deploy-sentry/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the manual poll endpoint.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/poll", h.Poll)
}

// Poll handles POST /poll: one on-demand agent run.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Run(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrRunInProgress, Status: http.StatusConflict},
		})
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}
