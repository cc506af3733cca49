package handler

import (
	"net/http"

	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/api/response"
	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

// StateHandler exposes the URL state codec.
type StateHandler struct{}

// NewStateHandler creates a new StateHandler.
func NewStateHandler() *StateHandler {
	return &StateHandler{}
}

// Canonical handles GET /v1/state/canonical?{state} - the query re-encoded
// in canonical form, with defaults and unknown parameters dropped.
func (h *StateHandler) Canonical(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.CanonicalResponse{
		Query:     r.URL.RawQuery,
		Canonical: urlstate.Canonical(r.URL.RawQuery),
	})
}
