package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/api/response"
	"github.com/sewik-mapa/sewikmapa/internal/session"
)

// Sessions stores live sessions. *session.Registry implements it.
type Sessions interface {
	Create(ctx context.Context, query string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

// SessionHandler exposes server-side map sessions driven by typed commands.
type SessionHandler struct {
	sessions Sessions
	logger   zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions Sessions, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// CreateSession handles POST /v1/sessions. The body is optional.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateSessionRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input)
	if err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	s, err := h.sessions.Create(r.Context(), input.Query)
	if err != nil {
		loadFailed(w, r, h.logger, err)
		return
	}

	h.logger.Info().Str("session_id", s.ID()).Msg("session created")
	response.Created(w, r, "/v1/sessions/"+s.ID(), models.NewSessionResponse(s))
}

// GetSession handles GET /v1/sessions/{id}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSessionResponse(s))
}

// Dispatch handles POST /v1/sessions/{id}/commands and returns the view after
// the command was applied.
func (h *SessionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var cmd session.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cmd); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := s.Dispatch(r.Context(), cmd); err != nil {
		if session.IsCommandError(err) {
			response.BadRequest(w, r, err.Error(), []models.FieldError{
				{Field: "kind", Message: string(cmd.Kind), Code: "INVALID_COMMAND"},
			})
			return
		}
		loadFailed(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewSessionResponse(s))
}

// DeleteSession handles DELETE /v1/sessions/{id}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		response.NotFound(w, r, "session not found")
		return
	}
	response.NoContent(w, r)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		response.NotFound(w, r, "session not found")
		return nil, false
	}
	if err != nil {
		response.InternalError(w, r, "session lookup failed")
		return nil, false
	}
	return s, true
}
