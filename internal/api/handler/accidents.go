package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/api/response"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/filter"
	"github.com/sewik-mapa/sewikmapa/internal/session"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Dataset loads working sets. *dataset.Loader implements it.
type Dataset interface {
	Metadata() dataset.Metadata
	Load(ctx context.Context, sel dataset.Selection) (*dataset.WorkingSet, error)
}

// AccidentsHandler serves the visible set and polygon analysis of a state
// given as query string.
type AccidentsHandler struct {
	data   Dataset
	logger zerolog.Logger
}

// NewAccidentsHandler creates a new AccidentsHandler.
func NewAccidentsHandler(data Dataset, logger zerolog.Logger) *AccidentsHandler {
	return &AccidentsHandler{data: data, logger: logger}
}

// load restores the state from query and loads its working set.
func load(ctx context.Context, data Dataset, query string) (urlstate.State, *dataset.WorkingSet, error) {
	state := session.RestoreState(query, data.Metadata())
	ws, err := data.Load(ctx, dataset.NewSelection(state.Years, state.Regions))
	return state, ws, err
}

// ListAccidents handles GET /v1/accidents?{state} - the visible records as a
// feature collection with per-severity counts.
func (h *AccidentsHandler) ListAccidents(w http.ResponseWriter, r *http.Request) {
	state, ws, err := load(r.Context(), h.data, r.URL.RawQuery)
	if err != nil {
		loadFailed(w, r, h.logger, err)
		return
	}

	visible := filter.Apply(ws.Records(), state.Visibility)
	fc := accident.NewFeatureCollection(visible)
	response.JSON(w, r, http.StatusOK, models.AccidentsResponse{
		Type:      fc.Type,
		Features:  fc.Features,
		Counts:    filter.Counts(visible),
		Selection: ws.Selection(),
		Loaded:    ws.Len(),
		Failed:    ws.Failed(),
		Query:     urlstate.Encode(state),
	})
}

// Analyze handles POST /v1/analysis - aggregation of the visible records
// inside a polygon. The polygon comes from the body or, when absent there,
// from the poly parameter of the query.
func (h *AccidentsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var input models.AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	state, ws, err := load(r.Context(), h.data, input.Query)
	if err != nil {
		loadFailed(w, r, h.logger, err)
		return
	}

	vertices := input.Points()
	if len(vertices) == 0 {
		vertices = state.Polygon
	}
	polygon, err := spatial.NewPolygon("analysis", vertices)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "polygon", Message: "at least 3 finite [lon, lat] vertices are required", Code: "TOO_FEW_VERTICES"},
		})
		return
	}

	res := spatial.Analyze(ws.Records(), state.Visibility, polygon)
	response.JSON(w, r, http.StatusOK, models.NewAnalysisResponse(res, polygon))
}

// loadFailed answers a failed load. The loader only fails on cancellation,
// which for a gone client needs no response.
func loadFailed(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Debug().Err(err).Msg("request canceled while loading")
		return
	}
	logger.Error().Err(err).Msg("loading working set")
	response.ServiceUnavailable(w, r, "accident data could not be loaded")
}
