package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/api/response"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/export"
)

// Export query parameters handled on top of the state query.
const (
	paramFile    = "file"
	paramCompact = "compact"
)

// ExportHandler builds export files for a state given as query string.
type ExportHandler struct {
	data   Dataset
	logger zerolog.Logger
	now    func() time.Time
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(data Dataset, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{data: data, logger: logger, now: time.Now}
}

// Export handles GET /v1/export?{state}. Without a file parameter every
// generated document is returned inline; with one, that document is sent as
// a GeoJSON download.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	compact, _ := strconv.ParseBool(params.Get(paramCompact))

	state, ws, err := load(r.Context(), h.data, r.URL.RawQuery)
	if err != nil {
		loadFailed(w, r, h.logger, err)
		return
	}

	files, err := export.Build(ws.Records(), state.Visibility,
		dataset.NewSelection(state.Years, state.Regions), h.data.Metadata(), h.now(),
		export.Options{Compact: compact})
	if errors.Is(err, export.ErrNothingToExport) {
		response.Unprocessable(w, r, "no visible accidents in the selected years and voivodeships")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("building export")
		response.InternalError(w, r, "export failed")
		return
	}

	if name := params.Get(paramFile); name != "" {
		for _, f := range files {
			if f.Name == name {
				response.Attachment(w, r, "application/geo+json", f.Name, f.Data)
				return
			}
		}
		response.NotFound(w, r, "no export file named "+strconv.Quote(name))
		return
	}

	resp := models.ExportResponse{Files: make([]models.ExportFile, 0, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, models.ExportFile{
			Name:    f.Name,
			Year:    f.Year,
			Region:  f.Region,
			Count:   f.Count,
			Content: f.Data,
		})
		resp.Total += f.Count
	}

	h.logger.Info().Int("files", len(files)).Int("records", resp.Total).Msg("export built")
	response.JSON(w, r, http.StatusOK, resp)
}
