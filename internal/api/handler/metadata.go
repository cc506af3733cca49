package handler

import (
	"net/http"

	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/api/response"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
)

// MetadataSource returns the loaded metadata. *dataset.Loader implements it.
type MetadataSource interface {
	Metadata() dataset.Metadata
}

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	source MetadataSource
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(source MetadataSource) *MetadataHandler {
	return &MetadataHandler{source: source}
}

// GetMetadata handles GET /v1/metadata - years, voivodeships and the enums
// used in state queries.
func (h *MetadataHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, models.NewMetadataResponse(h.source.Metadata()))
}
