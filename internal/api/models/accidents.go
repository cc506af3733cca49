package models

import (
	"encoding/json"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/session"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

// MetadataResponse lists everything a client needs to build its controls.
type MetadataResponse struct {
	Years        []int                  `json:"years"`
	Regions      []string               `json:"regions"`
	RegionCodes  map[string]int         `json:"regionCodes,omitempty"`
	Fallback     bool                   `json:"fallback"`
	Severities   []accident.Severity    `json:"severities"`
	VehicleTypes []accident.VehicleType `json:"vehicleTypes"`
	MapStyles    []string               `json:"mapStyles"`
	Languages    []string               `json:"languages"`
}

// NewMetadataResponse builds the response for meta.
func NewMetadataResponse(meta dataset.Metadata) MetadataResponse {
	return MetadataResponse{
		Years:        meta.Years,
		Regions:      meta.Regions,
		RegionCodes:  meta.NameToCode,
		Fallback:     meta.Fallback,
		Severities:   accident.Severities(),
		VehicleTypes: accident.VehicleTypes(),
		MapStyles:    urlstate.MapStyles(),
		Languages:    urlstate.Languages(),
	}
}

// AccidentsResponse is the visible set of a decoded state.
type AccidentsResponse struct {
	Type      string                    `json:"type"`
	Features  []json.RawMessage         `json:"features"`
	Counts    map[accident.Severity]int `json:"counts"`
	Selection dataset.Selection         `json:"selection"`
	Loaded    int                       `json:"loaded"`
	Failed    []string                  `json:"failed,omitempty"`
	Query     string                    `json:"query"`
}

// AnalysisRequest asks for the aggregation inside a polygon. Polygon holds
// [lon, lat] pairs; when empty the poly parameter of Query is used.
type AnalysisRequest struct {
	Query   string       `json:"query"`
	Polygon [][2]float64 `json:"polygon,omitempty"`
}

// Points converts the request polygon.
func (r AnalysisRequest) Points() []spatial.Point {
	pts := make([]spatial.Point, 0, len(r.Polygon))
	for _, p := range r.Polygon {
		pts = append(pts, spatial.Point{Lon: p[0], Lat: p[1]})
	}
	return pts
}

// AnalysisResponse is the aggregation and its share per severity.
type AnalysisResponse struct {
	spatial.AnalysisResult
	Percent   map[accident.Severity]float64 `json:"percent"`
	Years     []string                      `json:"years"`
	Vertices  int                           `json:"vertices"`
	Perimeter float64                       `json:"perimeterMeters"`
}

// NewAnalysisResponse builds the response for res over polygon.
func NewAnalysisResponse(res spatial.AnalysisResult, polygon *spatial.Polygon) AnalysisResponse {
	pct := make(map[accident.Severity]float64, 4)
	for _, s := range accident.Severities() {
		pct[s] = res.Percent(s)
	}
	return AnalysisResponse{
		AnalysisResult: res,
		Percent:        pct,
		Years:          res.Years(),
		Vertices:       len(polygon.Ring.Vertices()),
		Perimeter:      polygon.PerimeterMeters(),
	}
}

// ExportFile is one generated export document.
type ExportFile struct {
	Name    string          `json:"name"`
	Year    int             `json:"year"`
	Region  string          `json:"region"`
	Count   int             `json:"count"`
	Content json.RawMessage `json:"content"`
}

// ExportResponse lists the generated files.
type ExportResponse struct {
	Files []ExportFile `json:"files"`
	Total int          `json:"total"`
}

// CanonicalResponse is the normalized form of a query.
type CanonicalResponse struct {
	Query     string `json:"query"`
	Canonical string `json:"canonical"`
}

// CreateSessionRequest starts a session, optionally restored from a query.
type CreateSessionRequest struct {
	Query string `json:"query"`
}

// SessionResponse describes a session and its current view.
type SessionResponse struct {
	ID         string       `json:"id"`
	CreatedAt  Timestamp    `json:"createdAt"`
	View       session.View `json:"view"`
	StaleLoads int64        `json:"staleLoads"`
}

// NewSessionResponse snapshots s.
func NewSessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID(),
		CreatedAt:  Timestamp(s.CreatedAt()),
		View:       s.Snapshot(),
		StaleLoads: s.StaleLoads(),
	}
}
