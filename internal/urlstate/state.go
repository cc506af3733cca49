// Package urlstate mirrors application state into a URL query string and
// back, and schedules debounced history writes.
package urlstate

import (
	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/filter"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
)

// Defaults omitted from encoded URLs.
const (
	DefaultMapStyle = "cartodb-light"
	DefaultLanguage = "pl"
	DefaultRadius   = 5
	DefaultOpacity  = 0.6

	DefaultLat  = 52.0
	DefaultLon  = 19.5
	DefaultZoom = 7.0

	MinRadius  = 1
	MaxRadius  = 50
	MinOpacity = 0.0
	MaxOpacity = 1.0
)

// MapStyles lists the accepted map style keys.
func MapStyles() []string {
	return []string{"openstreetmap", "satellite", "cartodb-light", "cartodb-dark"}
}

// Languages lists the accepted language codes.
func Languages() []string {
	return []string{"pl", "en"}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// View is the map camera position.
type View struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom float64 `json:"zoom"`
}

// DefaultView is the initial camera over Poland.
func DefaultView() View {
	return View{Lat: DefaultLat, Lon: DefaultLon, Zoom: DefaultZoom}
}

// State is everything mirrored into the URL.
type State struct {
	Years       []int
	Regions     []string
	Visibility  filter.VisibilityState
	MapStyle    string
	Language    string
	Radius      int
	Opacity     float64
	PanelHidden bool
	// View is nil until the map reports a position.
	View *View
	// Polygon holds the open vertex list of the active analysis polygon.
	Polygon []spatial.Point
}

// DefaultState returns the state before any URL or user input.
func DefaultState() State {
	return State{
		Visibility: filter.DefaultVisibility(),
		MapStyle:   DefaultMapStyle,
		Language:   DefaultLanguage,
		Radius:     DefaultRadius,
		Opacity:    DefaultOpacity,
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Years = append([]int(nil), s.Years...)
	c.Regions = append([]string(nil), s.Regions...)
	c.Visibility = s.Visibility.Clone()
	if s.View != nil {
		v := *s.View
		c.View = &v
	}
	c.Polygon = append([]spatial.Point(nil), s.Polygon...)
	return c
}

// Partial is a decoded query: only recognised, valid parameters are set.
type Partial struct {
	Years       []int
	Regions     []string
	Severity    map[accident.Severity]bool
	Vehicles    []accident.VehicleType
	MapStyle    *string
	Language    *string
	Radius      *int
	Opacity     *float64
	PanelHidden bool
	Lat         *float64
	Lon         *float64
	Zoom        *float64
	Polygon     []spatial.Point
}

// HasSelection reports whether the query named any years or regions.
func (p Partial) HasSelection() bool {
	return len(p.Years) > 0 || len(p.Regions) > 0
}

// Apply overlays the decoded parameters onto base and returns the result.
func (p Partial) Apply(base State) State {
	s := base.Clone()
	if len(p.Years) > 0 {
		s.Years = append([]int(nil), p.Years...)
	}
	if len(p.Regions) > 0 {
		s.Regions = append([]string(nil), p.Regions...)
	}
	if p.Severity != nil {
		for sev, on := range p.Severity {
			s.Visibility.Severity[sev] = on
		}
	}
	for _, v := range p.Vehicles {
		s.Visibility.Vehicle[v] = true
	}
	if p.MapStyle != nil {
		s.MapStyle = *p.MapStyle
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.Radius != nil {
		s.Radius = *p.Radius
	}
	if p.Opacity != nil {
		s.Opacity = *p.Opacity
	}
	if p.PanelHidden {
		s.PanelHidden = true
	}
	if p.Lat != nil || p.Lon != nil || p.Zoom != nil {
		v := DefaultView()
		if s.View != nil {
			v = *s.View
		}
		if p.Lat != nil {
			v.Lat = *p.Lat
		}
		if p.Lon != nil {
			v.Lon = *p.Lon
		}
		if p.Zoom != nil {
			v.Zoom = *p.Zoom
		}
		s.View = &v
	}
	if len(p.Polygon) > 0 {
		s.Polygon = append([]spatial.Point(nil), p.Polygon...)
	}
	return s
}
