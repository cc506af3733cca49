package urlstate

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
)

// Query parameter names.
const (
	ParamLat          = "lat"
	ParamLon          = "lon"
	ParamZoom         = "zoom"
	ParamYears        = "years"
	ParamRegions      = "voivodeships"
	ParamSeverity     = "severity"
	ParamMapStyle     = "mapStyle"
	ParamLanguage     = "lang"
	ParamRadius       = "radius"
	ParamOpacity      = "opacity"
	ParamPanel        = "panel"
	ParamPolygon      = "poly"
	paramLegacyPieKey = "pieFilter"

	panelHidden  = "hidden"
	severityNone = "none"
)

// VehicleParam returns the query parameter enabling the filter for v.
func VehicleParam(v accident.VehicleType) string {
	return string(v) + "Filter"
}

type query struct {
	b strings.Builder
}

func (q *query) set(key, value string) {
	if q.b.Len() > 0 {
		q.b.WriteByte('&')
	}
	q.b.WriteString(url.QueryEscape(key))
	q.b.WriteByte('=')
	q.b.WriteString(url.QueryEscape(value))
}

// Encode renders state as a query string without the leading '?'.
// Parameters equal to their default are omitted. The view position is always
// written when known.
func Encode(s State) string {
	var q query

	if s.View != nil {
		q.set(ParamLat, strconv.FormatFloat(s.View.Lat, 'f', 6, 64))
		q.set(ParamLon, strconv.FormatFloat(s.View.Lon, 'f', 6, 64))
		q.set(ParamZoom, strconv.FormatFloat(s.View.Zoom, 'f', 2, 64))
	}

	if len(s.Years) > 0 {
		years := append([]int(nil), s.Years...)
		sort.Ints(years)
		parts := make([]string, 0, len(years))
		for i, y := range years {
			if i > 0 && y == years[i-1] {
				continue
			}
			parts = append(parts, strconv.Itoa(y))
		}
		q.set(ParamYears, strings.Join(parts, ","))
	}

	if len(s.Regions) > 0 {
		regions := append([]string(nil), s.Regions...)
		sort.Strings(regions)
		q.set(ParamRegions, strings.Join(regions, ","))
	}

	visible := s.Visibility.VisibleSeverities()
	switch {
	case len(visible) == 0:
		q.set(ParamSeverity, severityNone)
	case len(visible) < len(accident.Severities()):
		names := make([]string, 0, len(visible))
		for _, sev := range visible {
			names = append(names, string(sev))
		}
		q.set(ParamSeverity, strings.Join(names, ","))
	}

	if s.MapStyle != "" && s.MapStyle != DefaultMapStyle {
		q.set(ParamMapStyle, s.MapStyle)
	}
	if s.Language != "" && s.Language != DefaultLanguage {
		q.set(ParamLanguage, s.Language)
	}
	if s.Radius != 0 && s.Radius != DefaultRadius {
		q.set(ParamRadius, strconv.Itoa(s.Radius))
	}
	if s.Opacity != DefaultOpacity {
		q.set(ParamOpacity, strconv.FormatFloat(s.Opacity, 'f', -1, 64))
	}
	if s.PanelHidden {
		q.set(ParamPanel, panelHidden)
	}

	for _, v := range s.Visibility.EnabledVehicles() {
		q.set(VehicleParam(v), "true")
	}

	if len(s.Polygon) >= spatial.MinVertices {
		q.set(ParamPolygon, spatial.EncodeVertices(s.Polygon))
	}

	return q.b.String()
}

// Decode parses a query string (with or without the leading '?'). Unknown
// and malformed parameters are ignored.
func Decode(raw string) Partial {
	// ParseQuery keeps every pair it could parse, which is all we need.
	values, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	return DecodeValues(values)
}

// DecodeValues is Decode for already parsed values.
func DecodeValues(values url.Values) Partial {
	var p Partial

	if v := values.Get(ParamYears); v != "" {
		for _, part := range strings.Split(v, ",") {
			if y, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				p.Years = append(p.Years, y)
			}
		}
	}

	if v := values.Get(ParamRegions); v != "" {
		for _, part := range strings.Split(v, ",") {
			if name := strings.TrimSpace(part); name != "" {
				p.Regions = append(p.Regions, name)
			}
		}
	}

	if v := values.Get(ParamSeverity); v != "" {
		listed := make(map[string]bool)
		for _, part := range strings.Split(v, ",") {
			listed[part] = true
		}
		p.Severity = make(map[accident.Severity]bool, 4)
		for _, sev := range accident.Severities() {
			p.Severity[sev] = listed[string(sev)]
		}
	}

	if v := values.Get(ParamMapStyle); contains(MapStyles(), v) {
		p.MapStyle = &v
	}
	if v := values.Get(ParamLanguage); contains(Languages(), v) {
		p.Language = &v
	}

	if v := values.Get(ParamRadius); v != "" {
		if r, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && r >= MinRadius && r <= MaxRadius {
			p.Radius = &r
		}
	}
	if v := values.Get(ParamOpacity); v != "" {
		if o, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && o >= MinOpacity && o <= MaxOpacity {
			p.Opacity = &o
		}
	}

	p.PanelHidden = values.Get(ParamPanel) == panelHidden

	for _, v := range accident.VehicleTypes() {
		if values.Get(VehicleParam(v)) == "true" {
			p.Vehicles = append(p.Vehicles, v)
		}
	}
	if values.Get(paramLegacyPieKey) == "true" && !hasVehicle(p.Vehicles, accident.VehiclePedestrian) {
		p.Vehicles = append(p.Vehicles, accident.VehiclePedestrian)
	}

	p.Lat = viewFloat(values.Get(ParamLat))
	p.Lon = viewFloat(values.Get(ParamLon))
	p.Zoom = viewFloat(values.Get(ParamZoom))

	if v := values.Get(ParamPolygon); v != "" {
		if vertices, err := spatial.DecodeVertices(v); err == nil && len(vertices) >= spatial.MinVertices {
			p.Polygon = vertices
		}
	}

	return p
}

// viewFloat parses a view coordinate. Zero and non-finite values count as
// absent so the default position applies.
func viewFloat(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func hasVehicle(list []accident.VehicleType, v accident.VehicleType) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Canonical decodes raw over the default state and re-encodes it.
func Canonical(raw string) string {
	return Encode(Decode(raw).Apply(DefaultState()))
}
