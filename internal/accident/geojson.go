package accident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Property aliases found across the SEWIK exports, in lookup order.
var (
	idKeys      = []string{"ID", "id", "accident_id"}
	yearKeys    = []string{"yr", "year"}
	dateKeys    = []string{"dt", "date", "DATA_ZDARZENIA"}
	fatalKeys   = []string{"fat", "3", "fatal", "ZM"}
	seriousKeys = []string{"ser", "2", "serious", "ZC"}
	slightKeys  = []string{"sli", "1", "slight", "RL"}
	damageKeys  = []string{"dmg", "0"}
)

const (
	regionKey        = "WOJ"
	severityLabelKey = "severity"
	severityCodeKey  = "sev"
)

// FeatureCollection is a GeoJSON feature collection. Features are kept raw so
// that re-encoding never loses properties.
type FeatureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
	Metadata any               `json:"metadata,omitempty"`
}

// NewFeatureCollection builds a collection from the raw features of records.
func NewFeatureCollection(records []Record) FeatureCollection {
	features := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		features = append(features, r.Raw)
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

type rawFeature struct {
	Type     string `json:"type"`
	Geometry *struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// DecodeCollection decodes a GeoJSON feature collection into records.
// Features without a finite point geometry are skipped; the number skipped is
// returned alongside the records.
func DecodeCollection(data []byte) ([]Record, int, error) {
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, 0, fmt.Errorf("decoding feature collection: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, 0, fmt.Errorf("%w: type %q", ErrNotFeatureCollection, fc.Type)
	}

	records := make([]Record, 0, len(fc.Features))
	skipped := 0
	for _, raw := range fc.Features {
		r, err := DecodeFeature(raw)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

// DecodeFeature decodes a single GeoJSON point feature.
func DecodeFeature(raw json.RawMessage) (Record, error) {
	var f rawFeature
	if err := json.Unmarshal(raw, &f); err != nil {
		return Record{}, fmt.Errorf("decoding feature: %w", err)
	}
	if f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
		return Record{}, ErrInvalidGeometry
	}
	lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
	if !finite(lon) || !finite(lat) {
		return Record{}, ErrInvalidGeometry
	}

	props := f.Properties
	r := Record{
		ID:       firstString(props, idKeys),
		Date:     firstString(props, dateKeys),
		Region:   scalarString(props[regionKey]),
		Location: Location{Lon: lon, Lat: lat},

		Fatal:      firstCount(props, fatalKeys),
		Serious:    firstCount(props, seriousKeys),
		Slight:     firstCount(props, slightKeys),
		DamageOnly: firstCount(props, damageKeys),

		SeverityLabel: labelString(props[severityLabelKey]),
		Raw:           append(json.RawMessage(nil), raw...),
	}

	for _, key := range yearKeys {
		if v, ok := number(props[key]); ok && v != 0 {
			year := int(v)
			r.Year = &year
			break
		}
	}

	if rawCode, ok := props[severityCodeKey]; ok {
		code := -1
		if v, ok := number(rawCode); ok && v == math.Trunc(v) {
			code = int(v)
		}
		r.SeverityCode = &code
	}

	for _, v := range VehicleTypes() {
		n, ok := involvement(props[v.PropertyKey()])
		if !ok {
			continue
		}
		if r.Involvement == nil {
			r.Involvement = make(map[VehicleType]int, len(VehicleTypes()))
		}
		r.Involvement[v] = int(n)
	}

	return r, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// number reads a JSON number or a numeric string.
func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || !finite(v) {
			return 0, false
		}
		return v, true
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// involvement reads a vehicle involvement count. An explicit null is
// present with a count of zero; a missing key is absent.
func involvement(raw json.RawMessage) (float64, bool) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, true
	}
	return number(raw)
}

// firstCount returns the first non-zero count among keys. Negative values
// count as zero.
func firstCount(props map[string]json.RawMessage, keys []string) int {
	for _, key := range keys {
		v, ok := number(props[key])
		if !ok || v == 0 {
			continue
		}
		if v < 0 {
			return 0
		}
		return int(v)
	}
	return 0
}

// scalarString renders a string or number property as a string.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	if v, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func firstString(props map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		if s := scalarString(props[key]); s != "" && s != "0" {
			return s
		}
	}
	return ""
}

func labelString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
