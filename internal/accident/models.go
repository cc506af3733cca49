// Package accident provides the accident record model, GeoJSON decoding and
// severity classification.
package accident

import (
	"encoding/json"
	"errors"
	"strconv"
)

// Decoding errors.
var (
	ErrNotFeatureCollection = errors.New("payload is not a feature collection")
	ErrInvalidGeometry      = errors.New("feature geometry is not a finite point")
)

// Severity is the harm classification of an accident.
// Known values are ordered by decreasing harm; labels taken verbatim from
// the source data may fall outside the known set.
type Severity string

const (
	SeverityFatal      Severity = "Fatal"
	SeveritySerious    Severity = "Serious"
	SeveritySlight     Severity = "Slight"
	SeverityDamageOnly Severity = "DamageOnly"
)

// Severities returns the known severities ordered by decreasing harm.
func Severities() []Severity {
	return []Severity{SeverityFatal, SeveritySerious, SeveritySlight, SeverityDamageOnly}
}

// Known reports whether s is one of the four known severities.
func (s Severity) Known() bool {
	return s.Rank() > 0
}

// Rank returns the ordinal of a known severity (Fatal is 4, DamageOnly is 1)
// and 0 for anything else.
func (s Severity) Rank() int {
	switch s {
	case SeverityFatal:
		return 4
	case SeveritySerious:
		return 3
	case SeveritySlight:
		return 2
	case SeverityDamageOnly:
		return 1
	default:
		return 0
	}
}

// ParseSeverity parses a severity name. Only the known names are accepted.
func ParseSeverity(name string) (Severity, bool) {
	s := Severity(name)
	return s, s.Known()
}

// VehicleType identifies a road user category used by the involvement filter.
type VehicleType string

const (
	VehiclePedestrian VehicleType = "pedestrian"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBicycle    VehicleType = "bicycle"
	VehicleUTO        VehicleType = "uto"
	VehicleUWR        VehicleType = "uwr"
)

// VehicleTypes returns all vehicle types in display order.
func VehicleTypes() []VehicleType {
	return []VehicleType{VehiclePedestrian, VehicleMotorcycle, VehicleBicycle, VehicleUTO, VehicleUWR}
}

// PropertyKey returns the feature property holding the involvement count.
func (v VehicleType) PropertyKey() string {
	switch v {
	case VehiclePedestrian:
		return "pie"
	case VehicleMotorcycle:
		return "mot"
	case VehicleBicycle:
		return "row"
	case VehicleUTO:
		return "uto"
	case VehicleUWR:
		return "uwr"
	default:
		return ""
	}
}

// ParseVehicleType parses a vehicle type name.
func ParseVehicleType(name string) (VehicleType, bool) {
	for _, v := range VehicleTypes() {
		if string(v) == name {
			return v, true
		}
	}
	return "", false
}

// Location is a WGS84 position.
type Location struct {
	Lon float64
	Lat float64
}

// Record is a single accident. Records are immutable once decoded.
type Record struct {
	ID     string
	Year   *int
	Region string
	Date   string

	Location Location

	// Casualty counts, zero when absent or malformed.
	Fatal      int
	Serious    int
	Slight     int
	DamageOnly int

	// SeverityLabel is the explicit severity property, empty when absent.
	SeverityLabel string
	// SeverityCode is the numeric sev property, nil when absent.
	SeverityCode *int

	// Involvement holds a value only for vehicle types whose property was present.
	Involvement map[VehicleType]int

	// Raw is the original feature, kept for export.
	Raw json.RawMessage
}

// YearKey returns the decimal year or "unknown".
func (r Record) YearKey() string {
	if r.Year == nil {
		return UnknownKey
	}
	return strconv.Itoa(*r.Year)
}

// Involved reports whether the involvement property for v is present and non-negative.
func (r Record) Involved(v VehicleType) bool {
	n, ok := r.Involvement[v]
	return ok && n >= 0
}

// UnknownKey is used wherever a missing year or region has to be named.
const UnknownKey = "unknown"

// FeatureID returns a stable identifier for the record. The explicit id is
// used when present, otherwise one is derived from year, region and position.
func (r Record) FeatureID() string {
	if r.ID != "" {
		return r.ID
	}
	region := r.Region
	if region == "" {
		region = UnknownKey
	}
	return r.YearKey() + "_" + region + "_" +
		strconv.FormatFloat(r.Location.Lon, 'f', -1, 64) + "_" +
		strconv.FormatFloat(r.Location.Lat, 'f', -1, 64)
}
