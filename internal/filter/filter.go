// Package filter implements the severity and vehicle-involvement predicate
// shared by rendering, polygon analysis and export.
package filter

import (
	"sort"
	"strings"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
)

// VisibilityState is the combined filter configuration.
type VisibilityState struct {
	// Severity toggles each severity. A severity missing from the map is hidden.
	Severity map[accident.Severity]bool
	// Vehicle enables involvement filters. With none enabled the gate is open.
	Vehicle map[accident.VehicleType]bool
}

// DefaultVisibility shows every severity with no vehicle filter enabled.
func DefaultVisibility() VisibilityState {
	v := VisibilityState{
		Severity: make(map[accident.Severity]bool, 4),
		Vehicle:  make(map[accident.VehicleType]bool, 5),
	}
	for _, s := range accident.Severities() {
		v.Severity[s] = true
	}
	for _, t := range accident.VehicleTypes() {
		v.Vehicle[t] = false
	}
	return v
}

// Clone returns a deep copy.
func (v VisibilityState) Clone() VisibilityState {
	c := VisibilityState{
		Severity: make(map[accident.Severity]bool, len(v.Severity)),
		Vehicle:  make(map[accident.VehicleType]bool, len(v.Vehicle)),
	}
	for k, on := range v.Severity {
		c.Severity[k] = on
	}
	for k, on := range v.Vehicle {
		c.Vehicle[k] = on
	}
	return c
}

// VisibleSeverities returns the visible known severities in harm order.
func (v VisibilityState) VisibleSeverities() []accident.Severity {
	visible := make([]accident.Severity, 0, 4)
	for _, s := range accident.Severities() {
		if v.Severity[s] {
			visible = append(visible, s)
		}
	}
	return visible
}

// EnabledVehicles returns the enabled vehicle filters in display order.
func (v VisibilityState) EnabledVehicles() []accident.VehicleType {
	var enabled []accident.VehicleType
	for _, t := range accident.VehicleTypes() {
		if v.Vehicle[t] {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// AnyVehicleEnabled reports whether the vehicle gate is active.
func (v VisibilityState) AnyVehicleEnabled() bool {
	for _, on := range v.Vehicle {
		if on {
			return true
		}
	}
	return false
}

// Fingerprint returns a canonical string identifying the configuration.
func (v VisibilityState) Fingerprint() string {
	var b strings.Builder
	severities := make([]string, 0, len(v.Severity))
	for s, on := range v.Severity {
		if on {
			severities = append(severities, string(s))
		}
	}
	sort.Strings(severities)
	b.WriteString(strings.Join(severities, ","))
	b.WriteByte('|')
	for _, t := range v.EnabledVehicles() {
		b.WriteString(string(t))
		b.WriteByte(',')
	}
	return b.String()
}

// Visible reports whether a record passes both gates.
func Visible(r accident.Record, state VisibilityState) bool {
	if !state.Severity[accident.Classify(r)] {
		return false
	}
	if !state.AnyVehicleEnabled() {
		return true
	}
	for t, on := range state.Vehicle {
		if on && r.Involved(t) {
			return true
		}
	}
	return false
}

// Apply returns the visible records in their original order. The input slice
// is not modified.
func Apply(records []accident.Record, state VisibilityState) []accident.Record {
	visible := make([]accident.Record, 0, len(records))
	for _, r := range records {
		if Visible(r, state) {
			visible = append(visible, r)
		}
	}
	return visible
}

// Counts tallies records per severity. The four known severities are always present.
func Counts(records []accident.Record) map[accident.Severity]int {
	counts := make(map[accident.Severity]int, 4)
	for _, s := range accident.Severities() {
		counts[s] = 0
	}
	for _, r := range records {
		counts[accident.Classify(r)]++
	}
	return counts
}
