package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

var (
	// ErrUnknownCommand is returned for a command kind without a handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidCommand is returned when a command's payload is missing or out of range.
	ErrInvalidCommand = errors.New("invalid command")
)

// CommandKind names a user intent.
type CommandKind string

const (
	ToggleYear        CommandKind = "toggle_year"
	ToggleRegion      CommandKind = "toggle_region"
	ToggleSeverity    CommandKind = "toggle_severity"
	ToggleVehicle     CommandKind = "toggle_vehicle"
	ShowAllYears      CommandKind = "show_all_years"
	ClearYears        CommandKind = "clear_years"
	ShowAllRegions    CommandKind = "show_all_regions"
	ClearRegions      CommandKind = "clear_regions"
	ShowAllSeverities CommandKind = "show_all_severities"
	HideAllSeverities CommandKind = "hide_all_severities"
	SetMapStyle       CommandKind = "set_map_style"
	SetLanguage       CommandKind = "set_language"
	SetRadius         CommandKind = "set_radius"
	SetOpacity        CommandKind = "set_opacity"
	TogglePanel       CommandKind = "toggle_panel"
	SetView           CommandKind = "set_view"
	StartDrawing      CommandKind = "start_drawing"
	AddVertex         CommandKind = "add_vertex"
	FinishDrawing     CommandKind = "finish_drawing"
	CancelDrawing     CommandKind = "cancel_drawing"
	ClearPolygons     CommandKind = "clear_polygons"
)

// Command is a typed user intent. Only the fields relevant to Kind are read.
type Command struct {
	Kind     CommandKind          `json:"kind"`
	Year     int                  `json:"year,omitempty"`
	Region   string               `json:"region,omitempty"`
	Severity accident.Severity    `json:"severity,omitempty"`
	Vehicle  accident.VehicleType `json:"vehicle,omitempty"`
	Value    string               `json:"value,omitempty"`
	Number   *float64             `json:"number,omitempty"`
	View     *urlstate.View       `json:"view,omitempty"`
	Point    *spatial.Point       `json:"point,omitempty"`
}

// effect describes what a handled command invalidated.
type effect uint8

const (
	effectSync effect = 1 << iota
	effectPublish
	effectReload
)

type handler func(s *Session, cmd Command) (effect, error)

var handlers = map[CommandKind]handler{
	ToggleYear:        (*Session).toggleYear,
	ToggleRegion:      (*Session).toggleRegion,
	ToggleSeverity:    (*Session).toggleSeverity,
	ToggleVehicle:     (*Session).toggleVehicle,
	ShowAllYears:      (*Session).showAllYears,
	ClearYears:        (*Session).clearYears,
	ShowAllRegions:    (*Session).showAllRegions,
	ClearRegions:      (*Session).clearRegions,
	ShowAllSeverities: func(s *Session, _ Command) (effect, error) { return s.setAllSeverities(true) },
	HideAllSeverities: func(s *Session, _ Command) (effect, error) { return s.setAllSeverities(false) },
	SetMapStyle:       (*Session).setMapStyle,
	SetLanguage:       (*Session).setLanguage,
	SetRadius:         (*Session).setRadius,
	SetOpacity:        (*Session).setOpacity,
	TogglePanel:       (*Session).togglePanel,
	SetView:           (*Session).setView,
	StartDrawing:      (*Session).startDrawing,
	AddVertex:         (*Session).addVertex,
	FinishDrawing:     (*Session).finishDrawing,
	CancelDrawing:     (*Session).cancelDrawing,
	ClearPolygons:     (*Session).clearPolygons,
}

// Kinds lists every supported command kind.
func Kinds() []CommandKind {
	kinds := make([]CommandKind, 0, len(handlers))
	for k := range handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

const selectionChanged = effectReload | effectPublish | effectSync

func toggleInt(list []int, v int) []int {
	for i, x := range list {
		if x == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return append(list, v)
}

func toggleString(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return append(list, v)
}

func (s *Session) toggleYear(cmd Command) (effect, error) {
	if cmd.Year <= 0 {
		return 0, fmt.Errorf("%w: year is required", ErrInvalidCommand)
	}
	s.state.Years = toggleInt(s.state.Years, cmd.Year)
	return selectionChanged, nil
}

func (s *Session) toggleRegion(cmd Command) (effect, error) {
	if cmd.Region == "" {
		return 0, fmt.Errorf("%w: region is required", ErrInvalidCommand)
	}
	s.state.Regions = toggleString(s.state.Regions, cmd.Region)
	return selectionChanged, nil
}

func (s *Session) showAllYears(Command) (effect, error) {
	s.state.Years = append([]int(nil), s.meta.Years...)
	return selectionChanged, nil
}

func (s *Session) clearYears(Command) (effect, error) {
	s.state.Years = nil
	return selectionChanged, nil
}

func (s *Session) showAllRegions(Command) (effect, error) {
	s.state.Regions = append([]string(nil), s.meta.Regions...)
	return selectionChanged, nil
}

func (s *Session) clearRegions(Command) (effect, error) {
	s.state.Regions = nil
	return selectionChanged, nil
}

func (s *Session) toggleSeverity(cmd Command) (effect, error) {
	if !cmd.Severity.Known() {
		return 0, fmt.Errorf("%w: unknown severity %q", ErrInvalidCommand, cmd.Severity)
	}
	s.state.Visibility.Severity[cmd.Severity] = !s.state.Visibility.Severity[cmd.Severity]
	return effectPublish | effectSync, nil
}

func (s *Session) setAllSeverities(on bool) (effect, error) {
	for _, sev := range accident.Severities() {
		s.state.Visibility.Severity[sev] = on
	}
	return effectPublish | effectSync, nil
}

func (s *Session) toggleVehicle(cmd Command) (effect, error) {
	if _, ok := accident.ParseVehicleType(string(cmd.Vehicle)); !ok {
		return 0, fmt.Errorf("%w: unknown vehicle type %q", ErrInvalidCommand, cmd.Vehicle)
	}
	s.state.Visibility.Vehicle[cmd.Vehicle] = !s.state.Visibility.Vehicle[cmd.Vehicle]
	return effectPublish | effectSync, nil
}

func (s *Session) setMapStyle(cmd Command) (effect, error) {
	if !contains(urlstate.MapStyles(), cmd.Value) {
		return 0, fmt.Errorf("%w: unknown map style %q", ErrInvalidCommand, cmd.Value)
	}
	s.state.MapStyle = cmd.Value
	return effectPublish | effectSync, nil
}

func (s *Session) setLanguage(cmd Command) (effect, error) {
	if !contains(urlstate.Languages(), cmd.Value) {
		return 0, fmt.Errorf("%w: unknown language %q", ErrInvalidCommand, cmd.Value)
	}
	s.state.Language = cmd.Value
	return effectPublish | effectSync, nil
}

func (s *Session) setRadius(cmd Command) (effect, error) {
	if cmd.Number == nil || *cmd.Number != math.Trunc(*cmd.Number) ||
		*cmd.Number < urlstate.MinRadius || *cmd.Number > urlstate.MaxRadius {
		return 0, fmt.Errorf("%w: radius must be an integer in [%d, %d]", ErrInvalidCommand, urlstate.MinRadius, urlstate.MaxRadius)
	}
	s.state.Radius = int(*cmd.Number)
	return effectPublish | effectSync, nil
}

func (s *Session) setOpacity(cmd Command) (effect, error) {
	if cmd.Number == nil || math.IsNaN(*cmd.Number) ||
		*cmd.Number < urlstate.MinOpacity || *cmd.Number > urlstate.MaxOpacity {
		return 0, fmt.Errorf("%w: opacity must be in [0, 1]", ErrInvalidCommand)
	}
	s.state.Opacity = *cmd.Number
	return effectPublish | effectSync, nil
}

func (s *Session) togglePanel(Command) (effect, error) {
	s.state.PanelHidden = !s.state.PanelHidden
	return effectSync, nil
}

func (s *Session) setView(cmd Command) (effect, error) {
	if cmd.View == nil {
		return 0, fmt.Errorf("%w: view is required", ErrInvalidCommand)
	}
	v := *cmd.View
	s.state.View = &v
	return effectSync, nil
}

func (s *Session) startDrawing(Command) (effect, error) {
	s.tool.StartDrawing()
	return effectPublish, nil
}

func (s *Session) addVertex(cmd Command) (effect, error) {
	if cmd.Point == nil {
		return 0, fmt.Errorf("%w: point is required", ErrInvalidCommand)
	}
	if p := s.tool.AddVertex(*cmd.Point); p != nil {
		s.state.Polygon = p.Ring.Vertices()
		return effectPublish | effectSync, nil
	}
	return effectPublish, nil
}

func (s *Session) finishDrawing(Command) (effect, error) {
	if p := s.tool.FinishDrawing(); p != nil {
		s.state.Polygon = p.Ring.Vertices()
		return effectPublish | effectSync, nil
	}
	return effectPublish, nil
}

func (s *Session) cancelDrawing(Command) (effect, error) {
	s.tool.CancelDrawing()
	return effectPublish, nil
}

func (s *Session) clearPolygons(Command) (effect, error) {
	s.tool.ClearAll()
	s.state.Polygon = nil
	return effectPublish | effectSync, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
