// Package export partitions the visible accident set into one GeoJSON
// feature collection per (year, voivodeship) pair.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/filter"
)

// Source is the attribution written into every export.
const Source = "SEWIK - System Ewidencji Wypadków i Kolizji"

// ErrNothingToExport is returned when no visible record falls into the selection.
var ErrNothingToExport = errors.New("no visible accidents to export")

// Metadata describes one exported file.
type Metadata struct {
	ExportDate            string   `json:"exportDate"`
	Year                  int      `json:"year"`
	Voivodeship           string   `json:"voivodeship"`
	VisibleSeverities     []string `json:"visibleSeverities"`
	EnabledVehicleFilters []string `json:"enabledVehicleFilters"`
	TotalFeatures         int      `json:"totalFeatures"`
	Source                string   `json:"source"`
}

// File is a single export.
type File struct {
	Name     string
	Year     int
	Region   string
	Count    int
	Metadata Metadata
	Data     []byte
}

// Options controls encoding.
type Options struct {
	// Compact writes JSON without indentation.
	Compact bool
}

type group struct {
	year    int
	region  string
	records []accident.Record
}

// Build filters records with state and groups them over the selection in
// ascending year then region order. Groups without records produce no file.
// Records whose year or region is outside the selection are dropped.
func Build(records []accident.Record, state filter.VisibilityState, sel dataset.Selection, meta dataset.Metadata, now time.Time, opts Options) ([]File, error) {
	sel = dataset.NewSelection(sel.Years, sel.Regions)

	groups := make([]*group, 0, len(sel.Years)*len(sel.Regions))
	byKey := make(map[string]*group, cap(groups))
	for _, y := range sel.Years {
		for _, region := range sel.Regions {
			g := &group{year: y, region: region}
			groups = append(groups, g)
			byKey[groupKey(y, region)] = g
		}
	}

	for _, r := range filter.Apply(records, state) {
		if r.Year == nil {
			continue
		}
		g, ok := byKey[groupKey(*r.Year, meta.RegionName(r.Region))]
		if !ok {
			continue
		}
		g.records = append(g.records, r)
	}

	severities := make([]string, 0, 4)
	for _, s := range state.VisibleSeverities() {
		severities = append(severities, string(s))
	}
	vehicles := make([]string, 0, 5)
	for _, v := range state.EnabledVehicles() {
		vehicles = append(vehicles, string(v))
	}
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z")

	var files []File
	for _, g := range groups {
		if len(g.records) == 0 {
			continue
		}
		md := Metadata{
			ExportDate:            stamp,
			Year:                  g.year,
			Voivodeship:           g.region,
			VisibleSeverities:     severities,
			EnabledVehicleFilters: vehicles,
			TotalFeatures:         len(g.records),
			Source:                Source,
		}
		fc := accident.NewFeatureCollection(g.records)
		fc.Metadata = md

		data, err := encode(fc, opts)
		if err != nil {
			return nil, fmt.Errorf("encoding %d/%s: %w", g.year, g.region, err)
		}
		files = append(files, File{
			Name:     dataset.SynthesizeFilename(g.year, g.region),
			Year:     g.year,
			Region:   g.region,
			Count:    len(g.records),
			Metadata: md,
			Data:     data,
		})
	}

	if len(files) == 0 {
		return nil, ErrNothingToExport
	}
	return files, nil
}

func groupKey(year int, region string) string {
	return strconv.Itoa(year) + "_" + region
}

func encode(v any, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !opts.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteDir writes files into dir, creating it if needed, and returns the
// written paths.
func WriteDir(dir string, files []File) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", f.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
