// Package dataset resolves, fetches and caches the (year, region) partitions
// of the accident dataset and assembles them into working sets.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
)

// Dataset errors.
var (
	ErrPartitionNotFound = errors.New("partition not found")
	ErrCacheMiss         = errors.New("cache miss")
)

// Descriptor identifies one partition file.
type Descriptor struct {
	File   string `json:"filename"`
	Year   int    `json:"year"`
	Region string `json:"voivodeship"`
}

// Index is the optional prebuilt partition index, in file order.
type Index []Descriptor

// DecodeIndex decodes file_index.json. Entries carry extra statistics which
// are ignored; entries without a file name are dropped.
func DecodeIndex(data []byte) (Index, error) {
	var entries []struct {
		Filename    string          `json:"filename"`
		File        string          `json:"file"`
		Year        json.RawMessage `json:"year"`
		Voivodeship string          `json:"voivodeship"`
		Region      string          `json:"region"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding file index: %w", err)
	}

	index := make(Index, 0, len(entries))
	for _, e := range entries {
		file := e.Filename
		if file == "" {
			file = e.File
		}
		region := e.Voivodeship
		if region == "" {
			region = e.Region
		}
		year, err := parseYear(e.Year)
		if file == "" || err != nil {
			continue
		}
		index = append(index, Descriptor{File: file, Year: year, Region: region})
	}
	return index, nil
}

func parseYear(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// Metadata is the authoritative list of years and regions.
type Metadata struct {
	// Years is sorted newest first.
	Years []int `json:"years"`
	// Regions is sorted by name.
	Regions []string `json:"regions"`
	// NameToCode and CodeToName are empty when the document used the legacy
	// list form.
	NameToCode map[string]int `json:"nameToCode"`
	CodeToName map[int]string `json:"codeToName"`
	// Fallback records that built-in defaults were used.
	Fallback bool `json:"fallback"`
}

var defaultYears = []int{2018, 2019, 2020, 2021, 2022, 2023, 2024}

// defaultRegions are the 16 voivodeships with their TERYT codes.
var defaultRegions = map[string]int{
	"DOLNOŚLĄSKIE":        2,
	"KUJAWSKO-POMORSKIE":  4,
	"LUBELSKIE":           6,
	"LUBUSKIE":            8,
	"ŁÓDZKIE":             10,
	"MAŁOPOLSKIE":         12,
	"MAZOWIECKIE":         14,
	"OPOLSKIE":            16,
	"PODKARPACKIE":        18,
	"PODLASKIE":           20,
	"POMORSKIE":           22,
	"ŚLĄSKIE":             24,
	"ŚWIĘTOKRZYSKIE":      26,
	"WARMIŃSKO-MAZURSKIE": 28,
	"WIELKOPOLSKIE":       30,
	"ZACHODNIOPOMORSKIE":  32,
}

// DefaultMetadata returns the built-in years and voivodeships.
func DefaultMetadata() Metadata {
	m := newMetadata(append([]int(nil), defaultYears...), nil)
	m.setCodes(defaultRegions)
	m.Fallback = true
	return m
}

func newMetadata(years []int, regions []string) Metadata {
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	sort.Strings(regions)
	return Metadata{
		Years:      years,
		Regions:    regions,
		NameToCode: make(map[string]int),
		CodeToName: make(map[int]string),
	}
}

func (m *Metadata) setCodes(codes map[string]int) {
	m.Regions = m.Regions[:0]
	for name, code := range codes {
		m.NameToCode[name] = code
		m.CodeToName[code] = name
		m.Regions = append(m.Regions, name)
	}
	sort.Strings(m.Regions)
}

// DecodeMetadata decodes metadata.json. The voivodeships field is either a
// name to code object or a plain list of names. Missing years or regions are
// filled from the defaults.
func DecodeMetadata(data []byte) (Metadata, error) {
	var doc struct {
		Years        []int           `json:"years"`
		Voivodeships json.RawMessage `json:"voivodeships"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata: %w", err)
	}

	years := doc.Years
	if len(years) == 0 {
		years = append([]int(nil), defaultYears...)
	}
	m := newMetadata(years, nil)

	var codes map[string]int
	var names []string
	switch {
	case len(doc.Voivodeships) == 0 || string(doc.Voivodeships) == "null":
		m.setCodes(defaultRegions)
	case json.Unmarshal(doc.Voivodeships, &codes) == nil:
		m.setCodes(codes)
	case json.Unmarshal(doc.Voivodeships, &names) == nil:
		m.Regions = append(m.Regions, names...)
		sort.Strings(m.Regions)
	default:
		return Metadata{}, fmt.Errorf("decoding metadata: unsupported voivodeships field")
	}
	return m, nil
}

// RegionName resolves a region code (as found in records) to its name. Names
// and unknown codes are returned unchanged.
func (m Metadata) RegionName(region string) string {
	code, err := strconv.Atoi(region)
	if err != nil {
		return region
	}
	if name, ok := m.CodeToName[code]; ok {
		return name
	}
	return region
}

// LatestYear returns the newest known year.
func (m Metadata) LatestYear() (int, bool) {
	if len(m.Years) == 0 {
		return 0, false
	}
	return m.Years[0], true
}

// Selection is a (years, regions) pair.
type Selection struct {
	Years   []int    `json:"years"`
	Regions []string `json:"regions"`
}

// NewSelection normalises years and regions: sorted, without duplicates.
func NewSelection(years []int, regions []string) Selection {
	ys := append([]int(nil), years...)
	sort.Ints(ys)
	ys = compactInts(ys)
	rs := append([]string(nil), regions...)
	sort.Strings(rs)
	rs = compactStrings(rs)
	return Selection{Years: ys, Regions: rs}
}

// Empty reports whether either side of the selection is empty.
func (s Selection) Empty() bool {
	return len(s.Years) == 0 || len(s.Regions) == 0
}

// Key returns a canonical string for comparing selections.
func (s Selection) Key() string {
	b, _ := json.Marshal(NewSelection(s.Years, s.Regions))
	return string(b)
}

// Equal reports whether both selections name the same partitions.
func (s Selection) Equal(o Selection) bool {
	return s.Key() == o.Key()
}

func compactInts(s []int) []int {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func compactStrings(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// WorkingSet is the immutable union of the records of a selection.
type WorkingSet struct {
	records    []accident.Record
	selection  Selection
	generation uint64
	partitions int
	failed     []string
}

// EmptyWorkingSet returns a working set with no records.
func EmptyWorkingSet(sel Selection) *WorkingSet {
	return &WorkingSet{selection: sel}
}

// Records returns the records. Callers must not modify the slice.
func (w *WorkingSet) Records() []accident.Record {
	if w == nil {
		return nil
	}
	return w.records
}

// Len returns the number of records.
func (w *WorkingSet) Len() int {
	if w == nil {
		return 0
	}
	return len(w.records)
}

// Selection returns the selection the set was built for.
func (w *WorkingSet) Selection() Selection {
	if w == nil {
		return Selection{}
	}
	return w.selection
}

// Generation increases with every working set a loader builds.
func (w *WorkingSet) Generation() uint64 {
	if w == nil {
		return 0
	}
	return w.generation
}

// Partitions returns the number of partitions that contributed.
func (w *WorkingSet) Partitions() int {
	if w == nil {
		return 0
	}
	return w.partitions
}

// Failed returns the files that could not be loaded.
func (w *WorkingSet) Failed() []string {
	if w == nil {
		return nil
	}
	return w.failed
}
