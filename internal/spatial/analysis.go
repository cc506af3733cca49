package spatial

import (
	"sort"
	"strconv"
	"sync"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/filter"
)

// YearBucket holds the per-severity counts for one year.
type YearBucket struct {
	BySeverity map[accident.Severity]int `json:"bySeverity"`
	Total      int                       `json:"total"`
}

// AnalysisResult aggregates the visible records inside a polygon.
// BySeverity always carries the four known severities. ByYear is keyed by the
// decimal year, or "unknown" for records without a usable year.
type AnalysisResult struct {
	Total      int                       `json:"total"`
	BySeverity map[accident.Severity]int `json:"bySeverity"`
	ByYear     map[string]YearBucket     `json:"byYear"`
}

// EmptyResult returns the zeroed result.
func EmptyResult() AnalysisResult {
	return AnalysisResult{
		BySeverity: zeroSeverities(),
		ByYear:     make(map[string]YearBucket),
	}
}

func zeroSeverities() map[accident.Severity]int {
	m := make(map[accident.Severity]int, 4)
	for _, s := range accident.Severities() {
		m[s] = 0
	}
	return m
}

// Clone returns a deep copy of the result.
func (r AnalysisResult) Clone() AnalysisResult {
	out := AnalysisResult{
		Total:      r.Total,
		BySeverity: make(map[accident.Severity]int, len(r.BySeverity)),
		ByYear:     make(map[string]YearBucket, len(r.ByYear)),
	}
	for s, n := range r.BySeverity {
		out.BySeverity[s] = n
	}
	for k, bucket := range r.ByYear {
		counts := make(map[accident.Severity]int, len(bucket.BySeverity))
		for s, n := range bucket.BySeverity {
			counts[s] = n
		}
		out.ByYear[k] = YearBucket{BySeverity: counts, Total: bucket.Total}
	}
	return out
}

// Percent returns the share of s in the total, 0 when there is nothing.
func (r AnalysisResult) Percent(s accident.Severity) float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.BySeverity[s]) * 100 / float64(r.Total)
}

// Years returns the year keys in ascending order with "unknown" last.
func (r AnalysisResult) Years() []string {
	keys := make([]string, 0, len(r.ByYear))
	for k := range r.ByYear {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		yi, erri := strconv.Atoi(keys[i])
		yj, errj := strconv.Atoi(keys[j])
		switch {
		case erri == nil && errj == nil:
			return yi < yj
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// Analyze filters records, keeps those inside the polygon and aggregates them.
// A nil polygon or no records yields the empty result.
func Analyze(records []accident.Record, state filter.VisibilityState, polygon *Polygon) AnalysisResult {
	result := EmptyResult()
	if polygon == nil || len(records) == 0 {
		return result
	}

	for _, r := range filter.Apply(records, state) {
		if !polygon.Contains(Point{Lon: r.Location.Lon, Lat: r.Location.Lat}) {
			continue
		}
		severity := accident.Classify(r)
		result.Total++
		result.BySeverity[severity]++

		key := r.YearKey()
		bucket, ok := result.ByYear[key]
		if !ok {
			bucket = YearBucket{BySeverity: zeroSeverities()}
		}
		bucket.BySeverity[severity]++
		bucket.Total++
		result.ByYear[key] = bucket
	}
	return result
}

// Analyzer memoises the last analysis. The cached result is reused only while
// the working-set generation, the visibility fingerprint and the polygon
// geometry are all unchanged.
type Analyzer struct {
	mu     sync.Mutex
	key    string
	valid  bool
	result AnalysisResult
}

// Result returns the analysis for the inputs, recomputing when any changed.
// Callers own the returned maps.
func (a *Analyzer) Result(generation uint64, records []accident.Record, state filter.VisibilityState, polygon *Polygon) AnalysisResult {
	key := strconv.FormatUint(generation, 10) + "|" + state.Fingerprint() + "|"
	if polygon != nil {
		key += polygon.Fingerprint()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.valid && a.key == key {
		return a.result.Clone()
	}
	a.result = Analyze(records, state, polygon)
	a.key = key
	a.valid = true
	return a.result.Clone()
}

// Invalidate drops the memoised result.
func (a *Analyzer) Invalidate() {
	a.mu.Lock()
	a.valid = false
	a.result = AnalysisResult{}
	a.mu.Unlock()
}
