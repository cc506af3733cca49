package spatial_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/filter"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
)

func square(t *testing.T) *spatial.Polygon {
	t.Helper()
	p, err := spatial.NewPolygon("sq", []spatial.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
	require.NoError(t, err)
	return p
}

func rec(year int, lon, lat float64, severity accident.Severity) accident.Record {
	y := year
	return accident.Record{Year: &y, Location: accident.Location{Lon: lon, Lat: lat}, SeverityLabel: string(severity)}
}

func TestNewPolygon(t *testing.T) {
	p := square(t)
	require.Len(t, p.Ring, 5)
	assert.Equal(t, p.Ring[0], p.Ring[4], "ring must be closed")

	_, err := spatial.NewPolygon("", []spatial.Point{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, spatial.ErrTooFewVertices)

	_, err = spatial.NewPolygon("", []spatial.Point{{0, 0}, {1, 1}, {0, 0}})
	assert.ErrorIs(t, err, spatial.ErrTooFewVertices, "an already-closed pair is not a polygon")

	closed, err := spatial.NewPolygon("", []spatial.Point{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
	require.NoError(t, err)
	assert.Len(t, closed.Ring, 4, "a closed input is not closed twice")
}

func TestPointInPolygon(t *testing.T) {
	p := square(t)

	tests := []struct {
		name string
		pt   spatial.Point
		want bool
	}{
		{"centroid", spatial.Point{Lon: 5, Lat: 5}, true},
		{"far outside", spatial.Point{Lon: 100, Lat: -40}, false},
		{"just outside right", spatial.Point{Lon: 10.0001, Lat: 5}, false},
		{"left edge counts as inside", spatial.Point{Lon: 0, Lat: 5}, true},
		{"bottom edge counts as inside", spatial.Point{Lon: 5, Lat: 0}, true},
		{"right edge counts as outside", spatial.Point{Lon: 10, Lat: 5}, false},
		{"top edge counts as outside", spatial.Point{Lon: 5, Lat: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spatial.PointInPolygon(tt.pt, p.Ring))
			assert.Equal(t, tt.want, p.Contains(tt.pt), "bounding box check must not change the outcome")
		})
	}
}

func TestPointInPolygon_Concave(t *testing.T) {
	// U shape opening upwards.
	p, err := spatial.NewPolygon("u", []spatial.Point{{0, 0}, {9, 0}, {9, 9}, {6, 9}, {6, 3}, {3, 3}, {3, 9}, {0, 9}})
	require.NoError(t, err)

	assert.True(t, p.Contains(spatial.Point{Lon: 1.5, Lat: 6}))
	assert.True(t, p.Contains(spatial.Point{Lon: 7.5, Lat: 6}))
	assert.False(t, p.Contains(spatial.Point{Lon: 4.5, Lat: 6}), "the notch is outside")
}

func TestPointInPolygon_DegenerateRing(t *testing.T) {
	assert.False(t, spatial.PointInPolygon(spatial.Point{}, spatial.Ring{{0, 0}, {1, 1}}))
}

func scenarioRecords() []accident.Record {
	return []accident.Record{
		rec(2020, 1, 1, accident.SeverityFatal),
		rec(2020, 2, 2, accident.SeveritySlight),
		rec(2021, 3, 3, accident.SeveritySerious),
	}
}

func TestAnalyze_AllVisible(t *testing.T) {
	result := spatial.Analyze(scenarioRecords(), filter.DefaultVisibility(), square(t))

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, map[accident.Severity]int{
		accident.SeverityFatal:      1,
		accident.SeveritySerious:    1,
		accident.SeveritySlight:     1,
		accident.SeverityDamageOnly: 0,
	}, result.BySeverity)
	require.Contains(t, result.ByYear, "2020")
	require.Contains(t, result.ByYear, "2021")
	assert.Equal(t, 2, result.ByYear["2020"].Total)
	assert.Equal(t, 1, result.ByYear["2020"].BySeverity[accident.SeverityFatal])
	assert.Equal(t, 1, result.ByYear["2020"].BySeverity[accident.SeveritySlight])
	assert.Equal(t, 1, result.ByYear["2021"].Total)
	assertConsistent(t, result)
}

func TestAnalyze_FatalHidden(t *testing.T) {
	state := filter.DefaultVisibility()
	state.Severity[accident.SeverityFatal] = false

	result := spatial.Analyze(scenarioRecords(), state, square(t))

	assert.Equal(t, 2, result.Total)
	assert.Zero(t, result.BySeverity[accident.SeverityFatal])
	assert.Zero(t, result.ByYear["2020"].BySeverity[accident.SeverityFatal])
	assert.Equal(t, 1, result.ByYear["2020"].Total)
	assertConsistent(t, result)
}

func TestAnalyze_UnknownYearAndOutsidePoints(t *testing.T) {
	records := append(scenarioRecords(),
		accident.Record{Location: accident.Location{Lon: 5, Lat: 5}, Slight: 1},
		rec(2022, 50, 50, accident.SeverityFatal),
	)

	result := spatial.Analyze(records, filter.DefaultVisibility(), square(t))

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 1, result.ByYear[accident.UnknownKey].Total)
	assert.NotContains(t, result.ByYear, "2022")
	assert.Equal(t, []string{"2020", "2021", accident.UnknownKey}, result.Years())
	assertConsistent(t, result)
}

func TestAnalyze_Empty(t *testing.T) {
	assert.Equal(t, spatial.EmptyResult(), spatial.Analyze(nil, filter.DefaultVisibility(), square(t)))
	assert.Equal(t, spatial.EmptyResult(), spatial.Analyze(scenarioRecords(), filter.DefaultVisibility(), nil))

	empty := spatial.EmptyResult()
	assert.Zero(t, empty.Total)
	assert.Len(t, empty.BySeverity, 4)
	assert.Empty(t, empty.ByYear)
	assert.Zero(t, empty.Percent(accident.SeverityFatal))
}

func TestAnalysisResult_Percent(t *testing.T) {
	result := spatial.Analyze(scenarioRecords(), filter.DefaultVisibility(), square(t))
	assert.InDelta(t, 33.33, result.Percent(accident.SeverityFatal), 0.01)
}

func TestAnalyzer_Invalidation(t *testing.T) {
	var a spatial.Analyzer
	records := scenarioRecords()
	state := filter.DefaultVisibility()
	p := square(t)

	first := a.Result(1, records, state, p)
	assert.Equal(t, 3, first.Total)

	// Same key returns the memoised value even if the slice was swapped.
	assert.Equal(t, 3, a.Result(1, records[:1], state, p).Total)

	assert.Equal(t, 1, a.Result(2, records[:1], state, p).Total, "new generation recomputes")

	hidden := state.Clone()
	hidden.Severity[accident.SeverityFatal] = false
	assert.Equal(t, 0, a.Result(2, records[:1], hidden, p).Total, "visibility change recomputes")

	small, err := spatial.NewPolygon("sq", []spatial.Point{{0, 0}, {1.5, 0}, {1.5, 1.5}, {0, 1.5}})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Result(2, records, state, small).Total, "polygon change recomputes")

	assert.Equal(t, spatial.EmptyResult(), a.Result(2, records, state, nil))
}

func TestAnalyzer_ResultIsCopied(t *testing.T) {
	var a spatial.Analyzer
	records := scenarioRecords()
	state := filter.DefaultVisibility()
	p := square(t)

	first := a.Result(1, records, state, p)
	first.BySeverity[accident.SeverityFatal] = 99
	first.ByYear["2020"].BySeverity[accident.SeveritySlight] = 99
	first.ByYear["1999"] = spatial.YearBucket{Total: 1}

	again := a.Result(1, records, state, p)
	assert.Equal(t, 1, again.BySeverity[accident.SeverityFatal])
	assert.Equal(t, 1, again.ByYear["2020"].BySeverity[accident.SeveritySlight])
	assert.NotContains(t, again.ByYear, "1999")
	assertConsistent(t, again)
}

func TestPolylineVertices(t *testing.T) {
	vertices := []spatial.Point{{Lon: 19.5, Lat: 52.1}, {Lon: 19.6, Lat: 52.1}, {Lon: 19.6, Lat: 52.2}}
	encoded := spatial.EncodeVertices(spatial.Close(vertices))

	decoded, err := spatial.DecodeVertices(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i := range vertices {
		assert.InDelta(t, vertices[i].Lon, decoded[i].Lon, 1e-5)
		assert.InDelta(t, vertices[i].Lat, decoded[i].Lat, 1e-5)
	}
}

func TestParsePoints(t *testing.T) {
	points, err := spatial.ParsePoints("19.5,52.1; 19.6,52.1;19.6,52.2;")
	require.NoError(t, err)
	assert.Equal(t, []spatial.Point{{19.5, 52.1}, {19.6, 52.1}, {19.6, 52.2}}, points)

	_, err = spatial.ParsePoints("19.5;52.1")
	assert.ErrorIs(t, err, spatial.ErrMalformedCoords)
}

func TestPerimeterMeters(t *testing.T) {
	p, err := spatial.NewPolygon("", []spatial.Point{{0, 0}, {0, 1}, {1, 1}, {1, 0}})
	require.NoError(t, err)
	// Four sides of roughly one degree near the equator.
	assert.InDelta(t, 4*111195.0, p.PerimeterMeters(), 2000)
}

func assertConsistent(t *testing.T, r spatial.AnalysisResult) {
	t.Helper()
	sum := 0
	for _, n := range r.BySeverity {
		sum += n
	}
	assert.Equal(t, r.Total, sum, "bySeverity must sum to total")

	yearSum := 0
	for year, bucket := range r.ByYear {
		bucketSum := 0
		for _, n := range bucket.BySeverity {
			bucketSum += n
		}
		assert.Equal(t, bucket.Total, bucketSum, "year %s severities must sum to its total", year)
		yearSum += bucket.Total
	}
	assert.Equal(t, r.Total, yearSum, "year totals must sum to total")
}
