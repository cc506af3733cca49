package urlstate_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

func TestEncode_DefaultStateIsEmpty(t *testing.T) {
	assert.Equal(t, "", urlstate.Encode(urlstate.DefaultState()))
}

func TestEncode_OmitsDefaultsAndOrdersParams(t *testing.T) {
	s := urlstate.DefaultState()
	s.Years = []int{2023, 2021, 2023}
	s.Regions = []string{"śląskie", "mazowieckie"}
	s.Visibility.Severity[accident.SeverityDamageOnly] = false
	s.Visibility.Vehicle[accident.VehicleBicycle] = true
	s.View = &urlstate.View{Lat: 52.229676, Lon: 21.012229, Zoom: 11}

	encoded := urlstate.Encode(s)

	values, err := url.ParseQuery(encoded)
	require.NoError(t, err)
	assert.Equal(t, "52.229676", values.Get("lat"))
	assert.Equal(t, "21.012229", values.Get("lon"))
	assert.Equal(t, "11.00", values.Get("zoom"))
	assert.Equal(t, "2021,2023", values.Get("years"))
	assert.Equal(t, "mazowieckie,śląskie", values.Get("voivodeships"))
	assert.Equal(t, "Fatal,Serious,Slight", values.Get("severity"))
	assert.Equal(t, "true", values.Get("bicycleFilter"))

	for _, key := range []string{"mapStyle", "lang", "radius", "opacity", "panel", "poly", "pedestrianFilter"} {
		assert.False(t, values.Has(key), key)
	}
	assert.Regexp(t, `^lat=.*&lon=.*&zoom=.*&years=`, encoded)
}

func TestEncode_AllSeveritiesHiddenRoundTrips(t *testing.T) {
	s := urlstate.DefaultState()
	for _, sev := range accident.Severities() {
		s.Visibility.Severity[sev] = false
	}

	encoded := urlstate.Encode(s)
	assert.Equal(t, "severity=none", encoded)

	back := urlstate.Decode(encoded).Apply(urlstate.DefaultState())
	assert.Empty(t, back.Visibility.VisibleSeverities())
}

func TestRoundTrip(t *testing.T) {
	s := urlstate.DefaultState()
	s.Years = []int{2019, 2022}
	s.Regions = []string{"dolnośląskie", "łódzkie"}
	s.Visibility.Severity[accident.SeveritySlight] = false
	s.Visibility.Vehicle[accident.VehiclePedestrian] = true
	s.Visibility.Vehicle[accident.VehicleUWR] = true
	s.MapStyle = "satellite"
	s.Language = "en"
	s.Radius = 12
	s.Opacity = 0.35
	s.PanelHidden = true
	s.View = &urlstate.View{Lat: 50.061947, Lon: 19.936856, Zoom: 13.5}
	s.Polygon = []spatial.Point{
		{Lon: 19.93, Lat: 50.06},
		{Lon: 19.95, Lat: 50.06},
		{Lon: 19.95, Lat: 50.07},
		{Lon: 19.93, Lat: 50.07},
	}

	back := urlstate.Decode(urlstate.Encode(s)).Apply(urlstate.DefaultState())

	assert.Equal(t, s.Years, back.Years)
	assert.Equal(t, s.Regions, back.Regions)
	assert.Equal(t, s.Visibility.Fingerprint(), back.Visibility.Fingerprint())
	assert.Equal(t, s.MapStyle, back.MapStyle)
	assert.Equal(t, s.Language, back.Language)
	assert.Equal(t, s.Radius, back.Radius)
	assert.InDelta(t, s.Opacity, back.Opacity, 1e-9)
	assert.True(t, back.PanelHidden)
	require.NotNil(t, back.View)
	assert.InDelta(t, s.View.Lat, back.View.Lat, 1e-6)
	assert.InDelta(t, s.View.Lon, back.View.Lon, 1e-6)
	assert.InDelta(t, s.View.Zoom, back.View.Zoom, 1e-2)
	assert.Equal(t, s.Polygon, back.Polygon)

	assert.Equal(t, urlstate.Encode(s), urlstate.Encode(back))
}

func TestDecode_IgnoresMalformedValues(t *testing.T) {
	p := urlstate.Decode("?years=2020,abc,20x1,2021&radius=99&opacity=1.5&mapStyle=neon&lang=de&lat=NaN&zoom=0&poly=%%%&panel=open")

	assert.Equal(t, []int{2020, 2021}, p.Years)
	assert.Nil(t, p.Radius)
	assert.Nil(t, p.Opacity)
	assert.Nil(t, p.MapStyle)
	assert.Nil(t, p.Language)
	assert.Nil(t, p.Lat)
	assert.Nil(t, p.Zoom)
	assert.Nil(t, p.Polygon)
	assert.False(t, p.PanelHidden)

	s := p.Apply(urlstate.DefaultState())
	assert.Equal(t, urlstate.DefaultRadius, s.Radius)
	assert.Equal(t, urlstate.DefaultMapStyle, s.MapStyle)
	assert.Nil(t, s.View)
}

func TestDecode_SeverityListHidesUnlisted(t *testing.T) {
	s := urlstate.Decode("severity=Fatal,Bogus").Apply(urlstate.DefaultState())
	assert.Equal(t, []accident.Severity{accident.SeverityFatal}, s.Visibility.VisibleSeverities())
}

func TestDecode_LegacyPedestrianFlag(t *testing.T) {
	p := urlstate.Decode("pieFilter=true")
	assert.Equal(t, []accident.VehicleType{accident.VehiclePedestrian}, p.Vehicles)

	p = urlstate.Decode("pieFilter=true&pedestrianFilter=true")
	assert.Len(t, p.Vehicles, 1)

	assert.Equal(t, "pedestrianFilter=true", urlstate.Canonical("pieFilter=true"))
}

func TestDecode_PartialViewUsesDefaults(t *testing.T) {
	s := urlstate.Decode("zoom=10").Apply(urlstate.DefaultState())
	require.NotNil(t, s.View)
	assert.Equal(t, urlstate.DefaultLat, s.View.Lat)
	assert.Equal(t, urlstate.DefaultLon, s.View.Lon)
	assert.Equal(t, 10.0, s.View.Zoom)
}

func TestDecode_PolygonNeedsThreeVertices(t *testing.T) {
	two := spatial.EncodeVertices([]spatial.Point{{Lon: 1, Lat: 1}, {Lon: 2, Lat: 2}})
	p := urlstate.Decode(url.Values{"poly": {two}}.Encode())
	assert.Nil(t, p.Polygon)
}

func TestPartial_HasSelection(t *testing.T) {
	assert.False(t, urlstate.Decode("lang=en").HasSelection())
	assert.True(t, urlstate.Decode("years=2024").HasSelection())
	assert.True(t, urlstate.Decode("voivodeships=opolskie").HasSelection())
}

func TestCanonical_IsStable(t *testing.T) {
	raw := "?voivodeships=opolskie,lubuskie&years=2024,2018&radius=5&lang=pl&motorcycleFilter=true"
	first := urlstate.Canonical(raw)
	assert.Equal(t, "years=2018%2C2024&voivodeships=lubuskie%2Copolskie&motorcycleFilter=true", first)
	assert.Equal(t, first, urlstate.Canonical(first))
}
