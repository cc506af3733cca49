package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/api"
	"github.com/sewik-mapa/sewikmapa/internal/api/handler"
	"github.com/sewik-mapa/sewikmapa/internal/api/models"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/session"
)

func feature(id string, lon, lat float64, year int, props string) string {
	return fmt.Sprintf(`{"type":"Feature","geometry":{"type":"Point","coordinates":[%g,%g]},"properties":{"ID":%q,"yr":%d,"WOJ":14%s}}`,
		lon, lat, id, year, props)
}

func writePartition(t *testing.T, dir string, year int, region string, features ...string) {
	t.Helper()
	doc := `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.SynthesizeFilename(year, region)), []byte(doc), 0o600))
}

type testServer struct {
	router   http.Handler
	loader   *dataset.Loader
	sessions *session.Registry
}

func newTestServer(t *testing.T, loadMetadata bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	writePartition(t, dir, 2024, "MAZOWIECKIE",
		feature("a", 21.00, 52.20, 2024, `,"fat":1`),
		feature("b", 21.05, 52.25, 2024, `,"ser":1,"pie":1`),
		feature("c", 22.50, 53.00, 2024, `,"sli":1`),
	)

	loader := dataset.NewLoader(dataset.LoaderConfig{
		Source: dataset.NewFileSource(dir),
		Logger: zerolog.Nop(),
	})
	if loadMetadata {
		loader.LoadMetadata(context.Background())
	}
	sessions := session.NewRegistry(session.RegistryConfig{Loader: loader, Logger: zerolog.Nop()})

	return &testServer{
		router: api.NewRouter(api.RouterConfig{
			Version:   "test",
			BuildTime: "2024-01-01T00:00:00Z",
			Logger:    zerolog.Nop(),
			Loader:    loader,
			Sessions:  sessions,
			Checks: map[string]handler.Check{
				"redis": func(context.Context) error { return nil },
			},
		}),
		loader:   loader,
		sessions: sessions,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const mazowsze2024 = "years=2024&voivodeships=MAZOWIECKIE"

func TestOps(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.do(t, http.MethodGet, "/v1/ops/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = srv.do(t, http.MethodGet, "/v1/ops/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	srv.loader.LoadMetadata(context.Background())
	rec = srv.do(t, http.MethodGet, "/v1/ops/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.do(t, http.MethodGet, "/v1/accidents?"+mazowsze2024, nil)
	rec = srv.do(t, http.MethodGet, "/v1/ops/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "redis", status.Subsystems[0].Name)
	assert.Equal(t, 1, status.Cache.CachedPartitions)
}

func TestMetadata(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodGet, "/v1/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	meta := decode[models.MetadataResponse](t, rec)
	assert.True(t, meta.Fallback)
	assert.Len(t, meta.Regions, 16)
	assert.Equal(t, 2024, meta.Years[0])
	assert.Equal(t, accident.Severities(), meta.Severities)
	assert.Len(t, meta.VehicleTypes, 5)
}

func TestListAccidents(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodGet, "/v1/accidents?"+mazowsze2024, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.AccidentsResponse](t, rec)
	assert.Equal(t, "FeatureCollection", resp.Type)
	assert.Len(t, resp.Features, 3)
	assert.Equal(t, 1, resp.Counts[accident.SeverityFatal])
	assert.Equal(t, mazowsze2024, resp.Query)

	rec = srv.do(t, http.MethodGet, "/v1/accidents?"+mazowsze2024+"&pedestrianFilter=true", nil)
	resp = decode[models.AccidentsResponse](t, rec)
	assert.Len(t, resp.Features, 1)
	assert.Equal(t, 1, resp.Counts[accident.SeveritySerious])
}

func TestAnalyze(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/v1/analysis", models.AnalysisRequest{
		Query:   mazowsze2024,
		Polygon: [][2]float64{{20.98, 52.18}, {21.02, 52.18}, {21.00, 52.23}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.AnalysisResponse](t, rec)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.BySeverity[accident.SeverityFatal])
	assert.InDelta(t, 100.0, resp.Percent[accident.SeverityFatal], 1e-9)
	assert.Equal(t, []string{"2024"}, resp.Years)
	assert.Equal(t, 3, resp.Vertices)

	rec = srv.do(t, http.MethodPost, "/v1/analysis", models.AnalysisRequest{
		Query:   mazowsze2024,
		Polygon: [][2]float64{{20.98, 52.18}, {21.02, 52.18}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	assert.Equal(t, "/v1/analysis", problem.Instance)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "polygon", problem.Errors[0].Field)
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodGet, "/v1/export?"+mazowsze2024+"&severity=Fatal,Serious", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.ExportResponse](t, rec)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "accidents_2024_MAZOWIECKIE.geojson", resp.Files[0].Name)
	assert.Equal(t, 2, resp.Total)
	assert.Contains(t, string(resp.Files[0].Content), `"totalFeatures":2`)

	rec = srv.do(t, http.MethodGet, "/v1/export?"+mazowsze2024+"&file=accidents_2024_MAZOWIECKIE.geojson&compact=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "accidents_2024_MAZOWIECKIE.geojson")
	assert.NotContains(t, rec.Body.String(), "\n")

	rec = srv.do(t, http.MethodGet, "/v1/export?"+mazowsze2024+"&file=missing.geojson", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/export?"+mazowsze2024+"&severity=none", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decode[models.Problem](t, rec)
	assert.Equal(t, models.ProblemTypeUnprocessable, problem.Type)
}

func TestCanonical(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodGet, "/v1/state/canonical?voivodeships=OPOLSKIE,LUBUSKIE&mapStyle=positron&bogus=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.CanonicalResponse](t, rec)
	assert.Equal(t, "voivodeships=LUBUSKIE%2COPOLSKIE", resp.Canonical)
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/v1/sessions", models.CreateSessionRequest{Query: mazowsze2024})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.SessionResponse](t, rec)
	assert.True(t, strings.HasPrefix(created.ID, session.IDPrefix))
	assert.Equal(t, "/v1/sessions/"+created.ID, rec.Header().Get("Location"))
	assert.Equal(t, 3, created.View.Loaded)
	assert.Equal(t, 1, srv.sessions.Len())

	rec = srv.do(t, http.MethodPost, "/v1/sessions/"+created.ID+"/commands", session.Command{
		Kind:     session.ToggleSeverity,
		Severity: accident.SeverityFatal,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.SessionResponse](t, rec)
	assert.Equal(t, 0, updated.View.Counts[accident.SeverityFatal])
	assert.Contains(t, updated.View.Query, "severity=")

	rec = srv.do(t, http.MethodPost, "/v1/sessions/"+created.ID+"/commands", session.Command{Kind: "teleport"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessions_EmptyBodyUsesDefaults(t *testing.T) {
	srv := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", http.NoBody)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.SessionResponse](t, rec)
	assert.Equal(t, []int{2024}, created.View.Selection.Years)
}
