package worker_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sewik-mapa/sewikmapa/internal/dataset"
)

const testMetadata = `{"years":[2023,2024],"voivodeships":{"MAZOWIECKIE":14,"OPOLSKIE":16}}`

func feature(id string, year, woj int, props string) string {
	return fmt.Sprintf(`{"type":"Feature","geometry":{"type":"Point","coordinates":[21.0,52.2]},"properties":{"ID":%q,"yr":%d,"WOJ":%d%s}}`,
		id, year, woj, props)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// newLoader serves 2024 for both regions and 2023 for MAZOWIECKIE only.
func newLoader(t *testing.T) *dataset.Loader {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, dataset.DefaultMetadataFile, testMetadata)
	collection := func(features ...string) string {
		return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
	}
	writeFile(t, dir, dataset.SynthesizeFilename(2024, "MAZOWIECKIE"), collection(
		feature("m1", 2024, 14, `,"fat":1`),
		feature("m2", 2024, 14, `,"sli":1`),
	))
	writeFile(t, dir, dataset.SynthesizeFilename(2024, "OPOLSKIE"), collection(
		feature("o1", 2024, 16, `,"ser":1`),
	))
	writeFile(t, dir, dataset.SynthesizeFilename(2023, "MAZOWIECKIE"), collection(
		feature("m3", 2023, 14, `,"sli":1`),
	))

	loader := dataset.NewLoader(dataset.LoaderConfig{
		Source: dataset.NewFileSource(dir),
		Logger: zerolog.Nop(),
	})
	loader.LoadMetadata(context.Background())
	return loader
}
