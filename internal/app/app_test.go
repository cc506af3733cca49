package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewik-mapa/sewikmapa/internal/app"
	"github.com/sewik-mapa/sewikmapa/internal/config"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
)

func TestOpen_FileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.DefaultMetadataFile),
		[]byte(`{"years":[2022],"voivodeships":["OPOLSKIE"]}`), 0o600))

	data, err := app.Open(context.Background(), config.Config{
		DataSource:       config.SourceFile,
		DataDir:          dir,
		FetchConcurrency: 2,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer data.Close()

	assert.Nil(t, data.HTTP)
	assert.Nil(t, data.Redis)
	assert.Equal(t, "file", data.Source.Name())

	meta := data.Init(context.Background())
	assert.Equal(t, []int{2022}, meta.Years)
	assert.True(t, data.Loader.MetadataLoaded())
}

func TestOpen_HTTPSourceWithRedis(t *testing.T) {
	data, err := app.Open(context.Background(), config.Config{
		DataSource:  config.SourceHTTP,
		DataBaseURL: "http://localhost:1/data",
		RedisAddr:   "localhost:6379",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer data.Close()

	require.NotNil(t, data.HTTP)
	assert.NotNil(t, data.Redis)
	assert.Equal(t, "sewik-data", data.HTTP.Health().Name)
}

func TestOpen_UnknownSource(t *testing.T) {
	_, err := app.Open(context.Background(), config.Config{DataSource: "ftp"}, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalid)
}
