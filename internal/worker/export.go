package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/export"
	"github.com/sewik-mapa/sewikmapa/internal/session"
)

// ExportJob writes the export files of a state query into a directory.
type ExportJob struct {
	data    Dataset
	dir     string
	compact bool
	logger  zerolog.Logger
	now     func() time.Time
}

// ExportJobConfig holds configuration for creating an ExportJob.
type ExportJobConfig struct {
	Data    Dataset
	Dir     string
	Compact bool
	Logger  zerolog.Logger
}

// NewExportJob creates a new export job.
func NewExportJob(cfg ExportJobConfig) *ExportJob {
	return &ExportJob{
		data:    cfg.Data,
		dir:     cfg.Dir,
		compact: cfg.Compact,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Run restores the state encoded in query, loads its selection and writes
// one file per non-empty (year, voivodeship) group. It returns the written
// paths. The error wraps export.ErrNothingToExport when nothing is visible.
func (j *ExportJob) Run(ctx context.Context, query string) ([]string, error) {
	meta := j.data.Metadata()
	state := session.RestoreState(query, meta)
	sel := dataset.NewSelection(state.Years, state.Regions)

	ws, err := j.data.Load(ctx, sel)
	if err != nil {
		return nil, err
	}

	files, err := export.Build(ws.Records(), state.Visibility, sel, meta, j.now(), export.Options{Compact: j.compact})
	if err != nil {
		return nil, fmt.Errorf("building export: %w", err)
	}

	paths, err := export.WriteDir(j.dir, files)
	if err != nil {
		return paths, fmt.Errorf("writing export: %w", err)
	}

	j.logger.Info().
		Str("dir", j.dir).
		Int("files", len(paths)).
		Int("records", ws.Len()).
		Msg("export written")
	return paths, nil
}
