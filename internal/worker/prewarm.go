package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/dataset"
)

// Dataset is what the jobs need from the partition loader.
// *dataset.Loader implements it.
type Dataset interface {
	Metadata() dataset.Metadata
	Load(ctx context.Context, sel dataset.Selection) (*dataset.WorkingSet, error)
}

// PrewarmJob loads partitions ahead of demand so that API requests hit the
// cache.
type PrewarmJob struct {
	config PrewarmConfig
	data   Dataset
	logger zerolog.Logger

	metrics *PrewarmMetrics
}

// PrewarmMetrics tracks prewarm job statistics.
type PrewarmMetrics struct {
	mu sync.RWMutex

	Runs             int64
	PartitionsLoaded int64
	PartitionsFailed int64
	Records          int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// PrewarmJobConfig holds configuration for creating a PrewarmJob.
type PrewarmJobConfig struct {
	Config PrewarmConfig
	Data   Dataset
	Logger zerolog.Logger
}

// NewPrewarmJob creates a new prewarm job.
func NewPrewarmJob(cfg PrewarmJobConfig) *PrewarmJob {
	return &PrewarmJob{
		config:  cfg.Config.withDefaults(),
		data:    cfg.Data,
		logger:  cfg.Logger,
		metrics: &PrewarmMetrics{},
	}
}

// PrewarmResult contains the result of a prewarm run.
type PrewarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Targets    int
	Partitions int
	Records    int
	Failed     []string
	// Canceled is set when the context ended before every target loaded.
	Canceled bool
}

// Run prewarms the configured targets.
func (j *PrewarmJob) Run(ctx context.Context) *PrewarmResult {
	return j.run(ctx, j.config.Targets(j.data.Metadata()))
}

// RunSelection prewarms sel, one target per year.
func (j *PrewarmJob) RunSelection(ctx context.Context, sel dataset.Selection) *PrewarmResult {
	cfg := j.config
	cfg.Years = sel.Years
	cfg.Regions = sel.Regions
	return j.run(ctx, cfg.Targets(j.data.Metadata()))
}

type targetResult struct {
	ws  *dataset.WorkingSet
	err error
}

func (j *PrewarmJob) run(ctx context.Context, targets []dataset.Selection) *PrewarmResult {
	startTime := time.Now()
	result := &PrewarmResult{
		StartTime: startTime,
		Targets:   len(targets),
	}

	j.logger.Info().
		Int("targets", len(targets)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting prewarm job")

	targetsChan := make(chan dataset.Selection, len(targets))
	resultsChan := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.prewarmWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	done := 0
	for tr := range resultsChan {
		done++
		if tr.err != nil {
			result.Canceled = true
			continue
		}
		result.Partitions += tr.ws.Partitions()
		result.Records += tr.ws.Len()
		result.Failed = append(result.Failed, tr.ws.Failed()...)
	}
	if done < len(targets) {
		result.Canceled = true
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("partitions", result.Partitions).
		Int("records", result.Records).
		Int("failed", len(result.Failed)).
		Bool("canceled", result.Canceled).
		Msg("prewarm job completed")

	return result
}

func (j *PrewarmJob) prewarmWorker(ctx context.Context, targets <-chan dataset.Selection, results chan<- targetResult) {
	for sel := range targets {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.prewarmTarget(ctx, sel)
		}
	}
}

func (j *PrewarmJob) prewarmTarget(ctx context.Context, sel dataset.Selection) targetResult {
	targetCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	ws, err := j.data.Load(targetCtx, sel)
	if err != nil {
		j.logger.Warn().Err(err).Ints("years", sel.Years).Msg("prewarm target interrupted")
	}
	return targetResult{ws: ws, err: err}
}

func (j *PrewarmJob) updateMetrics(result *PrewarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.Runs++
	j.metrics.PartitionsLoaded += int64(result.Partitions)
	j.metrics.PartitionsFailed += int64(len(result.Failed))
	j.metrics.Records += int64(result.Records)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *PrewarmJob) GetMetrics() PrewarmMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return PrewarmMetrics{
		Runs:             j.metrics.Runs,
		PartitionsLoaded: j.metrics.PartitionsLoaded,
		PartitionsFailed: j.metrics.PartitionsFailed,
		Records:          j.metrics.Records,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
		TotalDuration:    j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *PrewarmJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"runs":              m.Runs,
		"partitions_loaded": m.PartitionsLoaded,
		"partitions_failed": m.PartitionsFailed,
		"records":           m.Records,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
