package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
)

const instrumentationName = "github.com/sewik-mapa/sewikmapa/internal/dataset"

// Default document names relative to the source root.
const (
	DefaultMetadataFile = "metadata.json"
	DefaultIndexFile    = "file_index.json"
	DefaultConcurrency  = 4
	DefaultFetchTimeout = 2 * time.Minute
)

// IndexProvider is implemented by sources that can list their partitions
// without a file_index.json document.
type IndexProvider interface {
	Index(ctx context.Context) (Index, error)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Source Source
	// Cache is an optional shared payload cache consulted before Source.
	Cache  PayloadCache
	Logger zerolog.Logger
	// Concurrency bounds parallel partition fetches. Default: 4
	Concurrency int
	// FetchTimeout bounds one shared partition fetch, independently of the
	// callers waiting on it. Default: 2m
	FetchTimeout time.Duration
	MetadataFile string
	IndexFile    string
}

// Stats reports loader activity since creation.
type Stats struct {
	Hits             int64 `json:"hits"`
	Misses           int64 `json:"misses"`
	SharedHits       int64 `json:"sharedHits"`
	Failed           int64 `json:"failed"`
	CachedPartitions int   `json:"cachedPartitions"`
	Loads            int64 `json:"loads"`
}

// Loader builds working sets from partitions. Each partition is fetched at
// most once per process; concurrent requests for the same file share a
// single fetch.
type Loader struct {
	source       Source
	cache        PayloadCache
	logger       zerolog.Logger
	concurrency  int
	fetchTimeout time.Duration
	metadataFile string
	indexFile    string

	records    *recordCache
	flight     singleflight.Group
	generation atomic.Uint64

	hits       atomic.Int64
	misses     atomic.Int64
	sharedHits atomic.Int64
	failed     atomic.Int64

	mu       sync.RWMutex
	metadata *Metadata
	index    Index

	metrics *loaderMetrics
}

type loaderMetrics struct {
	fetchDuration metric.Float64Histogram
	cacheLookups  metric.Int64Counter
	failures      metric.Int64Counter
}

func newLoaderMetrics() *loaderMetrics {
	meter := otel.Meter(instrumentationName)
	m := &loaderMetrics{}
	// Instrument creation only fails on invalid names; a nil instrument is skipped.
	m.fetchDuration, _ = meter.Float64Histogram(
		"dataset.partition.fetch.duration",
		metric.WithDescription("Duration of partition fetches in seconds"),
		metric.WithUnit("s"),
	)
	m.cacheLookups, _ = meter.Int64Counter(
		"dataset.partition.cache.lookups",
		metric.WithDescription("Partition cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	m.failures, _ = meter.Int64Counter(
		"dataset.partition.failures",
		metric.WithDescription("Partitions skipped because they could not be loaded"),
		metric.WithUnit("{partition}"),
	)
	return m
}

// NewLoader creates a loader.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MetadataFile == "" {
		cfg.MetadataFile = DefaultMetadataFile
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = DefaultIndexFile
	}
	return &Loader{
		source:       cfg.Source,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
		fetchTimeout: cfg.FetchTimeout,
		metadataFile: cfg.MetadataFile,
		indexFile:    cfg.IndexFile,
		records:      newRecordCache(),
		metrics:      newLoaderMetrics(),
	}
}

// LoadMetadata fetches and decodes the metadata document. Any failure falls
// back to the built-in defaults; the result is kept for Metadata.
func (l *Loader) LoadMetadata(ctx context.Context) Metadata {
	meta := DefaultMetadata()

	data, err := l.source.Fetch(ctx, l.metadataFile)
	if err == nil {
		decoded, derr := DecodeMetadata(data)
		if derr == nil {
			meta = decoded
		} else {
			err = derr
		}
	}
	if err != nil {
		l.logger.Warn().Err(err).
			Str("file", l.metadataFile).
			Msg("metadata unavailable, using built-in years and voivodeships")
	} else {
		l.logger.Info().
			Int("years", len(meta.Years)).
			Int("regions", len(meta.Regions)).
			Msg("loaded metadata")
	}

	l.mu.Lock()
	l.metadata = &meta
	l.mu.Unlock()
	return meta
}

// LoadIndex fetches the partition index. Without one, file names are
// synthesised, so failures are logged and an empty index is kept.
func (l *Loader) LoadIndex(ctx context.Context) Index {
	var (
		index Index
		err   error
	)
	if p, ok := l.source.(IndexProvider); ok {
		index, err = p.Index(ctx)
	} else {
		var data []byte
		data, err = l.source.Fetch(ctx, l.indexFile)
		if err == nil {
			index, err = DecodeIndex(data)
		}
	}

	switch {
	case errors.Is(err, ErrPartitionNotFound):
		l.logger.Info().Str("file", l.indexFile).Msg("no partition index, synthesising file names")
		index = nil
	case err != nil:
		l.logger.Warn().Err(err).Str("file", l.indexFile).Msg("partition index unavailable, synthesising file names")
		index = nil
	default:
		l.logger.Info().Int("files", len(index)).Msg("loaded partition index")
	}

	l.mu.Lock()
	l.index = index
	l.mu.Unlock()
	return index
}

// Metadata returns the last loaded metadata, or the defaults.
func (l *Loader) Metadata() Metadata {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.metadata == nil {
		return DefaultMetadata()
	}
	return *l.metadata
}

// MetadataLoaded reports whether LoadMetadata has completed.
func (l *Loader) MetadataLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.metadata != nil
}

// Index returns the last loaded index.
func (l *Loader) Index() Index {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index
}

// Load builds the working set for sel. An empty selection returns an empty
// set without touching the source. Partitions that cannot be loaded are
// skipped; the only error returned is cancellation of ctx.
func (l *Loader) Load(ctx context.Context, sel Selection) (*WorkingSet, error) {
	sel = NewSelection(sel.Years, sel.Regions)
	if sel.Empty() {
		return &WorkingSet{selection: sel, generation: l.generation.Add(1)}, nil
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "dataset.Load")
	defer span.End()

	start := time.Now()
	descriptors := Resolve(sel, l.Index())
	span.SetAttributes(
		attribute.Int("dataset.years", len(sel.Years)),
		attribute.Int("dataset.regions", len(sel.Regions)),
		attribute.Int("dataset.partitions", len(descriptors)),
	)

	parts := make([][]accident.Record, len(descriptors))
	ok := make([]bool, len(descriptors))

	g := new(errgroup.Group)
	g.SetLimit(l.concurrency)
	for i, d := range descriptors {
		g.Go(func() error {
			records, err := l.partition(ctx, d)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			if err != nil {
				l.failed.Add(1)
				l.count(ctx, l.metrics.failures, "")
				l.logger.Warn().Err(err).
					Str("file", d.File).
					Int("year", d.Year).
					Str("region", d.Region).
					Msg("skipping partition")
				return nil
			}
			parts[i] = records
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading selection: %w", err)
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	ws := &WorkingSet{
		records:    make([]accident.Record, 0, total),
		selection:  sel,
		generation: l.generation.Add(1),
	}
	for i, p := range parts {
		if !ok[i] {
			ws.failed = append(ws.failed, descriptors[i].File)
			continue
		}
		ws.partitions++
		ws.records = append(ws.records, p...)
	}

	span.SetAttributes(attribute.Int("dataset.records", total))
	l.logger.Info().
		Ints("years", sel.Years).
		Strs("regions", sel.Regions).
		Int("partitions", ws.partitions).
		Int("failed", len(ws.failed)).
		Int("records", total).
		Dur("duration", time.Since(start)).
		Msg("loaded working set")

	return ws, nil
}

// partition returns the records of one partition, from the process cache,
// the shared payload cache or the source, in that order.
func (l *Loader) partition(ctx context.Context, d Descriptor) ([]accident.Record, error) {
	if records, ok := l.records.get(d.File); ok {
		l.hits.Add(1)
		l.count(ctx, l.metrics.cacheLookups, "memory_hit")
		l.logger.Debug().Str("file", d.File).Msg("partition cache hit")
		return records, nil
	}

	// The shared fetch ignores caller cancellation. Each caller stops
	// waiting on its own context.
	ch := l.flight.DoChan(d.File, func() (interface{}, error) {
		if records, ok := l.records.get(d.File); ok {
			l.hits.Add(1)
			return records, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.fetchTimeout)
		defer cancel()

		l.misses.Add(1)
		l.count(fetchCtx, l.metrics.cacheLookups, "miss")

		start := time.Now()
		records, err := l.fetchPartition(fetchCtx, d.File)
		if l.metrics.fetchDuration != nil {
			l.metrics.fetchDuration.Record(fetchCtx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.Bool("success", err == nil)))
		}
		if err != nil {
			return nil, err
		}
		return l.records.add(d.File, records), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]accident.Record), nil
	}
}

func (l *Loader) fetchPartition(ctx context.Context, file string) ([]accident.Record, error) {
	if l.cache != nil {
		payload, err := l.cache.Get(ctx, file)
		switch {
		case err == nil:
			records, _, derr := accident.DecodeCollection(payload)
			if derr == nil {
				l.sharedHits.Add(1)
				l.count(ctx, l.metrics.cacheLookups, "shared_hit")
				return records, nil
			}
			l.logger.Warn().Err(derr).Str("file", file).Msg("discarding undecodable cached partition")
		case !errors.Is(err, ErrCacheMiss):
			l.logger.Warn().Err(err).Str("file", file).Msg("shared cache unavailable")
		}
	}

	payload, err := l.source.Fetch(ctx, file)
	if err != nil {
		return nil, err
	}
	records, skipped, err := accident.DecodeCollection(payload)
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", file, err)
	}
	if skipped > 0 {
		l.logger.Debug().Str("file", file).Int("skipped", skipped).Msg("dropped features without point geometry")
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, file, payload); err != nil {
			l.logger.Warn().Err(err).Str("file", file).Msg("failed to populate shared cache")
		}
	}
	return records, nil
}

func (l *Loader) count(ctx context.Context, c metric.Int64Counter, result string) {
	if c == nil {
		return
	}
	if result == "" {
		c.Add(ctx, 1)
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Cached reports whether file is in the process cache.
func (l *Loader) Cached(file string) bool {
	_, ok := l.records.get(file)
	return ok
}

// Stats returns loader counters.
func (l *Loader) Stats() Stats {
	return Stats{
		Hits:             l.hits.Load(),
		Misses:           l.misses.Load(),
		SharedHits:       l.sharedHits.Load(),
		Failed:           l.failed.Load(),
		CachedPartitions: l.records.len(),
		Loads:            int64(l.generation.Load()),
	}
}
