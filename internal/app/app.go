// Package app assembles the partition loader and its backing services from
// configuration. The API, the worker and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/config"
	"github.com/sewik-mapa/sewikmapa/internal/database"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/fetch"
)

// Data is an opened loader with the connections it depends on.
type Data struct {
	Loader *dataset.Loader
	Source dataset.Source

	// HTTP is set for the http source.
	HTTP *dataset.HTTPSource
	// Postgres is set for the postgres source.
	Postgres *dataset.PostgresSource
	// Pool is set for the postgres source.
	Pool *pgxpool.Pool
	// Redis is set when REDIS_ADDR is configured.
	Redis *redis.Client
}

// Open builds the source selected by cfg.DataSource, attaches the Redis
// payload cache when configured and creates the loader. Metadata and
// index are not loaded.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Data, error) {
	d := &Data{}

	switch cfg.DataSource {
	case config.SourceHTTP:
		clientCfg := fetch.DefaultClientConfig("sewik-data")
		clientCfg.Timeout = cfg.FetchTimeout
		if cfg.FetchRetries > 0 {
			clientCfg.MaxRetries = uint64(cfg.FetchRetries)
		}
		d.HTTP = dataset.NewHTTPSource(cfg.DataBaseURL, fetch.NewClient(clientCfg))
		d.Source = d.HTTP
		logger.Info().Str("base_url", cfg.DataBaseURL).Msg("using http partition source")
	case config.SourceFile:
		d.Source = dataset.NewFileSource(cfg.DataDir)
		logger.Info().Str("dir", cfg.DataDir).Msg("using file partition source")
	case config.SourcePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		d.Pool = pool
		d.Postgres = dataset.NewPostgresSource(pool)
		d.Source = d.Postgres
		logger.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("using postgres partition source")
	default:
		return nil, fmt.Errorf("%w: unknown DATA_SOURCE %q", config.ErrInvalid, cfg.DataSource)
	}

	var cache dataset.PayloadCache
	if client := dataset.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); client != nil {
		d.Redis = client
		cache = dataset.NewRedisCache(client, cfg.RedisTTL)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis partition cache enabled")
	}

	d.Loader = dataset.NewLoader(dataset.LoaderConfig{
		Source:      d.Source,
		Cache:       cache,
		Logger:      logger,
		Concurrency: cfg.FetchConcurrency,
	})
	return d, nil
}

// Init loads metadata and the partition index.
func (d *Data) Init(ctx context.Context) dataset.Metadata {
	meta := d.Loader.LoadMetadata(ctx)
	d.Loader.LoadIndex(ctx)
	return meta
}

// Close releases the database pool and the Redis client.
func (d *Data) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}
