package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource serves documents stored in the accident_partitions table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a source backed by pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Name implements Source.
func (s *PostgresSource) Name() string { return "postgres" }

// Fetch implements Source.
func (s *PostgresSource) Fetch(ctx context.Context, file string) ([]byte, error) {
	name, err := cleanName(file)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = s.pool.QueryRow(ctx, `SELECT payload FROM accident_partitions WHERE file = $1`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
		}
		return nil, fmt.Errorf("query partition %s: %w", name, err)
	}
	return payload, nil
}

// Put stores or replaces a document.
func (s *PostgresSource) Put(ctx context.Context, d Descriptor, payload []byte) error {
	name, err := cleanName(d.File)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accident_partitions (file, year, region, payload, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (file) DO UPDATE
		SET year = EXCLUDED.year, region = EXCLUDED.region,
		    payload = EXCLUDED.payload, updated_at = NOW()
	`
	var year *int
	if d.Year != 0 {
		year = &d.Year
	}
	if _, err := s.pool.Exec(ctx, query, name, year, d.Region, payload); err != nil {
		return fmt.Errorf("store partition %s: %w", name, err)
	}
	return nil
}

// Index builds a partition index from the stored rows, ordered by region then year.
func (s *PostgresSource) Index(ctx context.Context) (Index, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file, year, region FROM accident_partitions
		WHERE year IS NOT NULL
		ORDER BY region, year
	`)
	if err != nil {
		return nil, fmt.Errorf("query partition index: %w", err)
	}
	defer rows.Close()

	var index Index
	for rows.Next() {
		var d Descriptor
		if err := rows.Scan(&d.File, &d.Year, &d.Region); err != nil {
			return nil, fmt.Errorf("scan partition index: %w", err)
		}
		index = append(index, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partition index: %w", err)
	}
	return index, nil
}
