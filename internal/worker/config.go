// Package worker provides background job processing for the SEWIK dataset:
// cache prewarming and export generation driven by Pub/Sub messages.
package worker

import (
	"time"

	"github.com/sewik-mapa/sewikmapa/internal/dataset"
)

// PrewarmConfig holds configuration for the prewarm job.
type PrewarmConfig struct {
	// Years to prewarm. If empty, the latest year of the metadata is used.
	Years []int

	// Regions to prewarm. If empty, every region of the metadata is used.
	Regions []string

	// Concurrency is the number of years loaded in parallel.
	// Default: 2
	Concurrency int

	// Timeout bounds the load of a single target.
	// Default: 2 minutes
	Timeout time.Duration
}

// DefaultPrewarmConfig returns the default prewarm configuration.
func DefaultPrewarmConfig() PrewarmConfig {
	return PrewarmConfig{
		Concurrency: 2,
		Timeout:     2 * time.Minute,
	}
}

// Targets expands the configuration against meta into one selection per
// year, newest first.
func (c PrewarmConfig) Targets(meta dataset.Metadata) []dataset.Selection {
	years := c.Years
	if len(years) == 0 {
		if y, ok := meta.LatestYear(); ok {
			years = []int{y}
		}
	}
	regions := c.Regions
	if len(regions) == 0 {
		regions = meta.Regions
	}
	if len(years) == 0 || len(regions) == 0 {
		return nil
	}

	sel := dataset.NewSelection(years, regions)
	targets := make([]dataset.Selection, 0, len(sel.Years))
	for i := len(sel.Years) - 1; i >= 0; i-- {
		targets = append(targets, dataset.NewSelection([]int{sel.Years[i]}, sel.Regions))
	}
	return targets
}

// TotalPartitions returns the number of partitions Targets names.
func (c PrewarmConfig) TotalPartitions(meta dataset.Metadata) int {
	total := 0
	for _, t := range c.Targets(meta) {
		total += len(t.Years) * len(t.Regions)
	}
	return total
}

func (c PrewarmConfig) withDefaults() PrewarmConfig {
	def := DefaultPrewarmConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
