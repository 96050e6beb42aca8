package app

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"abstats/domain/experiment"
	"abstats/internal/frequentist"
)

// SweepID identifies one fan-out over a set of metric comparisons.
type SweepID string

// newSweepID creates a time-ordered identifier (UUID v7, falling back to v4).
func newSweepID() SweepID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return SweepID(id.String())
}

// MetricComparison names one baseline/treatment pair to test.
type MetricComparison struct {
	MetricKey string
	Test      frequentist.Test
}

// SweepResult tags each engine result with its metric and the sweep ID.
type SweepResult struct {
	SweepID   SweepID               `json:"sweep_id"`
	MetricKey string                `json:"metric_key"`
	Result    experiment.TestResult `json:"result"`
}

// MetricSweepService fans the engine out over many metric comparisons.
// Each ComputeResult call is pure and independent, so the fan-out needs no
// coordination beyond a concurrency cap.
type MetricSweepService struct {
	maxConcurrent int64
}

// NewMetricSweepService caps concurrent comparisons at maxConcurrent;
// zero or negative means one per available CPU.
func NewMetricSweepService(maxConcurrent int64) *MetricSweepService {
	if maxConcurrent <= 0 {
		maxConcurrent = int64(runtime.GOMAXPROCS(0))
	}
	return &MetricSweepService{maxConcurrent: maxConcurrent}
}

// Run executes all comparisons with bounded concurrency and returns results
// in input order. Degenerate metrics surface as flagged results, never as
// errors; the only error here is context cancellation.
func (s *MetricSweepService) Run(ctx context.Context, comparisons []MetricComparison) ([]SweepResult, error) {
	sweepID := newSweepID()
	start := time.Now()

	sem := semaphore.NewWeighted(s.maxConcurrent)
	results := make([]SweepResult, len(comparisons))
	for i, c := range comparisons {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func(i int, c MetricComparison) {
			defer sem.Release(1)
			results[i] = SweepResult{
				SweepID:   sweepID,
				MetricKey: c.MetricKey,
				Result:    c.Test.ComputeResult(),
			}
		}(i, c)
	}
	if err := sem.Acquire(ctx, s.maxConcurrent); err != nil {
		return nil, err
	}

	log.Printf("[MetricSweep] sweep %s completed %d comparisons in %s",
		sweepID, len(comparisons), time.Since(start))
	return results, nil
}
