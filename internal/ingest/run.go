// Package ingest drives fetch -> normalize -> persist for one source and
// aggregates per-record failures into a run summary.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/model"
	"github.com/evmartinez/airwatch/internal/normalize"
	"github.com/evmartinez/airwatch/internal/source"
	"github.com/evmartinez/airwatch/internal/store"
)

// Runner executes ingestion runs against a store.
type Runner struct {
	store store.Writer
	retry config.Retry

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner builds a runner with the given retry policy.
func NewRunner(w store.Writer, retry config.Retry) *Runner {
	return &Runner{store: w, retry: retry, sleep: sleepCtx}
}

// Run executes one ingestion run: FETCHING -> NORMALIZING -> PERSISTING ->
// REPORTING, terminating in COMPLETED or FAILED. Transient source failures
// are retried with bounded exponential backoff; individual bad records
// never abort the run. A summary is always returned, including on failure.
func (r *Runner) Run(ctx context.Context, src source.Source) (model.RunSummary, error) {
	summary := model.RunSummary{
		BatchID: uuid.NewString(),
		Source:  src.Name(),
		State:   model.StateFetching,
	}
	log.Printf("run %s: fetching from %s", summary.BatchID, src.Name())

	res, err := r.fetchWithRetry(ctx, src)
	if err != nil {
		summary.State = model.StateFailed
		summary.Err = err.Error()
		return summary, fmt.Errorf("fetch %s: %w", src.Name(), err)
	}

	summary.State = model.StateNormalizing
	summary.Fetched = len(res.Measurements) + len(res.Samples) + len(res.Rejections)
	summary.Rejections = res.Rejections
	summary.Gaps = res.Gaps

	stations := make([]model.Station, 0, len(res.Stations))
	for _, st := range res.Stations {
		if err := normalize.Station(st); err != nil {
			summary.Rejections = append(summary.Rejections, model.Rejection{Reason: err.Error()})
			continue
		}
		stations = append(stations, st)
	}
	measurements := make([]model.Measurement, 0, len(res.Measurements))
	for _, m := range res.Measurements {
		m.BatchID = summary.BatchID
		measurements = append(measurements, m)
	}

	summary.Valid = len(measurements) + len(res.Samples)
	summary.Rejected = len(summary.Rejections)

	summary.State = model.StatePersisting
	if err := r.store.UpsertStations(ctx, stations); err != nil {
		summary.State = model.StateFailed
		summary.Err = err.Error()
		return summary, fmt.Errorf("persist stations: %w", err)
	}
	mres, err := r.store.UpsertMeasurements(ctx, measurements)
	if err != nil {
		summary.State = model.StateFailed
		summary.Err = err.Error()
		return summary, fmt.Errorf("persist measurements: %w", err)
	}
	wres, err := r.store.UpsertWeatherSamples(ctx, res.Samples)
	if err != nil {
		summary.State = model.StateFailed
		summary.Err = err.Error()
		return summary, fmt.Errorf("persist weather samples: %w", err)
	}

	summary.State = model.StateReporting
	summary.Inserted = mres.Inserted + wres.Inserted
	summary.Updated = mres.Updated + wres.Updated
	summary.Unchanged = mres.Unchanged + wres.Unchanged
	summary.State = model.StateCompleted

	if summary.Valid == 0 && summary.Fetched > 0 {
		log.Printf("warning: run %s fetched %d records from %s but none were valid", summary.BatchID, summary.Fetched, src.Name())
	}
	log.Printf("run %s completed: fetched=%d valid=%d rejected=%d inserted=%d updated=%d unchanged=%d",
		summary.BatchID, summary.Fetched, summary.Valid, summary.Rejected,
		summary.Inserted, summary.Updated, summary.Unchanged)
	return summary, nil
}

// fetchWithRetry retries transient source failures with exponential backoff
// up to the configured attempt ceiling; the last error surfaces on failure.
func (r *Runner) fetchWithRetry(ctx context.Context, src source.Source) (source.Result, error) {
	var lastErr error
	backoff := r.retry.InitialBackoff

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		res, err := src.Fetch(ctx)
		if err == nil {
			return res, nil
		}
		if !model.IsRetryable(err) {
			return source.Result{}, err
		}
		lastErr = err
		if attempt == r.retry.MaxAttempts {
			break
		}

		log.Printf("fetch from %s failed (attempt %d/%d), retrying in %s: %v",
			src.Name(), attempt, r.retry.MaxAttempts, backoff, err)
		if err := r.sleep(ctx, backoff); err != nil {
			return source.Result{}, err
		}
		backoff *= 2
		if r.retry.MaxBackoff > 0 && backoff > r.retry.MaxBackoff {
			backoff = r.retry.MaxBackoff
		}
	}
	return source.Result{}, fmt.Errorf("attempt ceiling reached: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
