// Package source defines the adapter contract shared by all ingestion
// sources and the HTTP plumbing used by the remote ones.
package source

import (
	"context"

	"github.com/evmartinez/airwatch/internal/model"
)

// Result is what one fetch yields: canonical records plus the rejections
// accumulated while normalizing them. Gaps lists date ranges that were
// skipped when partial weather results are permitted.
type Result struct {
	Stations     []model.Station
	Measurements []model.Measurement
	Samples      []model.WeatherSample
	Rejections   []model.Rejection
	Gaps         []string
}

// Source is one ingestion adapter. Fetch returns canonical records or a
// whole-source error; per-record failures are reported as rejections in the
// result, never as errors.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Result, error)
}
