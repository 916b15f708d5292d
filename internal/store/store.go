// Package store persists canonical records with conflict-safe semantics
// keyed by each entity's natural identity.
package store

import (
	"context"
	"time"

	"github.com/evmartinez/airwatch/internal/model"
)

// BatchResult reports per-record outcomes of one batch upsert.
type BatchResult struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// MeasurementQuery filters measurement reads for the export API.
type MeasurementQuery struct {
	StationID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Writer is the mutation surface used by ingestion runs. Re-submitting a
// batch with identical identity keys never creates duplicate rows; a key
// collision with a differing value is treated as a correction and
// overwrites the stored value.
type Writer interface {
	UpsertStations(ctx context.Context, stations []model.Station) error
	UpsertMeasurements(ctx context.Context, measurements []model.Measurement) (BatchResult, error)
	UpsertWeatherSamples(ctx context.Context, samples []model.WeatherSample) (BatchResult, error)
}

// Reader is the query surface used by the export API.
type Reader interface {
	ListStations(ctx context.Context) ([]model.Station, error)
	Measurements(ctx context.Context, q MeasurementQuery) ([]model.Measurement, error)
	NearestSample(ctx context.Context, lat, lon float64, ts time.Time) (*model.WeatherSample, error)
}
