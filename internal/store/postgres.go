package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evmartinez/airwatch/internal/model"
)

// Postgres is the durable store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a store to the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate executes all SQL files in dir in lexical order.
func (s *Postgres) Migrate(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		log.Printf("applied migration %s", name)
	}
	return nil
}

const upsertStationSQL = `
INSERT INTO stations (id, lat, lon, name, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
ON CONFLICT (id) DO UPDATE
SET name = COALESCE(stations.name, NULLIF(EXCLUDED.name, ''))`

// UpsertStations creates stations on first reference. An existing station is
// never mutated except to backfill a missing name.
func (s *Postgres) UpsertStations(ctx context.Context, stations []model.Station) error {
	if len(stations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, st := range stations {
		batch.Queue(upsertStationSQL, st.ID, st.Lat, st.Lon, st.Name)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range stations {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

const upsertMeasurementSQL = `
INSERT INTO measurements (station_id, pollutant, value, unit, observed_at, source, batch_id, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (station_id, pollutant, observed_at, source) DO UPDATE
SET value = EXCLUDED.value,
    unit = EXCLUDED.unit,
    batch_id = EXCLUDED.batch_id,
    ingested_at = NOW()
WHERE measurements.value IS DISTINCT FROM EXCLUDED.value
   OR measurements.unit IS DISTINCT FROM EXCLUDED.unit
RETURNING (xmax = 0) AS inserted`

// UpsertMeasurements writes a batch inside a single transaction: either the
// whole batch becomes durably visible or none of it does. The unique
// constraint on the identity key makes re-submission a no-op; a collision
// with a differing value overwrites as a correction.
func (s *Postgres) UpsertMeasurements(ctx context.Context, measurements []model.Measurement) (BatchResult, error) {
	var result BatchResult
	if len(measurements) == 0 {
		return result, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, err
	}
	defer tx.Rollback(ctx)

	for _, m := range measurements {
		var inserted bool
		err := tx.QueryRow(ctx, upsertMeasurementSQL,
			m.StationID, m.Pollutant, m.Value, m.Unit, m.ObservedAt, m.Source, m.BatchID,
		).Scan(&inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Conflicting key with an identical value: nothing to change.
			result.Unchanged++
		case err != nil:
			return BatchResult{}, err
		case inserted:
			result.Inserted++
		default:
			result.Updated++
			log.Printf("PersistenceConflictResolved: station=%s pollutant=%s observed_at=%s source=%s overwritten by batch %s",
				m.StationID, m.Pollutant, m.ObservedAt.Format(time.RFC3339), m.Source, m.BatchID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

const upsertWeatherSampleSQL = `
INSERT INTO weather_samples (lat, lon, observed_at, temperature, humidity, wind_speed, wind_direction, precipitation, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (lat, lon, observed_at) DO UPDATE
SET temperature = EXCLUDED.temperature,
    humidity = EXCLUDED.humidity,
    wind_speed = EXCLUDED.wind_speed,
    wind_direction = EXCLUDED.wind_direction,
    precipitation = EXCLUDED.precipitation,
    ingested_at = NOW()
WHERE (weather_samples.temperature, weather_samples.humidity, weather_samples.wind_speed,
       weather_samples.wind_direction, weather_samples.precipitation)
      IS DISTINCT FROM
      (EXCLUDED.temperature, EXCLUDED.humidity, EXCLUDED.wind_speed,
       EXCLUDED.wind_direction, EXCLUDED.precipitation)
RETURNING (xmax = 0) AS inserted`

// UpsertWeatherSamples writes weather samples with the same transactional
// and correction semantics as measurements.
func (s *Postgres) UpsertWeatherSamples(ctx context.Context, samples []model.WeatherSample) (BatchResult, error) {
	var result BatchResult
	if len(samples) == 0 {
		return result, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, err
	}
	defer tx.Rollback(ctx)

	for _, ws := range samples {
		var inserted bool
		err := tx.QueryRow(ctx, upsertWeatherSampleSQL,
			ws.Lat, ws.Lon, ws.ObservedAt, ws.Temperature, ws.Humidity, ws.WindSpeed, ws.WindDirection, ws.Precipitation,
		).Scan(&inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			result.Unchanged++
		case err != nil:
			return BatchResult{}, err
		case inserted:
			result.Inserted++
		default:
			result.Updated++
			log.Printf("PersistenceConflictResolved: weather sample lat=%g lon=%g observed_at=%s overwritten",
				ws.Lat, ws.Lon, ws.ObservedAt.Format(time.RFC3339))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

const listStationsSQL = `
SELECT id, lat, lon, COALESCE(name, '')
FROM stations
ORDER BY id`

// ListStations returns all known stations.
func (s *Postgres) ListStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx, listStationsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]model.Station, 0)
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(&st.ID, &st.Lat, &st.Lon, &st.Name); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// Measurements returns a station's measurements, newest first.
func (s *Postgres) Measurements(ctx context.Context, q MeasurementQuery) ([]model.Measurement, error) {
	sql := `
SELECT station_id, pollutant, value, unit, observed_at, source, batch_id
FROM measurements
WHERE station_id = $1`
	args := []any{q.StationID}

	if q.Since != nil {
		args = append(args, *q.Since)
		sql += fmt.Sprintf(" AND observed_at >= $%d", len(args))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		sql += fmt.Sprintf(" AND observed_at <= $%d", len(args))
	}
	sql += " ORDER BY observed_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	measurements := make([]model.Measurement, 0)
	for rows.Next() {
		var m model.Measurement
		if err := rows.Scan(&m.StationID, &m.Pollutant, &m.Value, &m.Unit, &m.ObservedAt, &m.Source, &m.BatchID); err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

const nearestSampleSQL = `
SELECT lat, lon, observed_at, temperature, humidity, wind_speed, wind_direction, precipitation
FROM weather_samples
WHERE lat BETWEEN $1 - 0.5 AND $1 + 0.5
  AND lon BETWEEN $2 - 0.5 AND $2 + 0.5
ORDER BY ABS(EXTRACT(EPOCH FROM (observed_at - $3))), ABS(lat - $1) + ABS(lon - $2)
LIMIT 1`

// NearestSample finds the weather sample closest in time to ts within a
// half-degree box around the coordinates. The association is computed at
// read time, never stored.
func (s *Postgres) NearestSample(ctx context.Context, lat, lon float64, ts time.Time) (*model.WeatherSample, error) {
	var ws model.WeatherSample
	err := s.pool.QueryRow(ctx, nearestSampleSQL, lat, lon, ts).Scan(
		&ws.Lat, &ws.Lon, &ws.ObservedAt,
		&ws.Temperature, &ws.Humidity, &ws.WindSpeed, &ws.WindDirection, &ws.Precipitation,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}
