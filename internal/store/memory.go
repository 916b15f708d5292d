package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/evmartinez/airwatch/internal/model"
)

// Memory is an in-memory store with the same conflict semantics as the
// Postgres store. It backs dry runs and tests.
type Memory struct {
	mu           sync.Mutex
	stations     map[string]model.Station
	measurements map[string]model.Measurement
	samples      map[string]model.WeatherSample
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		stations:     make(map[string]model.Station),
		measurements: make(map[string]model.Measurement),
		samples:      make(map[string]model.WeatherSample),
	}
}

func measurementKey(m model.Measurement) string {
	return fmt.Sprintf("%s|%s|%d|%s", m.StationID, m.Pollutant, m.ObservedAt.Unix(), m.Source)
}

func sampleKey(ws model.WeatherSample) string {
	return fmt.Sprintf("%g|%g|%d", ws.Lat, ws.Lon, ws.ObservedAt.Unix())
}

// UpsertStations implements Writer.
func (s *Memory) UpsertStations(_ context.Context, stations []model.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stations {
		existing, ok := s.stations[st.ID]
		if !ok {
			s.stations[st.ID] = st
			continue
		}
		if existing.Name == "" && st.Name != "" {
			existing.Name = st.Name
			s.stations[st.ID] = existing
		}
	}
	return nil
}

// UpsertMeasurements implements Writer.
func (s *Memory) UpsertMeasurements(_ context.Context, measurements []model.Measurement) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BatchResult
	for _, m := range measurements {
		key := measurementKey(m)
		existing, ok := s.measurements[key]
		switch {
		case !ok:
			result.Inserted++
		case existing.Value == m.Value && existing.Unit == m.Unit:
			result.Unchanged++
			continue
		default:
			result.Updated++
		}
		s.measurements[key] = m
	}
	return result, nil
}

// UpsertWeatherSamples implements Writer.
func (s *Memory) UpsertWeatherSamples(_ context.Context, samples []model.WeatherSample) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BatchResult
	for _, ws := range samples {
		key := sampleKey(ws)
		existing, ok := s.samples[key]
		switch {
		case !ok:
			result.Inserted++
		case sampleEqual(existing, ws):
			result.Unchanged++
			continue
		default:
			result.Updated++
		}
		s.samples[key] = ws
	}
	return result, nil
}

// ListStations implements Reader.
func (s *Memory) ListStations(_ context.Context) ([]model.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stations := make([]model.Station, 0, len(s.stations))
	for _, st := range s.stations {
		stations = append(stations, st)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].ID < stations[j].ID })
	return stations, nil
}

// Measurements implements Reader.
func (s *Memory) Measurements(_ context.Context, q MeasurementQuery) ([]model.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Measurement, 0)
	for _, m := range s.measurements {
		if m.StationID != q.StationID {
			continue
		}
		if q.Since != nil && m.ObservedAt.Before(*q.Since) {
			continue
		}
		if q.Until != nil && m.ObservedAt.After(*q.Until) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// NearestSample implements Reader.
func (s *Memory) NearestSample(_ context.Context, lat, lon float64, ts time.Time) (*model.WeatherSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.WeatherSample
	var bestDiff time.Duration
	for key := range s.samples {
		ws := s.samples[key]
		if math.Abs(ws.Lat-lat) > 0.5 || math.Abs(ws.Lon-lon) > 0.5 {
			continue
		}
		diff := ws.ObservedAt.Sub(ts)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			copied := ws
			best = &copied
			bestDiff = diff
		}
	}
	return best, nil
}

// MeasurementCount reports the number of stored measurements.
func (s *Memory) MeasurementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.measurements)
}

func sampleEqual(a, b model.WeatherSample) bool {
	return floatPtrEqual(a.Temperature, b.Temperature) &&
		floatPtrEqual(a.Humidity, b.Humidity) &&
		floatPtrEqual(a.WindSpeed, b.WindSpeed) &&
		floatPtrEqual(a.WindDirection, b.WindDirection) &&
		floatPtrEqual(a.Precipitation, b.Precipitation)
}

func floatPtrEqual(a, b *float64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
