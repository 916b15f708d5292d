package store

import (
	"context"
	"testing"
	"time"

	"github.com/evmartinez/airwatch/internal/model"
)

func measurement(value float64) model.Measurement {
	return model.Measurement{
		StationID:  "csv:S1",
		Pollutant:  model.PollutantPM25,
		Value:      value,
		Unit:       model.UnitUGM3,
		ObservedAt: time.Date(2023, 1, 1, 7, 0, 0, 0, time.UTC),
		Source:     model.SourceCSV,
	}
}

func TestMemoryUpsertOutcomes(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	res, err := mem.UpsertMeasurements(ctx, []model.Measurement{measurement(35.2)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("expected inserted=1, got %+v", res)
	}

	res, err = mem.UpsertMeasurements(ctx, []model.Measurement{measurement(35.2)})
	if err != nil {
		t.Fatalf("re-submit: %v", err)
	}
	if res.Unchanged != 1 || res.Inserted != 0 {
		t.Errorf("identical re-submit should be unchanged, got %+v", res)
	}

	res, err = mem.UpsertMeasurements(ctx, []model.Measurement{measurement(36.0)})
	if err != nil {
		t.Fatalf("correction: %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("differing value at same key should update, got %+v", res)
	}
	if mem.MeasurementCount() != 1 {
		t.Errorf("identity key must stay unique, got %d rows", mem.MeasurementCount())
	}
}

func TestMemoryStationNameBackfill(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	if err := mem.UpsertStations(ctx, []model.Station{{ID: "csv:S1", Lat: 1, Lon: 2}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Name backfill is allowed; coordinates are never mutated.
	if err := mem.UpsertStations(ctx, []model.Station{{ID: "csv:S1", Lat: 9, Lon: 9, Name: "Downtown"}}); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	stations, err := mem.ListStations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("expected 1 station, got %d", len(stations))
	}
	st := stations[0]
	if st.Name != "Downtown" {
		t.Errorf("expected backfilled name, got %q", st.Name)
	}
	if st.Lat != 1 || st.Lon != 2 {
		t.Errorf("coordinates must not change after creation: %+v", st)
	}
}

func TestMemoryNearestSample(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	temp := 10.0

	samples := []model.WeatherSample{
		{Lat: 35.9, Lon: -78.9, ObservedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Temperature: &temp},
		{Lat: 35.9, Lon: -78.9, ObservedAt: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)},
		{Lat: 48.0, Lon: 11.0, ObservedAt: time.Date(2023, 1, 1, 1, 0, 0, 0, time.UTC)},
	}
	if _, err := mem.UpsertWeatherSamples(ctx, samples); err != nil {
		t.Fatalf("upsert samples: %v", err)
	}

	got, err := mem.NearestSample(ctx, 35.95, -78.85, time.Date(2023, 1, 1, 3, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NearestSample: %v", err)
	}
	if got == nil {
		t.Fatal("expected a sample")
	}
	if !got.ObservedAt.Equal(samples[0].ObservedAt) {
		t.Errorf("expected the Jan 1 sample, got %s", got.ObservedAt)
	}

	// Far away coordinates find nothing.
	got, err = mem.NearestSample(ctx, -33.0, 151.0, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NearestSample: %v", err)
	}
	if got != nil {
		t.Errorf("expected no sample outside the search box, got %+v", got)
	}
}

func TestMemoryMeasurementQueryFilters(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []model.Measurement
	for i := 0; i < 5; i++ {
		m := measurement(float64(i))
		m.ObservedAt = base.AddDate(0, 0, i)
		batch = append(batch, m)
	}
	if _, err := mem.UpsertMeasurements(ctx, batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	since := base.AddDate(0, 0, 1)
	until := base.AddDate(0, 0, 3)
	got, err := mem.Measurements(ctx, MeasurementQuery{StationID: "csv:S1", Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 measurements in window, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ObservedAt.After(got[i-1].ObservedAt) {
			t.Fatal("results should be newest first")
		}
	}

	got, err = mem.Measurements(ctx, MeasurementQuery{StationID: "csv:S1", Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limit should cap results, got %d", len(got))
	}
}
