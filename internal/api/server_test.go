package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/model"
	"github.com/evmartinez/airwatch/internal/store"
)

func testServer(t *testing.T, cfg config.Config) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	if cfg.API.DefaultLimit == 0 {
		cfg.API.DefaultLimit = 200
	}
	return New(cfg, mem), mem
}

func seed(t *testing.T, mem *store.Memory) {
	t.Helper()
	ctx := context.Background()
	if err := mem.UpsertStations(ctx, []model.Station{{ID: "csv:123", Lat: 35.9, Lon: -78.9, Name: "Downtown"}}); err != nil {
		t.Fatalf("seed stations: %v", err)
	}
	ts := time.Date(2023, 1, 1, 7, 0, 0, 0, time.UTC)
	if _, err := mem.UpsertMeasurements(ctx, []model.Measurement{
		{StationID: "csv:123", Pollutant: model.PollutantPM25, Value: 35.2, Unit: model.UnitUGM3, ObservedAt: ts, Source: model.SourceCSV},
	}); err != nil {
		t.Fatalf("seed measurements: %v", err)
	}
	temp := 15.5
	if _, err := mem.UpsertWeatherSamples(ctx, []model.WeatherSample{
		{Lat: 35.9, Lon: -78.9, ObservedAt: ts, Temperature: &temp},
	}); err != nil {
		t.Fatalf("seed weather: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t, config.Config{})
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestListStations(t *testing.T) {
	srv, mem := testServer(t, config.Config{})
	seed(t, mem)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Data []model.Station `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].ID != "csv:123" {
		t.Errorf("unexpected stations: %+v", body.Data)
	}
}

func TestStationMeasurements(t *testing.T) {
	srv, mem := testServer(t, config.Config{})
	seed(t, mem)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stations/csv:123/measurements", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Count        int                 `json:"count"`
		Measurements []model.Measurement `json:"measurements"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 1 || len(body.Measurements) != 1 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if body.Measurements[0].Pollutant != model.PollutantPM25 {
		t.Errorf("unexpected measurement: %+v", body.Measurements[0])
	}
}

func TestStationMeasurementsBadWindow(t *testing.T) {
	srv, _ := testServer(t, config.Config{})
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stations/x/measurements?start=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid start, got %d", w.Code)
	}
}

func TestNearestWeather(t *testing.T) {
	srv, mem := testServer(t, config.Config{})
	seed(t, mem)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/weather/nearest?lat=35.95&lon=-78.85&ts=2023-01-01T09:00:00Z", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Data model.WeatherSample `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Temperature == nil || *body.Data.Temperature != 15.5 {
		t.Errorf("unexpected sample: %+v", body.Data)
	}
}

func TestNearestWeatherNotFound(t *testing.T) {
	srv, _ := testServer(t, config.Config{})
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/weather/nearest?lat=0&lon=0&ts=2023-01-01T00:00:00Z", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with no samples, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := config.Config{}
	cfg.API.BearerToken = "secret"
	srv, _ := testServer(t, cfg)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}
