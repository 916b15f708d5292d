package model

import "time"

// Pollutant identifies a measured parameter.
type Pollutant string

const (
	PollutantPM25 Pollutant = "PM2.5"
	PollutantPM10 Pollutant = "PM10"
	PollutantO3   Pollutant = "O3"
	PollutantCO   Pollutant = "CO"
	PollutantNO2  Pollutant = "NO2"
	PollutantSO2  Pollutant = "SO2"
	PollutantAQI  Pollutant = "AQI"
)

// Unit is a measurement unit. Concentrations are normalized to one canonical
// unit per pollutant; UnitIndex marks dimensionless AQI index values.
type Unit string

const (
	UnitUGM3  Unit = "ug/m3"
	UnitMGM3  Unit = "mg/m3"
	UnitPPB   Unit = "ppb"
	UnitPPM   Unit = "ppm"
	UnitIndex Unit = "index"
)

// Source tags where a record was ingested from.
type Source string

const (
	SourceAirNow   Source = "AIRNOW"
	SourceCSV      Source = "CSV"
	SourceComputed Source = "COMPUTED"
)

// Station is a physical monitoring or interpolation point. Identifiers are
// source-qualified ("airnow:85001", "csv:123", "geo:33.4484,-112.0740").
type Station struct {
	ID   string  `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name,omitempty"`
}

// Measurement is one pollutant reading. The identity key for deduplication
// is (StationID, Pollutant, ObservedAt, Source).
type Measurement struct {
	StationID  string    `json:"station_id"`
	Pollutant  Pollutant `json:"pollutant"`
	Value      float64   `json:"value"`
	Unit       Unit      `json:"unit"`
	ObservedAt time.Time `json:"observed_at"`
	Source     Source    `json:"source"`
	BatchID    string    `json:"batch_id,omitempty"`
}

// WeatherSample is an enrichment record keyed by (Lat, Lon, ObservedAt).
// All metric fields are optional; a source may omit any of them.
type WeatherSample struct {
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	ObservedAt    time.Time `json:"observed_at"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	WindSpeed     *float64  `json:"wind_speed,omitempty"`
	WindDirection *float64  `json:"wind_direction,omitempty"`
	Precipitation *float64  `json:"precipitation,omitempty"`
}

// Rejection describes one record that failed normalization. Row is the
// 1-based data row for CSV input and 0 for non-row-level failures.
type Rejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// RunState is the orchestrator state for an ingestion run.
type RunState string

const (
	StateFetching    RunState = "FETCHING"
	StateNormalizing RunState = "NORMALIZING"
	StatePersisting  RunState = "PERSISTING"
	StateReporting   RunState = "REPORTING"
	StateCompleted   RunState = "COMPLETED"
	StateFailed      RunState = "FAILED"
)

// RunSummary is emitted at the end of every ingestion run, successful or not.
type RunSummary struct {
	BatchID    string      `json:"batch_id"`
	Source     string      `json:"source"`
	State      RunState    `json:"state"`
	Fetched    int         `json:"fetched"`
	Valid      int         `json:"valid"`
	Rejected   int         `json:"rejected"`
	Inserted   int         `json:"inserted"`
	Updated    int         `json:"updated"`
	Unchanged  int         `json:"unchanged"`
	Rejections []Rejection `json:"rejections,omitempty"`
	Gaps       []string    `json:"gaps,omitempty"`
	Err        string      `json:"error,omitempty"`
}
