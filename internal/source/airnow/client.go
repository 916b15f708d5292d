// Package airnow ingests current observations from the AirNow API.
package airnow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/model"
	"github.com/evmartinez/airwatch/internal/normalize"
	"github.com/evmartinez/airwatch/internal/source"
)

// observation models one entry of the AirNow current-observations payload.
type observation struct {
	DateObserved  string  `json:"DateObserved"`
	HourObserved  int     `json:"HourObserved"`
	LocalTimeZone string  `json:"LocalTimeZone"`
	ReportingArea string  `json:"ReportingArea"`
	StateCode     string  `json:"StateCode"`
	Latitude      float64 `json:"Latitude"`
	Longitude     float64 `json:"Longitude"`
	ParameterName string  `json:"ParameterName"`
	AQI           float64 `json:"AQI"`
	Category      struct {
		Number int    `json:"Number"`
		Name   string `json:"Name"`
	} `json:"Category"`
}

// parameterNames maps AirNow parameter labels to canonical pollutant codes.
var parameterNames = map[string]model.Pollutant{
	"PM2.5": model.PollutantPM25,
	"PM10":  model.PollutantPM10,
	"O3":    model.PollutantO3,
	"OZONE": model.PollutantO3,
	"CO":    model.PollutantCO,
	"NO2":   model.PollutantNO2,
	"SO2":   model.PollutantSO2,
}

// Client fetches current observations for a ZIP code and search radius.
// It keeps no local state beyond the outbound request plumbing.
type Client struct {
	cfg     config.AirNow
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New builds an AirNow client with its own request timeout and breaker.
func New(cfg config.AirNow) *Client {
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: source.NewBreaker("airnow"),
	}
}

// Name implements source.Source.
func (c *Client) Name() string { return "airnow" }

// Fetch requests current observations and normalizes them. An empty payload
// is a valid result: no observations are currently available for the query.
func (c *Client) Fetch(ctx context.Context) (source.Result, error) {
	params := url.Values{}
	params.Set("format", "application/json")
	params.Set("zipCode", c.cfg.ZipCode)
	params.Set("distance", fmt.Sprintf("%d", c.cfg.Distance))
	params.Set("api_key", c.cfg.APIKey)

	req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return source.Result{}, err
	}

	resp, err := source.DoRequest(ctx, c.httpc, c.breaker, req)
	if err != nil {
		return source.Result{}, err
	}
	defer resp.Body.Close()

	var payload []observation
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return source.Result{}, fmt.Errorf("decode airnow payload: %w", err)
	}

	var res source.Result
	seen := make(map[string]bool)
	for i, obs := range payload {
		m, st, err := canonicalize(obs)
		if err != nil {
			res.Rejections = append(res.Rejections, model.Rejection{Row: i + 1, Reason: err.Error()})
			continue
		}
		if !seen[st.ID] {
			seen[st.ID] = true
			res.Stations = append(res.Stations, st)
		}
		res.Measurements = append(res.Measurements, m)
	}
	return res, nil
}

// canonicalize turns one raw observation into a canonical measurement plus
// its station. AirNow reports per-parameter AQI index values; timestamps are
// local to the station and resolved via the payload's zone abbreviation.
func canonicalize(obs observation) (model.Measurement, model.Station, error) {
	pollutant, ok := parameterNames[strings.ToUpper(strings.TrimSpace(obs.ParameterName))]
	if !ok {
		return model.Measurement{}, model.Station{}, &model.ValidationError{
			Field:  "parameter",
			Reason: fmt.Sprintf("unrecognized parameter %q", obs.ParameterName),
		}
	}

	loc, err := normalize.ResolveZone(obs.LocalTimeZone)
	if err != nil {
		return model.Measurement{}, model.Station{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(obs.DateObserved), loc)
	if err != nil {
		return model.Measurement{}, model.Station{}, &model.ValidationError{
			Field:  "date_observed",
			Reason: fmt.Sprintf("unparsable date %q", obs.DateObserved),
		}
	}
	observedAt := day.Add(time.Duration(obs.HourObserved) * time.Hour)

	station := model.Station{
		ID:   fmt.Sprintf("geo:%.4f,%.4f", obs.Latitude, obs.Longitude),
		Lat:  obs.Latitude,
		Lon:  obs.Longitude,
		Name: strings.TrimSpace(obs.ReportingArea + " " + obs.StateCode),
	}
	if err := normalize.Station(station); err != nil {
		return model.Measurement{}, model.Station{}, err
	}

	m, err := normalize.Measurement(model.Measurement{
		StationID:  station.ID,
		Pollutant:  pollutant,
		Value:      obs.AQI,
		Unit:       model.UnitIndex,
		ObservedAt: observedAt,
		Source:     model.SourceAirNow,
	})
	if err != nil {
		return model.Measurement{}, model.Station{}, err
	}
	return m, station, nil
}
