// Package weather ingests daily weather observations for a coordinate and
// date range from an Open-Meteo style archive API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/model"
	"github.com/evmartinez/airwatch/internal/normalize"
	"github.com/evmartinez/airwatch/internal/source"
)

const dailyVariables = "temperature_2m_mean,relative_humidity_2m_mean,precipitation_sum,wind_speed_10m_max,wind_direction_10m_dominant"

// archiveResponse models the daily block of the archive API payload.
// Metric arrays are parallel to Time; entries may be null.
type archiveResponse struct {
	Daily struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m_mean"`
		Humidity      []*float64 `json:"relative_humidity_2m_mean"`
		Precipitation []*float64 `json:"precipitation_sum"`
		WindSpeed     []*float64 `json:"wind_speed_10m_max"`
		WindDirection []*float64 `json:"wind_direction_10m_dominant"`
	} `json:"daily"`
}

// Client fetches weather samples for one location and date range. Long
// ranges are chunked below the upstream's maximum window and concatenated
// in chronological order.
type Client struct {
	cfg      config.Weather
	lat, lon float64
	start    time.Time
	end      time.Time
	httpc    *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// New builds a weather client for the given range and coordinates.
func New(cfg config.Weather, start, end time.Time, lat, lon float64) *Client {
	return &Client{
		cfg:     cfg,
		lat:     lat,
		lon:     lon,
		start:   start.UTC(),
		end:     end.UTC(),
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: source.NewBreaker("weather"),
	}
}

// Name implements source.Source.
func (c *Client) Name() string { return "weather" }

// Fetch retrieves the full range. A failed chunk fails the whole call so
// that enrichment data is range-complete, unless partial results are
// permitted, in which case the gap is reported in the result.
func (c *Client) Fetch(ctx context.Context) (source.Result, error) {
	if c.end.Before(c.start) {
		return source.Result{}, fmt.Errorf("end date %s before start date %s", c.end.Format("2006-01-02"), c.start.Format("2006-01-02"))
	}
	if c.lat < -90 || c.lat > 90 || c.lon < -180 || c.lon > 180 {
		return source.Result{}, &model.ValidationError{Field: "coordinates", Reason: "latitude/longitude out of range"}
	}

	var res source.Result
	chunkStart := c.start
	for !chunkStart.After(c.end) {
		chunkEnd := chunkStart.AddDate(0, 0, c.cfg.ChunkDays-1)
		if chunkEnd.After(c.end) {
			chunkEnd = c.end
		}

		samples, err := c.fetchChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			if !c.cfg.AllowPartial {
				return source.Result{}, err
			}
			res.Gaps = append(res.Gaps, fmt.Sprintf("%s..%s: %v",
				chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"), err))
		} else {
			res.Samples = append(res.Samples, samples...)
		}

		chunkStart = chunkEnd.AddDate(0, 0, 1)
	}
	return res, nil
}

func (c *Client) fetchChunk(ctx context.Context, start, end time.Time) ([]model.WeatherSample, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%f", c.lat))
	params.Set("longitude", fmt.Sprintf("%f", c.lon))
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("daily", dailyVariables)
	params.Set("timezone", "UTC")

	req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := source.DoRequest(ctx, c.httpc, c.breaker, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode weather payload: %w", err)
	}

	samples := make([]model.WeatherSample, 0, len(payload.Daily.Time))
	for i, day := range payload.Daily.Time {
		// Archive timestamps are already UTC dates.
		ts, err := time.ParseInLocation("2006-01-02", day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("unparsable archive date %q", day)
		}
		samples = append(samples, model.WeatherSample{
			Lat:           c.lat,
			Lon:           c.lon,
			ObservedAt:    normalize.ToUTC(ts),
			Temperature:   at(payload.Daily.Temperature, i),
			Humidity:      at(payload.Daily.Humidity, i),
			Precipitation: at(payload.Daily.Precipitation, i),
			WindSpeed:     at(payload.Daily.WindSpeed, i),
			WindDirection: at(payload.Daily.WindDirection, i),
		})
	}
	return samples, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}
