package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAirNowURL      = "https://www.airnowapi.org/aq/observation/zipCode/current/"
	defaultWeatherURL     = "https://archive-api.open-meteo.com/v1/archive"
	defaultZipCode        = "27705"
	defaultDistance       = 25
	defaultAirNowTimeout  = 15 * time.Second
	defaultWeatherTimeout = 60 * time.Second
	defaultMaxAttempts    = 4
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultChunkDays      = 366
	defaultAPIPort        = 8080
	defaultAPILimit       = 200
)

// AirNow holds settings for the real-time observations API.
type AirNow struct {
	APIKey   string
	BaseURL  string
	ZipCode  string
	Distance int
	Timeout  time.Duration
}

// Weather holds settings for the historical weather archive API.
type Weather struct {
	BaseURL      string
	Timeout      time.Duration
	ChunkDays    int
	AllowPartial bool
}

// Retry bounds the orchestrator's exponential backoff.
type Retry struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// API holds settings for the read-only export server.
type API struct {
	Port         int
	DefaultLimit int
	BearerToken  string
}

// Config holds runtime configuration for ingestion runs and the API.
type Config struct {
	DatabaseURL string
	AirNow      AirNow
	Weather     Weather
	Retry       Retry
	API         API
	CSVTimezone *time.Location
	DryRun      bool
}

// Load reads configuration from environment variables, optionally seeded
// from an explicit env file (or a .env in the working directory).
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load() // ignore missing file
	}

	cfg := Config{
		AirNow: AirNow{
			BaseURL:  defaultAirNowURL,
			ZipCode:  defaultZipCode,
			Distance: defaultDistance,
			Timeout:  defaultAirNowTimeout,
		},
		Weather: Weather{
			BaseURL:   defaultWeatherURL,
			Timeout:   defaultWeatherTimeout,
			ChunkDays: defaultChunkDays,
		},
		Retry: Retry{
			MaxAttempts:    defaultMaxAttempts,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
		},
		API: API{
			Port:         defaultAPIPort,
			DefaultLimit: defaultAPILimit,
		},
		CSVTimezone: time.UTC,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.AirNow.APIKey = strings.TrimSpace(os.Getenv("AIRNOW_API_KEY"))

	if v := strings.TrimSpace(os.Getenv("AIRNOW_BASE_URL")); v != "" {
		cfg.AirNow.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("AIRNOW_ZIP_CODE")); v != "" {
		cfg.AirNow.ZipCode = v
	}
	if v := strings.TrimSpace(os.Getenv("AIRNOW_DISTANCE")); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid AIRNOW_DISTANCE: %s", v)
		}
		cfg.AirNow.Distance = d
	}
	if v := strings.TrimSpace(os.Getenv("AIRNOW_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid AIRNOW_TIMEOUT: %w", err)
		}
		cfg.AirNow.Timeout = d
	}

	if v := strings.TrimSpace(os.Getenv("WEATHER_BASE_URL")); v != "" {
		cfg.Weather.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WEATHER_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WEATHER_TIMEOUT: %w", err)
		}
		cfg.Weather.Timeout = d
	}
	if v := strings.TrimSpace(os.Getenv("WEATHER_CHUNK_DAYS")); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid WEATHER_CHUNK_DAYS: %s", v)
		}
		cfg.Weather.ChunkDays = d
	}
	cfg.Weather.AllowPartial = boolEnv("WEATHER_ALLOW_PARTIAL")

	if v := strings.TrimSpace(os.Getenv("INGEST_MAX_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid INGEST_MAX_ATTEMPTS: %s", v)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v := strings.TrimSpace(os.Getenv("INGEST_INITIAL_BACKOFF")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid INGEST_INITIAL_BACKOFF: %w", err)
		}
		cfg.Retry.InitialBackoff = d
	}
	if v := strings.TrimSpace(os.Getenv("INGEST_MAX_BACKOFF")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid INGEST_MAX_BACKOFF: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	if v := strings.TrimSpace(os.Getenv("CSV_TIMEZONE")); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CSV_TIMEZONE: %w", err)
		}
		cfg.CSVTimezone = loc
	}

	if v := strings.TrimSpace(os.Getenv("API_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 {
			return cfg, fmt.Errorf("invalid API_PORT: %s", v)
		}
		cfg.API.Port = p
	}
	if v := strings.TrimSpace(os.Getenv("API_DEFAULT_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid API_DEFAULT_LIMIT: %s", v)
		}
		cfg.API.DefaultLimit = n
	}
	cfg.API.BearerToken = os.Getenv("API_BEARER_TOKEN")

	cfg.DryRun = boolEnv("DRY_RUN")

	return cfg, nil
}

// RequireDatabase validates the settings needed to reach Postgres.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// RequireAirNow validates the settings needed to call the AirNow API.
func (c Config) RequireAirNow() error {
	if c.AirNow.APIKey == "" {
		return errors.New("AIRNOW_API_KEY is required")
	}
	return nil
}

// ListenAddr returns the API bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.API.Port)
}

func boolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}
