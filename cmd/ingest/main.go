package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/ingest"
	"github.com/evmartinez/airwatch/internal/source"
	"github.com/evmartinez/airwatch/internal/source/airnow"
	"github.com/evmartinez/airwatch/internal/source/csvfile"
	"github.com/evmartinez/airwatch/internal/source/weather"
	"github.com/evmartinez/airwatch/internal/store"
)

const usage = `usage: ingest [-env-file PATH] [-dry-run] <command> [args]

commands:
  ingest-airnow  [-zip CODE] [-distance MILES]
  ingest-csv     FILE [FILE...]
  ingest-weather -start YYYY-MM-DD -end YYYY-MM-DD -lat LAT -lon LON
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("ingest", flag.ExitOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	envFile := global.String("env-file", "", "path to a .env file with credentials")
	dryRun := global.Bool("dry-run", false, "normalize but write to an in-memory store")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("a command is required")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *dryRun {
		cfg.DryRun = true
	}

	command := global.Arg(0)
	rest := global.Args()[1:]

	src, err := buildSource(cfg, command, rest)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	var writer store.Writer
	if cfg.DryRun {
		log.Printf("dry-run: records will not be persisted")
		writer = store.NewMemory()
	} else {
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx, "migrations"); err != nil {
			return err
		}
		writer = pg
	}

	runner := ingest.NewRunner(writer, cfg.Retry)
	summary, runErr := runner.Run(ctx, src)

	// The summary is emitted even when the run failed.
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	return runErr
}

func buildSource(cfg config.Config, command string, args []string) (source.Source, error) {
	switch command {
	case "ingest-airnow":
		fs := flag.NewFlagSet("ingest-airnow", flag.ExitOnError)
		zip := fs.String("zip", cfg.AirNow.ZipCode, "ZIP code to query")
		distance := fs.Int("distance", cfg.AirNow.Distance, "search radius in miles")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if err := cfg.RequireAirNow(); err != nil {
			return nil, err
		}
		ancfg := cfg.AirNow
		ancfg.ZipCode = *zip
		ancfg.Distance = *distance
		return airnow.New(ancfg), nil

	case "ingest-csv":
		if len(args) == 0 {
			return nil, fmt.Errorf("ingest-csv requires at least one file path")
		}
		return csvfile.New(args, cfg.CSVTimezone), nil

	case "ingest-weather":
		fs := flag.NewFlagSet("ingest-weather", flag.ExitOnError)
		startStr := fs.String("start", "", "start date YYYY-MM-DD")
		endStr := fs.String("end", "", "end date YYYY-MM-DD")
		lat := fs.Float64("lat", 0, "latitude")
		lon := fs.Float64("lon", 0, "longitude")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		start, err := time.Parse("2006-01-02", *startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid -start date: %v", err)
		}
		end, err := time.Parse("2006-01-02", *endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid -end date: %v", err)
		}
		return weather.New(cfg.Weather, start, end, *lat, *lon), nil

	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}
