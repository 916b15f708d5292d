// Package csvfile ingests historical air-quality CSV exports. Column names
// vary across export vintages, so recognized headers are resolved through an
// alias table once per file before any row is processed.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evmartinez/airwatch/internal/model"
	"github.com/evmartinez/airwatch/internal/normalize"
	"github.com/evmartinez/airwatch/internal/source"
)

type role int

const (
	roleIgnore role = iota
	roleTimestamp
	roleSiteID
	roleSiteName
	rolePollutant
)

// column describes what a recognized header maps to.
type column struct {
	role      role
	pollutant model.Pollutant
	unit      model.Unit
}

// headerAliases maps normalized header names (lowercase, single-spaced) to
// canonical columns. New export vintages are supported by adding entries
// here, not by branching in row-processing code.
var headerAliases = map[string]column{
	// timestamps
	"date":          {role: roleTimestamp},
	"date observed": {role: roleTimestamp},
	"date_observed": {role: roleTimestamp},
	"datetime":      {role: roleTimestamp},
	"timestamp":     {role: roleTimestamp},
	"observed at":   {role: roleTimestamp},

	// station identity
	"site id (of overall aqi)":   {role: roleSiteID},
	"site id":                    {role: roleSiteID},
	"site_id":                    {role: roleSiteID},
	"station id":                 {role: roleSiteID},
	"site name (of overall aqi)": {role: roleSiteName},
	"site name":                  {role: roleSiteName},
	"site_name":                  {role: roleSiteName},
	"station name":               {role: roleSiteName},

	// descriptive columns carried by some vintages but not ingested
	"main pollutant":          {role: roleIgnore},
	"source":                  {role: roleIgnore},
	"source (of overall aqi)": {role: roleIgnore},
	"category":                {role: roleIgnore},

	// AQI index columns
	"overall aqi value": {role: rolePollutant, pollutant: model.PollutantAQI, unit: model.UnitIndex},
	"overall_aqi_value": {role: rolePollutant, pollutant: model.PollutantAQI, unit: model.UnitIndex},
	"aqi":               {role: rolePollutant, pollutant: model.PollutantAQI, unit: model.UnitIndex},
	"co":                {role: rolePollutant, pollutant: model.PollutantCO, unit: model.UnitIndex},
	"ozone":             {role: rolePollutant, pollutant: model.PollutantO3, unit: model.UnitIndex},
	"o3":                {role: rolePollutant, pollutant: model.PollutantO3, unit: model.UnitIndex},
	"pm10":              {role: rolePollutant, pollutant: model.PollutantPM10, unit: model.UnitIndex},
	"pm25":              {role: rolePollutant, pollutant: model.PollutantPM25, unit: model.UnitIndex},
	"pm2.5":             {role: rolePollutant, pollutant: model.PollutantPM25, unit: model.UnitIndex},
	"no2":               {role: rolePollutant, pollutant: model.PollutantNO2, unit: model.UnitIndex},
	"so2":               {role: rolePollutant, pollutant: model.PollutantSO2, unit: model.UnitIndex},

	// concentration columns with explicit units
	"pm2.5 (ug/m3)": {role: rolePollutant, pollutant: model.PollutantPM25, unit: model.UnitUGM3},
	"pm25 (ug/m3)":  {role: rolePollutant, pollutant: model.PollutantPM25, unit: model.UnitUGM3},
	"pm25_ugm3":     {role: rolePollutant, pollutant: model.PollutantPM25, unit: model.UnitUGM3},
	"pm2.5 (mg/m3)": {role: rolePollutant, pollutant: model.PollutantPM25, unit: model.UnitMGM3},
	"pm10 (ug/m3)":  {role: rolePollutant, pollutant: model.PollutantPM10, unit: model.UnitUGM3},
	"pm10 (mg/m3)":  {role: rolePollutant, pollutant: model.PollutantPM10, unit: model.UnitMGM3},
	"o3 (ppb)":      {role: rolePollutant, pollutant: model.PollutantO3, unit: model.UnitPPB},
	"o3 (ppm)":      {role: rolePollutant, pollutant: model.PollutantO3, unit: model.UnitPPM},
	"co (ppb)":      {role: rolePollutant, pollutant: model.PollutantCO, unit: model.UnitPPB},
	"co (ppm)":      {role: rolePollutant, pollutant: model.PollutantCO, unit: model.UnitPPM},
	"no2 (ppb)":     {role: rolePollutant, pollutant: model.PollutantNO2, unit: model.UnitPPB},
	"so2 (ppb)":     {role: rolePollutant, pollutant: model.PollutantSO2, unit: model.UnitPPB},
}

// timestampLayouts are tried in order. Layouts without a zone are
// interpreted in the reader's configured location.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

const maxWorkers = 4

// Reader lazily produces canonical measurements from one or more CSV files.
type Reader struct {
	paths []string
	tz    *time.Location
}

// New builds a reader. tz is the zone assumed for timestamps that carry no
// zone information; nil means UTC.
func New(paths []string, tz *time.Location) *Reader {
	if tz == nil {
		tz = time.UTC
	}
	return &Reader{paths: paths, tz: tz}
}

// Name implements source.Source.
func (r *Reader) Name() string { return "csv" }

// Fetch parses all files, independent files concurrently. A file whose
// header is unrecognized fails fast before any of its rows are read; with
// multiple files that failure is reported alongside the other files'
// records, and the whole fetch errors only when every file failed.
func (r *Reader) Fetch(ctx context.Context) (source.Result, error) {
	if len(r.paths) == 0 {
		return source.Result{}, fmt.Errorf("no csv files given")
	}
	if len(r.paths) == 1 {
		return r.parseFile(ctx, r.paths[0])
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		merged   source.Result
		failures []error
	)
	sem := make(chan struct{}, maxWorkers)

	for _, path := range r.paths {
		path := path
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := r.parseFile(ctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				merged.Rejections = append(merged.Rejections, model.Rejection{
					Row:    0,
					Reason: err.Error(),
				})
				return
			}
			merged.Stations = append(merged.Stations, res.Stations...)
			merged.Measurements = append(merged.Measurements, res.Measurements...)
			merged.Rejections = append(merged.Rejections, res.Rejections...)
		}()
	}
	wg.Wait()

	if len(failures) == len(r.paths) {
		return source.Result{}, failures[0]
	}
	return merged, nil
}

// parseFile reads one CSV file. The header is resolved against the alias
// table once; a row that fails type coercion is skipped and counted, never
// fatal to the file.
func (r *Reader) parseFile(ctx context.Context, path string) (source.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return source.Result{}, fmt.Errorf("%w: open %s: %v", model.ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	base := filepath.Base(path)
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	rawHeader, err := cr.Read()
	if err != nil {
		return source.Result{}, &model.SchemaMismatchError{File: base, Header: nil}
	}

	columns := make([]column, len(rawHeader))
	hasTimestamp := false
	hasPollutant := false
	for i, cell := range rawHeader {
		col, ok := headerAliases[normalizeHeader(cell)]
		if !ok {
			columns[i] = column{role: roleIgnore}
			continue
		}
		columns[i] = col
		switch col.role {
		case roleTimestamp:
			hasTimestamp = true
		case rolePollutant:
			hasPollutant = true
		}
	}
	if !hasTimestamp || !hasPollutant {
		return source.Result{}, &model.SchemaMismatchError{File: base, Header: rawHeader}
	}

	var res source.Result
	stations := make(map[string]model.Station)
	fallbackStation := "csv:" + strings.TrimSuffix(base, filepath.Ext(base))

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return source.Result{}, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Rejections = append(res.Rejections, model.Rejection{
				Row:    row,
				Reason: fmt.Sprintf("%s: malformed csv row: %v", base, err),
			})
			continue
		}

		measurements, station, rowErr := r.parseRow(columns, record, fallbackStation)
		if rowErr != nil {
			res.Rejections = append(res.Rejections, model.Rejection{
				Row:    row,
				Reason: fmt.Sprintf("%s: %v", base, rowErr),
			})
			continue
		}
		if _, ok := stations[station.ID]; !ok {
			stations[station.ID] = station
			res.Stations = append(res.Stations, station)
		}
		res.Measurements = append(res.Measurements, measurements...)
	}

	return res, nil
}

// parseRow turns one data row into canonical measurements. Any coercion or
// validation failure rejects the whole row.
func (r *Reader) parseRow(columns []column, record []string, fallbackStation string) ([]model.Measurement, model.Station, error) {
	var observedAt time.Time
	var siteID, siteName string

	for i, col := range columns {
		if i >= len(record) {
			break
		}
		cell := strings.TrimSpace(record[i])
		switch col.role {
		case roleTimestamp:
			ts, err := parseTimestamp(cell, r.tz)
			if err != nil {
				return nil, model.Station{}, err
			}
			observedAt = ts
		case roleSiteID:
			siteID = cell
		case roleSiteName:
			siteName = cell
		}
	}
	if observedAt.IsZero() {
		return nil, model.Station{}, &model.ValidationError{Field: "timestamp", Reason: "missing timestamp"}
	}

	station := model.Station{ID: fallbackStation, Name: siteName}
	if siteID != "" {
		station.ID = "csv:" + siteID
	}

	var out []model.Measurement
	for i, col := range columns {
		if col.role != rolePollutant || i >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[i])
		if cell == "" || cell == "." {
			continue
		}
		value, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, model.Station{}, &model.ValidationError{
				Field:  string(col.pollutant),
				Reason: fmt.Sprintf("non-numeric value %q", cell),
			}
		}
		m, err := normalize.Measurement(model.Measurement{
			StationID:  station.ID,
			Pollutant:  col.pollutant,
			Value:      value,
			Unit:       col.unit,
			ObservedAt: observedAt,
			Source:     model.SourceCSV,
		})
		if err != nil {
			return nil, model.Station{}, err
		}
		out = append(out, m)
	}
	return out, station, nil
}

func parseTimestamp(s string, tz *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, &model.ValidationError{Field: "timestamp", Reason: "missing timestamp"}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, tz); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &model.ValidationError{Field: "timestamp", Reason: fmt.Sprintf("unparsable timestamp %q", s)}
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(s)), " "))
}
