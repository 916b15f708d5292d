// Package normalize holds the pure validation and coercion rules applied by
// every source adapter before a record is considered canonical.
package normalize

import (
	"fmt"
	"time"

	"github.com/evmartinez/airwatch/internal/model"
)

// zoneOffsets maps the timezone abbreviations used by AirNow payloads to
// fixed UTC offsets in hours.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"EST":  -5,
	"EDT":  -4,
	"CST":  -6,
	"CDT":  -5,
	"MST":  -7,
	"MDT":  -6,
	"PST":  -8,
	"PDT":  -7,
	"AKST": -9,
	"AKDT": -8,
	"HST":  -10,
}

// canonicalUnits gives the single canonical concentration unit per pollutant.
var canonicalUnits = map[model.Pollutant]model.Unit{
	model.PollutantPM25: model.UnitUGM3,
	model.PollutantPM10: model.UnitUGM3,
	model.PollutantO3:   model.UnitPPB,
	model.PollutantCO:   model.UnitPPB,
	model.PollutantNO2:  model.UnitPPB,
	model.PollutantSO2:  model.UnitPPB,
	model.PollutantAQI:  model.UnitIndex,
}

// unitFactors lists, per canonical unit, the accepted incoming units and the
// multiplier that converts them. Units absent from the table for a pollutant
// are unconvertible and fail the record.
var unitFactors = map[model.Unit]map[model.Unit]float64{
	model.UnitUGM3: {
		model.UnitUGM3: 1,
		model.UnitMGM3: 1000,
	},
	model.UnitPPB: {
		model.UnitPPB: 1,
		model.UnitPPM: 1000,
	},
	model.UnitIndex: {
		model.UnitIndex: 1,
	},
}

// bounds holds the plausibility range per pollutant in its canonical unit.
var bounds = map[model.Pollutant][2]float64{
	model.PollutantPM25: {0, 1000},
	model.PollutantPM10: {0, 2000},
	model.PollutantO3:   {0, 1000},
	model.PollutantCO:   {0, 100000},
	model.PollutantNO2:  {0, 2000},
	model.PollutantSO2:  {0, 2000},
	model.PollutantAQI:  {0, 500},
}

// aqiBounds applies to any pollutant reported as an AQI sub-index.
var aqiBounds = [2]float64{0, 500}

// ResolveZone returns the fixed-offset location for a timezone abbreviation.
func ResolveZone(abbr string) (*time.Location, error) {
	offset, ok := zoneOffsets[abbr]
	if !ok {
		return nil, &model.ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown zone %q", abbr)}
	}
	return time.FixedZone(abbr, offset*3600), nil
}

// ToUTC normalizes a timestamp to UTC at second precision.
func ToUTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// CanonicalUnit returns the canonical unit for a pollutant.
func CanonicalUnit(p model.Pollutant) model.Unit {
	return canonicalUnits[p]
}

// ConvertValue converts a value to the pollutant's canonical unit. Index
// values pass through unchanged for any pollutant: an AQI sub-index has no
// concentration equivalent but is still a valid reading.
func ConvertValue(p model.Pollutant, value float64, unit model.Unit) (float64, model.Unit, error) {
	if unit == model.UnitIndex {
		return value, model.UnitIndex, nil
	}
	canonical, ok := canonicalUnits[p]
	if !ok {
		return 0, "", &model.ValidationError{Field: "pollutant", Reason: fmt.Sprintf("unknown pollutant %q", p)}
	}
	factor, ok := unitFactors[canonical][unit]
	if !ok {
		return 0, "", &model.ValidationError{Field: "unit", Reason: fmt.Sprintf("cannot convert %s from %q to %q", p, unit, canonical)}
	}
	return value * factor, canonical, nil
}

// CheckRange validates a canonical value against the pollutant's
// plausibility bounds. Out-of-range values are rejected, never clamped.
func CheckRange(p model.Pollutant, value float64, unit model.Unit) error {
	b, ok := bounds[p]
	if !ok {
		return &model.ValidationError{Field: "pollutant", Reason: fmt.Sprintf("unknown pollutant %q", p)}
	}
	if unit == model.UnitIndex {
		b = aqiBounds
	}
	if value < b[0] || value > b[1] {
		return &model.ValidationError{
			Field:  string(p),
			Reason: fmt.Sprintf("value %g outside plausible range [%g, %g]", value, b[0], b[1]),
		}
	}
	return nil
}

// Measurement coerces a raw measurement into canonical form: unit
// conversion, range validation, UTC timestamp. It returns the canonical
// record or a *model.ValidationError; it never panics past the adapter.
func Measurement(m model.Measurement) (model.Measurement, error) {
	value, unit, err := ConvertValue(m.Pollutant, m.Value, m.Unit)
	if err != nil {
		return model.Measurement{}, err
	}
	if err := CheckRange(m.Pollutant, value, unit); err != nil {
		return model.Measurement{}, err
	}
	if m.ObservedAt.IsZero() {
		return model.Measurement{}, &model.ValidationError{Field: "observed_at", Reason: "missing timestamp"}
	}
	m.Value = value
	m.Unit = unit
	m.ObservedAt = ToUTC(m.ObservedAt)
	return m, nil
}

// Station validates station coordinates.
func Station(s model.Station) error {
	if s.ID == "" {
		return &model.ValidationError{Field: "station", Reason: "missing identifier"}
	}
	if s.Lat < -90 || s.Lat > 90 {
		return &model.ValidationError{Field: "lat", Reason: fmt.Sprintf("latitude %g outside [-90, 90]", s.Lat)}
	}
	if s.Lon < -180 || s.Lon > 180 {
		return &model.ValidationError{Field: "lon", Reason: fmt.Sprintf("longitude %g outside [-180, 180]", s.Lon)}
	}
	return nil
}
