package domain

import (
	"fmt"
	"math"
	"strings"
)

const opValidate = "validate"

// Validate checks a row before any request is built for it.
// It returns nil for a valid row, or a KindInputInvalid Error whose Msg is the
// reason to record. A missing SAR or moisture value is not an error; the
// request builder substitutes defaults.
func Validate(row Row) error {
	var missing []string
	for _, c := range RequiredColumns {
		if !row.Has(c) {
			missing = append(missing, c.String())
		}
	}
	if len(missing) > 0 {
		return invalid("Please make sure that you have entered all required inputs to run the current scenario (missing: %s)",
			strings.Join(missing, ", "))
	}

	canopy, err := coverSum(row, CanopyColumns)
	if err != nil {
		return invalid("%v", err)
	}
	ground, err := coverSum(row, GroundColumns)
	if err != nil {
		return invalid("%v", err)
	}
	if canopy > 100 || ground > 100 {
		return invalid("Skipping scenario %s. Total canopy cover and total ground cover cannot exceed 100%% (canopy %.2f, ground %.2f)",
			row.ScenarioName(), canopy, ground)
	}

	units, err := row.Float(ColUnits)
	if err != nil {
		return invalid("%v", err)
	}
	if units != UnitsMetric && units != UnitsEnglish {
		return invalid("Unit should be 1 (metric) or 2 (English); %s is not valid", row.Cell(ColUnits))
	}

	for _, c := range []Column{ColSlopeLength, ColSlopeSteepness} {
		if _, err := row.Float(c); err != nil {
			return invalid("%v", err)
		}
	}
	for _, c := range []Column{ColSAR, ColMoisture} {
		if !row.Has(c) {
			continue
		}
		if _, err := row.Float(c); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

const (
	UnitsMetric  = 1
	UnitsEnglish = 2
)

func coverSum(row Row, cols []Column) (float64, error) {
	var sum float64
	for _, c := range cols {
		v, err := row.Float(c)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return Round2(sum), nil
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func invalid(format string, args ...any) error {
	return E(KindInputInvalid, opValidate, fmt.Sprintf(format, args...), nil)
}
