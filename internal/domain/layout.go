package domain

import "fmt"

// Column is the 0-based ordinal of a field in a scenario row.
type Column int

const (
	ColScenarioName Column = iota
	ColDescription
	ColUnits
	ColStateID
	ColClimateStationID
	ColSoilTexture
	ColSAR
	ColSlopeLength
	ColSlopeShape
	ColSlopeSteepness
	ColBunchgrassCanopy
	ColForbsCanopy
	ColShrubsCanopy
	ColSodgrassCanopy
	ColBasalCover
	ColRockCover
	ColLitterCover
	ColCryptogamsCover
	ColMoisture

	ColAvgPrecip
	ColAvgRunoff
	ColAvgSoilLoss
	ColAvgSedYield
	ColAux
	ColError

	NumColumns
)

var columnNames = [...]string{
	ColScenarioName:     "scenario name",
	ColDescription:      "scenario description",
	ColUnits:            "units",
	ColStateID:          "state id",
	ColClimateStationID: "climate station id",
	ColSoilTexture:      "soil texture",
	ColSAR:              "sodium adsorption ratio",
	ColSlopeLength:      "slope length",
	ColSlopeShape:       "slope shape",
	ColSlopeSteepness:   "slope steepness",
	ColBunchgrassCanopy: "bunchgrass canopy cover",
	ColForbsCanopy:      "forbs canopy cover",
	ColShrubsCanopy:     "shrubs canopy cover",
	ColSodgrassCanopy:   "sodgrass canopy cover",
	ColBasalCover:       "basal cover",
	ColRockCover:        "rock cover",
	ColLitterCover:      "litter cover",
	ColCryptogamsCover:  "cryptogams cover",
	ColMoisture:         "moisture content",
	ColAvgPrecip:        "avg precipitation",
	ColAvgRunoff:        "avg runoff",
	ColAvgSoilLoss:      "avg soil loss",
	ColAvgSedYield:      "avg sediment yield",
	ColAux:              "auxiliary result",
	ColError:            "error message",
}

func (c Column) String() string {
	if c >= 0 && int(c) < len(columnNames) {
		return columnNames[c]
	}
	return fmt.Sprintf("column %d", int(c))
}

// CanopyColumns are summed and capped at 100 percent.
var CanopyColumns = []Column{ColBunchgrassCanopy, ColForbsCanopy, ColShrubsCanopy, ColSodgrassCanopy}

// GroundColumns are summed and capped at 100 percent.
var GroundColumns = []Column{ColBasalCover, ColRockCover, ColLitterCover, ColCryptogamsCover}

// RequiredColumns must be non-empty before a scenario is submitted.
var RequiredColumns = []Column{
	ColScenarioName, ColUnits, ColStateID, ColClimateStationID, ColSoilTexture,
	ColSlopeLength, ColSlopeShape, ColSlopeSteepness,
	ColBunchgrassCanopy, ColForbsCanopy, ColShrubsCanopy, ColSodgrassCanopy,
	ColBasalCover, ColRockCover, ColLitterCover, ColCryptogamsCover,
}

// Layout names the trailing columns the runner writes to.
type Layout struct {
	Marker Column
}

// DefaultLayout uses the soil loss column as the "already ran" marker,
// matching the workbook template.
func DefaultLayout() Layout {
	return Layout{Marker: ColAvgSoilLoss}
}

// ResultColumns lists the columns filled on completion, in write order.
func (l Layout) ResultColumns() []Column {
	return []Column{ColAvgPrecip, ColAvgRunoff, ColAvgSoilLoss, ColAvgSedYield, ColAux}
}

// MarkerIsResult reports whether writing the results also sets the marker.
func (l Layout) MarkerIsResult() bool {
	for _, c := range l.ResultColumns() {
		if c == l.Marker {
			return true
		}
	}
	return false
}

func (l Layout) Validate() error {
	if l.Marker < 0 {
		return fmt.Errorf("marker column must be non-negative, got %d", int(l.Marker))
	}
	if l.Marker < ColAvgPrecip {
		return fmt.Errorf("marker column %d overlaps the input columns", int(l.Marker))
	}
	if l.Marker == ColError {
		return fmt.Errorf("marker column cannot be the error column")
	}
	return nil
}
