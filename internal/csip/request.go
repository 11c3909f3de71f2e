package csip

import (
	"strings"

	"bytemomo/rhembatch/internal/domain"
)

// Defaults substituted for optional row fields.
const (
	DefaultSAR      = 0.0
	DefaultMoisture = 25.0
)

// Parameter is one named input of a model run request.
// Min and Max document the accepted range; the service enforces them.
type Parameter struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Value       any      `json:"value"`
	Unit        string   `json:"unit,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

// Request is the body posted to the model run endpoint.
type Request struct {
	Metainfo  map[string]any `json:"metainfo"`
	Parameter []Parameter    `json:"parameter"`
}

// Param returns the named parameter.
func (r Request) Param(name string) (Parameter, bool) {
	for _, p := range r.Parameter {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// NormalizeName replaces periods, which the service rejects in scenario names.
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

type coverParam struct {
	col         domain.Column
	name        string
	description string
}

var coverParams = []coverParam{
	{domain.ColBunchgrassCanopy, "bunchgrasscanopycover", "Bunchgrass Foliar Cover Percent"},
	{domain.ColForbsCanopy, "forbscanopycover", "Forbs and Annuals Foliar Cover Percent"},
	{domain.ColShrubsCanopy, "shrubscanopycover", "Shrub Foliar Cover Percent"},
	{domain.ColSodgrassCanopy, "sodgrasscanopycover", "Sodgrass Foliar Cover Percent"},
	{domain.ColBasalCover, "basalcover", "Plant Basal Cover Percent"},
	{domain.ColRockCover, "rockcover", "Rock Cover Percent"},
	{domain.ColLitterCover, "littercover", "Litter Cover Percent"},
	{domain.ColCryptogamsCover, "cryptogamscover", "Cryptogam Cover Percent"},
}

// Build maps a validated row to a run request. It must not be called on a
// row that failed domain.Validate.
func Build(row domain.Row) Request {
	units := int(row.FloatOr(domain.ColUnits, domain.UnitsMetric))

	params := []Parameter{
		{Name: "AoAID", Description: "Area of Analysis Identifier", Value: row.Number},
		{Name: "rhem_site_id", Description: "RHEM Evaluation Site Identifier", Value: row.Number},
		{Name: "scenarioname", Description: "RHEM Scenario Name", Value: NormalizeName(row.Cell(domain.ColScenarioName))},
		{Name: "scenariodescription", Description: "RHEM Scenario description", Value: row.Cell(domain.ColDescription)},
		{Name: "units", Description: "RHEM Scenario Unit of Measure, 1 = metric and 2 = English", Value: units},
		{Name: "stateid", Description: "State Abbreviation", Value: row.Cell(domain.ColStateID)},
		{Name: "climatestationid", Description: "Climate Station Identification Number", Value: row.Cell(domain.ColClimateStationID)},
		{Name: "soiltexture", Description: "Surface Soil Texture Class Label", Value: row.Cell(domain.ColSoilTexture)},
		{Name: "moisturecontent", Description: "Soil Moisture Content Percent", Value: row.FloatOr(domain.ColMoisture, DefaultMoisture)},
		{Name: "slopelength", Description: "Slope Length", Value: row.FloatOr(domain.ColSlopeLength, 0), Unit: "m"},
		{Name: "slopeshape", Description: "Slope Shape", Value: row.Cell(domain.ColSlopeShape)},
		percent("slopesteepness", "Slope Steepness", row.FloatOr(domain.ColSlopeSteepness, 0), 0.01, 100),
	}
	for _, cp := range coverParams {
		params = append(params, percent(cp.name, cp.description, row.FloatOr(cp.col, 0), 0.01, 100))
	}
	params = append(params, percent("sar", "Sodium Adsorption Ratio", row.FloatOr(domain.ColSAR, DefaultSAR), 0, 50))

	return Request{
		Metainfo:  map[string]any{},
		Parameter: params,
	}
}

func percent(name, description string, value, lo, hi float64) Parameter {
	return Parameter{
		Name:        name,
		Description: description,
		Value:       value,
		Unit:        "%",
		Min:         &lo,
		Max:         &hi,
	}
}
