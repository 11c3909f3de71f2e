package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() Row {
	cells := make([]string, NumColumns)
	copy(cells, []string{
		"Site.A.1", "test scenario", "1", "NM", "290840", "Sandy loam", "",
		"50", "Uniform", "12.5",
		"10", "5", "20", "5",
		"10", "20", "30", "5",
	})
	return Row{Index: 2, Number: 1, Cells: cells}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validRow()))
}

func TestValidate_MissingSARIsValid(t *testing.T) {
	row := validRow()
	row.Cells[ColSAR] = ""
	assert.NoError(t, Validate(row))
}

func TestValidate_MissingRequired(t *testing.T) {
	row := validRow()
	row.Cells[ColUnits] = ""
	row.Cells[ColSlopeShape] = "  "

	err := Validate(row)
	require.Error(t, err)
	assert.Equal(t, KindInputInvalid, KindOf(err))
	assert.Contains(t, Message(err), "units")
	assert.Contains(t, Message(err), "slope shape")
}

func TestValidate_ShortRowIsMissingFields(t *testing.T) {
	row := Row{Cells: []string{"only-a-name"}}
	err := Validate(row)
	require.Error(t, err)
	assert.Equal(t, KindInputInvalid, KindOf(err))
}

func TestValidate_CoverNotNumeric(t *testing.T) {
	for _, v := range []string{"lots", "NaN", "Inf", "-Inf", "+Inf", "nan"} {
		row := validRow()
		row.Cells[ColRockCover] = v

		err := Validate(row)
		require.Error(t, err, v)
		assert.Equal(t, KindInputInvalid, KindOf(err), v)
		assert.Contains(t, Message(err), "rock cover", v)
		assert.Contains(t, Message(err), "is not a number", v)
	}
}

func TestValidate_NonFiniteNumbers(t *testing.T) {
	cols := []Column{ColBunchgrassCanopy, ColCryptogamsCover, ColSlopeLength, ColSlopeSteepness, ColSAR, ColMoisture, ColUnits}
	for _, c := range cols {
		for _, v := range []string{"NaN", "Inf", "-Inf"} {
			row := validRow()
			row.Cells[c] = v

			err := Validate(row)
			require.Error(t, err, "%s=%s", c, v)
			assert.Equal(t, KindInputInvalid, KindOf(err))
			assert.Contains(t, Message(err), c.String())
		}
	}
}

func TestValidate_CoverSums(t *testing.T) {
	tests := []struct {
		name   string
		canopy [4]string
		ground [4]string
		valid  bool
	}{
		{"exactly 100", [4]string{"25", "25", "25", "25"}, [4]string{"50", "50", "0", "0"}, true},
		{"canopy over", [4]string{"25", "25", "25", "25.01"}, [4]string{"0", "0", "0", "0"}, false},
		{"ground 105", [4]string{"0", "0", "0", "0"}, [4]string{"50", "50", "5", "0"}, false},
		{"rounds down to 100", [4]string{"25", "25", "25", "25.004"}, [4]string{"0", "0", "0", "0"}, true},
		{"rounds up past 100", [4]string{"25", "25", "25", "25.006"}, [4]string{"0", "0", "0", "0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			for i, c := range CanopyColumns {
				row.Cells[c] = tt.canopy[i]
			}
			for i, c := range GroundColumns {
				row.Cells[c] = tt.ground[i]
			}
			err := Validate(row)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindInputInvalid, KindOf(err))
			assert.Contains(t, Message(err), "cannot exceed 100%")
		})
	}
}

func TestValidate_Units(t *testing.T) {
	row := validRow()
	row.Cells[ColUnits] = "2"
	assert.NoError(t, Validate(row))

	row.Cells[ColUnits] = "3"
	err := Validate(row)
	require.Error(t, err)
	assert.Contains(t, Message(err), "Unit should be 1")
}

func TestValidate_OptionalNumericMustParse(t *testing.T) {
	row := validRow()
	row.Cells[ColSAR] = "n/a"
	assert.Error(t, Validate(row))

	row = validRow()
	row.Cells[ColMoisture] = "NaN"
	assert.Error(t, Validate(row))

	row = validRow()
	row.Cells[ColMoisture] = "25"
	assert.NoError(t, Validate(row))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 100.0, Round2(99.999))
	assert.Equal(t, 12.35, Round2(12.346))
	assert.Equal(t, 0.0, Round2(0.001))
}
