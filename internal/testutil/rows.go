package testutil

import (
	"strconv"

	"bytemomo/rhembatch/internal/domain"

	"github.com/google/uuid"
)

// ScenarioCells returns the input cells of a valid scenario, padded to the
// full table width.
func ScenarioCells(name string) []string {
	cells := make([]string, domain.NumColumns)
	copy(cells, []string{
		name, "generated scenario", "1", "NM", "290840", "Sandy loam", "",
		"50", "Uniform", "12.5",
		"10", "5", "20", "5",
		"10", "20", "30", "5",
	})
	return cells
}

// ScenarioRow is a valid row numbered n with key n+2, as if read below a
// two-line header.
func ScenarioRow(n int, name string) domain.Row {
	return domain.Row{Index: n + 2, Number: n, Cells: ScenarioCells(name)}
}

// Rows builds count valid rows named prefix1..prefixN.
func Rows(prefix string, count int) []domain.Row {
	rows := make([]domain.Row, 0, count)
	for i := 1; i <= count; i++ {
		rows = append(rows, ScenarioRow(i, prefix+strconv.Itoa(i)))
	}
	return rows
}

// RandomSuffix returns eight hex characters for naming throwaway resources.
func RandomSuffix() string {
	return uuid.NewString()[:8]
}
