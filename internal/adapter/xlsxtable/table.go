// Package xlsxtable keeps the scenario table in an Excel workbook, one
// scenario per row below a header.
package xlsxtable

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bytemomo/rhembatch/internal/domain"

	"github.com/xuri/excelize/v2"
)

// DefaultHeaderRows is the number of rows above the first scenario.
const DefaultHeaderRows = 1

// Table is a worksheet. Row keys are 1-based worksheet row numbers.
type Table struct {
	path   string
	sheet  string
	header int
	file   *excelize.File
}

// Open loads the workbook at path. An empty sheet selects the active sheet.
func Open(path, sheet string, headerRows int) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("workbook %s has no sheet %q", path, sheet)
	}
	if headerRows < 0 {
		headerRows = DefaultHeaderRows
	}
	return &Table{path: path, sheet: sheet, header: headerRows, file: f}, nil
}

// Sheet is the worksheet in use.
func (t *Table) Sheet() string { return t.sheet }

func (t *Table) Close() error { return t.file.Close() }

// ReadAllRows returns the data rows below the header. Rows with no value in
// any input column are not scenarios and are left out.
func (t *Table) ReadAllRows(ctx context.Context) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grid, err := t.file.GetRows(t.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", t.sheet, err)
	}

	var rows []domain.Row
	for i := t.header; i < len(grid); i++ {
		if blank(grid[i]) {
			continue
		}
		cells := make([]string, max(len(grid[i]), int(domain.NumColumns)))
		copy(cells, grid[i])
		rows = append(rows, domain.Row{
			Index:  i + 1,
			Number: i - t.header + 1,
			Cells:  cells,
		})
	}
	return rows, nil
}

func (t *Table) ReadCell(row int, col domain.Column) (string, error) {
	cell, err := cellName(row, col)
	if err != nil {
		return "", err
	}
	v, err := t.file.GetCellValue(t.sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", cell, err)
	}
	return strings.TrimSpace(v), nil
}

// WriteCell stores numbers as numeric cells and anything else as text.
func (t *Table) WriteCell(row int, col domain.Column, value string) error {
	cell, err := cellName(row, col)
	if err != nil {
		return err
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		err = t.file.SetCellValue(t.sheet, cell, f)
		if err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}
		return nil
	}
	if err := t.file.SetCellStr(t.sheet, cell, value); err != nil {
		return fmt.Errorf("write %s: %w", cell, err)
	}
	return nil
}

// Save writes the workbook to a temporary file beside it and renames it into
// place, so an interrupted save leaves the previous copy intact.
func (t *Table) Save(context.Context) error {
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".rhembatch-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := t.file.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		return fmt.Errorf("replace workbook %s: %w", t.path, err)
	}
	return nil
}

func cellName(row int, col domain.Column) (string, error) {
	if row < 1 || col < 0 {
		return "", fmt.Errorf("invalid cell row %d column %d", row, int(col))
	}
	return excelize.CoordinatesToCellName(int(col)+1, row)
}

func blank(cells []string) bool {
	for i, c := range cells {
		if i > int(domain.ColMoisture) {
			break
		}
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
