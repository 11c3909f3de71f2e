// Package memtable is an in-memory scenario table, used by tests and dry runs.
package memtable

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bytemomo/rhembatch/internal/domain"
)

type Table struct {
	mu    sync.Mutex
	rows  map[int][]string
	order []int
	saves int

	// SaveErr, when set, is returned by every Save.
	SaveErr error
	// ReadErr, when set, is returned by ReadAllRows.
	ReadErr error
}

// New builds a table from rows, keyed by their Index.
func New(rows []domain.Row) *Table {
	t := &Table{rows: make(map[int][]string, len(rows))}
	for _, r := range rows {
		cells := make([]string, len(r.Cells))
		copy(cells, r.Cells)
		t.rows[r.Index] = cells
		t.order = append(t.order, r.Index)
	}
	sort.Ints(t.order)
	return t
}

func (t *Table) ReadAllRows(ctx context.Context) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	rows := make([]domain.Row, 0, len(t.order))
	for n, idx := range t.order {
		cells := make([]string, len(t.rows[idx]))
		copy(cells, t.rows[idx])
		rows = append(rows, domain.Row{Index: idx, Number: n + 1, Cells: cells})
	}
	return rows, nil
}

func (t *Table) ReadCell(row int, col domain.Column) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cells, ok := t.rows[row]
	if !ok {
		return "", fmt.Errorf("row %d not found", row)
	}
	if int(col) < 0 || int(col) >= len(cells) {
		return "", nil
	}
	return cells[col], nil
}

func (t *Table) WriteCell(row int, col domain.Column, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cells, ok := t.rows[row]
	if !ok {
		return fmt.Errorf("row %d not found", row)
	}
	if int(col) < 0 {
		return fmt.Errorf("invalid column %d", col)
	}
	for len(cells) <= int(col) {
		cells = append(cells, "")
	}
	cells[col] = value
	t.rows[row] = cells
	return nil
}

func (t *Table) Save(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.saves++
	return t.SaveErr
}

// Saves is the number of Save calls so far.
func (t *Table) Saves() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saves
}

// Cells returns a copy of a row's cells.
func (t *Table) Cells(row int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.rows[row]))
	copy(out, t.rows[row])
	return out
}

// Cell returns one cell, or "" when it is absent.
func (t *Table) Cell(row int, col domain.Column) string {
	v, _ := t.ReadCell(row, col)
	return v
}
