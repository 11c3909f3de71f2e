// Package pgtable keeps the scenario table in PostgreSQL. Each cell is one
// record keyed by (row_index, col); a row's cells are read once at start and
// staged writes are flushed in a single transaction per Save.
package pgtable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bytemomo/rhembatch/internal/domain"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const driver = "pgx"

// DefaultName is the table used when none is configured.
const DefaultName = "scenarios"

type cellKey struct {
	row int
	col domain.Column
}

type Table struct {
	db    *sql.DB
	owned bool
	name  string

	rows  map[int][]string
	dirty map[cellKey]struct{}
}

// Open connects to dsn, creates the table when missing and returns a handle
// owning the connection.
func Open(ctx context.Context, dsn, name string) (*Table, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	t := New(db, name)
	t.owned = true
	if err := t.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// New wraps an existing connection. The caller keeps ownership of db.
func New(db *sql.DB, name string) *Table {
	if name == "" {
		name = DefaultName
	}
	return &Table{
		db:    db,
		name:  pgx.Identifier(strings.Split(name, ".")).Sanitize(),
		rows:  map[int][]string{},
		dirty: map[cellKey]struct{}{},
	}
}

func (t *Table) Close() error {
	if t.owned {
		return t.db.Close()
	}
	return nil
}

func (t *Table) EnsureSchema(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, createSQL(t.name)); err != nil {
		return fmt.Errorf("create table %s: %w", t.name, err)
	}
	return nil
}

// Seed inserts rows, replacing any cells already stored under the same keys.
func (t *Table) Seed(ctx context.Context, rows []domain.Row) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	stmt := upsertSQL(t.name)
	for _, r := range rows {
		for c, v := range r.Cells {
			if v == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt, r.Index, c, v); err != nil {
				return fmt.Errorf("seed row %d: %w", r.Index, err)
			}
		}
	}
	return tx.Commit()
}

func (t *Table) ReadAllRows(ctx context.Context) ([]domain.Row, error) {
	q, err := t.db.QueryContext(ctx, selectSQL(t.name))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer q.Close()

	loaded := map[int][]string{}
	var order []int
	for q.Next() {
		var (
			idx, col int
			value    sql.NullString
		)
		if err := q.Scan(&idx, &col, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		if col < 0 {
			continue
		}
		cells, ok := loaded[idx]
		if !ok {
			cells = make([]string, domain.NumColumns)
			order = append(order, idx)
		}
		for len(cells) <= col {
			cells = append(cells, "")
		}
		cells[col] = value.String
		loaded[idx] = cells
	}
	if err := q.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}

	t.rows = loaded
	t.dirty = map[cellKey]struct{}{}
	rows := make([]domain.Row, 0, len(order))
	for n, idx := range order {
		cells := make([]string, len(loaded[idx]))
		copy(cells, loaded[idx])
		rows = append(rows, domain.Row{Index: idx, Number: n + 1, Cells: cells})
	}
	return rows, nil
}

func (t *Table) ReadCell(row int, col domain.Column) (string, error) {
	cells, ok := t.rows[row]
	if !ok {
		return "", fmt.Errorf("row %d not loaded", row)
	}
	if col < 0 || int(col) >= len(cells) {
		return "", nil
	}
	return cells[col], nil
}

func (t *Table) WriteCell(row int, col domain.Column, value string) error {
	cells, ok := t.rows[row]
	if !ok {
		return fmt.Errorf("row %d not loaded", row)
	}
	if col < 0 {
		return fmt.Errorf("invalid column %d", int(col))
	}
	for len(cells) <= int(col) {
		cells = append(cells, "")
	}
	cells[col] = value
	t.rows[row] = cells
	t.dirty[cellKey{row, col}] = struct{}{}
	return nil
}

// Save flushes staged cells in one transaction. Nothing is cleared when the
// transaction fails, so the next Save retries the same cells.
func (t *Table) Save(ctx context.Context) error {
	if len(t.dirty) == 0 {
		return nil
	}
	keys := make([]cellKey, 0, len(t.dirty))
	for k := range t.dirty {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b cellKey) int {
		if a.row != b.row {
			return a.row - b.row
		}
		return int(a.col) - int(b.col)
	})

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt := upsertSQL(t.name)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, stmt, k.row, int(k.col), t.rows[k.row][k.col]); err != nil {
			return fmt.Errorf("update row %d column %d: %w", k.row, int(k.col), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.dirty = map[cellKey]struct{}{}
	return nil
}

// Pending is the number of staged cells not yet saved.
func (t *Table) Pending() int { return len(t.dirty) }

func createSQL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	row_index integer NOT NULL,
	col integer NOT NULL,
	value text,
	PRIMARY KEY (row_index, col)
)`, name)
}

func selectSQL(name string) string {
	return fmt.Sprintf("SELECT row_index, col, value FROM %s ORDER BY row_index, col", name)
}

func upsertSQL(name string) string {
	return fmt.Sprintf(`INSERT INTO %s (row_index, col, value) VALUES ($1, $2, $3)
ON CONFLICT (row_index, col) DO UPDATE SET value = EXCLUDED.value`, name)
}
