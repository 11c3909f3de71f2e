package memtable

import (
	"context"
	"errors"
	"testing"

	"bytemomo/rhembatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_ReadWrite(t *testing.T) {
	tbl := New([]domain.Row{
		{Index: 5, Cells: []string{"b"}},
		{Index: 3, Cells: []string{"a"}},
	})

	rows, err := tbl.ReadAllRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0].Index)
	assert.Equal(t, 1, rows[0].Number)
	assert.Equal(t, 5, rows[1].Index)
	assert.Equal(t, 2, rows[1].Number)

	require.NoError(t, tbl.WriteCell(3, domain.ColError, "oops"))
	v, err := tbl.ReadCell(3, domain.ColError)
	require.NoError(t, err)
	assert.Equal(t, "oops", v)
	assert.Len(t, tbl.Cells(3), int(domain.ColError)+1)

	assert.Error(t, tbl.WriteCell(99, domain.ColError, "x"))
	_, err = tbl.ReadCell(99, domain.ColError)
	assert.Error(t, err)
}

func TestTable_Save(t *testing.T) {
	tbl := New(nil)
	require.NoError(t, tbl.Save(context.Background()))

	boom := errors.New("disk full")
	tbl.SaveErr = boom
	assert.ErrorIs(t, tbl.Save(context.Background()), boom)
	assert.Equal(t, 2, tbl.Saves())
}
