package execute

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/leftmike/pax/sql"
)

// Predicate filters rows; a nil Predicate accepts every row.
type Predicate func(row []sql.Value) (bool, error)

type Values struct {
	Cols  []string
	Rows  [][]sql.Value
	index int
}

func (v *Values) Columns() []string {
	return v.Cols
}

func (v *Values) Close() error {
	v.index = len(v.Rows)
	return nil
}

func (v *Values) Next(ctx context.Context, dest []sql.Value) error {
	if v.index == len(v.Rows) {
		return io.EOF
	}
	copy(dest, v.Rows[v.index])
	v.index += 1
	return nil
}

func (_ *Values) Delete(ctx context.Context) error {
	return fmt.Errorf("values: rows may not be deleted")
}

func (_ *Values) Update(ctx context.Context, updates []sql.ColumnUpdate) error {
	return fmt.Errorf("values: rows may not be updated")
}

// AllRows returns all of the rows from a Rows as slices of values.
func AllRows(ctx context.Context, rows sql.Rows) ([][]sql.Value, error) {
	all := [][]sql.Value{}
	l := len(rows.Columns())
	for {
		dest := make([]sql.Value, l)
		err := rows.Next(ctx, dest)
		if err == io.EOF {
			break
		} else if err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, dest)
	}
	err := rows.Close()
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Sort reads all of rows and returns them ordered by keys; rows which compare equal keep
// their input order.
func Sort(ctx context.Context, rows sql.Rows, keys []sql.ColumnKey) (*Values, error) {
	cols := rows.Columns()
	for _, ck := range keys {
		if ck.Column() >= len(cols) {
			rows.Close()
			return nil, fmt.Errorf("execute: sort: column %d out of range", ck.Column())
		}
	}

	all, err := AllRows(ctx, rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all,
		func(i, j int) bool {
			return sql.CompareRows(keys, all[i], all[j]) < 0
		})
	return &Values{
		Cols: cols,
		Rows: all,
	}, nil
}

func joinColumns(left, right sql.Rows) []string {
	var cols []string
	cols = append(cols, left.Columns()...)
	return append(cols, right.Columns()...)
}

func checkKeys(what string, rows sql.Rows, keys []int) error {
	n := len(rows.Columns())
	for _, col := range keys {
		if col < 0 || col >= n {
			return fmt.Errorf("execute: %s: key column %d out of range", what, col)
		}
	}
	return nil
}

func checkJoinKeys(what string, left, right sql.Rows, lkeys, rkeys []int) error {
	if len(lkeys) == 0 || len(lkeys) != len(rkeys) {
		return fmt.Errorf("execute: %s: mismatched keys: %v and %v", what, lkeys, rkeys)
	}
	err := checkKeys(what, left, lkeys)
	if err != nil {
		return err
	}
	return checkKeys(what, right, rkeys)
}

// rowSource produces rows which the caller may keep.
type rowSource interface {
	next(ctx context.Context) ([]sql.Value, error)
}

type rowsSource struct {
	rows sql.Rows
	n    int
}

func (rs rowsSource) next(ctx context.Context) ([]sql.Value, error) {
	row := make([]sql.Value, rs.n)
	err := rs.rows.Next(ctx, row)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func sourceOf(rows sql.Rows) rowSource {
	return rowsSource{rows: rows, n: len(rows.Columns())}
}
