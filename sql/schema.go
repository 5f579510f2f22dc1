package sql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchemaMismatch = errors.New("sql: schema mismatch")
)

type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered list of columns; it is immutable once handed to a table.
type Schema struct {
	columns []Column
}

func NewSchema(cols ...Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, errors.New("sql: schema must have at least one column")
	}

	names := map[string]struct{}{}
	for _, col := range cols {
		if col.Name == "" {
			return nil, errors.New("sql: column name must not be empty")
		}
		if _, dup := names[col.Name]; dup {
			return nil, fmt.Errorf("sql: duplicate column %q", col.Name)
		}
		if col.Type.DataType() == "" {
			return nil, fmt.Errorf("sql: column %q: invalid type: %v", col.Name, col.Type)
		}
		names[col.Name] = struct{}{}
	}
	return &Schema{columns: append([]Column(nil), cols...)}, nil
}

func (sc *Schema) Columns() []Column {
	return sc.columns
}

func (sc *Schema) ColumnCount() int {
	return len(sc.columns)
}

func (sc *Schema) Column(idx int) Column {
	return sc.columns[idx]
}

func (sc *Schema) ColumnNames() []string {
	names := make([]string, 0, len(sc.columns))
	for _, col := range sc.columns {
		names = append(names, col.Name)
	}
	return names
}

func (sc *Schema) ColumnTypes() []ColumnType {
	colTypes := make([]ColumnType, 0, len(sc.columns))
	for _, col := range sc.columns {
		colTypes = append(colTypes, col.Type)
	}
	return colTypes
}

// ColumnIndex returns the position of the named column or -1.
func (sc *Schema) ColumnIndex(name string) int {
	for idx, col := range sc.columns {
		if strings.EqualFold(col.Name, name) {
			return idx
		}
	}
	return -1
}

// Check validates row against the schema and returns a normalized copy of it; row is not
// modified. Any error wraps ErrSchemaMismatch.
func (sc *Schema) Check(row []Value) ([]Value, error) {
	if len(row) != len(sc.columns) {
		return nil, fmt.Errorf("%w: expected %d values; got %d", ErrSchemaMismatch,
			len(sc.columns), len(row))
	}

	checked := make([]Value, len(row))
	for idx, col := range sc.columns {
		v, err := col.Type.CheckValue(col.Name, row[idx])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, err)
		}
		checked[idx] = v
	}
	return checked, nil
}

func (sc *Schema) String() string {
	var b strings.Builder
	b.WriteRune('(')
	for idx, col := range sc.columns {
		if idx > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", col.Name, col.Type)
	}
	b.WriteRune(')')
	return b.String()
}
