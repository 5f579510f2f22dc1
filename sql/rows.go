package sql

import (
	"context"
)

// Rows is a pull based iterator; Next returns io.EOF after the last row. A Rows is not
// restartable.
type Rows interface {
	Columns() []string
	Close() error
	Next(ctx context.Context, dest []Value) error
	Delete(ctx context.Context) error
	Update(ctx context.Context, updates []ColumnUpdate) error
}
