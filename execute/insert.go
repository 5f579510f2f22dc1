package execute

import (
	"context"
	"fmt"
	"io"

	"github.com/leftmike/pax/index"
	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/table"
	"github.com/leftmike/pax/tile"
)

func addIndexEntries(tx *mvcc.Transaction, indexes []*index.Index, row []sql.Value,
	ip tile.ItemPointer) {

	for _, idx := range indexes {
		idx := idx
		key := idx.Key(row)
		idx.Insert(key, ip)
		tx.OnAbort(func() {
			idx.Delete(key, ip)
		})
	}
}

// Insert inserts each of rows into tbl as a version owned by tx and adds an entry for it to
// each of indexes; the entries are removed if tx aborts. Insert returns the number of rows
// inserted.
func Insert(ctx context.Context, tbl *table.Table, tx *mvcc.Transaction, rows sql.Rows,
	indexes ...*index.Index) (int64, error) {

	defer rows.Close()

	n := len(rows.Columns())
	if n != tbl.Schema().ColumnCount() {
		return 0, fmt.Errorf("execute: insert into %s: %w: got %d columns want %d",
			tbl.Name(), sql.ErrSchemaMismatch, n, tbl.Schema().ColumnCount())
	}

	var cnt int64
	for {
		row := make([]sql.Value, n)
		err := rows.Next(ctx, row)
		if err == io.EOF {
			break
		} else if err != nil {
			return cnt, err
		}

		vals, err := tbl.Schema().Check(row)
		if err != nil {
			return cnt, fmt.Errorf("execute: insert into %s: %w", tbl.Name(), err)
		}
		ip, err := tbl.InsertTuple(tx, vals)
		if err != nil {
			return cnt, err
		}
		addIndexEntries(tx, indexes, vals, ip)
		cnt += 1
	}

	return cnt, nil
}
