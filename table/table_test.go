package table_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leftmike/pax/flags"
	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/table"
	"github.com/leftmike/pax/testutil"
	"github.com/leftmike/pax/tile"
)

func newTable(t *testing.T, m *mvcc.Manager, layout tile.Layout, capacity int) *table.Table {
	t.Helper()

	schema, err := sql.NewSchema(
		sql.Column{Name: "id", Type: sql.Int64ColType},
		sql.Column{Name: "name", Type: sql.VarcharColType(16)},
		sql.Column{Name: "score", Type: sql.ColumnType{Type: sql.FloatType, Size: 8}},
	)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := table.New("players", schema, layout, capacity, m)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func newManager() *mvcc.Manager {
	return mvcc.NewManager(tile.NewRegistry(), flags.Default())
}

func row(id int64, name string, score sql.Value) []sql.Value {
	return []sql.Value{sql.Int64Value(id), sql.StringValue(name), score}
}

func TestInsertFetch(t *testing.T) {
	for _, layout := range []tile.Layout{tile.RowLayout(3), tile.ColumnLayout(3),
		tile.HybridLayout(3)} {

		m := newManager()
		tbl := newTable(t, m, layout, 4)

		tx := m.Begin()
		var ptrs []tile.ItemPointer
		for id := int64(0); id < 10; id += 1 {
			ip, err := tbl.InsertTuple(tx, row(id, "player", sql.Float64Value(float64(id)/2)))
			if err != nil {
				t.Fatalf("InsertTuple(%d) failed with %s", id, err)
			}
			ptrs = append(ptrs, ip)
		}
		err := m.Commit(context.Background(), tx)
		if err != nil {
			t.Fatal(err)
		}

		if tbl.TileGroupCount() != 3 {
			t.Errorf("%s: TileGroupCount() got %d want 3", layout, tbl.TileGroupCount())
		}

		tx = m.Begin()
		for id, ip := range ptrs {
			dest := make([]sql.Value, 3)
			ok, err := tbl.Fetch(tx, ip, dest)
			if err != nil || !ok {
				t.Errorf("Fetch(%s) got %v, %v", ip, ok, err)
				continue
			}
			var s string
			if !testutil.DeepEqual(dest,
				row(int64(id), "player", sql.Float64Value(float64(id)/2)), &s) {

				t.Errorf("Fetch(%s) not equal: %s", ip, s)
			}
		}
	}
}

func TestSchemaMismatch(t *testing.T) {
	m := newManager()
	tbl := newTable(t, m, tile.RowLayout(3), 4)

	tx := m.Begin()
	rows := [][]sql.Value{
		{sql.Int64Value(1), sql.StringValue("one")},
		{sql.StringValue("one"), sql.StringValue("one"), nil},
		{sql.Int64Value(1), sql.StringValue("a name much too long"), nil},
		{nil, sql.StringValue("one"), nil},
	}
	for _, r := range rows {
		_, err := tbl.InsertTuple(tx, r)
		if !errors.Is(err, sql.ErrSchemaMismatch) {
			t.Errorf("InsertTuple(%s) got %v want %s", sql.FormatRow(r), err,
				sql.ErrSchemaMismatch)
		}
	}

	if tbl.TileGroupCount() != 0 {
		t.Errorf("TileGroupCount() after rejected inserts got %d want 0", tbl.TileGroupCount())
	}
	if tx.WriteCount() != 0 {
		t.Errorf("WriteCount() after rejected inserts got %d want 0", tx.WriteCount())
	}
}

func TestUpdateDelete(t *testing.T) {
	m := newManager()
	tbl := newTable(t, m, tile.ColumnLayout(3), 8)

	tx := m.Begin()
	ip, err := tbl.InsertTuple(tx, row(1, "one", nil))
	if err != nil {
		t.Fatal(err)
	}
	err = m.Commit(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}

	old := m.Begin()

	tx = m.Begin()
	ip2, err := tbl.UpdateTuple(tx, ip, row(1, "uno", sql.Float64Value(1)))
	if err != nil {
		t.Fatalf("UpdateTuple(%s) failed with %s", ip, err)
	}
	_, err = tbl.UpdateTuple(tx, ip2, []sql.Value{sql.Int64Value(1)})
	if !errors.Is(err, sql.ErrSchemaMismatch) {
		t.Errorf("UpdateTuple() got %v want %s", err, sql.ErrSchemaMismatch)
	}
	err = m.Commit(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}

	dest := make([]sql.Value, 3)
	ok, err := tbl.Fetch(old, ip, dest)
	if err != nil || !ok || dest[1] != sql.StringValue("one") {
		t.Errorf("Fetch(%s) of old version got %v, %v, %v", ip, dest, ok, err)
	}
	ok, err = tbl.Fetch(old, ip2, dest)
	if err != nil || ok {
		t.Errorf("Fetch(%s) of new version by old transaction got %v, %v", ip2, ok, err)
	}

	tx = m.Begin()
	ok, err = tbl.Fetch(tx, ip2, dest)
	if err != nil || !ok || dest[1] != sql.StringValue("uno") {
		t.Errorf("Fetch(%s) of new version got %v, %v, %v", ip2, dest, ok, err)
	}
	err = tbl.DeleteTuple(tx, ip2)
	if err != nil {
		t.Fatalf("DeleteTuple(%s) failed with %s", ip2, err)
	}
	ok, err = tbl.Fetch(tx, ip2, dest)
	if err != nil || ok {
		t.Errorf("Fetch(%s) of deleted version got %v, %v", ip2, ok, err)
	}
	err = m.Commit(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}

	err = tbl.DeleteTuple(tx, ip2)
	if !errors.Is(err, mvcc.ErrInvalidTransactionState) {
		t.Errorf("DeleteTuple() of committed transaction got %v want %s", err,
			mvcc.ErrInvalidTransactionState)
	}
	_, err = tbl.Fetch(tx, ip2, dest)
	if !errors.Is(err, mvcc.ErrInvalidTransactionState) {
		t.Errorf("Fetch() of committed transaction got %v want %s", err,
			mvcc.ErrInvalidTransactionState)
	}
}

func TestUnknownPointer(t *testing.T) {
	m := newManager()
	tbl1 := newTable(t, m, tile.RowLayout(3), 8)
	tbl2 := newTable(t, m, tile.RowLayout(3), 8)

	tx := m.Begin()
	ip, err := tbl1.InsertTuple(tx, row(1, "one", nil))
	if err != nil {
		t.Fatal(err)
	}

	dest := make([]sql.Value, 3)
	ok, err := tbl2.Fetch(tx, ip, dest)
	if err != nil || ok {
		t.Errorf("Fetch(%s) from other table got %v, %v", ip, ok, err)
	}
	err = tbl2.DeleteTuple(tx, ip)
	if err == nil {
		t.Errorf("DeleteTuple(%s) from other table did not fail", ip)
	}
}

func TestConcurrentInsert(t *testing.T) {
	m := newManager()
	tbl := newTable(t, m, tile.HybridLayout(3), 16)

	var wg sync.WaitGroup
	for n := 0; n < 8; n += 1 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			for cnt := 0; cnt < 50; cnt += 1 {
				tx := m.Begin()
				_, err := tbl.InsertTuple(tx, row(int64(n*1000+cnt), "player", nil))
				if err != nil {
					t.Errorf("InsertTuple() failed with %s", err)
					return
				}
				if cnt%5 == 0 {
					err = m.Abort(tx)
				} else {
					err = m.Commit(context.Background(), tx)
				}
				if err != nil {
					t.Errorf("Commit() or Abort() failed with %s", err)
				}
			}
		}(n)
	}
	wg.Wait()

	var active int
	for _, g := range tbl.TileGroups() {
		active += g.ActiveSlots()
	}
	if active != 8*40 {
		t.Errorf("ActiveSlots() got %d want %d", active, 8*40)
	}
	if tbl.TileGroupCount()*16 < 8*40 {
		t.Errorf("TileGroupCount() got %d; too few groups", tbl.TileGroupCount())
	}
}
