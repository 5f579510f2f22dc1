package index_test

import (
	"testing"

	"github.com/leftmike/pax/index"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/testutil"
	"github.com/leftmike/pax/tile"
)

func ptr(s uint32) tile.ItemPointer {
	return tile.ItemPointer{Group: 1, Slot: s}
}

func TestRange(t *testing.T) {
	idx, err := index.New("idx", []int{1, 0})
	if err != nil {
		t.Fatal(err)
	}

	rows := [][]sql.Value{
		{sql.Int64Value(1), sql.StringValue("b")},
		{sql.Int64Value(2), sql.StringValue("a")},
		{sql.Int64Value(3), sql.StringValue("c")},
		{sql.Int64Value(4), sql.StringValue("b")},
		{sql.Int64Value(5), nil},
	}
	for s, row := range rows {
		idx.Insert(idx.Key(row), ptr(uint32(s)))
	}
	// Duplicate entries are ignored.
	idx.Insert(idx.Key(rows[0]), ptr(0))
	if idx.Len() != len(rows) {
		t.Errorf("Len() got %d want %d", idx.Len(), len(rows))
	}

	cases := []struct {
		fln    testutil.FileLineNumber
		lo, hi []sql.Value
		ptrs   []tile.ItemPointer
	}{
		{fln: fln(), ptrs: []tile.ItemPointer{ptr(4), ptr(1), ptr(0), ptr(3), ptr(2)}},
		{
			fln:  fln(),
			lo:   []sql.Value{sql.StringValue("b")},
			hi:   []sql.Value{sql.StringValue("b")},
			ptrs: []tile.ItemPointer{ptr(0), ptr(3)},
		},
		{
			fln:  fln(),
			lo:   []sql.Value{sql.StringValue("b"), sql.Int64Value(2)},
			hi:   []sql.Value{sql.StringValue("b"), sql.Int64Value(4)},
			ptrs: []tile.ItemPointer{ptr(3)},
		},
		{
			fln:  fln(),
			lo:   []sql.Value{sql.StringValue("a")},
			hi:   []sql.Value{sql.StringValue("b")},
			ptrs: []tile.ItemPointer{ptr(1), ptr(0), ptr(3)},
		},
		{
			fln:  fln(),
			lo:   []sql.Value{sql.StringValue("bb")},
			ptrs: []tile.ItemPointer{ptr(2)},
		},
		{
			fln:  fln(),
			hi:   []sql.Value{sql.StringValue("a")},
			ptrs: []tile.ItemPointer{ptr(4), ptr(1)},
		},
		{
			fln: fln(),
			lo:  []sql.Value{sql.StringValue("d")},
		},
	}

	for _, c := range cases {
		ptrs := idx.Range(c.lo, c.hi)
		if !testutil.DeepEqual(ptrs, c.ptrs) {
			t.Errorf("%sRange(%s, %s) got %v want %v", c.fln, sql.FormatRow(c.lo),
				sql.FormatRow(c.hi), ptrs, c.ptrs)
		}
	}

	if !idx.Delete(idx.Key(rows[3]), ptr(3)) {
		t.Errorf("Delete(%s) got false", ptr(3))
	}
	if idx.Delete(idx.Key(rows[3]), ptr(3)) {
		t.Errorf("Delete(%s) twice got true", ptr(3))
	}
	p := index.Equal(idx, sql.StringValue("b"))
	if ptrs := p.Candidates(); !testutil.DeepEqual(ptrs, []tile.ItemPointer{ptr(0)}) {
		t.Errorf("%s.Candidates() got %v want [%s]", p, ptrs, ptr(0))
	}
	if !p.Matches(rows[0]) || p.Matches(rows[1]) {
		t.Errorf("%s.Matches() failed", p)
	}
}

func fln() testutil.FileLineNumber {
	return testutil.MakeFileLineNumber()
}

func TestNew(t *testing.T) {
	_, err := index.New("idx", nil)
	if err == nil {
		t.Error("New() with no columns did not fail")
	}
}
