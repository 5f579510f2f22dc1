package spill_test

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/leftmike/pax/spill"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/testutil"
)

func testArea(t *testing.T, kv spill.KV, comp spill.Compression) {
	t.Helper()

	a1 := spill.NewArea(kv, comp)
	a2 := spill.NewArea(kv, comp)
	if a1.ID() == a2.ID() {
		t.Errorf("NewArea() got duplicate id %s", a1.ID())
	}

	p1 := a1.NewPartition()
	p2 := a1.NewPartition()
	p3 := a2.NewPartition()

	var want1, want2 [][]sql.Value
	for i := 0; i < 1000; i += 1 {
		row := []sql.Value{sql.Int64Value(i), sql.StringValue("row"), nil}
		var err error
		if i%3 == 0 {
			err = p2.Append(row)
			want2 = append(want2, row)
		} else {
			err = p1.Append(row)
			want1 = append(want1, row)
		}
		if err != nil {
			t.Fatalf("Append() failed with %s", err)
		}
	}
	err := p3.Append([]sql.Value{sql.BoolValue(true)})
	if err != nil {
		t.Fatal(err)
	}

	if p1.Len() != int64(len(want1)) {
		t.Errorf("Len() got %d want %d", p1.Len(), len(want1))
	}

	readAll := func(p *spill.Partition) [][]sql.Value {
		r, err := p.Reader()
		if err != nil {
			t.Fatalf("Reader() failed with %s", err)
		}
		var rows [][]sql.Value
		for {
			row, err := r.Next()
			if err == io.EOF {
				break
			} else if err != nil {
				t.Fatalf("Next() failed with %s", err)
			}
			rows = append(rows, row)
		}
		return rows
	}

	var s string
	if !testutil.DeepEqual(readAll(p1), want1, &s) {
		t.Errorf("partition 1 not equal: %s", s)
	}
	if !testutil.DeepEqual(readAll(p2), want2, &s) {
		t.Errorf("partition 2 not equal: %s", s)
	}
	// Partitions may be read again.
	if !testutil.DeepEqual(readAll(p2), want2, &s) {
		t.Errorf("partition 2 reread not equal: %s", s)
	}

	err = a1.Drop()
	if err != nil {
		t.Fatalf("Drop() failed with %s", err)
	}
	if rows := readAll(p1); len(rows) != 0 {
		t.Errorf("partition 1 after Drop() got %d rows", len(rows))
	}
	if rows := readAll(p3); len(rows) != 1 {
		t.Errorf("partition of other area after Drop() got %d rows want 1", len(rows))
	}
	a2.Drop()
}

func testKV(t *testing.T, kv spill.KV) {
	t.Helper()

	var batch []spill.Entry
	for _, p := range []string{"a", "b", "ba"} {
		for i := 0; i < 20; i += 1 {
			batch = append(batch, spill.Entry{
				Key: []byte(fmt.Sprintf("%s/%02d", p, i)),
				Val: []byte(fmt.Sprintf("%s-%d", p, i)),
			})
		}
	}
	err := kv.Write(batch)
	if err != nil {
		t.Fatalf("Write() failed with %s", err)
	}

	scan := func(prefix, start string, limit int) []string {
		var keys []string
		cnt, err := kv.Scan([]byte(prefix), []byte(start), limit,
			func(key, val []byte) error {
				keys = append(keys, string(key))
				return nil
			})
		if err != nil {
			t.Fatalf("Scan(%s) failed with %s", prefix, err)
		}
		if cnt != len(keys) {
			t.Errorf("Scan(%s) got %d want %d", prefix, cnt, len(keys))
		}
		return keys
	}

	keys := scan("b/", "", 100)
	if len(keys) != 20 || keys[0] != "b/00" || keys[19] != "b/19" {
		t.Errorf("Scan(b/) got %v", keys)
	}
	keys = scan("b/", "b/15", 3)
	if !testutil.DeepEqual(keys, []string{"b/15", "b/16", "b/17"}) {
		t.Errorf("Scan(b/, b/15, 3) got %v", keys)
	}
	keys = scan("a/", "a/18", 10)
	if !testutil.DeepEqual(keys, []string{"a/18", "a/19"}) {
		t.Errorf("Scan(a/, a/18, 10) got %v", keys)
	}
	if keys = scan("c", "", 10); len(keys) != 0 {
		t.Errorf("Scan(c) got %v", keys)
	}

	err = kv.Write([]spill.Entry{{Key: []byte("a/05"), Val: []byte("replaced")}})
	if err != nil {
		t.Fatalf("Write() failed with %s", err)
	}
	var val string
	kv.Scan([]byte("a/05"), nil, 1,
		func(key, v []byte) error {
			val = string(v)
			return nil
		})
	if val != "replaced" {
		t.Errorf("Scan(a/05) got %s want replaced", val)
	}

	err = kv.DeletePrefix([]byte("b"))
	if err != nil {
		t.Fatalf("DeletePrefix(b) failed with %s", err)
	}
	if keys = scan("b", "", 100); len(keys) != 0 {
		t.Errorf("Scan(b) after DeletePrefix(b) got %d keys", len(keys))
	}
	if keys = scan("a/", "", 100); len(keys) != 20 {
		t.Errorf("Scan(a/) after DeletePrefix(b) got %d keys want 20", len(keys))
	}
	err = kv.DeletePrefix([]byte("a/"))
	if err != nil {
		t.Fatalf("DeletePrefix(a/) failed with %s", err)
	}
}

func TestBTreeArea(t *testing.T) {
	kv, err := spill.Open("memory", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	testKV(t, kv)
	testArea(t, kv, spill.NoCompression)
	testArea(t, kv, spill.SnappyCompression)
}

func TestBBoltArea(t *testing.T) {
	dataDir := filepath.Join("testdata", "bbolt")
	err := testutil.CleanDir(dataDir, []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}

	kv, err := spill.Open("bbolt", dataDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	testKV(t, kv)
	testArea(t, kv, spill.ZstdCompression)
}

func TestBadgerArea(t *testing.T) {
	dataDir := filepath.Join("testdata", "badger_area")
	err := testutil.CleanDir(dataDir, []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}

	kv, err := spill.Open("badger", dataDir,
		testutil.SetupLogger(filepath.Join("testdata", "badger_area.log")))
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	testKV(t, kv)
	testArea(t, kv, spill.SnappyCompression)
}

func TestPebbleArea(t *testing.T) {
	dataDir := filepath.Join("testdata", "pebble_area")
	err := testutil.CleanDir(dataDir, []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}

	kv, err := spill.Open("pebble", dataDir,
		testutil.SetupLogger(filepath.Join("testdata", "pebble_area.log")))
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	testKV(t, kv)
	testArea(t, kv, spill.NoCompression)
}

func TestOpen(t *testing.T) {
	_, err := spill.Open("leveldb", "testdata", nil)
	if err == nil {
		t.Error("Open(leveldb) did not fail")
	}
}
