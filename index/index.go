package index

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/tile"
)

// Index is an ordered secondary index mapping keys, built from columns of a table's rows, to
// the item pointers of row versions. Entries are not versioned: readers must check the
// visibility of each candidate, and recheck its key.
type Index struct {
	name  string
	cols  []int
	mutex sync.RWMutex
	tree  *btree.BTree
}

type entry struct {
	key []sql.Value
	ip  tile.ItemPointer
}

// compareKeys compares the common prefix of k1 and k2; if it is equal, the shorter key is
// first.
func compareKeys(k1, k2 []sql.Value) int {
	for idx := 0; idx < len(k1) && idx < len(k2); idx += 1 {
		cmp := sql.Compare(k1[idx], k2[idx])
		if cmp != 0 {
			return cmp
		}
	}
	if len(k1) < len(k2) {
		return -1
	} else if len(k1) > len(k2) {
		return 1
	}
	return 0
}

func (e entry) Less(item btree.Item) bool {
	e2 := item.(entry)
	cmp := compareKeys(e.key, e2.key)
	if cmp != 0 {
		return cmp < 0
	}
	return e.ip.Uint64() < e2.ip.Uint64()
}

func New(name string, cols []int) (*Index, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("index: %s: must have at least one column", name)
	}
	return &Index{
		name: name,
		cols: append([]int(nil), cols...),
		tree: btree.New(16),
	}, nil
}

func (idx *Index) Name() string {
	return idx.name
}

// Columns returns the positions, in the table's rows, of the key columns.
func (idx *Index) Columns() []int {
	return idx.cols
}

// Key returns the key of row.
func (idx *Index) Key(row []sql.Value) []sql.Value {
	key := make([]sql.Value, len(idx.cols))
	for kdx, col := range idx.cols {
		key[kdx] = row[col]
	}
	return key
}

// KeyMatches returns true if the key of row is in [lo, hi]; a nil bound is unbounded, and a
// short bound only applies to a prefix of the key.
func (idx *Index) KeyMatches(row []sql.Value, lo, hi []sql.Value) bool {
	key := idx.Key(row)
	if lo != nil && compareKeys(key[:min(len(lo), len(key))], lo) < 0 {
		return false
	}
	if hi != nil && compareKeys(key[:min(len(hi), len(key))], hi) > 0 {
		return false
	}
	return true
}

func (idx *Index) Insert(key []sql.Value, ip tile.ItemPointer) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.tree.ReplaceOrInsert(entry{key: key, ip: ip})
}

func (idx *Index) Delete(key []sql.Value, ip tile.ItemPointer) bool {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	return idx.tree.Delete(entry{key: key, ip: ip}) != nil
}

func (idx *Index) Len() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return idx.tree.Len()
}

// Range returns, in key order, the item pointers of the entries with keys in [lo, hi].
func (idx *Index) Range(lo, hi []sql.Value) []tile.ItemPointer {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	var ptrs []tile.ItemPointer
	iter := func(item btree.Item) bool {
		e := item.(entry)
		if hi != nil && compareKeys(e.key[:min(len(hi), len(e.key))], hi) > 0 {
			return false
		}
		ptrs = append(ptrs, e.ip)
		return true
	}

	if lo == nil {
		idx.tree.Ascend(iter)
	} else {
		idx.tree.AscendGreaterOrEqual(entry{key: lo}, iter)
	}
	return ptrs
}

// Probe is a range of one index.
type Probe struct {
	Index  *Index
	Lo, Hi []sql.Value
}

func Equal(idx *Index, key ...sql.Value) Probe {
	return Probe{Index: idx, Lo: key, Hi: key}
}

func (p Probe) Candidates() []tile.ItemPointer {
	return p.Index.Range(p.Lo, p.Hi)
}

// Matches rechecks the key of row against the probe.
func (p Probe) Matches(row []sql.Value) bool {
	return p.Index.KeyMatches(row, p.Lo, p.Hi)
}

func (p Probe) String() string {
	return fmt.Sprintf("%s[%s, %s]", p.Index.name, sql.FormatRow(p.Lo), sql.FormatRow(p.Hi))
}
