package execute

import (
	"context"
	"fmt"
	"io"

	"github.com/leftmike/pax/sql"
)

// Side is the input of a hash join which is read into memory.
type Side int

const (
	BuildRight Side = iota
	BuildLeft
)

func (s Side) String() string {
	if s == BuildLeft {
		return "left"
	}
	return "right"
}

type hashTable struct {
	keys []int
	rows map[string][][]sql.Value
	cnt  int
	buf  []byte
}

func newHashTable(keys []int) *hashTable {
	return &hashTable{
		keys: keys,
		rows: map[string][][]sql.Value{},
	}
}

// add adds row to the table, unless its key contains a NULL.
func (ht *hashTable) add(row []sql.Value) {
	var ok bool
	ht.buf, ok = appendKey(ht.buf[:0], row, ht.keys)
	if !ok {
		return
	}
	ht.rows[string(ht.buf)] = append(ht.rows[string(ht.buf)], row)
	ht.cnt += 1
}

func (ht *hashTable) lookup(row []sql.Value, keys []int) [][]sql.Value {
	var ok bool
	ht.buf, ok = appendKey(ht.buf[:0], row, keys)
	if !ok {
		return nil
	}
	return ht.rows[string(ht.buf)]
}

// prober joins rows from a probe source with the rows of a hash table.
type prober struct {
	ht        *hashTable
	probe     rowSource
	probeKeys []int
	build     Side
	row       []sql.Value
	matches   [][]sql.Value
	mdx       int
}

// next copies the next joined row to dest; it returns io.EOF when the probe source is done.
func (p *prober) next(ctx context.Context, dest []sql.Value) error {
	for p.mdx == len(p.matches) {
		row, err := p.probe.next(ctx)
		if err != nil {
			return err
		}
		p.row = row
		p.matches = p.ht.lookup(row, p.probeKeys)
		p.mdx = 0
	}

	match := p.matches[p.mdx]
	p.mdx += 1
	if p.build == BuildRight {
		n := copy(dest, p.row)
		copy(dest[n:], match)
	} else {
		n := copy(dest, match)
		copy(dest[n:], p.row)
	}
	return nil
}

type HashJoinRows struct {
	left, right  sql.Rows
	lkeys, rkeys []int
	build        Side
	columns      []string
	p            *prober
	done         bool
}

// HashJoin joins left and right by reading all of the build side into a hash table, and
// then probing it with each row of the other side. Each output row is the columns of left
// followed by the columns of right.
func HashJoin(left, right sql.Rows, lkeys, rkeys []int, build Side) (*HashJoinRows, error) {
	err := checkJoinKeys("hash join", left, right, lkeys, rkeys)
	if err != nil {
		return nil, err
	}
	return &HashJoinRows{
		left:    left,
		right:   right,
		lkeys:   lkeys,
		rkeys:   rkeys,
		build:   build,
		columns: joinColumns(left, right),
	}, nil
}

func (hj *HashJoinRows) Columns() []string {
	return hj.columns
}

func (hj *HashJoinRows) Close() error {
	hj.done = true
	hj.p = nil
	err := hj.left.Close()
	rerr := hj.right.Close()
	if err == nil {
		err = rerr
	}
	return err
}

func (hj *HashJoinRows) start(ctx context.Context) error {
	buildRows, buildKeys, probeRows, probeKeys := hj.left, hj.lkeys, hj.right, hj.rkeys
	if hj.build == BuildRight {
		buildRows, buildKeys, probeRows, probeKeys = hj.right, hj.rkeys, hj.left, hj.lkeys
	}

	ht := newHashTable(buildKeys)
	src := sourceOf(buildRows)
	for {
		row, err := src.next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		ht.add(row)
	}

	hj.p = &prober{
		ht:        ht,
		probe:     sourceOf(probeRows),
		probeKeys: probeKeys,
		build:     hj.build,
	}
	return nil
}

func (hj *HashJoinRows) Next(ctx context.Context, dest []sql.Value) error {
	if hj.done {
		return io.EOF
	}
	if hj.p == nil {
		err := hj.start(ctx)
		if err != nil {
			return err
		}
	}

	err := hj.p.next(ctx, dest)
	if err == io.EOF {
		hj.done = true
	}
	return err
}

func (_ *HashJoinRows) Delete(ctx context.Context) error {
	return fmt.Errorf("execute: join rows may not be deleted")
}

func (_ *HashJoinRows) Update(ctx context.Context, updates []sql.ColumnUpdate) error {
	return fmt.Errorf("execute: join rows may not be updated")
}
