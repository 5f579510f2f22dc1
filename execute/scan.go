package execute

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/leftmike/pax/index"
	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/table"
	"github.com/leftmike/pax/tile"
)

var errNoCurrentRow = errors.New("execute: no current row")

type candidates interface {
	next() (*tile.Group, int, bool)
}

// Scan returns the versions of the rows of a table visible to a transaction. The snapshot
// of the transaction is taken when the scan is opened, so the scan does not see rows written
// through it.
type Scan struct {
	tbl     *table.Table
	tx      *mvcc.Transaction
	snap    mvcc.Snapshot
	pred    Predicate
	src     candidates
	recheck func(row []sql.Value) bool
	indexes []*index.Index
	row     []sql.Value
	curRow  []sql.Value
	cur     tile.ItemPointer
	closed  bool
}

func newScan(tbl *table.Table, tx *mvcc.Transaction, pred Predicate, src candidates) (*Scan,
	error) {

	if tx.State() != mvcc.Active {
		return nil, fmt.Errorf("execute: %s: %w", tx, mvcc.ErrInvalidTransactionState)
	}
	n := tbl.Schema().ColumnCount()
	return &Scan{
		tbl:    tbl,
		tx:     tx,
		snap:   tx.Snapshot(),
		pred:   pred,
		src:    src,
		row:    make([]sql.Value, n),
		curRow: make([]sql.Value, n),
		cur:    tile.InvalidItemPointer,
	}, nil
}

type seqCandidates struct {
	groups []*tile.Group
	gdx    int
	slot   int
}

func (sc *seqCandidates) next() (*tile.Group, int, bool) {
	for sc.gdx < len(sc.groups) {
		g := sc.groups[sc.gdx]
		slot := g.NextOccupied(sc.slot)
		if slot >= 0 {
			sc.slot = slot + 1
			return g, slot, true
		}
		sc.gdx += 1
		sc.slot = 0
	}
	return nil, 0, false
}

// SeqScan scans every occupied slot of every tile group of tbl, in physical order. Tile
// groups added after the scan is opened are not scanned.
func SeqScan(ctx context.Context, tbl *table.Table, tx *mvcc.Transaction,
	pred Predicate) (*Scan, error) {

	return newScan(tbl, tx, pred, &seqCandidates{groups: tbl.TileGroups()})
}

type pointerCandidates struct {
	tbl  *table.Table
	ptrs []tile.ItemPointer
	idx  int
}

func (pc *pointerCandidates) next() (*tile.Group, int, bool) {
	for pc.idx < len(pc.ptrs) {
		ip := pc.ptrs[pc.idx]
		pc.idx += 1
		g, slot, ok := pc.tbl.Resolve(ip)
		if ok {
			return g, slot, true
		}
	}
	return nil, 0, false
}

// IndexScan scans the rows of tbl with keys of idx in [lo, hi], in key order. Index entries
// are not versioned: the key of each candidate is checked again after it is fetched.
func IndexScan(ctx context.Context, tbl *table.Table, tx *mvcc.Transaction, idx *index.Index,
	lo, hi []sql.Value, pred Predicate) (*Scan, error) {

	seen := map[tile.ItemPointer]struct{}{}
	var ptrs []tile.ItemPointer
	for _, ip := range idx.Range(lo, hi) {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		ptrs = append(ptrs, ip)
	}

	s, err := newScan(tbl, tx, pred, &pointerCandidates{tbl: tbl, ptrs: ptrs})
	if err != nil {
		return nil, err
	}
	s.recheck = func(row []sql.Value) bool {
		return idx.KeyMatches(row, lo, hi)
	}
	return s, nil
}

type bitmapCandidates struct {
	tbl  *table.Table
	iter roaring64.IntIterable64
}

func (bc *bitmapCandidates) next() (*tile.Group, int, bool) {
	for bc.iter.HasNext() {
		g, slot, ok := bc.tbl.Resolve(tile.ItemPointerFromUint64(bc.iter.Next()))
		if ok {
			return g, slot, true
		}
	}
	return nil, 0, false
}

// BitmapHeapScan collects the candidates of one or more probes into a bitmap and scans them
// in physical order. Unless recheck is false, a row must match at least one of the probes.
func BitmapHeapScan(ctx context.Context, tbl *table.Table, tx *mvcc.Transaction,
	probes []index.Probe, recheck bool, pred Predicate) (*Scan, error) {

	bm := roaring64.New()
	for _, p := range probes {
		for _, ip := range p.Candidates() {
			bm.Add(ip.Uint64())
		}
	}

	s, err := newScan(tbl, tx, pred, &bitmapCandidates{tbl: tbl, iter: bm.Iterator()})
	if err != nil {
		return nil, err
	}
	if recheck {
		s.recheck = func(row []sql.Value) bool {
			for _, p := range probes {
				if p.Matches(row) {
					return true
				}
			}
			return false
		}
	}
	return s, nil
}

// Maintain adds entries to indexes for versions written by Update.
func (s *Scan) Maintain(indexes ...*index.Index) *Scan {
	s.indexes = append(s.indexes, indexes...)
	return s
}

func (s *Scan) Columns() []string {
	return s.tbl.Schema().ColumnNames()
}

func (s *Scan) Close() error {
	s.closed = true
	s.cur = tile.InvalidItemPointer
	return nil
}

// Current returns the item pointer of the version most recently returned by Next.
func (s *Scan) Current() tile.ItemPointer {
	return s.cur
}

func (s *Scan) Next(ctx context.Context, dest []sql.Value) error {
	if s.closed {
		return io.EOF
	}

	for {
		err := ctx.Err()
		if err != nil {
			return err
		}

		g, slot, ok := s.src.next()
		if !ok {
			s.cur = tile.InvalidItemPointer
			return io.EOF
		}
		if !s.tbl.FetchSnapshot(s.tx, s.snap, g, slot, s.row) {
			continue
		}
		if s.recheck != nil && !s.recheck(s.row) {
			continue
		}
		if s.pred != nil {
			ok, err := s.pred(s.row)
			if err != nil {
				return err
			} else if !ok {
				continue
			}
		}

		copy(s.curRow, s.row)
		copy(dest, s.row)
		s.cur = g.Pointer(slot)
		return nil
	}
}

func (s *Scan) Delete(ctx context.Context) error {
	if !s.cur.IsValid() {
		return errNoCurrentRow
	}
	err := s.tbl.DeleteTuple(s.tx, s.cur)
	if err != nil {
		return err
	}
	s.cur = tile.InvalidItemPointer
	return nil
}

func (s *Scan) Update(ctx context.Context, updates []sql.ColumnUpdate) error {
	if !s.cur.IsValid() {
		return errNoCurrentRow
	}

	row := append([]sql.Value(nil), s.curRow...)
	for _, upd := range updates {
		if upd.Index < 0 || upd.Index >= len(row) {
			return fmt.Errorf("execute: update: column %d out of range", upd.Index)
		}
		row[upd.Index] = upd.Value
	}
	vals, err := s.tbl.Schema().Check(row)
	if err != nil {
		return fmt.Errorf("execute: %s: %w", s.tbl.Name(), err)
	}

	ip, err := s.tbl.UpdateTuple(s.tx, s.cur, vals)
	if err != nil {
		return err
	}
	addIndexEntries(s.tx, s.indexes, vals, ip)
	s.cur = tile.InvalidItemPointer
	return nil
}
