package table

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/pax/mvcc"
	"github.com/leftmike/pax/sql"
	"github.com/leftmike/pax/tile"
)

// Table is a data table: an append-only list of tile groups sharing a schema and a layout.
type Table struct {
	name     string
	schema   *sql.Schema
	layout   tile.Layout
	capacity int
	m        *mvcc.Manager

	growMutex sync.Mutex
	groups    atomic.Pointer[groupList]
}

// groupList is immutable once published.
type groupList struct {
	groups []*tile.Group
	ids    map[tile.GroupID]struct{}
}

func New(name string, schema *sql.Schema, layout tile.Layout, capacity int,
	m *mvcc.Manager) (*Table, error) {

	if capacity <= 0 {
		return nil, fmt.Errorf("table: %s: tile group capacity must be positive: %d", name,
			capacity)
	}
	err := layout.Validate(schema.ColumnCount())
	if err != nil {
		return nil, fmt.Errorf("table: %s: %s", name, err)
	}

	tbl := &Table{
		name:     name,
		schema:   schema,
		layout:   layout,
		capacity: capacity,
		m:        m,
	}
	tbl.groups.Store(&groupList{ids: map[tile.GroupID]struct{}{}})
	return tbl, nil
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) Schema() *sql.Schema {
	return tbl.schema
}

func (tbl *Table) Layout() tile.Layout {
	return tbl.layout
}

func (tbl *Table) Manager() *mvcc.Manager {
	return tbl.m
}

// TileGroups returns the tile groups of the table at the time of the call; groups appended
// later are not included.
func (tbl *Table) TileGroups() []*tile.Group {
	return tbl.groups.Load().groups
}

func (tbl *Table) TileGroupCount() int {
	return len(tbl.TileGroups())
}

func (tbl *Table) TileGroup(idx int) *tile.Group {
	return tbl.TileGroups()[idx]
}

// Resolve returns the tile group and slot of ip, which must be in this table.
func (tbl *Table) Resolve(ip tile.ItemPointer) (*tile.Group, int, bool) {
	g, slot, ok := tbl.m.Registry().Resolve(ip)
	if !ok {
		return nil, 0, false
	}
	if _, ok := tbl.groups.Load().ids[g.ID()]; !ok {
		return nil, 0, false
	}
	return g, slot, true
}

func (tbl *Table) checkActive(tx *mvcc.Transaction) error {
	if tx.State() != mvcc.Active {
		return fmt.Errorf("table: %s: %s is %s: %w", tbl.name, tx, tx.State(),
			mvcc.ErrInvalidTransactionState)
	}
	return nil
}

// claim returns a free slot, searching from the most recently appended tile group backward,
// and appending a new tile group if none has room.
func (tbl *Table) claim() (*tile.Group, int, error) {
	groups := tbl.TileGroups()
	for idx := len(groups) - 1; idx >= 0; idx -= 1 {
		slot, err := groups[idx].Insert(0)
		if err == nil {
			return groups[idx], slot, nil
		} else if !errors.Is(err, tile.ErrCapacityExceeded) {
			return nil, 0, err
		}
	}

	tbl.growMutex.Lock()
	defer tbl.growMutex.Unlock()

	// Another insert may have grown the table while this one was searching.
	cur := tbl.TileGroups()
	for idx := len(cur) - 1; idx >= len(groups); idx -= 1 {
		slot, err := cur[idx].Insert(0)
		if err == nil {
			return cur[idx], slot, nil
		}
	}

	g, err := tbl.m.Registry().NewGroup(tbl.schema.ColumnTypes(), tbl.layout, tbl.capacity)
	if err != nil {
		return nil, 0, fmt.Errorf("table: %s: %s", tbl.name, err)
	}
	slot, err := g.Insert(0)
	if err != nil {
		return nil, 0, err
	}

	next := &groupList{
		groups: make([]*tile.Group, len(cur), len(cur)+1),
		ids:    map[tile.GroupID]struct{}{g.ID(): {}},
	}
	copy(next.groups, cur)
	next.groups = append(next.groups, g)
	for _, tg := range cur {
		next.ids[tg.ID()] = struct{}{}
	}
	tbl.groups.Store(next)

	log.WithFields(log.Fields{
		"table":  tbl.name,
		"group":  g.ID(),
		"groups": len(next.groups),
	}).Debug("table: new tile group")
	return g, slot, nil
}

// InsertTuple writes row as a new version owned by tx. A row which does not match the schema
// is rejected before any slot is claimed.
func (tbl *Table) InsertTuple(tx *mvcc.Transaction, row []sql.Value) (tile.ItemPointer, error) {
	if err := tbl.checkActive(tx); err != nil {
		return tile.InvalidItemPointer, err
	}
	vals, err := tbl.schema.Check(row)
	if err != nil {
		return tile.InvalidItemPointer, fmt.Errorf("table: %s: %w", tbl.name, err)
	}

	g, slot, err := tbl.claim()
	if err != nil {
		return tile.InvalidItemPointer, err
	}
	g.WriteValues(slot, vals)
	err = tbl.m.InsertVersion(tx, g, slot)
	if err != nil {
		g.Release(slot)
		return tile.InvalidItemPointer, err
	}
	return g.Pointer(slot), nil
}

// UpdateTuple writes row as a new version, owned by tx, of the row whose visible version is
// at ip.
func (tbl *Table) UpdateTuple(tx *mvcc.Transaction, ip tile.ItemPointer,
	row []sql.Value) (tile.ItemPointer, error) {

	if err := tbl.checkActive(tx); err != nil {
		return tile.InvalidItemPointer, err
	}
	vals, err := tbl.schema.Check(row)
	if err != nil {
		return tile.InvalidItemPointer, fmt.Errorf("table: %s: %w", tbl.name, err)
	}
	if _, _, ok := tbl.Resolve(ip); !ok {
		return tile.InvalidItemPointer, fmt.Errorf("table: %s: unknown item pointer: %s",
			tbl.name, ip)
	}

	g, slot, err := tbl.claim()
	if err != nil {
		return tile.InvalidItemPointer, err
	}
	g.WriteValues(slot, vals)
	err = tbl.m.UpdateVersion(tx, ip, g, slot)
	if err != nil {
		g.Release(slot)
		return tile.InvalidItemPointer, err
	}
	return g.Pointer(slot), nil
}

// DeleteTuple deletes the row whose visible version is at ip.
func (tbl *Table) DeleteTuple(tx *mvcc.Transaction, ip tile.ItemPointer) error {
	if err := tbl.checkActive(tx); err != nil {
		return err
	}
	if _, _, ok := tbl.Resolve(ip); !ok {
		return fmt.Errorf("table: %s: unknown item pointer: %s", tbl.name, ip)
	}

	return tbl.m.DeleteVersion(tx, ip)
}

// Fetch reads the version at ip into dest, if it is visible to tx.
func (tbl *Table) Fetch(tx *mvcc.Transaction, ip tile.ItemPointer,
	dest []sql.Value) (bool, error) {

	if err := tbl.checkActive(tx); err != nil {
		return false, err
	}
	g, slot, ok := tbl.Resolve(ip)
	if !ok {
		return false, nil
	}
	return tbl.FetchSnapshot(tx, tx.Snapshot(), g, slot, dest), nil
}

// FetchSnapshot reads the version at slot of g into dest, if it is visible to snap.
func (tbl *Table) FetchSnapshot(tx *mvcc.Transaction, snap mvcc.Snapshot, g *tile.Group,
	slot int, dest []sql.Value) bool {

	vm, ok := g.VersionMeta(slot)
	if !ok {
		return false
	}
	ip := g.Pointer(slot)
	if !mvcc.IsVisible(snap, ip, vm) {
		return false
	}

	g.Read(slot, nil, dest)
	tx.RecordRead(ip)
	return true
}
