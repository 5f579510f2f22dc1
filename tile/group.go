package tile

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/leftmike/pax/sql"
)

var (
	ErrCapacityExceeded = errors.New("tile: tile group capacity exceeded")
)

// Group is a horizontal partition of a table: a fixed number of slots, each holding one
// version of a row, stored across the tiles of a layout.
//
// A slot is claimed by setting its bit in the occupancy bitmap. The owner writes the values of
// the slot and then publishes a VersionMeta; readers must load the VersionMeta and only read
// the values of a slot with a published VersionMeta. Release unpublishes the VersionMeta before
// clearing the occupancy bit.
type Group struct {
	id       GroupID
	layout   Layout
	colTypes []sql.ColumnType
	tiles    []*Tile
	capacity int
	occupied []atomic.Uint64
	metas    []atomic.Pointer[VersionMeta]
	used     atomic.Int64
}

func newGroup(id GroupID, colTypes []sql.ColumnType, layout Layout, capacity int) (*Group,
	error) {

	if capacity <= 0 {
		return nil, fmt.Errorf("tile: capacity must be positive: %d", capacity)
	}
	err := layout.Validate(len(colTypes))
	if err != nil {
		return nil, err
	}

	g := &Group{
		id:       id,
		layout:   layout,
		colTypes: colTypes,
		capacity: capacity,
		occupied: make([]atomic.Uint64, (capacity+63)/64),
		metas:    make([]atomic.Pointer[VersionMeta], capacity),
	}

	col := 0
	for tdx := 0; tdx < layout.TileCount(); tdx += 1 {
		w := layout.TileColumns(tdx)
		g.tiles = append(g.tiles, newTile(colTypes[col:col+w], capacity))
		col += w
	}
	return g, nil
}

func (g *Group) ID() GroupID {
	return g.id
}

func (g *Group) Capacity() int {
	return g.capacity
}

func (g *Group) Layout() Layout {
	return g.layout
}

func (g *Group) ColumnTypes() []sql.ColumnType {
	return g.colTypes
}

// ActiveSlots returns the number of claimed slots.
func (g *Group) ActiveSlots() int {
	return int(g.used.Load())
}

func (g *Group) Pointer(slot int) ItemPointer {
	return ItemPointer{Group: g.id, Slot: uint32(slot)}
}

// Insert claims a free slot, starting the search at hint. Concurrent callers always claim
// distinct slots.
func (g *Group) Insert(hint int) (int, error) {
	if hint < 0 || hint >= g.capacity {
		hint = 0
	}

	nwords := len(g.occupied)
	start := hint / 64
	for n := 0; n <= nwords; n += 1 {
		wdx := (start + n) % nwords
		for {
			word := g.occupied[wdx].Load()
			free := ^word
			if n == 0 && wdx == start {
				// Skip the slots before hint the first time through.
				free &= ^uint64(0) << (hint % 64)
			}
			if wdx == nwords-1 && g.capacity%64 != 0 {
				free &= (uint64(1) << (g.capacity % 64)) - 1
			}
			if free == 0 {
				break
			}

			bit := bits.TrailingZeros64(free)
			if g.occupied[wdx].CompareAndSwap(word, word|(uint64(1)<<bit)) {
				g.used.Add(1)
				return wdx*64 + bit, nil
			}
		}
	}

	return -1, ErrCapacityExceeded
}

func (g *Group) checkSlot(slot int) {
	if slot < 0 || slot >= g.capacity {
		panic(fmt.Sprintf("tile: group %d: slot out of range: %d", g.id, slot))
	}
}

func (g *Group) Occupied(slot int) bool {
	g.checkSlot(slot)
	return g.occupied[slot/64].Load()&(uint64(1)<<(slot%64)) != 0
}

// NextOccupied returns the first claimed slot at or after slot, or -1.
func (g *Group) NextOccupied(slot int) int {
	if slot < 0 {
		slot = 0
	}
	for wdx := slot / 64; wdx < len(g.occupied); wdx += 1 {
		word := g.occupied[wdx].Load()
		if wdx == slot/64 {
			word &= ^uint64(0) << (slot % 64)
		}
		if word != 0 {
			s := wdx*64 + bits.TrailingZeros64(word)
			if s < g.capacity {
				return s
			}
			return -1
		}
	}
	return -1
}

// WriteValues stores row in a claimed slot whose VersionMeta has not been published.
func (g *Group) WriteValues(slot int, row []sql.Value) {
	g.checkSlot(slot)
	if len(row) != len(g.colTypes) {
		panic(fmt.Sprintf("tile: group %d: got %d values; want %d", g.id, len(row),
			len(g.colTypes)))
	}
	if !g.Occupied(slot) {
		panic(fmt.Sprintf("tile: group %d: write to unclaimed slot: %d", g.id, slot))
	}
	if g.metas[slot].Load() != nil {
		panic(fmt.Sprintf("tile: group %d: write to published slot: %d", g.id, slot))
	}

	for col, val := range row {
		tdx, off := g.layout.Locate(col)
		g.tiles[tdx].set(off, slot, val)
	}
}

// Read copies the values of cols from slot into dest; if cols is nil, all columns are read.
func (g *Group) Read(slot int, cols []int, dest []sql.Value) {
	g.checkSlot(slot)
	if cols == nil {
		for col := range g.colTypes {
			tdx, off := g.layout.Locate(col)
			dest[col] = g.tiles[tdx].get(off, slot)
		}
		return
	}

	for idx, col := range cols {
		tdx, off := g.layout.Locate(col)
		dest[idx] = g.tiles[tdx].get(off, slot)
	}
}

// VersionMeta returns the published VersionMeta of slot, if any.
func (g *Group) VersionMeta(slot int) (VersionMeta, bool) {
	g.checkSlot(slot)
	vm := g.metas[slot].Load()
	if vm == nil {
		return VersionMeta{}, false
	}
	return *vm, true
}

// WriteVersionMeta publishes vm for a claimed slot.
func (g *Group) WriteVersionMeta(slot int, vm VersionMeta) {
	g.checkSlot(slot)
	if !g.Occupied(slot) {
		panic(fmt.Sprintf("tile: group %d: version meta for unclaimed slot: %d", g.id, slot))
	}
	g.metas[slot].Store(&vm)
}

// UpdateVersionMeta atomically replaces the published VersionMeta of slot with fn applied to
// it; it returns false if the slot has no published VersionMeta.
func (g *Group) UpdateVersionMeta(slot int, fn func(vm VersionMeta) VersionMeta) bool {
	g.checkSlot(slot)
	for {
		old := g.metas[slot].Load()
		if old == nil {
			return false
		}
		vm := fn(*old)
		if g.metas[slot].CompareAndSwap(old, &vm) {
			return true
		}
	}
}

// Release returns a claimed slot to the free pool. The values of the slot are left in place
// until the slot is claimed and written again, so a reader racing with the release sees the
// old values.
func (g *Group) Release(slot int) {
	g.checkSlot(slot)

	g.metas[slot].Store(nil)

	wdx := slot / 64
	mask := uint64(1) << (slot % 64)
	for {
		word := g.occupied[wdx].Load()
		if word&mask == 0 {
			panic(fmt.Sprintf("tile: group %d: release of unclaimed slot: %d", g.id, slot))
		}
		if g.occupied[wdx].CompareAndSwap(word, word&^mask) {
			break
		}
	}
	g.used.Add(-1)
}
