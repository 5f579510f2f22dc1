package tile

import (
	"fmt"
	"strings"
)

// Layout partitions the columns of a schema into contiguous sub-schemas; each sub-schema is
// stored together in one tile of every tile group.
type Layout struct {
	widths []int
	colMap []colLocation
}

type colLocation struct {
	tile   int
	offset int
}

func MakeLayout(widths ...int) (Layout, error) {
	if len(widths) == 0 {
		return Layout{}, fmt.Errorf("tile: layout must have at least one tile")
	}

	var colMap []colLocation
	for tdx, w := range widths {
		if w <= 0 {
			return Layout{}, fmt.Errorf("tile: layout tile %d: width must be positive: %d", tdx,
				w)
		}
		for off := 0; off < w; off++ {
			colMap = append(colMap, colLocation{tile: tdx, offset: off})
		}
	}

	return Layout{
		widths: append([]int(nil), widths...),
		colMap: colMap,
	}, nil
}

func mustMakeLayout(widths ...int) Layout {
	l, err := MakeLayout(widths...)
	if err != nil {
		panic(err)
	}
	return l
}

// RowLayout stores all columns in a single tile.
func RowLayout(numCols int) Layout {
	return mustMakeLayout(numCols)
}

// ColumnLayout stores every column in its own tile.
func ColumnLayout(numCols int) Layout {
	widths := make([]int, numCols)
	for idx := range widths {
		widths[idx] = 1
	}
	return mustMakeLayout(widths...)
}

// HybridLayout stores the first column in its own tile and the rest of the columns in pairs.
func HybridLayout(numCols int) Layout {
	widths := []int{1}
	for rem := numCols - 1; rem > 0; rem -= 2 {
		if rem == 1 {
			widths = append(widths, 1)
		} else {
			widths = append(widths, 2)
		}
	}
	return mustMakeLayout(widths...)
}

// ParseLayout returns the named layout (row, column, or hybrid) for numCols columns.
func ParseLayout(name string, numCols int) (Layout, error) {
	if numCols <= 0 {
		return Layout{}, fmt.Errorf("tile: layout for %d columns", numCols)
	}
	switch strings.ToLower(name) {
	case "row":
		return RowLayout(numCols), nil
	case "column":
		return ColumnLayout(numCols), nil
	case "hybrid":
		return HybridLayout(numCols), nil
	}
	return Layout{}, fmt.Errorf("tile: unknown layout: %s", name)
}

func (l Layout) Validate(numCols int) error {
	if len(l.colMap) != numCols {
		return fmt.Errorf("tile: layout covers %d columns; schema has %d", len(l.colMap), numCols)
	}
	return nil
}

func (l Layout) TileCount() int {
	return len(l.widths)
}

func (l Layout) ColumnCount() int {
	return len(l.colMap)
}

// TileColumns returns the number of columns stored in tile tdx.
func (l Layout) TileColumns(tdx int) int {
	return l.widths[tdx]
}

// Locate returns the tile and the offset within the tile of column col.
func (l Layout) Locate(col int) (int, int) {
	loc := l.colMap[col]
	return loc.tile, loc.offset
}

func (l Layout) String() string {
	var b strings.Builder
	col := 0
	for tdx, w := range l.widths {
		if tdx > 0 {
			b.WriteRune(' ')
		}
		fmt.Fprintf(&b, "[%d", col)
		if w > 1 {
			fmt.Fprintf(&b, "-%d", col+w-1)
		}
		b.WriteRune(']')
		col += w
	}
	return b.String()
}
