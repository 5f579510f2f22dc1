package tile

import (
	"fmt"

	"github.com/leftmike/pax/sql"
)

// Tile stores a contiguous subset of the columns of a tile group, one typed vector per
// column, for every slot of the group.
type Tile struct {
	cols []vector
}

type vector struct {
	typ    sql.DataType
	nulls  []bool
	bools  []bool
	ints   []int64
	floats []float64
	strs   []string
}

func newTile(colTypes []sql.ColumnType, capacity int) *Tile {
	t := &Tile{
		cols: make([]vector, len(colTypes)),
	}
	for idx, ct := range colTypes {
		v := &t.cols[idx]
		v.typ = ct.Type
		if !ct.NotNull {
			v.nulls = make([]bool, capacity)
		}
		switch ct.Type {
		case sql.BooleanType:
			v.bools = make([]bool, capacity)
		case sql.IntegerType:
			v.ints = make([]int64, capacity)
		case sql.FloatType:
			v.floats = make([]float64, capacity)
		case sql.CharType, sql.VarcharType:
			v.strs = make([]string, capacity)
		default:
			panic(fmt.Sprintf("tile: unexpected data type: %v", ct.Type))
		}
	}
	return t
}

func (t *Tile) set(off, slot int, val sql.Value) {
	v := &t.cols[off]
	if val == nil {
		if v.nulls == nil {
			panic(fmt.Sprintf("tile: NULL stored in not null column: %d", off))
		}
		v.nulls[slot] = true
		if v.strs != nil {
			v.strs[slot] = ""
		}
		return
	}
	if v.nulls != nil {
		v.nulls[slot] = false
	}

	switch v.typ {
	case sql.BooleanType:
		v.bools[slot] = bool(val.(sql.BoolValue))
	case sql.IntegerType:
		v.ints[slot] = int64(val.(sql.Int64Value))
	case sql.FloatType:
		v.floats[slot] = float64(val.(sql.Float64Value))
	case sql.CharType, sql.VarcharType:
		v.strs[slot] = string(val.(sql.StringValue))
	}
}

func (t *Tile) get(off, slot int) sql.Value {
	v := &t.cols[off]
	if v.nulls != nil && v.nulls[slot] {
		return nil
	}

	switch v.typ {
	case sql.BooleanType:
		return sql.BoolValue(v.bools[slot])
	case sql.IntegerType:
		return sql.Int64Value(v.ints[slot])
	case sql.FloatType:
		return sql.Float64Value(v.floats[slot])
	case sql.CharType, sql.VarcharType:
		return sql.StringValue(v.strs[slot])
	}
	panic(fmt.Sprintf("tile: unexpected data type: %v", v.typ))
}
