package execute

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/leftmike/pax/sql"
)

const (
	boolKey   = 'b'
	numberKey = 'n'
	floatKey  = 'f'
	stringKey = 's'
)

// appendKey appends an encoding of the cols of row to buf such that values which compare
// equal have equal encodings; integral floats are encoded as integers. It returns false if
// any of the values is NULL: NULL keys never join.
func appendKey(buf []byte, row []sql.Value, cols []int) ([]byte, bool) {
	for _, col := range cols {
		switch v := row[col].(type) {
		case nil:
			return nil, false
		case sql.BoolValue:
			if v {
				buf = append(buf, boolKey, 1)
			} else {
				buf = append(buf, boolKey, 0)
			}
		case sql.Int64Value:
			buf = append(buf, numberKey)
			buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(v)))
		case sql.Float64Value:
			f := float64(v)
			if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
				buf = append(buf, numberKey)
				buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(f)))
			} else {
				buf = append(buf, floatKey)
				buf = protowire.AppendFixed64(buf, math.Float64bits(f))
			}
		case sql.StringValue:
			buf = append(buf, stringKey)
			buf = protowire.AppendString(buf, string(v))
		default:
			panic(fmt.Sprintf("execute: unexpected type for sql.Value: %T: %v", v, v))
		}
	}
	return buf, true
}

func compareKeys(r1 []sql.Value, k1 []int, r2 []sql.Value, k2 []int) int {
	for i := range k1 {
		cmp := sql.Compare(r1[k1[i]], r2[k2[i]])
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

func hasNullKey(row []sql.Value, cols []int) bool {
	for _, col := range cols {
		if row[col] == nil {
			return true
		}
	}
	return false
}
