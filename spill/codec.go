package spill

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/leftmike/pax/sql"
)

// Rows are encoded as the number of columns followed by a protobuf wire format field for each
// non-NULL column; the field number is the column number plus one, and the wire type is the
// type of the value.
//
//	bool:    fixed32
//	int64:   varint (zigzag)
//	float64: fixed64
//	string:  bytes

func EncodeRow(buf []byte, row []sql.Value) []byte {
	buf = protowire.AppendVarint(buf, uint64(len(row)))
	for col, val := range row {
		if val == nil {
			continue
		}

		num := protowire.Number(col + 1)
		switch val := val.(type) {
		case sql.BoolValue:
			buf = protowire.AppendTag(buf, num, protowire.Fixed32Type)
			if val {
				buf = protowire.AppendFixed32(buf, 1)
			} else {
				buf = protowire.AppendFixed32(buf, 0)
			}
		case sql.Int64Value:
			buf = protowire.AppendTag(buf, num, protowire.VarintType)
			buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(val)))
		case sql.Float64Value:
			buf = protowire.AppendTag(buf, num, protowire.Fixed64Type)
			buf = protowire.AppendFixed64(buf, math.Float64bits(float64(val)))
		case sql.StringValue:
			buf = protowire.AppendTag(buf, num, protowire.BytesType)
			buf = protowire.AppendString(buf, string(val))
		default:
			panic(fmt.Sprintf("unexpected type for sql.Value: %T: %v", val, val))
		}
	}
	return buf
}

func DecodeRow(buf []byte) ([]sql.Value, error) {
	cnt, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return nil, fmt.Errorf("spill: decode row: %s", protowire.ParseError(n))
	}
	buf = buf[n:]
	if cnt > math.MaxUint16 {
		return nil, fmt.Errorf("spill: decode row: too many columns: %d", cnt)
	}

	row := make([]sql.Value, cnt)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("spill: decode row: %s", protowire.ParseError(n))
		}
		buf = buf[n:]
		col := int(num) - 1
		if col >= len(row) {
			return nil, fmt.Errorf("spill: decode row: column %d out of range", col)
		}

		switch typ {
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(buf)
			row[col] = sql.BoolValue(v != 0)
		case protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(buf)
			row[col] = sql.Int64Value(protowire.DecodeZigZag(v))
		case protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(buf)
			row[col] = sql.Float64Value(math.Float64frombits(v))
		case protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(buf)
			row[col] = sql.StringValue(v)
		default:
			return nil, fmt.Errorf("spill: decode row: unexpected wire type: %d", typ)
		}
		if n < 0 {
			return nil, fmt.Errorf("spill: decode row: %s", protowire.ParseError(n))
		}
		buf = buf[n:]
	}

	return row, nil
}
