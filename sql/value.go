package sql

import (
	"fmt"
	"math"
	"strings"
)

const (
	NullString  = "NULL"
	TrueString  = "true"
	FalseString = "false"
)

// Value is a single typed cell; a nil Value is NULL.
type Value interface {
	fmt.Stringer

	// return -1 if v1 < v2
	// return 0 if v1 == v2
	// return 1 if v1 > v2
	Compare(v2 Value) (int, error)
}

type BoolValue bool

func (b BoolValue) String() string {
	if b {
		return TrueString
	}
	return FalseString
}

func (b1 BoolValue) Compare(v2 Value) (int, error) {
	if b2, ok := v2.(BoolValue); ok {
		if b1 {
			if b2 {
				return 0, nil
			}
			return 1, nil
		} else {
			if b2 {
				return -1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("sql: want boolean got %v", v2)
}

type Int64Value int64

func (i Int64Value) String() string {
	return fmt.Sprintf("%v", int64(i))
}

func (i1 Int64Value) Compare(v2 Value) (int, error) {
	switch v2 := v2.(type) {
	case Int64Value:
		if i1 < v2 {
			return -1, nil
		} else if i1 > v2 {
			return 1, nil
		}
		return 0, nil
	case Float64Value:
		return compareIntFloat(int64(i1), float64(v2)), nil
	}
	return 0, fmt.Errorf("sql: want number got %v", v2)
}

// compareIntFloat compares i and f exactly; i is not rounded to the nearest float64.
func compareIntFloat(i int64, f float64) int {
	if math.IsNaN(f) {
		return 0
	} else if f >= 1<<63 {
		return -1
	} else if f < -(1 << 63) {
		return 1
	}

	t := math.Trunc(f)
	if ti := int64(t); i < ti {
		return -1
	} else if i > ti {
		return 1
	} else if t < f {
		return -1
	} else if t > f {
		return 1
	}
	return 0
}

type Float64Value float64

func (d Float64Value) String() string {
	return fmt.Sprintf("%v", float64(d))
}

func (d1 Float64Value) Compare(v2 Value) (int, error) {
	switch v2 := v2.(type) {
	case Int64Value:
		return -compareIntFloat(int64(v2), float64(d1)), nil
	case Float64Value:
		if d1 < v2 {
			return -1, nil
		} else if d1 > v2 {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("sql: want number got %v", v2)
}

type StringValue string

func (s StringValue) String() string {
	return fmt.Sprintf("'%s'", string(s))
}

func (s1 StringValue) Compare(v2 Value) (int, error) {
	if s2, ok := v2.(StringValue); ok {
		return strings.Compare(string(s1), string(s2)), nil
	}
	return 0, fmt.Errorf("sql: want string got %v", v2)
}

// Compare orders any two values: NULL first, then booleans, numbers, and strings.
func Compare(v1, v2 Value) int {
	if v1 == nil {
		if v2 == nil {
			return 0
		}
		return -1
	}
	if v2 == nil {
		return 1
	}
	switch v1 := v1.(type) {
	case BoolValue:
		switch v2 := v2.(type) {
		case BoolValue:
			cmp, _ := v1.Compare(v2)
			return cmp
		case Float64Value, Int64Value, StringValue:
			return -1
		default:
			panic(fmt.Sprintf("unexpected type for sql.Value: %T: %v", v2, v2))
		}
	case Float64Value, Int64Value:
		switch v2 := v2.(type) {
		case BoolValue:
			return 1
		case Float64Value, Int64Value:
			cmp, _ := v1.Compare(v2)
			return cmp
		case StringValue:
			return -1
		default:
			panic(fmt.Sprintf("unexpected type for sql.Value: %T: %v", v2, v2))
		}
	case StringValue:
		switch v2 := v2.(type) {
		case BoolValue, Float64Value, Int64Value:
			return 1
		case StringValue:
			cmp, _ := v1.Compare(v2)
			return cmp
		default:
			panic(fmt.Sprintf("unexpected type for sql.Value: %T: %v", v2, v2))
		}
	default:
		panic(fmt.Sprintf("unexpected type for sql.Value: %T: %v", v1, v1))
	}
}

// CompareRows compares two rows column by column using key.
func CompareRows(key []ColumnKey, r1, r2 []Value) int {
	for _, ck := range key {
		cmp := Compare(r1[ck.Column()], r2[ck.Column()])
		if cmp != 0 {
			if ck.Reverse() {
				return -cmp
			}
			return cmp
		}
	}
	return 0
}

func Format(v Value) string {
	if v == nil {
		return NullString
	}

	return v.String()
}

func FormatRow(row []Value) string {
	var b strings.Builder
	b.WriteRune('(')
	for i, v := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Format(v))
	}
	b.WriteRune(')')
	return b.String()
}
