package sql

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

type ColumnUpdate struct {
	Index int
	Value Value
}

const (
	MaxColumnSize = math.MaxUint32 - 1
)

type ColumnType struct {
	Type DataType

	// Size of the column in bytes for integers and in characters for character columns
	Size uint32

	NotNull bool // not allowed to be NULL
}

var (
	Int32ColType       = ColumnType{Type: IntegerType, Size: 4, NotNull: true}
	Int64ColType       = ColumnType{Type: IntegerType, Size: 8, NotNull: true}
	NullInt64ColType   = ColumnType{Type: IntegerType, Size: 8}
	Float64ColType     = ColumnType{Type: FloatType, Size: 8, NotNull: true}
	BoolColType        = ColumnType{Type: BooleanType, NotNull: true}
	StringColType      = ColumnType{Type: VarcharType, Size: 4096, NotNull: true}
	NullStringColType  = ColumnType{Type: VarcharType, Size: 4096}
	TextColType        = ColumnType{Type: VarcharType, Size: MaxColumnSize, NotNull: true}
	NullTextColType    = ColumnType{Type: VarcharType, Size: MaxColumnSize}
	maxIntegerForSizes = map[uint32]int64{
		2: math.MaxInt16,
		4: math.MaxInt32,
		8: math.MaxInt64,
	}
)

func CharColType(size uint32) ColumnType {
	return ColumnType{Type: CharType, Size: size, NotNull: true}
}

func VarcharColType(size uint32) ColumnType {
	return ColumnType{Type: VarcharType, Size: size, NotNull: true}
}

func (ct ColumnType) DataType() string {
	switch ct.Type {
	case BooleanType:
		return "BOOL"
	case CharType:
		return fmt.Sprintf("CHAR(%d)", ct.Size)
	case VarcharType:
		if ct.Size == MaxColumnSize {
			return "TEXT"
		}
		return fmt.Sprintf("VARCHAR(%d)", ct.Size)
	case FloatType:
		return "DOUBLE"
	case IntegerType:
		switch ct.Size {
		case 2:
			return "SMALLINT"
		case 4:
			return "INT"
		case 8:
			return "BIGINT"
		}
	}
	return ""
}

func (ct ColumnType) String() string {
	s := ct.DataType()
	if ct.NotNull {
		s += " NOT NULL"
	}
	return s
}

// CheckValue returns v, normalized for storage in a column of this type, or an error if v
// can not be stored in the column. CHAR values are padded with spaces to their size.
func (ct ColumnType) CheckValue(n string, v Value) (Value, error) {
	if v == nil {
		if ct.NotNull {
			return nil, fmt.Errorf("column %q may not be NULL", n)
		}
		return nil, nil
	}

	switch ct.Type {
	case BooleanType:
		if _, ok := v.(BoolValue); !ok {
			return nil, fmt.Errorf("column %q: expected a boolean value: %v", n, v)
		}
	case CharType, VarcharType:
		s, ok := v.(StringValue)
		if !ok {
			return nil, fmt.Errorf("column %q: expected a string value: %v", n, v)
		}
		if !utf8.ValidString(string(s)) {
			return nil, fmt.Errorf("column %q: expected a valid utf8 string: %v", n, v)
		}
		l := uint32(utf8.RuneCountInString(string(s)))
		if l > ct.Size {
			return nil, fmt.Errorf("column %q: value too long for %s: %v", n, ct.DataType(), v)
		}
		if ct.Type == CharType && l < ct.Size {
			return StringValue(string(s) + strings.Repeat(" ", int(ct.Size-l))), nil
		}
	case FloatType:
		if _, ok := v.(Float64Value); !ok {
			return nil, fmt.Errorf("column %q: expected a float value: %v", n, v)
		}
	case IntegerType:
		i, ok := v.(Int64Value)
		if !ok {
			return nil, fmt.Errorf("column %q: expected an integer value: %v", n, v)
		}
		if lim, ok := maxIntegerForSizes[ct.Size]; ok && (int64(i) > lim || int64(i) < -lim-1) {
			return nil, fmt.Errorf("column %q: integer out of range for %s: %v", n,
				ct.DataType(), v)
		}
	default:
		panic(fmt.Sprintf("expected a valid data type; got %v", ct.Type))
	}

	return v, nil
}

// ParseColumnType parses type names such as int, bigint, double, bool, char(8), varchar(32),
// and text; a trailing "null" makes the column nullable.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	notNull := true
	if strings.HasSuffix(s, " null") {
		notNull = false
		s = strings.TrimSpace(strings.TrimSuffix(s, " null"))
	}

	var ct ColumnType
	name, arg := s, ""
	if idx := strings.IndexRune(s, '('); idx > 0 && strings.HasSuffix(s, ")") {
		name, arg = s[:idx], s[idx+1:len(s)-1]
	}

	switch name {
	case "bool", "boolean":
		ct = ColumnType{Type: BooleanType}
	case "smallint":
		ct = ColumnType{Type: IntegerType, Size: 2}
	case "int", "integer":
		ct = ColumnType{Type: IntegerType, Size: 4}
	case "bigint":
		ct = ColumnType{Type: IntegerType, Size: 8}
	case "double", "float", "real":
		ct = ColumnType{Type: FloatType, Size: 8}
	case "text":
		ct = ColumnType{Type: VarcharType, Size: MaxColumnSize}
	case "char", "varchar":
		size := uint64(1)
		if arg != "" {
			var err error
			size, err = strconv.ParseUint(arg, 10, 32)
			if err != nil || size == 0 || size > MaxColumnSize {
				return ColumnType{}, fmt.Errorf("sql: bad size for %s: %s", name, arg)
			}
		} else if name == "varchar" {
			size = MaxColumnSize
		}
		if name == "char" {
			ct = ColumnType{Type: CharType, Size: uint32(size)}
		} else {
			ct = ColumnType{Type: VarcharType, Size: uint32(size)}
		}
	default:
		return ColumnType{}, fmt.Errorf("sql: unknown column type: %s", s)
	}

	ct.NotNull = notNull
	return ct, nil
}

// ParseValue converts the string s into a value suitable for a column of this type; the
// string "null" (in any case) is NULL.
func (ct ColumnType) ParseValue(s string) (Value, error) {
	if strings.EqualFold(s, NullString) {
		return nil, nil
	}

	switch ct.Type {
	case BooleanType:
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "t" || s == "true" || s == "y" || s == "yes" || s == "on" || s == "1" {
			return BoolValue(true), nil
		} else if s == "f" || s == "false" || s == "n" || s == "no" || s == "off" || s == "0" {
			return BoolValue(false), nil
		}
		return nil, fmt.Errorf("sql: expected a boolean value: %s", s)
	case CharType, VarcharType:
		return StringValue(strings.Trim(s, "'")), nil
	case FloatType:
		d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("sql: expected a float: %s: %s", s, err)
		}
		return Float64Value(d), nil
	case IntegerType:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sql: expected an integer: %s: %s", s, err)
		}
		return Int64Value(i), nil
	}
	panic(fmt.Sprintf("expected a valid data type; got %v", ct.Type))
}
