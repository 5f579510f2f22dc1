package sql

type DataType int

const (
	BooleanType DataType = iota + 1
	CharType             // fixed length string
	FloatType
	IntegerType
	VarcharType // variable length string
)

func (dt DataType) String() string {
	switch dt {
	case BooleanType:
		return "BOOL"
	case CharType:
		return "CHAR"
	case FloatType:
		return "DOUBLE"
	case IntegerType:
		return "INT"
	case VarcharType:
		return "VARCHAR"
	}

	return ""
}

func (dt DataType) IsString() bool {
	return dt == CharType || dt == VarcharType
}
