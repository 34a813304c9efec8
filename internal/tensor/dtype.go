// Package tensor provides strided tensor views over reference-counted
// storage.
package tensor

import "fmt"

// Element is the set of element types a tensor can hold.
type Element interface {
	uint8 | int8 | int16 | int32 | int64 | float32 | float64
}

// DataType is the runtime tag of an element type. The numeric values are
// wire constants.
type DataType int

// Supported data types.
const (
	Byte   DataType = 0 // uint8
	Char   DataType = 1 // int8
	Short  DataType = 2 // int16
	Int    DataType = 3 // int32
	Long   DataType = 4 // int64
	Float  DataType = 5 // float32
	Double DataType = 6 // float64
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Byte, Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
}

// IsFloating reports whether the type is a floating-point type.
func (dt DataType) IsFloating() bool {
	return dt == Float || dt == Double
}

// Valid reports whether dt is a known data type.
func (dt DataType) Valid() bool {
	return dt >= Byte && dt <= Double
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Byte:
		return "uint8"
	case Char:
		return "int8"
	case Short:
		return "int16"
	case Int:
		return "int32"
	case Long:
		return "int64"
	case Float:
		return "float32"
	case Double:
		return "float64"
	default:
		return "unknown"
	}
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	for dt := Byte; dt <= Double; dt++ {
		if dt.String() == s {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// DataTypeOf returns the runtime tag for T.
func DataTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Byte
	case int8:
		return Char
	case int16:
		return Short
	case int32:
		return Int
	case int64:
		return Long
	case float32:
		return Float
	case float64:
		return Double
	default:
		panic("unsupported type")
	}
}
