package schema

import "strings"

type FieldType uint8

const (
	UnknownFieldType FieldType = iota
	Int64FieldType
	Float64FieldType
	StringFieldType
)

func (f FieldType) String() string {
	switch f {
	case Int64FieldType:
		return "Int64"
	case Float64FieldType:
		return "Float64"
	case StringFieldType:
		return "String"
	default:
		return "Unknown"
	}
}

func (f FieldType) Numeric() bool {
	return f == Int64FieldType || f == Float64FieldType
}

// ParseFieldType maps a declared SQL column type onto a field type.
// Affinity rules follow sqlite: INT anywhere wins, then REAL/FLOA/DOUB, then text.
func ParseFieldType(declared string) FieldType {

	decl := strings.ToUpper(declared)

	switch {
	case strings.Contains(decl, "INT"):
		return Int64FieldType
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"),
		strings.Contains(decl, "NUMERIC"), strings.Contains(decl, "DECIMAL"):
		return Float64FieldType
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "CLOB"), strings.Contains(decl, "TEXT"),
		strings.Contains(decl, "STRING"):
		return StringFieldType
	default:
		return UnknownFieldType
	}
}

func (f FieldType) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FieldType) UnmarshalText(text []byte) error {
	*f = ParseFieldType(string(text))
	return nil
}
