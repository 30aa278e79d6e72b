package result

import (
	"fmt"

	"github.com/dot5enko/tessera/schema"
)

// Builder collects dynamically typed rows, as returned by database/sql, and
// infers one field type per column. Integers are widened to float64 when a column
// mixes both; mixing text with numbers is an error.
type Builder struct {
	names  []string
	hints  []schema.FieldType
	values [][]any
}

func NewBuilder(names ...string) *Builder {
	return &Builder{
		names:  names,
		hints:  make([]schema.FieldType, len(names)),
		values: make([][]any, len(names)),
	}
}

// Hint fixes the type of an all-null or empty column.
func (b *Builder) Hint(column int, typ schema.FieldType) *Builder {
	b.hints[column] = typ
	return b
}

func (b *Builder) Append(row []any) error {
	if len(row) != len(b.names) {
		return fmt.Errorf("row has %d values, expected %d", len(row), len(b.names))
	}
	for idx, v := range row {
		if raw, isBytes := v.([]byte); isBytes {
			v = string(raw)
		}
		b.values[idx] = append(b.values[idx], v)
	}
	return nil
}

func (b *Builder) Build() (*Table, error) {

	columns := make([]Column, len(b.names))

	for idx, name := range b.names {
		col, colErr := buildColumn(name, b.hints[idx], b.values[idx])
		if colErr != nil {
			return nil, colErr
		}
		columns[idx] = col
	}

	return NewTable(columns...)
}

func inferType(hint schema.FieldType, values []any) (schema.FieldType, error) {

	typ := schema.UnknownFieldType

	for _, v := range values {
		var cur schema.FieldType
		switch v.(type) {
		case nil:
			continue
		case int64, int, int32:
			cur = schema.Int64FieldType
		case float64, float32:
			cur = schema.Float64FieldType
		case string:
			cur = schema.StringFieldType
		case bool:
			cur = schema.Int64FieldType
		default:
			return typ, fmt.Errorf("%w: unsupported value %T", ErrTypeMismatch, v)
		}

		switch {
		case typ == schema.UnknownFieldType || typ == cur:
			typ = cur
		case typ.Numeric() && cur.Numeric():
			typ = schema.Float64FieldType
		default:
			return typ, fmt.Errorf("%w: column mixes %s and %s", ErrTypeMismatch, typ, cur)
		}
	}

	if typ == schema.UnknownFieldType {
		if hint != schema.UnknownFieldType {
			return hint, nil
		}
		return schema.Float64FieldType, nil
	}
	return typ, nil
}

func buildColumn(name string, hint schema.FieldType, values []any) (Column, error) {

	typ, inferErr := inferType(hint, values)
	if inferErr != nil {
		return nil, fmt.Errorf("column `%s`: %w", name, inferErr)
	}

	var nullMask []bool
	markNull := func(row int) {
		if nullMask == nil {
			nullMask = make([]bool, len(values))
		}
		nullMask[row] = true
	}

	switch typ {
	case schema.Int64FieldType:
		out := make([]int64, len(values))
		for row, v := range values {
			switch val := v.(type) {
			case nil:
				markNull(row)
			case int64:
				out[row] = val
			case int:
				out[row] = int64(val)
			case int32:
				out[row] = int64(val)
			case bool:
				if val {
					out[row] = 1
				}
			}
		}
		return NewInt64Column(name, out, nullMask), nil
	case schema.Float64FieldType:
		out := make([]float64, len(values))
		for row, v := range values {
			switch val := v.(type) {
			case nil:
				markNull(row)
			case float64:
				out[row] = val
			case float32:
				out[row] = float64(val)
			case int64:
				out[row] = float64(val)
			case int:
				out[row] = float64(val)
			case int32:
				out[row] = float64(val)
			case bool:
				if val {
					out[row] = 1
				}
			}
		}
		return NewFloat64Column(name, out, nullMask), nil
	default:
		out := make([]string, len(values))
		for row, v := range values {
			if v == nil {
				markNull(row)
				continue
			}
			out[row] = v.(string)
		}
		return NewStringColumn(name, out, nullMask), nil
	}
}
