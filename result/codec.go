package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/dot5enko/tessera/compression"
	"github.com/dot5enko/tessera/schema"
)

type wireColumn struct {
	Name   string           `json:"name"`
	Type   schema.FieldType `json:"type"`
	Values json.RawMessage  `json:"values"`
	Nulls  []bool           `json:"nulls,omitempty"`
}

type wireTable struct {
	Rows    int          `json:"rows"`
	Columns []wireColumn `json:"columns"`
}

// Encode writes t as lz4 compressed json.
func Encode(w io.Writer, t *Table) error {

	wire := wireTable{Rows: t.rows, Columns: make([]wireColumn, len(t.columns))}

	for idx, col := range t.columns {

		var (
			values  any
			nullSet []bool
		)

		switch typed := col.(type) {
		case *Int64Column:
			values, nullSet = typed.Values, typed.nulls
		case *StringColumn:
			values, nullSet = typed.Values, typed.nulls
		case *Float64Column:
			// json has no NaN/Inf; those travel as nulls
			cleaned := typed.Values
			for row, v := range typed.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					if nullSet == nil {
						nullSet = make([]bool, len(typed.Values))
						copy(nullSet, typed.nulls)
						cleaned = append([]float64(nil), typed.Values...)
					}
					nullSet[row] = true
					cleaned[row] = 0
				}
			}
			if nullSet == nil {
				nullSet = typed.nulls
			}
			values = cleaned
		default:
			return fmt.Errorf("%w: unsupported column %T", ErrTypeMismatch, col)
		}

		raw, marshalErr := json.Marshal(values)
		if marshalErr != nil {
			return fmt.Errorf("unable to encode column `%s`: %w", col.Name(), marshalErr)
		}

		wire.Columns[idx] = wireColumn{Name: col.Name(), Type: col.Type(), Values: raw, Nulls: nullSet}
	}

	payload, marshalErr := json.Marshal(wire)
	if marshalErr != nil {
		return marshalErr
	}

	var buf bytes.Buffer
	if compressErr := compression.CompressLz4(payload, &buf); compressErr != nil {
		return fmt.Errorf("unable to compress result: %w", compressErr)
	}

	_, writeErr := w.Write(buf.Bytes())
	return writeErr
}

func Decode(r io.Reader) (*Table, error) {

	var wire wireTable
	if decodeErr := json.NewDecoder(compression.NewLz4Reader(r)).Decode(&wire); decodeErr != nil {
		return nil, fmt.Errorf("unable to decode result: %w", decodeErr)
	}

	columns := make([]Column, len(wire.Columns))

	for idx, it := range wire.Columns {

		if it.Nulls != nil && len(it.Nulls) != wire.Rows {
			return nil, fmt.Errorf("%w: null mask of `%s`", ErrColumnLength, it.Name)
		}

		var unmarshalErr error

		switch it.Type {
		case schema.Int64FieldType:
			var values []int64
			unmarshalErr = json.Unmarshal(it.Values, &values)
			columns[idx] = NewInt64Column(it.Name, values, it.Nulls)
		case schema.Float64FieldType:
			var values []float64
			unmarshalErr = json.Unmarshal(it.Values, &values)
			columns[idx] = NewFloat64Column(it.Name, values, it.Nulls)
		case schema.StringFieldType:
			var values []string
			unmarshalErr = json.Unmarshal(it.Values, &values)
			columns[idx] = NewStringColumn(it.Name, values, it.Nulls)
		default:
			return nil, fmt.Errorf("%w: column `%s` has type %s", ErrTypeMismatch, it.Name, it.Type)
		}

		if unmarshalErr != nil {
			return nil, fmt.Errorf("unable to decode column `%s`: %w", it.Name, unmarshalErr)
		}
	}

	t, tableErr := NewTable(columns...)
	if tableErr != nil {
		return nil, tableErr
	}
	if len(columns) > 0 && t.rows != wire.Rows {
		return nil, fmt.Errorf("%w: header says %d rows, columns carry %d", ErrColumnLength, wire.Rows, t.rows)
	}
	return t, nil
}
