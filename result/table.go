package result

import (
	"errors"
	"fmt"

	"github.com/dot5enko/tessera/schema"
)

var (
	ErrTypeMismatch    = errors.New("column type mismatch")
	ErrColumnNotFound  = errors.New("column not found")
	ErrRowOutOfRange   = errors.New("row out of range")
	ErrColumnLength    = errors.New("columns differ in length")
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Table is a column oriented query result. Rows are 0-indexed and contiguous.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

func NewTable(columns ...Column) (*Table, error) {

	t := &Table{
		columns: columns,
		index:   make(map[string]int, len(columns)),
	}

	for idx, it := range columns {
		if _, exists := t.index[it.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, it.Name())
		}
		t.index[it.Name()] = idx

		if idx == 0 {
			t.rows = it.Len()
		} else if it.Len() != t.rows {
			return nil, fmt.Errorf("%w: `%s` has %d rows, expected %d", ErrColumnLength, it.Name(), it.Len(), t.rows)
		}
	}

	return t, nil
}

func (t *Table) NumRows() int {
	return t.rows
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

func (t *Table) Columns() []Column {
	return t.columns
}

func (t *Table) Column(name string) (Column, error) {
	idx, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return t.columns[idx], nil
}

func (t *Table) Schema() schema.Schema {
	result := schema.Schema{Columns: make([]schema.SchemaColumn, len(t.columns))}
	for idx, it := range t.columns {
		result.Columns[idx] = schema.SchemaColumn{Name: it.Name(), Type: it.Type()}
	}
	return result
}

func (t *Table) cell(name string, row int) (Column, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= t.rows {
		return nil, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, row, t.rows)
	}
	return col, nil
}

func mismatch(col Column, expected schema.FieldType) error {
	return fmt.Errorf("%w: `%s` is %s, requested %s", ErrTypeMismatch, col.Name(), col.Type(), expected)
}

func (t *Table) Int64(name string, row int) (int64, error) {
	col, err := t.cell(name, row)
	if err != nil {
		return 0, err
	}
	typed, ok := col.(*Int64Column)
	if !ok {
		return 0, mismatch(col, schema.Int64FieldType)
	}
	return typed.Values[row], nil
}

func (t *Table) Float64(name string, row int) (float64, error) {
	col, err := t.cell(name, row)
	if err != nil {
		return 0, err
	}
	typed, ok := col.(*Float64Column)
	if !ok {
		return 0, mismatch(col, schema.Float64FieldType)
	}
	return typed.Values[row], nil
}

// Number reads any numeric column as float64. Strings are rejected.
func (t *Table) Number(name string, row int) (float64, error) {
	col, err := t.cell(name, row)
	if err != nil {
		return 0, err
	}
	switch typed := col.(type) {
	case *Int64Column:
		return float64(typed.Values[row]), nil
	case *Float64Column:
		return typed.Values[row], nil
	default:
		return 0, mismatch(col, schema.Float64FieldType)
	}
}

func (t *Table) String(name string, row int) (string, error) {
	col, err := t.cell(name, row)
	if err != nil {
		return "", err
	}
	typed, ok := col.(*StringColumn)
	if !ok {
		return "", mismatch(col, schema.StringFieldType)
	}
	return typed.Values[row], nil
}

// Label reads a categorical value. Integer categories (e.g. cluster ids) are
// formatted in decimal; floats are rejected.
func (t *Table) Label(name string, row int) (string, error) {
	col, err := t.cell(name, row)
	if err != nil {
		return "", err
	}
	switch typed := col.(type) {
	case *StringColumn:
		return typed.Values[row], nil
	case *Int64Column:
		return fmt.Sprintf("%d", typed.Values[row]), nil
	default:
		return "", mismatch(col, schema.StringFieldType)
	}
}

func (t *Table) Value(name string, row int) (any, error) {
	col, err := t.cell(name, row)
	if err != nil {
		return nil, err
	}
	return col.Value(row), nil
}

// Rows materializes the table row by row.
func (t *Table) Rows() []map[string]any {
	result := make([]map[string]any, t.rows)
	for row := 0; row < t.rows; row++ {
		item := make(map[string]any, len(t.columns))
		for _, col := range t.columns {
			item[col.Name()] = col.Value(row)
		}
		result[row] = item
	}
	return result
}
