package result

import "github.com/dot5enko/tessera/schema"

type Column interface {
	Name() string
	Type() schema.FieldType
	Len() int
	Value(row int) any
	IsNull(row int) bool
}

type nulls []bool

func (n nulls) IsNull(row int) bool {
	return n != nil && n[row]
}

type Int64Column struct {
	name   string
	Values []int64
	nulls
}

type Float64Column struct {
	name   string
	Values []float64
	nulls
}

type StringColumn struct {
	name   string
	Values []string
	nulls
}

// NewInt64Column wraps values; nullMask may be nil when no value is null.
func NewInt64Column(name string, values []int64, nullMask []bool) *Int64Column {
	return &Int64Column{name: name, Values: values, nulls: nullMask}
}

func NewFloat64Column(name string, values []float64, nullMask []bool) *Float64Column {
	return &Float64Column{name: name, Values: values, nulls: nullMask}
}

func NewStringColumn(name string, values []string, nullMask []bool) *StringColumn {
	return &StringColumn{name: name, Values: values, nulls: nullMask}
}

func (c *Int64Column) Name() string           { return c.name }
func (c *Int64Column) Type() schema.FieldType { return schema.Int64FieldType }
func (c *Int64Column) Len() int               { return len(c.Values) }

func (c *Int64Column) Value(row int) any {
	if c.IsNull(row) {
		return nil
	}
	return c.Values[row]
}

func (c *Float64Column) Name() string           { return c.name }
func (c *Float64Column) Type() schema.FieldType { return schema.Float64FieldType }
func (c *Float64Column) Len() int               { return len(c.Values) }

func (c *Float64Column) Value(row int) any {
	if c.IsNull(row) {
		return nil
	}
	return c.Values[row]
}

func (c *StringColumn) Name() string           { return c.name }
func (c *StringColumn) Type() schema.FieldType { return schema.StringFieldType }
func (c *StringColumn) Len() int               { return len(c.Values) }

func (c *StringColumn) Value(row int) any {
	if c.IsNull(row) {
		return nil
	}
	return c.Values[row]
}
