package schema

import (
	"fmt"
	"strings"
)

type SchemaColumn struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

type Schema struct {
	Name    string         `json:"name"`
	Columns []SchemaColumn `json:"columns"`
}

var ErrColumnNotFound = fmt.Errorf("column not found")

func (s Schema) Column(name string) (SchemaColumn, int, error) {
	for idx, it := range s.Columns {
		if it.Name == name {
			return it, idx, nil
		}
	}
	return SchemaColumn{}, -1, fmt.Errorf("%w: `%s` on schema `%s`", ErrColumnNotFound, name, s.Name)
}

func (s Schema) HasColumn(name string) bool {
	_, idx, _ := s.Column(name)
	return idx >= 0
}

// ColumnsWithPrefix returns column names starting with prefix in schema order.
func (s Schema) ColumnsWithPrefix(prefix string) []string {
	result := []string{}
	for _, it := range s.Columns {
		if strings.HasPrefix(it.Name, prefix) {
			result = append(result, it.Name)
		}
	}
	return result
}
