package query

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery     = errors.New("query has no source table")
	ErrEmptySelection = errors.New("query selects nothing")
)

type SelectorType byte

const (
	SelectColumn SelectorType = iota
	SelectCount
	SelectSum
	SelectAvg
	SelectMin
	SelectMax
	SelectCountWhere
	SelectExpr
)

func (s SelectorType) String() string {
	switch s {
	case SelectColumn:
		return "column"
	case SelectCount:
		return "count"
	case SelectSum:
		return "sum"
	case SelectAvg:
		return "avg"
	case SelectMin:
		return "min"
	case SelectMax:
		return "max"
	case SelectCountWhere:
		return "count_where"
	case SelectExpr:
		return "expr"
	default:
		return "unknown"
	}
}

type (
	Selector struct {
		Type  SelectorType
		Field string

		// CountWhere condition
		Filter Predicate
		// SelectExpr body, rendered verbatim
		Expr string

		Alias string
	}

	Order struct {
		Field string
		Desc  bool
	}

	// Query describes one aggregate or projection over a single table.
	Query struct {
		From    string
		Select  []Selector
		Filter  Predicate
		GroupBy []string
		OrderBy []Order
		Limit   int

		// Stable marks a query whose shape does not change between predicate
		// updates, so engines may reuse a prepared plan.
		Stable bool
	}
)

func Column(name string) Selector {
	return Selector{Type: SelectColumn, Field: name}
}

func Count(alias string) Selector {
	return Selector{Type: SelectCount, Alias: alias}
}

func Sum(field, alias string) Selector {
	return Selector{Type: SelectSum, Field: field, Alias: alias}
}

func Avg(field, alias string) Selector {
	return Selector{Type: SelectAvg, Field: field, Alias: alias}
}

func Min(field, alias string) Selector {
	return Selector{Type: SelectMin, Field: field, Alias: alias}
}

func Max(field, alias string) Selector {
	return Selector{Type: SelectMax, Field: field, Alias: alias}
}

// CountWhere counts rows matching filter: SUM(CASE WHEN filter THEN 1 ELSE 0 END).
func CountWhere(filter Predicate, alias string) Selector {
	return Selector{Type: SelectCountWhere, Filter: filter, Alias: alias}
}

func Expr(expr, alias string) Selector {
	return Selector{Type: SelectExpr, Expr: expr, Alias: alias}
}

// Name is the output column name of the selector.
func (s Selector) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	if s.Type == SelectColumn {
		return s.Field
	}
	if s.Field != "" {
		return s.Type.String() + "_" + s.Field
	}
	return s.Type.String()
}

func (s Selector) Aggregate() bool {
	switch s.Type {
	case SelectCount, SelectSum, SelectAvg, SelectMin, SelectMax, SelectCountWhere:
		return true
	default:
		return false
	}
}

func (q *Query) Validate() error {
	if q.From == "" {
		return ErrEmptyQuery
	}
	if len(q.Select) == 0 {
		return ErrEmptySelection
	}
	for _, it := range q.Select {
		switch it.Type {
		case SelectColumn, SelectSum, SelectAvg, SelectMin, SelectMax:
			if it.Field == "" {
				return fmt.Errorf("selector %s without field", it.Type)
			}
		case SelectCountWhere:
			if it.Filter == nil {
				return fmt.Errorf("selector %s without filter", it.Type)
			}
			if err := Validate(it.Filter); err != nil {
				return err
			}
		case SelectExpr:
			if it.Expr == "" || it.Alias == "" {
				return fmt.Errorf("expression selector needs a body and an alias")
			}
		}
	}
	return Validate(q.Filter)
}

// Key identifies the query result; two queries with equal keys return equal rows.
func (q *Query) Key() string {
	return q.SQL()
}

// Shape renders the query without its restriction. Filter stable clients keep it
// constant across predicate changes.
func (q *Query) Shape() string {
	shape := *q
	shape.Filter = nil
	return shape.SQL()
}
