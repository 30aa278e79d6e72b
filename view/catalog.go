package view

import (
	"context"
	"fmt"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

// Querier runs one-off catalogue queries outside any selection.
type Querier interface {
	Query(ctx context.Context, q *query.Query) (*result.Table, error)
}

type Describer interface {
	Describe(ctx context.Context, table string) (schema.Schema, error)
}

// FetchColumnValues enumerates the distinct values of column, sorted.
func FetchColumnValues(ctx context.Context, q Querier, table, column string) ([]string, error) {

	data, queryErr := q.Query(ctx, &query.Query{
		From:    table,
		Select:  []query.Selector{query.Column(column)},
		GroupBy: []string{column},
		OrderBy: []query.Order{{Field: column}},
	})
	if queryErr != nil {
		return nil, fmt.Errorf("unable to enumerate `%s`: %w", column, queryErr)
	}

	values := make([]string, 0, data.NumRows())
	for row := 0; row < data.NumRows(); row++ {
		label, labelErr := data.Label(column, row)
		if labelErr != nil {
			return nil, labelErr
		}
		values = append(values, label)
	}

	return values, nil
}

// FetchColumnCounts returns the number of distinct values of column.
func FetchColumnCounts(ctx context.Context, q Querier, table, column string) (int, error) {

	data, queryErr := q.Query(ctx, &query.Query{
		From:    table,
		Select:  []query.Selector{query.Count("count")},
		GroupBy: []string{column},
	})
	if queryErr != nil {
		return 0, fmt.Errorf("unable to count `%s`: %w", column, queryErr)
	}

	return data.NumRows(), nil
}

// FetchGeneColumns lists the gene expression columns of table in schema order.
func FetchGeneColumns(ctx context.Context, d Describer, table string) ([]string, error) {

	s, describeErr := d.Describe(ctx, table)
	if describeErr != nil {
		return nil, fmt.Errorf("unable to describe `%s`: %w", table, describeErr)
	}

	return s.ColumnsWithPrefix(GenePrefix), nil
}

// FetchTotal counts every row of table.
func FetchTotal(ctx context.Context, q Querier, table string) (int64, error) {

	data, queryErr := q.Query(ctx, &query.Query{From: table, Select: []query.Selector{query.Count("count")}})
	if queryErr != nil {
		return 0, fmt.Errorf("unable to count `%s`: %w", table, queryErr)
	}

	return data.Int64("count", 0)
}
