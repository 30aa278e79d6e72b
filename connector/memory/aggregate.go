package memory

import (
	"cmp"
	"fmt"
	"sort"
	"strings"

	"github.com/dot5enko/tessera/lists"
	"github.com/dot5enko/tessera/ops"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

type group struct {
	first   uint32
	indices []uint32
}

func (t *table) project(q *query.Query, indices []uint32) (*result.Table, error) {

	aggregate := len(q.GroupBy) > 0
	for _, it := range q.Select {
		if it.Type == query.SelectExpr {
			return nil, fmt.Errorf("%w: expression selector `%s`", ErrUnsupported, it.Expr)
		}
		aggregate = aggregate || it.Aggregate()
	}

	names := make([]string, len(q.Select))
	for idx, it := range q.Select {
		names[idx] = it.Name()
	}
	builder := result.NewBuilder(names...)

	if !aggregate {
		for _, row := range indices {
			values := make([]any, len(q.Select))
			for idx, it := range q.Select {
				col, colErr := t.data.Column(it.Field)
				if colErr != nil {
					return nil, colErr
				}
				values[idx] = col.Value(int(row))
			}
			if appendErr := builder.Append(values); appendErr != nil {
				return nil, appendErr
			}
		}
	} else {

		groups, groupErr := t.group(q.GroupBy, indices)
		if groupErr != nil {
			return nil, groupErr
		}

		// a plain aggregate over zero rows still yields one row
		if len(q.GroupBy) == 0 && len(groups) == 0 {
			groups = []*group{{}}
		}

		filters := make(map[int][]uint32)
		for idx, it := range q.Select {
			if it.Type == query.SelectCountWhere {
				matched, filterErr := t.filter(it.Filter)
				if filterErr != nil {
					return nil, filterErr
				}
				filters[idx] = matched
			}
		}

		for _, g := range groups {
			values := make([]any, len(q.Select))
			for idx, it := range q.Select {
				v, aggErr := t.aggregate(it, q.GroupBy, g, filters[idx])
				if aggErr != nil {
					return nil, aggErr
				}
				values[idx] = v
			}
			if appendErr := builder.Append(values); appendErr != nil {
				return nil, appendErr
			}
		}
	}

	for idx, it := range q.Select {
		builder.Hint(idx, t.outputType(it))
	}

	table, buildErr := builder.Build()
	if buildErr != nil {
		return nil, buildErr
	}

	return orderAndLimit(table, q.OrderBy, q.Limit)
}

func (t *table) outputType(s query.Selector) schema.FieldType {
	switch s.Type {
	case query.SelectCount, query.SelectCountWhere:
		return schema.Int64FieldType
	case query.SelectAvg:
		return schema.Float64FieldType
	default:
		col, _, err := t.schema.Column(s.Field)
		if err != nil {
			return schema.UnknownFieldType
		}
		return col.Type
	}
}

func groupKey(cols []result.Column, row int) string {
	var sb strings.Builder
	for _, col := range cols {
		if col.IsNull(row) {
			sb.WriteString("\x01")
		} else {
			fmt.Fprint(&sb, col.Value(row))
		}
		sb.WriteByte(0)
	}
	return sb.String()
}

// group partitions indices by the group by columns, in order of first appearance.
func (t *table) group(by []string, indices []uint32) ([]*group, error) {

	if len(by) == 0 {
		if len(indices) == 0 {
			return nil, nil
		}
		return []*group{{first: indices[0], indices: indices}}, nil
	}

	cols := make([]result.Column, len(by))
	for idx, name := range by {
		col, colErr := t.data.Column(name)
		if colErr != nil {
			return nil, colErr
		}
		cols[idx] = col
	}

	var (
		ordered []*group
		byKey   = make(map[string]*group)
	)

	for _, row := range indices {
		key := groupKey(cols, int(row))
		g, ok := byKey[key]
		if !ok {
			g = &group{first: row}
			byKey[key] = g
			ordered = append(ordered, g)
		}
		g.indices = append(g.indices, row)
	}

	return ordered, nil
}

func (t *table) aggregate(s query.Selector, groupBy []string, g *group, matched []uint32) (any, error) {

	switch s.Type {
	case query.SelectCount:
		return int64(len(g.indices)), nil
	case query.SelectCountWhere:
		scratch := make([]uint32, min(len(g.indices), len(matched)))
		return int64(lists.Intersect(g.indices, matched, scratch)), nil
	}

	col, colErr := t.data.Column(s.Field)
	if colErr != nil {
		return nil, colErr
	}

	if s.Type == query.SelectColumn {
		grouped := false
		for _, it := range groupBy {
			grouped = grouped || it == s.Field
		}
		if !grouped {
			return nil, fmt.Errorf("column `%s` must appear in group by", s.Field)
		}
		return col.Value(int(g.first)), nil
	}

	rows := dropNulls(col, append([]uint32(nil), g.indices...))
	if len(rows) == 0 {
		return nil, nil
	}

	switch typed := col.(type) {
	case *result.Int64Column:
		return numericAggregate(s.Type, typed.Values, rows)
	case *result.Float64Column:
		return numericAggregate(s.Type, typed.Values, rows)
	default:
		return nil, fmt.Errorf("%w: %s over text column `%s`", ErrUnsupported, s.Type, s.Field)
	}
}

func numericAggregate[T ops.NumericTypes](typ query.SelectorType, values []T, rows []uint32) (any, error) {

	var res T

	switch typ {
	case query.SelectSum:
		var sum T
		for _, idx := range rows {
			sum += values[idx]
		}
		res = sum
	case query.SelectAvg:
		return ops.SumAt(values, rows) / float64(len(rows)), nil
	case query.SelectMin, query.SelectMax:
		bounds, _ := ops.GetMaxMinAt(values, rows)
		res = bounds.Max
		if typ == query.SelectMin {
			res = bounds.Min
		}
	default:
		return nil, fmt.Errorf("%w: selector %s", ErrUnsupported, typ)
	}

	return any(res), nil
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmp.Compare(av, bv)
		case float64:
			return cmp.Compare(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return cmp.Compare(av, float64(bv))
		case float64:
			return cmp.Compare(av, bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func orderAndLimit(table *result.Table, orderBy []query.Order, limit int) (*result.Table, error) {

	rows := table.NumRows()

	if len(orderBy) == 0 && (limit <= 0 || limit >= rows) {
		return table, nil
	}

	cols := make([]result.Column, len(orderBy))
	for idx, it := range orderBy {
		col, colErr := table.Column(it.Field)
		if colErr != nil {
			return nil, fmt.Errorf("order by: %w", colErr)
		}
		cols[idx] = col
	}

	perm := make([]int, rows)
	for idx := range perm {
		perm[idx] = idx
	}

	sort.SliceStable(perm, func(i, j int) bool {
		for idx, it := range orderBy {
			c := compareValues(cols[idx].Value(perm[i]), cols[idx].Value(perm[j]))
			if c == 0 {
				continue
			}
			if it.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	if limit > 0 && limit < rows {
		perm = perm[:limit]
	}

	return reorder(table, perm)
}

func reorder(table *result.Table, perm []int) (*result.Table, error) {

	columns := make([]result.Column, 0, table.NumColumns())

	for _, col := range table.Columns() {

		nullMask := make([]bool, len(perm))
		for idx, row := range perm {
			nullMask[idx] = col.IsNull(row)
		}

		switch typed := col.(type) {
		case *result.Int64Column:
			values := make([]int64, len(perm))
			for idx, row := range perm {
				values[idx] = typed.Values[row]
			}
			columns = append(columns, result.NewInt64Column(col.Name(), values, nullMask))
		case *result.Float64Column:
			values := make([]float64, len(perm))
			for idx, row := range perm {
				values[idx] = typed.Values[row]
			}
			columns = append(columns, result.NewFloat64Column(col.Name(), values, nullMask))
		case *result.StringColumn:
			values := make([]string, len(perm))
			for idx, row := range perm {
				values[idx] = typed.Values[row]
			}
			columns = append(columns, result.NewStringColumn(col.Name(), values, nullMask))
		default:
			return nil, fmt.Errorf("unsupported column `%s`", col.Name())
		}
	}

	return result.NewTable(columns...)
}
