package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type sqlWriter struct {
	b strings.Builder

	placeholders bool
	args         []any
}

// SQL renders the query with inline literals.
func (q *Query) SQL() string {
	w := &sqlWriter{}
	w.query(q)
	return w.b.String()
}

// SQLArgs renders the query with `?` placeholders and returns the bound values.
func (q *Query) SQLArgs() (string, []any) {
	w := &sqlWriter{placeholders: true}
	w.query(q)
	return w.b.String(), w.args
}

// PredicateSQL renders a predicate alone; nil renders as an empty string.
func PredicateSQL(p Predicate) string {
	if p == nil {
		return ""
	}
	w := &sqlWriter{}
	w.predicate(p, false)
	return w.b.String()
}

func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func QuoteLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case fmt.Stringer:
		return QuoteLiteral(val.String())
	default:
		return QuoteLiteral(fmt.Sprint(val))
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (w *sqlWriter) query(q *Query) {

	w.b.WriteString("SELECT ")
	for i, it := range q.Select {
		if i > 0 {
			w.b.WriteString(", ")
		}
		w.selector(it)
	}

	w.b.WriteString(" FROM ")
	w.b.WriteString(QuoteIdentifier(q.From))

	if q.Filter != nil {
		w.b.WriteString(" WHERE ")
		w.predicate(q.Filter, false)
	}

	if len(q.GroupBy) > 0 {
		w.b.WriteString(" GROUP BY ")
		for i, it := range q.GroupBy {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.b.WriteString(QuoteIdentifier(it))
		}
	}

	if len(q.OrderBy) > 0 {
		w.b.WriteString(" ORDER BY ")
		for i, it := range q.OrderBy {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.b.WriteString(QuoteIdentifier(it.Field))
			if it.Desc {
				w.b.WriteString(" DESC")
			}
		}
	}

	if q.Limit > 0 {
		w.b.WriteString(" LIMIT ")
		w.b.WriteString(strconv.Itoa(q.Limit))
	}
}

func (w *sqlWriter) selector(s Selector) {

	switch s.Type {
	case SelectColumn:
		w.b.WriteString(QuoteIdentifier(s.Field))
		if s.Alias != "" && s.Alias != s.Field {
			w.alias(s.Alias)
		}
		return
	case SelectCount:
		w.b.WriteString("COUNT(*)")
	case SelectSum, SelectAvg, SelectMin, SelectMax:
		w.b.WriteString(strings.ToUpper(s.Type.String()))
		w.b.WriteString("(")
		w.b.WriteString(QuoteIdentifier(s.Field))
		w.b.WriteString(")")
	case SelectCountWhere:
		w.b.WriteString("SUM(CASE WHEN ")
		w.predicate(s.Filter, false)
		w.b.WriteString(" THEN 1 ELSE 0 END)")
	case SelectExpr:
		w.b.WriteString(s.Expr)
	}

	w.alias(s.Name())
}

func (w *sqlWriter) alias(name string) {
	w.b.WriteString(" AS ")
	w.b.WriteString(QuoteIdentifier(name))
}

func (w *sqlWriter) literal(v any) {
	if w.placeholders && v != nil {
		w.b.WriteString("?")
		w.args = append(w.args, v)
		return
	}
	w.b.WriteString(QuoteLiteral(v))
}

func (w *sqlWriter) predicate(p Predicate, nested bool) {

	switch v := p.(type) {
	case Condition:
		w.condition(v)
	case And:
		w.junction(v, " AND ", nested)
	case Or:
		w.junction(v, " OR ", nested)
	case Not:
		w.b.WriteString("NOT (")
		w.predicate(v.Inner, false)
		w.b.WriteString(")")
	case Raw:
		w.b.WriteString("(")
		w.b.WriteString(v.SQL)
		w.b.WriteString(")")
	}
}

func (w *sqlWriter) junction(items []Predicate, sep string, nested bool) {
	if nested {
		w.b.WriteString("(")
	}
	for i, it := range items {
		if i > 0 {
			w.b.WriteString(sep)
		}
		w.predicate(it, true)
	}
	if nested {
		w.b.WriteString(")")
	}
}

func (w *sqlWriter) condition(c Condition) {

	w.b.WriteString(QuoteIdentifier(c.Field))

	switch c.Operand {
	case RANGE:
		w.b.WriteString(" BETWEEN ")
		w.literal(c.Arguments[0])
		w.b.WriteString(" AND ")
		w.literal(c.Arguments[1])
	case IN:
		w.b.WriteString(" IN (")
		for i, it := range c.Arguments {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.literal(it)
		}
		w.b.WriteString(")")
	default:
		w.b.WriteString(" ")
		w.b.WriteString(c.Operand.sqlOperator())
		w.b.WriteString(" ")
		w.literal(c.Arguments[0])
	}
}
