package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

func cellsEngine(t *testing.T) *Engine {
	t.Helper()

	data, err := result.NewTable(
		result.NewStringColumn("cluster", []string{"0", "1", "0", "2", "1", "0", "2", "2", "0", "1"}, nil),
		result.NewInt64Column("nFeature_RNA", []int64{120, 300, 80, 450, 220, 150, 90, 610, 330, 205}, nil),
		result.NewFloat64Column("percent_mt", []float64{1.5, 4.0, 7.2, 0.5, 3.3, 2.0, 9.1, 1.1, 5.5, 0.0}, nil),
		result.NewFloat64Column("gene_CD3E", []float64{0, 2, 0, 1, 0, 3, 0, 0, 1, 0}, nil),
	)
	if err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	if err := e.Load("cells", data); err != nil {
		t.Fatal(err)
	}
	return e
}

func run(t *testing.T, e *Engine, q *query.Query) *result.Table {
	t.Helper()

	table, err := e.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("query %s failed: %s", q.SQL(), err)
	}
	return table
}

func TestGroupByWithFilter(t *testing.T) {
	e := cellsEngine(t)

	table := run(t, e, &query.Query{
		From:    "cells",
		Select:  []query.Selector{query.Column("cluster"), query.Count("n"), query.Max("nFeature_RNA", "max_features")},
		Filter:  query.Between("percent_mt", 0, 5),
		GroupBy: []string{"cluster"},
		OrderBy: []query.Order{{Field: "cluster"}},
	})

	want := []map[string]any{
		{"cluster": "0", "n": int64(2), "max_features": int64(150)},
		{"cluster": "1", "n": int64(3), "max_features": int64(300)},
		{"cluster": "2", "n": int64(2), "max_features": int64(610)},
	}
	if diff := cmp.Diff(want, table.Rows()); diff != "" {
		t.Errorf("grouped result (-want +got):\n%s", diff)
	}
}

func TestCountWhereRates(t *testing.T) {
	e := cellsEngine(t)

	table := run(t, e, &query.Query{
		From:   "cells",
		Select: []query.Selector{query.Count("total"), query.CountWhere(query.Gt("gene_CD3E", 0), "expressing")},
	})

	total, _ := table.Int64("total", 0)
	expressing, _ := table.Int64("expressing", 0)
	if total != 10 || expressing != 4 {
		t.Errorf("expected 10 total and 4 expressing, got %d and %d", total, expressing)
	}
}

func TestOrderAndLimit(t *testing.T) {
	e := cellsEngine(t)

	table := run(t, e, &query.Query{
		From:    "cells",
		Select:  []query.Selector{query.Column("nFeature_RNA")},
		Filter:  query.OrOf(query.Eq("cluster", "2"), query.NotOf(query.Gte("nFeature_RNA", 150))),
		OrderBy: []query.Order{{Field: "nFeature_RNA", Desc: true}},
		Limit:   3,
	})

	col, _ := table.Column("nFeature_RNA")
	got := col.(*result.Int64Column).Values
	if diff := cmp.Diff([]int64{610, 450, 120}, got); diff != "" {
		t.Errorf("ordered rows (-want +got):\n%s\n%s", diff, spew.Sdump(table.Rows()))
	}
}

func TestIntegerColumnWithFractionalRange(t *testing.T) {
	e := cellsEngine(t)

	table := run(t, e, &query.Query{
		From:   "cells",
		Select: []query.Selector{query.Count("n")},
		Filter: query.Between("nFeature_RNA", 99.5, 220.5),
	})

	if n, _ := table.Int64("n", 0); n != 4 {
		t.Errorf("expected 4 rows in [99.5, 220.5], got %d", n)
	}
}

func TestRangeCoveringWholeColumn(t *testing.T) {
	e := cellsEngine(t)

	table := run(t, e, &query.Query{
		From:   "cells",
		Select: []query.Selector{query.Count("n")},
		Filter: query.AndOf(query.Between("percent_mt", -1, 100), query.In("cluster", "0", 1)),
	})

	if n, _ := table.Int64("n", 0); n != 7 {
		t.Errorf("expected 7 rows, got %d", n)
	}
}

func TestEmptyAggregate(t *testing.T) {
	e := cellsEngine(t)

	table := run(t, e, &query.Query{
		From:   "cells",
		Select: []query.Selector{query.Count("n"), query.Avg("percent_mt", "avg_mt")},
		Filter: query.Gt("percent_mt", 1000),
	})

	if table.NumRows() != 1 {
		t.Fatalf("expected a single row, got %d", table.NumRows())
	}
	if n, _ := table.Int64("n", 0); n != 0 {
		t.Errorf("expected zero count, got %d", n)
	}
	if v, _ := table.Value("avg_mt", 0); v != nil {
		t.Errorf("expected null average, got %v", v)
	}

	col, _ := table.Column("avg_mt")
	if col.Type() != schema.Float64FieldType {
		t.Errorf("expected float average column, got %s", col.Type())
	}
}

func TestUnsupported(t *testing.T) {
	e := cellsEngine(t)
	ctx := context.Background()

	_, err := e.Query(ctx, &query.Query{From: "cells", Select: []query.Selector{query.Count("n")}, Filter: query.RawSQL("1 = 1")})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for raw predicate, got %v", err)
	}

	_, err = e.Query(ctx, &query.Query{From: "cells", Select: []query.Selector{query.Count("n")}, Filter: query.Gt("cluster", "1")})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for ordering on text, got %v", err)
	}

	_, err = e.Query(ctx, &query.Query{From: "genes", Select: []query.Selector{query.Count("n")}})
	if !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}

	if err := e.Exec(ctx, "CREATE TABLE t (a INT)"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected exec to be unsupported, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	e := cellsEngine(t)

	s, err := e.Describe(context.Background(), "cells")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"gene_CD3E"}, s.ColumnsWithPrefix("gene_")); diff != "" {
		t.Errorf("gene columns (-want +got):\n%s", diff)
	}
	if s.Name != "cells" {
		t.Errorf("expected schema name cells, got %s", s.Name)
	}
}
