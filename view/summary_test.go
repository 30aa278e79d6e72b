package view

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dot5enko/tessera/connector/memory"
	"github.com/dot5enko/tessera/connector/sqlite"
	"github.com/dot5enko/tessera/coordinator"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
	"github.com/dot5enko/tessera/selection"
)

func cellsTable(t *testing.T) *result.Table {
	t.Helper()

	data, err := result.NewTable(
		result.NewStringColumn("cluster", []string{"0", "1", "0", "2", "1", "0", "2", "2"}, nil),
		result.NewInt64Column("nFeature_RNA", []int64{100, 200, 300, 400, 500, 600, 700, 800}, nil),
		result.NewInt64Column("nCount_RNA", []int64{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000}, nil),
		result.NewFloat64Column("percent_mt", []float64{1, 2, 3, 4, 5, 6, 7, 8}, nil),
		result.NewFloat64Column("gene_A", []float64{0, 1, 0, 2, 0, 0, 0, 3}, nil),
		result.NewFloat64Column("gene_B", []float64{1, 1, 1, 0, 1, 1, 1, 0}, nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func cellsCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()

	engine := memory.New(nil)
	if err := engine.Load("cells", cellsTable(t)); err != nil {
		t.Fatal(err)
	}

	c := coordinator.New(engine, coordinator.Config{})
	t.Cleanup(func() { c.Close() })

	return c
}

func TestSelectionSummaryZeroFills(t *testing.T) {
	c := cellsCoordinator(t)
	filter := selection.Intersect()

	var (
		mu   sync.Mutex
		last Summary
	)

	summary, err := NewSelectionSummary(c, SummaryOptions{
		Table:     "cells",
		Selection: filter,
		Averages:  true,
		OnUpdate: func(s Summary) {
			mu.Lock()
			last = s
			mu.Unlock()
		},
		OnError: func(err error) { t.Error(err) },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer summary.Destroy()

	_ = filter.Update(selection.ClientID{1}, nil, query.Lte("nFeature_RNA", 300))
	summary.Wait()

	mu.Lock()
	got := last
	mu.Unlock()

	want := Summary{
		Total:        8,
		Filtered:     3,
		AvgFeatures:  200,
		AvgCount:     2000,
		AvgPercentMT: 2,
		Categories: []CategoryCount{
			{Category: "0", Count: 2},
			{Category: "1", Count: 1},
			{Category: "2", Count: 0},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestExpressionRates(t *testing.T) {
	c := cellsCoordinator(t)

	genes, err := FetchGeneColumns(context.Background(), c, "cells")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"gene_A", "gene_B"}, genes); diff != "" {
		t.Fatalf("gene columns mismatch (-want +got):\n%s", diff)
	}

	filter := selection.Intersect()
	var (
		mu   sync.Mutex
		last []GeneRate
	)

	rates, err := NewExpressionRates(c, RatesOptions{
		Table:     "cells",
		Genes:     genes,
		Selection: filter,
		OnUpdate: func(r []GeneRate) {
			mu.Lock()
			last = r
			mu.Unlock()
		},
		OnError: func(err error) { t.Error(err) },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rates.Destroy()
	rates.Wait()

	mu.Lock()
	got := last
	mu.Unlock()

	want := []GeneRate{{Gene: "B", Rate: 75}, {Gene: "A", Rate: 37.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rates mismatch (-want +got):\n%s", diff)
	}

	_ = filter.Update(selection.ClientID{1}, nil, query.Eq("cluster", "2"))
	rates.Wait()

	mu.Lock()
	got = last
	mu.Unlock()

	want = []GeneRate{{Gene: "A", Rate: 200.0 / 3}, {Gene: "B", Rate: 100.0 / 3}}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("filtered rates mismatch (-want +got):\n%s", diff)
	}
}

func sqliteCellsCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()

	conn, err := sqlite.Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Load(context.Background(), "cells", cellsTable(t)); err != nil {
		t.Fatal(err)
	}

	c := coordinator.New(conn, coordinator.Config{})
	t.Cleanup(func() { c.Close() })

	return c
}

func TestExpressionRatesWithoutMatches(t *testing.T) {

	engines := map[string]func(*testing.T) *coordinator.Coordinator{
		"memory": cellsCoordinator,
		"sqlite": sqliteCellsCoordinator,
	}

	for name, open := range engines {
		c := open(t)
		filter := selection.Intersect()
		_ = filter.Update(selection.ClientID{1}, nil, query.Eq("cluster", "9"))

		var (
			mu   sync.Mutex
			last []GeneRate
		)

		rates, err := NewExpressionRates(c, RatesOptions{
			Table:     "cells",
			Genes:     []string{"gene_A", "gene_B"},
			Selection: filter,
			OnUpdate: func(r []GeneRate) {
				mu.Lock()
				last = r
				mu.Unlock()
			},
			OnError: func(err error) { t.Errorf("%s: %s", name, err) },
		})
		if err != nil {
			t.Fatal(err)
		}
		rates.Wait()
		rates.Destroy()

		mu.Lock()
		got := last
		mu.Unlock()

		want := []GeneRate{{Gene: "A", Rate: 0}, {Gene: "B", Rate: 0}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: rates mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestCatalogue(t *testing.T) {
	c := cellsCoordinator(t)
	ctx := context.Background()

	values, err := FetchColumnValues(ctx, c, "cells", "cluster")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"0", "1", "2"}, values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	n, err := FetchColumnCounts(ctx, c, "cells", "cluster")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 distinct clusters, got %d", n)
	}

	total, err := FetchTotal(ctx, c, "cells")
	if err != nil {
		t.Fatal(err)
	}
	if total != 8 {
		t.Errorf("expected 8 rows, got %d", total)
	}

	s, err := c.Describe(ctx, "cells")
	if err != nil {
		t.Fatal(err)
	}
	if col, _, _ := s.Column("gene_A"); col.Type != schema.Float64FieldType {
		t.Errorf("gene_A described as %s", col.Type)
	}
}
