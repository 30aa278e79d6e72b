package dataset

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateDeterministic(t *testing.T) {

	a, err := Generate(Options{Cells: 200, Clusters: 4, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(Options{Cells: 200, Clusters: 4, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(a.Rows(), b.Rows()); diff != "" {
		t.Errorf("same seed produced different tables:\n%s", diff)
	}

	if a.NumRows() != 200 {
		t.Errorf("expected 200 rows, got %d", a.NumRows())
	}
	if got, want := a.NumColumns(), 6+len(DefaultGenes); got != want {
		t.Errorf("expected %d columns, got %d", want, got)
	}
}

func TestGenerateRanges(t *testing.T) {

	table, err := Generate(Options{Cells: 500, Clusters: 3, Genes: []string{"gene_A"}, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}

	for row := 0; row < table.NumRows(); row++ {
		cluster, _ := table.String("cluster", row)
		if cluster != "0" && cluster != "1" && cluster != "2" {
			t.Fatalf("row %d: unexpected cluster %q", row, cluster)
		}

		features, _ := table.Int64("nFeature_RNA", row)
		counts, _ := table.Int64("nCount_RNA", row)
		if features < 50 || counts < features {
			t.Fatalf("row %d: features %d counts %d", row, features, counts)
		}

		mt, _ := table.Float64("percent_mt", row)
		if mt < 0 || mt > 100 {
			t.Fatalf("row %d: percent_mt %f", row, mt)
		}

		expr, _ := table.Float64("gene_A", row)
		if expr < 0 {
			t.Fatalf("row %d: negative expression %f", row, expr)
		}
	}
}

func TestGenerateRejectsEmpty(t *testing.T) {
	if _, err := Generate(Options{Clusters: 2}); !errors.Is(err, ErrNoCells) {
		t.Errorf("expected ErrNoCells, got %v", err)
	}
}
