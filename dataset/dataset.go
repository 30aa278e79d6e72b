// Package dataset generates a synthetic single cell table with the columns
// the overview screen reads.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/dot5enko/tessera/result"
)

var ErrNoCells = errors.New("dataset needs at least one cell and one cluster")

var DefaultGenes = []string{
	"gene_SCGB1A1",
	"gene_IGLC1",
	"gene_IGHG1",
	"gene_SCGB3A2",
	"gene_BPIFB1",
	"gene_IGKC",
	"gene_CXCL8",
	"gene_COL1A1",
	"gene_IL6",
	"gene_JCHAIN",
}

type Options struct {
	Cells    int
	Clusters int
	// Genes defaults to DefaultGenes; names keep their gene_ prefix.
	Genes []string
	Seed  uint64
}

// Generate returns a deterministic table for a given seed. Cells of a
// cluster share a UMAP centre, a quality profile and the genes they express.
func Generate(opts Options) (*result.Table, error) {

	if opts.Cells <= 0 || opts.Clusters <= 0 {
		return nil, ErrNoCells
	}
	if opts.Genes == nil {
		opts.Genes = DefaultGenes
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	n := opts.Cells
	clusters := make([]string, n)
	umap1 := make([]float64, n)
	umap2 := make([]float64, n)
	features := make([]int64, n)
	counts := make([]int64, n)
	mito := make([]float64, n)

	genes := make([][]float64, len(opts.Genes))
	for idx := range genes {
		genes[idx] = make([]float64, n)
	}

	for row := 0; row < n; row++ {

		k := rng.IntN(opts.Clusters)
		clusters[row] = strconv.Itoa(k)

		angle := 2 * math.Pi * float64(k) / float64(opts.Clusters)
		umap1[row] = round(8*math.Cos(angle)+rng.NormFloat64()*1.2, 3)
		umap2[row] = round(8*math.Sin(angle)+rng.NormFloat64()*1.2, 3)

		f := 500 + 150*float64(k) + rng.NormFloat64()*120
		features[row] = int64(math.Max(50, f))
		counts[row] = int64(float64(features[row]) * (1.5 + rng.Float64()*1.5))

		mt := 2 + math.Abs(rng.NormFloat64()*2)
		// the last cluster stands in for dying cells
		if k == opts.Clusters-1 {
			mt += 6
		}
		mito[row] = round(math.Min(mt, 100), 2)

		for g := range opts.Genes {
			p := 0.1
			if g%opts.Clusters == k {
				p = 0.7
			}
			if rng.Float64() < p {
				genes[g][row] = round(rng.ExpFloat64()*2, 2)
			}
		}
	}

	cols := []result.Column{
		result.NewStringColumn("cluster", clusters, nil),
		result.NewFloat64Column("UMAP_1", umap1, nil),
		result.NewFloat64Column("UMAP_2", umap2, nil),
		result.NewInt64Column("nFeature_RNA", features, nil),
		result.NewInt64Column("nCount_RNA", counts, nil),
		result.NewFloat64Column("percent_mt", mito, nil),
	}
	for idx, name := range opts.Genes {
		cols = append(cols, result.NewFloat64Column(name, genes[idx], nil))
	}

	table, tableErr := result.NewTable(cols...)
	if tableErr != nil {
		return nil, fmt.Errorf("unable to assemble dataset: %w", tableErr)
	}

	return table, nil
}

func round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
