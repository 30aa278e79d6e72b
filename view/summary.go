package view

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dot5enko/tessera/client"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/selection"
)

const DefaultRateLimit = 25

type CategoryCount struct {
	Category string
	Count    int64
}

// Summary describes the rows passing a selection, broken down per category.
type Summary struct {
	Total    int64
	Filtered int64

	AvgFeatures  float64
	AvgCount     float64
	AvgPercentMT float64

	Categories []CategoryCount
}

type SummaryOptions struct {
	Table     string
	Column    string
	Selection *selection.Selection

	// Averages adds the mean quality metrics of the filtered rows.
	Averages bool

	OnUpdate func(Summary)
	OnError  func(error)
	Logger   *slog.Logger
}

// categoryCounter zero-fills filtered group counts against the unfiltered
// category enumeration. Engines omit empty groups, so the enumeration is
// a separate unfiltered query run once in prepare.
type categoryCounter struct {
	mu         sync.Mutex
	total      int64
	categories []string
}

func (cc *categoryCounter) prepare(ctx context.Context, q Querier, table, column string) error {

	var (
		total      int64
		categories []string
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() (err error) {
		total, err = FetchTotal(groupCtx, q, table)
		return err
	})
	group.Go(func() (err error) {
		categories, err = FetchColumnValues(groupCtx, q, table, column)
		return err
	})

	if waitErr := group.Wait(); waitErr != nil {
		return waitErr
	}

	cc.mu.Lock()
	cc.total = total
	cc.categories = categories
	cc.mu.Unlock()

	return nil
}

func (cc *categoryCounter) fill(data *result.Table, column string) (Summary, error) {

	counts := make(map[string]int64, data.NumRows())
	order := make([]string, 0, data.NumRows())

	for row := 0; row < data.NumRows(); row++ {
		category, labelErr := data.Label(column, row)
		if labelErr != nil {
			return Summary{}, labelErr
		}
		count, countErr := data.Number("count", row)
		if countErr != nil {
			return Summary{}, countErr
		}
		counts[category] = int64(count)
		order = append(order, category)
	}

	cc.mu.Lock()
	s := Summary{Total: cc.total}
	known := make(map[string]struct{}, len(cc.categories))
	for _, it := range cc.categories {
		known[it] = struct{}{}
		s.Categories = append(s.Categories, CategoryCount{Category: it, Count: counts[it]})
	}
	cc.mu.Unlock()

	// groups missing from the enumeration still count
	for _, it := range order {
		if _, ok := known[it]; !ok {
			s.Categories = append(s.Categories, CategoryCount{Category: it, Count: counts[it]})
		}
	}

	for _, it := range s.Categories {
		s.Filtered += it.Count
	}

	return s, nil
}

var averaged = []struct {
	column string
	alias  string
}{
	{"nFeature_RNA", "avgFeatures"},
	{"nCount_RNA", "avgCount"},
	{"percent_mt", "avgMT"},
}

// NewSelectionSummary keeps per category counts of the rows passing a
// selection. The first callback comes after the unfiltered total and the
// category enumeration are known.
func NewSelectionSummary(coord client.Coordinator, opts SummaryOptions) (*client.Client, error) {

	if opts.Column == "" {
		opts.Column = "cluster"
	}

	counter := &categoryCounter{}

	build := func(p query.Predicate) (*query.Query, error) {
		q := &query.Query{
			From:    opts.Table,
			Select:  []query.Selector{query.Column(opts.Column), query.Count("count")},
			Filter:  p,
			GroupBy: []string{opts.Column},
			OrderBy: []query.Order{{Field: opts.Column}},
		}
		if opts.Averages {
			for _, it := range averaged {
				q.Select = append(q.Select, query.Avg(it.column, it.alias))
			}
		}
		return q, nil
	}

	onResult := func(data *result.Table) {
		s, fillErr := counter.fill(data, opts.Column)
		if fillErr != nil {
			if opts.OnError != nil {
				opts.OnError(fillErr)
			}
			return
		}

		if opts.Averages && s.Filtered > 0 {
			weighted := make([]float64, len(averaged))
			for row := 0; row < data.NumRows(); row++ {
				count, _ := data.Number("count", row)
				for idx, it := range averaged {
					avg, _ := data.Number(it.alias, row)
					weighted[idx] += avg * count
				}
			}
			s.AvgFeatures = weighted[0] / float64(s.Filtered)
			s.AvgCount = weighted[1] / float64(s.Filtered)
			s.AvgPercentMT = weighted[2] / float64(s.Filtered)
		}

		if opts.OnUpdate != nil {
			opts.OnUpdate(s)
		}
	}

	return client.New(coord, client.Options{
		Selection: opts.Selection,
		Query:     build,
		Result:    onResult,
		Error:     opts.OnError,
		Prepare: func(ctx context.Context) error {
			return counter.prepare(ctx, coord, opts.Table, opts.Column)
		},
		FilterStable: true,
		Logger:       opts.Logger,
	})
}

// NewColumnCounts is the count only summary of any categorical column.
func NewColumnCounts(coord client.Coordinator, sel *selection.Selection, table, column string, onUpdate func(Summary), onError func(error)) (*client.Client, error) {
	return NewSelectionSummary(coord, SummaryOptions{
		Table:     table,
		Column:    column,
		Selection: sel,
		OnUpdate:  onUpdate,
		OnError:   onError,
	})
}

type GeneRate struct {
	Gene string
	// Rate is the percentage of filtered cells expressing the gene.
	Rate float64
}

type RatesOptions struct {
	Table     string
	Genes     []string
	Selection *selection.Selection
	// Limit defaults to DefaultRateLimit.
	Limit int

	OnUpdate func([]GeneRate)
	OnError  func(error)
	Logger   *slog.Logger
}

// NewExpressionRates ranks genes by the share of filtered cells with non-zero
// expression.
func NewExpressionRates(coord client.Coordinator, opts RatesOptions) (*client.Client, error) {

	if opts.Limit <= 0 {
		opts.Limit = DefaultRateLimit
	}

	build := func(p query.Predicate) (*query.Query, error) {
		if len(opts.Genes) == 0 {
			return nil, nil
		}

		q := &query.Query{From: opts.Table, Filter: p}
		for _, gene := range opts.Genes {
			q.Select = append(q.Select, query.CountWhere(query.Gt(gene, 0), "count_"+gene))
		}
		q.Select = append(q.Select, query.Count("total_count"))

		return q, nil
	}

	onResult := func(data *result.Table) {
		total, totalErr := aggregate(data, "total_count")
		if totalErr != nil {
			if opts.OnError != nil {
				opts.OnError(totalErr)
			}
			return
		}

		rates := make([]GeneRate, 0, len(opts.Genes))
		for _, gene := range opts.Genes {
			expressed, countErr := aggregate(data, "count_"+gene)
			if countErr != nil {
				if opts.OnError != nil {
					opts.OnError(countErr)
				}
				return
			}
			rate := 0.0
			if total > 0 {
				rate = expressed / total * 100
			}
			rates = append(rates, GeneRate{Gene: GeneLabel(gene), Rate: rate})
		}

		sort.SliceStable(rates, func(i, j int) bool {
			return rates[i].Rate > rates[j].Rate
		})
		if len(rates) > opts.Limit {
			rates = rates[:opts.Limit]
		}

		if opts.OnUpdate != nil {
			opts.OnUpdate(rates)
		}
	}

	return client.New(coord, client.Options{
		Selection:    opts.Selection,
		Query:        build,
		Result:       onResult,
		Error:        opts.OnError,
		FilterStable: true,
		Logger:       opts.Logger,
	})
}

// aggregate reads a single-row aggregate. SQLite returns NULL for SUM over
// zero rows, which counts as 0.
func aggregate(data *result.Table, name string) (float64, error) {
	v, valueErr := data.Value(name, 0)
	if valueErr != nil {
		return 0, valueErr
	}
	if v == nil {
		return 0, nil
	}
	return data.Number(name, 0)
}
