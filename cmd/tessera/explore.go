package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dot5enko/tessera/connector"
	"github.com/dot5enko/tessera/coordinator"
	"github.com/dot5enko/tessera/dataset"
	"github.com/dot5enko/tessera/plot"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
	"github.com/dot5enko/tessera/view"
)

// textRenderer reports plot updates as lines of text.
type textRenderer struct {
	name string
	out  io.Writer
	mu   *sync.Mutex
}

func (r textRenderer) Render(data *result.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, " %-16s %d rows\n", r.name, data.NumRows())
}

func (r textRenderer) Highlight(data *result.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, " %-16s %d highlighted\n", r.name, data.NumRows())
}

func (r textRenderer) ClearBrush() {}

func (r textRenderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	color.New(color.FgRed).Fprintf(r.out, " %-16s %s\n", r.name, err)
}

// parseRange reads "min:max".
func parseRange(text string) (schema.BoundsFloat, error) {
	from, to, ok := strings.Cut(text, ":")
	if !ok {
		return schema.BoundsFloat{}, fmt.Errorf("range %q is not min:max", text)
	}
	a, aErr := strconv.ParseFloat(from, 64)
	if aErr != nil {
		return schema.BoundsFloat{}, aErr
	}
	b, bErr := strconv.ParseFloat(to, 64)
	if bErr != nil {
		return schema.BoundsFloat{}, bErr
	}
	return schema.NewBoundsFromValues(a, b), nil
}

type exploreFlags struct {
	cells    int
	clusters int
	seed     uint64

	fill    string
	gene    string
	gene2   string
	compare string

	clusterPicks []string
	umap         []string
	qc           []string
	dump         bool
}

func (f exploreFlags) viewFill() view.Fill {
	switch {
	case f.gene != "" && f.gene2 != "":
		return view.GenesFill(f.gene, f.gene2, view.CompareMode(f.compare))
	case f.gene != "":
		return view.GeneFill(f.gene)
	default:
		return view.ColumnFill(f.fill)
	}
}

func newExploreCommand(st *state) *cobra.Command {

	f := exploreFlags{}

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Run the single cell overview headless and print its summaries.",
		Long: `explore mounts the overview screen against the configured backend,
applies the given brushes and prints what every plot and summary receives.
In process transports are filled with a synthetic dataset first.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return explore(cmd.Context(), st, f)
		},
	}

	cmd.Flags().IntVar(&f.cells, "cells", 2000, "Synthetic cells for in process transports.")
	cmd.Flags().IntVar(&f.clusters, "clusters", 6, "Synthetic clusters.")
	cmd.Flags().Uint64Var(&f.seed, "seed", 1, "Synthetic dataset seed.")
	cmd.Flags().StringVar(&f.fill, "fill", "cluster", "Column coloring the UMAP.")
	cmd.Flags().StringVar(&f.gene, "gene", "", "Gene column coloring the UMAP.")
	cmd.Flags().StringVar(&f.gene2, "gene2", "", "Second gene for coexpression.")
	cmd.Flags().StringVar(&f.compare, "compare", string(view.CompareCategorical), "Coexpression mode: addition, geometric, logfold or categorical.")
	cmd.Flags().StringSliceVar(&f.clusterPicks, "cluster", nil, "Clusters to pick in the legend.")
	cmd.Flags().StringSliceVar(&f.umap, "umap", nil, "UMAP brush as x0:x1,y0:y1.")
	cmd.Flags().StringArrayVar(&f.qc, "qc", nil, "QC brush as column=min:max; repeatable.")
	cmd.Flags().BoolVar(&f.dump, "dump", false, "Dump the final summary and cache statistics.")

	return cmd
}

func explore(ctx context.Context, st *state, f exploreFlags) error {

	if ctx == nil {
		ctx = context.Background()
	}

	opts, optsErr := st.config.ConnectorOptions(st.logger)
	if optsErr != nil {
		return optsErr
	}
	conn, openErr := connector.Open(opts)
	if openErr != nil {
		return openErr
	}

	if opts.Transport != connector.Remote && f.cells > 0 {
		data, genErr := dataset.Generate(dataset.Options{Cells: f.cells, Clusters: f.clusters, Seed: f.seed})
		if genErr != nil {
			return genErr
		}
		if loadErr := connector.Load(ctx, conn, st.config.Table, data); loadErr != nil {
			return loadErr
		}
	}

	coord := coordinator.New(conn, st.config.CoordinatorConfig(st.logger, nil))
	defer coord.Close()

	out := st.stdout
	mu := &sync.Mutex{}
	renderer := func(name string) plot.Renderer {
		return textRenderer{name: name, out: out, mu: mu}
	}

	var (
		lastMu sync.Mutex
		last   view.Summary
	)
	printSummary := func(s view.Summary) {
		lastMu.Lock()
		last = s
		lastMu.Unlock()

		mu.Lock()
		defer mu.Unlock()
		color.New(color.FgCyan).Fprintf(out, " selected %d of %d cells\n", s.Filtered, s.Total)
		for _, it := range s.Categories {
			fmt.Fprintf(out, "   cluster %-6s %d\n", it.Category, it.Count)
		}
	}
	printRates := func(rates []view.GeneRate) {
		mu.Lock()
		defer mu.Unlock()
		for idx, it := range rates {
			if idx == 5 {
				break
			}
			fmt.Fprintf(out, "   %-10s %.1f%%\n", it.Gene, it.Rate)
		}
	}

	v, viewErr := view.NewOverview(coord, view.Config{Table: st.config.Table, Fill: f.viewFill()}, view.Renderers{
		UMAP:         renderer(view.UMAPPlot),
		Legend:       renderer(view.LegendPlot),
		FeatureCurve: renderer(view.FeatureCurvePlot),
		FeatureUMI:   renderer(view.FeatureUMIPlot),
		Density: map[string]plot.Renderer{
			"nFeature_RNA": renderer("nFeature_RNA"),
			"nCount_RNA":   renderer("nCount_RNA"),
			"percent_mt":   renderer("percent_mt"),
		},
		Summary: printSummary,
		Rates:   printRates,
	}, view.Options{
		Logger: st.logger,
		OnError: func(binding string, err error) {
			mu.Lock()
			defer mu.Unlock()
			color.New(color.FgRed).Fprintf(out, " %s: %s\n", binding, err)
		},
	})
	if viewErr != nil {
		return viewErr
	}

	if mountErr := v.Mount(); mountErr != nil {
		return mountErr
	}
	defer v.Unmount()
	v.Wait()

	if brushErr := applyBrushes(v, f); brushErr != nil {
		return brushErr
	}
	v.Wait()

	if f.dump {
		lastMu.Lock()
		spew.Fdump(out, last)
		lastMu.Unlock()
		if summary, ok := coord.CacheSummary(); ok {
			spew.Fdump(out, summary)
		}
	}

	return nil
}

func applyBrushes(v *view.Controller, f exploreFlags) error {

	if len(f.clusterPicks) > 0 {
		legend, ok := v.Plot(view.LegendPlot)
		if !ok || len(legend.Interactors()) == 0 {
			return fmt.Errorf("legend is not toggleable for this fill")
		}
		toggle := legend.Interactors()[0].(*plot.Toggle)
		for idx, it := range f.clusterPicks {
			toggle.Click(it, idx > 0)
		}
	}

	if len(f.umap) > 0 {
		if len(f.umap) != 2 {
			return fmt.Errorf("umap brush needs two ranges, got %d", len(f.umap))
		}
		x, xErr := parseRange(f.umap[0])
		if xErr != nil {
			return xErr
		}
		y, yErr := parseRange(f.umap[1])
		if yErr != nil {
			return yErr
		}
		umap, _ := v.Plot(view.UMAPPlot)
		umap.Interactors()[0].(*plot.Interval).Set(x, y)
	}

	for _, it := range f.qc {
		column, span, ok := strings.Cut(it, "=")
		if !ok {
			return fmt.Errorf("qc brush %q is not column=min:max", it)
		}
		bounds, rangeErr := parseRange(span)
		if rangeErr != nil {
			return rangeErr
		}
		density, found := v.Plot(column)
		if !found {
			return fmt.Errorf("no density plot for `%s`", column)
		}
		density.Interactors()[0].(*plot.Interval).Set(bounds)
	}

	return nil
}
