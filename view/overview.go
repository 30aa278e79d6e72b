package view

import (
	"context"
	"errors"

	"github.com/dot5enko/tessera/client"
	"github.com/dot5enko/tessera/plot"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/selection"
)

const DefaultTable = "cells"

// Overview selection, filter and binding names.
const (
	Legend       = "legend"
	Spatial      = "spatial"
	Saturation   = "saturation"
	FeatureOrder = "featureOrder"
	FeatureUMI   = "featureUMI"
	QC           = "qc"

	SaturationFilter = "saturationFilter"
	DensityFilter    = "densityFilter"
	AllFilter        = "allFilter"

	UMAPPlot         = "umap"
	LegendPlot       = "legend"
	FeatureCurvePlot = "featureCurve"
	FeatureUMIPlot   = "featureUMICurve"
	SummaryBinding   = "selectionSummary"
	RatesBinding     = "expressionRates"
)

var densityColumns = []string{"nFeature_RNA", "nCount_RNA", "percent_mt"}

var ErrNoCatalogue = errors.New("coordinator cannot describe tables")

// Renderers receive the overview's plot data. Nil members are skipped.
type Renderers struct {
	UMAP         plot.Renderer
	Legend       plot.Renderer
	FeatureCurve plot.Renderer
	FeatureUMI   plot.Renderer
	// Density is keyed by QC column.
	Density map[string]plot.Renderer

	Summary func(Summary)
	Rates   func([]GeneRate)
}

type tableDeps struct {
	Table string
}

type fillDeps struct {
	Table string
	Fill  Fill
}

func byTable(cfg Config) any {
	return tableDeps{Table: cfg.Table}
}

func byFill(cfg Config) any {
	return fillDeps{Table: cfg.Table, Fill: cfg.Fill}
}

func (v *Controller) lookup(names ...string) ([]*selection.Selection, error) {
	result := make([]*selection.Selection, len(names))
	for idx, name := range names {
		sel, lookupErr := v.Selection(name)
		if lookupErr != nil {
			return nil, lookupErr
		}
		result[idx] = sel
	}
	return result, nil
}

// NewOverview wires the single cell overview: a UMAP brushed spatially, a
// toggleable legend, two saturation curves and three QC densities, each
// filtered by every brush but the ones it produces.
func NewOverview(coord client.Coordinator, cfg Config, r Renderers, opts Options) (*Controller, error) {

	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Fill.Kind == "" {
		cfg.Fill = ColumnFill("cluster")
	}
	if fillErr := cfg.Fill.Validate(); fillErr != nil {
		return nil, fillErr
	}

	v := NewController(coord, cfg, opts)

	top := []struct {
		name string
		sel  *selection.Selection
	}{
		{Legend, selection.Crossfilter(selection.Named(Legend))},
		{Spatial, selection.Intersect(selection.Named(Spatial))},
		{Saturation, selection.Crossfilter(selection.Named(Saturation))},
		{FeatureOrder, selection.Intersect(selection.Named(FeatureOrder))},
		{FeatureUMI, selection.Intersect(selection.Named(FeatureUMI))},
		{QC, selection.Crossfilter(selection.Named(QC))},
	}
	for _, it := range top {
		if addErr := v.AddSelection(it.name, it.sel); addErr != nil {
			return nil, addErr
		}
	}

	filters := []struct {
		name   string
		inputs []string
	}{
		{SaturationFilter, []string{Legend, Spatial, QC}},
		{DensityFilter, []string{Legend, Spatial, Saturation, FeatureOrder, FeatureUMI}},
		{AllFilter, []string{Legend, Spatial, QC, Saturation, FeatureOrder, FeatureUMI}},
	}
	for _, it := range filters {
		if addErr := v.AddFilter(it.name, false, it.inputs...); addErr != nil {
			return nil, addErr
		}
	}

	bindErr := errors.Join(
		v.AddPlot(UMAPPlot, byFill, umapPlot(r.UMAP)),
		v.AddPlot(LegendPlot, byFill, legendPlot(r.Legend)),
		v.AddPlot(FeatureCurvePlot, byTable, featureCurvePlot(r.FeatureCurve)),
		v.AddPlot(FeatureUMIPlot, byTable, featureUMIPlot(r.FeatureUMI)),
	)
	for _, column := range densityColumns {
		bindErr = errors.Join(bindErr, v.AddPlot(column, byTable, densityPlot(column, r.Density[column])))
	}
	if bindErr != nil {
		return nil, bindErr
	}

	if r.Summary != nil {
		bindErr = v.Bind(SummaryBinding, byTable, func(v *Controller, cfg Config) (Component, error) {
			all, lookupErr := v.Selection(AllFilter)
			if lookupErr != nil {
				return nil, lookupErr
			}
			c, newErr := NewSelectionSummary(v.coord, SummaryOptions{
				Table:     cfg.Table,
				Column:    "cluster",
				Selection: all,
				Averages:  true,
				OnUpdate:  r.Summary,
				OnError:   v.reportError(SummaryBinding),
				Logger:    v.logger,
			})
			if newErr != nil {
				return nil, newErr
			}
			return Clients{c}, nil
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if r.Rates != nil {
		bindErr = v.Bind(RatesBinding, byTable, func(v *Controller, cfg Config) (Component, error) {
			describer, ok := v.coord.(Describer)
			if !ok {
				return nil, ErrNoCatalogue
			}
			genes, fetchErr := FetchGeneColumns(context.Background(), describer, cfg.Table)
			if fetchErr != nil {
				return nil, fetchErr
			}
			all, lookupErr := v.Selection(AllFilter)
			if lookupErr != nil {
				return nil, lookupErr
			}
			c, newErr := NewExpressionRates(v.coord, RatesOptions{
				Table:     cfg.Table,
				Genes:     genes,
				Selection: all,
				OnUpdate:  r.Rates,
				OnError:   v.reportError(RatesBinding),
				Logger:    v.logger,
			})
			if newErr != nil {
				return nil, newErr
			}
			return Clients{c}, nil
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	return v, nil
}

func umapPlot(r plot.Renderer) PlotFactory {
	return func(v *Controller, cfg Config) (plot.Options, []plot.Interactor, error) {

		sels, lookupErr := v.lookup(Spatial, AllFilter)
		if lookupErr != nil {
			return plot.Options{}, nil, lookupErr
		}

		build := func(p query.Predicate) (*query.Query, error) {
			return &query.Query{
				From:   cfg.Table,
				Select: []query.Selector{query.Column("UMAP_1"), query.Column("UMAP_2"), cfg.Fill.Selector("fill")},
				Filter: p,
			}, nil
		}

		return plot.Options{
				HighlightBy:  sels[1],
				Query:        build,
				FilterStable: true,
				Renderer:     r,
			},
			[]plot.Interactor{plot.IntervalXY(sels[0], "UMAP_1", "UMAP_2")},
			nil
	}
}

// legendPlot enumerates the fill categories, or the fill range for continuous
// fills. Only plain categorical columns can be toggled.
func legendPlot(r plot.Renderer) PlotFactory {
	return func(v *Controller, cfg Config) (plot.Options, []plot.Interactor, error) {

		legend, lookupErr := v.Selection(Legend)
		if lookupErr != nil {
			return plot.Options{}, nil, lookupErr
		}

		fill := cfg.Fill
		field := fill.Field()

		var build client.Builder
		switch {
		case fill.Ordinal() && field != "":
			build = func(query.Predicate) (*query.Query, error) {
				return &query.Query{
					From:    cfg.Table,
					Select:  []query.Selector{query.Column(field)},
					GroupBy: []string{field},
					OrderBy: []query.Order{{Field: field}},
				}, nil
			}
		case fill.Ordinal():
			build = func(query.Predicate) (*query.Query, error) {
				return &query.Query{
					From:    cfg.Table,
					Select:  []query.Selector{fill.Selector("fill")},
					GroupBy: []string{"fill"},
					OrderBy: []query.Order{{Field: "fill"}},
				}, nil
			}
		case field != "":
			build = func(query.Predicate) (*query.Query, error) {
				return &query.Query{
					From:   cfg.Table,
					Select: []query.Selector{query.Min(field, "min"), query.Max(field, "max")},
				}, nil
			}
		default:
			expr := fill.Expression()
			build = func(query.Predicate) (*query.Query, error) {
				return &query.Query{
					From:   cfg.Table,
					Select: []query.Selector{query.Expr("MIN("+expr+")", "min"), query.Expr("MAX("+expr+")", "max")},
				}, nil
			}
		}

		var interactors []plot.Interactor
		if fill.Ordinal() && field != "" {
			interactors = append(interactors, plot.NewToggle(legend, field))
		}

		return plot.Options{Name: LegendPlot, Query: build, Renderer: r}, interactors, nil
	}
}

func featureCurvePlot(r plot.Renderer) PlotFactory {
	return func(v *Controller, cfg Config) (plot.Options, []plot.Interactor, error) {

		sels, lookupErr := v.lookup(Saturation, SaturationFilter)
		if lookupErr != nil {
			return plot.Options{}, nil, lookupErr
		}

		// the rank of a cell is its row position
		build := func(p query.Predicate) (*query.Query, error) {
			return &query.Query{
				From:    cfg.Table,
				Select:  []query.Selector{query.Column("nFeature_RNA")},
				Filter:  p,
				OrderBy: []query.Order{{Field: "nFeature_RNA"}},
			}, nil
		}

		return plot.Options{FilterBy: sels[1], Query: build, FilterStable: true, Renderer: r},
			[]plot.Interactor{plot.IntervalY(sels[0], "nFeature_RNA")},
			nil
	}
}

func featureUMIPlot(r plot.Renderer) PlotFactory {
	return func(v *Controller, cfg Config) (plot.Options, []plot.Interactor, error) {

		sels, lookupErr := v.lookup(Saturation, SaturationFilter)
		if lookupErr != nil {
			return plot.Options{}, nil, lookupErr
		}

		build := func(p query.Predicate) (*query.Query, error) {
			return &query.Query{
				From:   cfg.Table,
				Select: []query.Selector{query.Column("nCount_RNA"), query.Column("nFeature_RNA")},
				Filter: p,
			}, nil
		}

		return plot.Options{FilterBy: sels[1], Query: build, FilterStable: true, Renderer: r},
			[]plot.Interactor{plot.IntervalXY(sels[0], "nCount_RNA", "nFeature_RNA")},
			nil
	}
}

func densityPlot(column string, r plot.Renderer) PlotFactory {
	return func(v *Controller, cfg Config) (plot.Options, []plot.Interactor, error) {

		sels, lookupErr := v.lookup(QC, DensityFilter)
		if lookupErr != nil {
			return plot.Options{}, nil, lookupErr
		}

		build := func(p query.Predicate) (*query.Query, error) {
			return &query.Query{
				From:   cfg.Table,
				Select: []query.Selector{query.Column(column)},
				Filter: p,
			}, nil
		}

		return plot.Options{FilterBy: sels[1], Query: build, FilterStable: true, Renderer: r},
			[]plot.Interactor{plot.IntervalY(sels[0], column)},
			nil
	}
}
