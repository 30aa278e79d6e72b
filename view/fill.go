package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dot5enko/tessera/query"
)

const GenePrefix = "gene_"

type FillKind string

const (
	FillColumn FillKind = "column"
	FillGene   FillKind = "gene"
	FillGenes  FillKind = "genes"
)

// CompareMode decides how two genes are folded into one fill value.
type CompareMode string

const (
	CompareAddition    CompareMode = "addition"
	CompareGeometric   CompareMode = "geometric"
	CompareLogFold     CompareMode = "logfold"
	CompareCategorical CompareMode = "categorical"
)

var ErrInvalidFill = errors.New("invalid fill")

// Fill is the colour channel of the UMAP. It is configuration: changing it
// rebuilds the plots that depend on it and never touches a selection.
type Fill struct {
	Kind    FillKind
	Column  string
	Gene    string
	Gene2   string
	Compare CompareMode
}

func ColumnFill(column string) Fill {
	return Fill{Kind: FillColumn, Column: column}
}

func GeneFill(gene string) Fill {
	return Fill{Kind: FillGene, Gene: gene}
}

func GenesFill(gene, gene2 string, mode CompareMode) Fill {
	return Fill{Kind: FillGenes, Gene: gene, Gene2: gene2, Compare: mode}
}

func (f Fill) Validate() error {
	switch f.Kind {
	case FillColumn:
		if f.Column == "" {
			return fmt.Errorf("%w: column fill without column", ErrInvalidFill)
		}
	case FillGene:
		if f.Gene == "" {
			return fmt.Errorf("%w: gene fill without gene", ErrInvalidFill)
		}
	case FillGenes:
		if f.Gene == "" || f.Gene2 == "" {
			return fmt.Errorf("%w: coexpression needs two genes", ErrInvalidFill)
		}
		switch f.Compare {
		case CompareAddition, CompareGeometric, CompareLogFold, CompareCategorical:
		default:
			return fmt.Errorf("%w: comparison mode `%s`", ErrInvalidFill, f.Compare)
		}
	default:
		return fmt.Errorf("%w: kind `%s`", ErrInvalidFill, f.Kind)
	}
	return nil
}

// Field is the plain column behind the fill, empty for computed fills.
func (f Fill) Field() string {
	switch f.Kind {
	case FillColumn:
		return f.Column
	case FillGene:
		return f.Gene
	default:
		return ""
	}
}

// Expression renders the fill as a SQL expression.
func (f Fill) Expression() string {

	if field := f.Field(); field != "" {
		return query.QuoteIdentifier(field)
	}

	g1 := query.QuoteIdentifier(f.Gene)
	g2 := query.QuoteIdentifier(f.Gene2)
	name1 := query.QuoteLiteral(GeneLabel(f.Gene) + " Expressed")
	name2 := query.QuoteLiteral(GeneLabel(f.Gene2) + " Expressed")

	switch f.Compare {
	case CompareAddition:
		return g1 + " + " + g2
	case CompareGeometric:
		return "SQRT(" + g1 + " * " + g2 + ")"
	case CompareLogFold:
		return "LOG(" + g2 + " + 1) - LOG(" + g1 + " + 1)"
	case CompareCategorical:
		if f.Gene == f.Gene2 {
			return "CASE WHEN " + g1 + " > 1 THEN " + name1 + " ELSE 'Not Expressed' END"
		}
		return "CASE WHEN " + g1 + " > 1 AND " + g2 + " > 1 THEN 'Both Expressed'" +
			" WHEN " + g1 + " > 0 THEN " + name1 +
			" WHEN " + g2 + " > 0 THEN " + name2 +
			" ELSE 'Neither Expressed' END"
	default:
		return g1
	}
}

// Selector projects the fill under alias.
func (f Fill) Selector(alias string) query.Selector {
	if field := f.Field(); field != "" {
		return query.Selector{Type: query.SelectColumn, Field: field, Alias: alias}
	}
	return query.Expr(f.Expression(), alias)
}

// Ordinal fills get a categorical legend that can be toggled.
func (f Fill) Ordinal() bool {
	switch f.Kind {
	case FillColumn:
		return f.Column == "cluster"
	case FillGenes:
		return f.Compare == CompareCategorical
	default:
		return false
	}
}

// Domain lists the categories of a categorical coexpression fill in legend order.
func (f Fill) Domain() []string {
	if f.Kind != FillGenes || f.Compare != CompareCategorical {
		return nil
	}
	if f.Gene == f.Gene2 {
		return []string{GeneLabel(f.Gene) + " Expressed", "Not Expressed"}
	}
	return []string{"Both Expressed", GeneLabel(f.Gene) + " Expressed", GeneLabel(f.Gene2) + " Expressed", "Neither Expressed"}
}

var columnLabels = map[string]string{
	"cluster":      "Cluster",
	"nFeature_RNA": "nFeature",
	"nCount_RNA":   "nUMI",
	"percent_mt":   "Percent MT",
}

func ColumnLabel(column string) string {
	if label, ok := columnLabels[column]; ok {
		return label
	}
	return column
}

func GeneLabel(gene string) string {
	return strings.TrimPrefix(gene, GenePrefix)
}

// Label is the legend title.
func (f Fill) Label() string {
	switch f.Kind {
	case FillGene:
		return GeneLabel(f.Gene) + " Expression"
	case FillGenes:
		switch f.Compare {
		case CompareAddition:
			return GeneLabel(f.Gene) + " or " + GeneLabel(f.Gene2)
		case CompareGeometric:
			return GeneLabel(f.Gene) + " and " + GeneLabel(f.Gene2)
		default:
			return GeneLabel(f.Gene) + " vs. " + GeneLabel(f.Gene2)
		}
	default:
		return ColumnLabel(f.Column)
	}
}
