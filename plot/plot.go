package plot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dot5enko/tessera/client"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/selection"
)

var (
	ErrSelfFilter = errors.New("plot filters by a selection it produces")
	ErrNoQuery    = errors.New("plot needs a query builder")
)

// Renderer draws plot data. Calls arrive from query goroutines, one at a
// time per client.
type Renderer interface {
	Render(data *result.Table)
	Highlight(data *result.Table)
	ClearBrush()
	Error(err error)
}

type Options struct {
	Name string

	FilterBy    *selection.Selection
	HighlightBy *selection.Selection

	Query client.Builder
	// Highlight defaults to Query.
	Highlight client.Builder

	FilterStable bool

	Renderer Renderer
	// OnError also receives query errors, after the renderer.
	OnError func(err error)
	Logger  *slog.Logger
}

// Plot binds a renderer to a data client, an optional highlight client and the
// interactors writing its brushes.
type Plot struct {
	id     uuid.UUID
	name   string
	opts   Options
	logger *slog.Logger

	data        *client.Client
	highlight   *client.Client
	interactors []Interactor
}

func New(coord client.Coordinator, opts Options, interactors ...Interactor) (*Plot, error) {

	if opts.Query == nil {
		return nil, ErrNoQuery
	}
	if opts.Highlight == nil {
		opts.Highlight = opts.Query
	}

	p := &Plot{
		id:          uuid.New(),
		name:        opts.Name,
		opts:        opts,
		logger:      opts.Logger,
		interactors: interactors,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.name == "" {
		p.name = p.id.String()
	}

	for _, it := range interactors {
		produced := it.Selection()
		if produced.Derived() {
			return nil, fmt.Errorf("%w: `%s` brushes into `%s`", selection.ErrReadOnly, p.name, produced.Name())
		}
		if opts.FilterBy != nil && opts.FilterBy.Includes(produced) && !opts.FilterBy.IsCross() && !produced.IsCross() {
			return nil, fmt.Errorf("%w: `%s` filters by `%s`", ErrSelfFilter, p.name, produced.Name())
		}
	}

	for _, it := range interactors {
		it.bind(p.id)
	}

	data, dataErr := client.New(coord, client.Options{
		Selection:    opts.FilterBy,
		Source:       p.id,
		Query:        opts.Query,
		Result:       p.render,
		Error:        p.fail,
		FilterStable: opts.FilterStable,
		Logger:       p.logger,
	})
	if dataErr != nil {
		return nil, dataErr
	}
	p.data = data

	if opts.HighlightBy != nil {
		highlight, highlightErr := client.New(coord, client.Options{
			Selection: opts.HighlightBy,
			Source:    p.id,
			Query:     opts.Highlight,
			Result:    p.renderHighlight,
			Error:     p.fail,
			Logger:    p.logger,
		})
		if highlightErr != nil {
			data.Destroy()
			return nil, highlightErr
		}
		p.highlight = highlight
	}

	return p, nil
}

func (p *Plot) ID() uuid.UUID {
	return p.id
}

func (p *Plot) Name() string {
	return p.name
}

func (p *Plot) Data() *client.Client {
	return p.data
}

// HighlightClient is nil when the plot has no highlight selection.
func (p *Plot) HighlightClient() *client.Client {
	return p.highlight
}

func (p *Plot) Interactors() []Interactor {
	return p.interactors
}

func (p *Plot) render(data *result.Table) {
	if p.opts.Renderer != nil {
		p.opts.Renderer.Render(data)
	}
}

func (p *Plot) renderHighlight(data *result.Table) {
	if p.opts.Renderer != nil {
		p.opts.Renderer.Highlight(data)
	}
}

func (p *Plot) fail(err error) {
	p.logger.Warn("plot query failed", "plot", p.name, "err", err)
	if p.opts.Renderer != nil {
		p.opts.Renderer.Error(err)
	}
	if p.opts.OnError != nil {
		p.opts.OnError(err)
	}
}

// Clear removes the plot's brushes from their selections.
func (p *Plot) Clear() {
	for _, it := range p.interactors {
		it.Clear()
	}
	if p.opts.Renderer != nil {
		p.opts.Renderer.ClearBrush()
	}
}

// ResetBrush forgets pointer state and the drawn brush after the plot's
// selections were cleared by someone else.
func (p *Plot) ResetBrush() {
	for _, it := range p.interactors {
		it.reset()
	}
	if p.opts.Renderer != nil {
		p.opts.Renderer.ClearBrush()
	}
}

// Wait blocks until the plot's in-flight queries are answered.
func (p *Plot) Wait() {
	p.data.Wait()
	if p.highlight != nil {
		p.highlight.Wait()
	}
}

func (p *Plot) Close() {
	p.data.Destroy()
	if p.highlight != nil {
		p.highlight.Destroy()
	}
}
