// Package view composes selections, filters and query clients into screens
// and rebuilds them when their configuration changes.
package view

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dot5enko/tessera/client"
	"github.com/dot5enko/tessera/plot"
	"github.com/dot5enko/tessera/selection"
)

var (
	ErrUnknownSelection = errors.New("unknown selection")
	ErrDuplicateName    = errors.New("name already registered")
	ErrNotTopLevel      = errors.New("derived selection registered as top level")
	ErrMounted          = errors.New("controller already mounted")
)

// Config holds the values bindings depend on.
type Config struct {
	Table string
	Fill  Fill
}

type Component interface {
	Close()
}

// Clients adapts query clients to a component.
type Clients []*client.Client

func (cs Clients) Close() {
	for _, it := range cs {
		it.Destroy()
	}
}

func (cs Clients) Wait() {
	for _, it := range cs {
		it.Wait()
	}
}

// Deps extracts the configuration a binding depends on. The returned value is
// compared with ==, so it must be comparable.
type Deps func(cfg Config) any

type Factory func(v *Controller, cfg Config) (Component, error)

type Options struct {
	Logger *slog.Logger
	// OnError receives errors of every client built by the controller.
	OnError func(binding string, err error)
}

type binding struct {
	name    string
	deps    Deps
	factory Factory

	current   any
	component Component
}

type filterDef struct {
	name   string
	cross  bool
	inputs []string
}

// Controller owns the selection graph of one screen and the lifecycle of the
// components bound to it.
type Controller struct {
	coord  client.Coordinator
	opts   Options
	logger *slog.Logger

	// structural changes run one at a time
	rebuild sync.Mutex

	mu         sync.Mutex
	config     Config
	order      []string
	selections map[string]*selection.Selection
	filterDefs []filterDef
	filters    map[string]*selection.Selection
	bindings   []*binding
	mounted    bool
}

func NewController(coord client.Coordinator, cfg Config, opts Options) *Controller {

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		coord:      coord,
		opts:       opts,
		logger:     logger,
		config:     cfg,
		selections: map[string]*selection.Selection{},
		filters:    map[string]*selection.Selection{},
	}
}

func (v *Controller) Coordinator() client.Coordinator {
	return v.coord
}

func (v *Controller) Config() Config {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.config
}

func (v *Controller) nameTakenLocked(name string) bool {
	if _, ok := v.selections[name]; ok {
		return true
	}
	for _, it := range v.filterDefs {
		if it.name == name {
			return true
		}
	}
	return false
}

// AddSelection registers a selection plots can write to.
func (v *Controller) AddSelection(name string, sel *selection.Selection) error {

	if sel.Derived() {
		return fmt.Errorf("%w: `%s`", ErrNotTopLevel, name)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nameTakenLocked(name) {
		return fmt.Errorf("%w: `%s`", ErrDuplicateName, name)
	}

	v.selections[name] = sel
	v.order = append(v.order, name)

	return nil
}

// AddFilter registers a combinator over earlier selections and filters. It
// is built on mount and released on unmount.
func (v *Controller) AddFilter(name string, cross bool, inputs ...string) error {

	v.rebuild.Lock()
	defer v.rebuild.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nameTakenLocked(name) {
		return fmt.Errorf("%w: `%s`", ErrDuplicateName, name)
	}

	for _, in := range inputs {
		if !v.nameTakenLocked(in) {
			return fmt.Errorf("%w: `%s` used by filter `%s`", ErrUnknownSelection, in, name)
		}
	}

	def := filterDef{name: name, cross: cross, inputs: inputs}
	v.filterDefs = append(v.filterDefs, def)

	if v.mounted {
		v.buildFilterLocked(def)
	}

	return nil
}

func (v *Controller) lookupLocked(name string) *selection.Selection {
	if sel, ok := v.selections[name]; ok {
		return sel
	}
	return v.filters[name]
}

func (v *Controller) buildFilterLocked(def filterDef) {
	inputs := make([]*selection.Selection, len(def.inputs))
	for idx, in := range def.inputs {
		inputs[idx] = v.lookupLocked(in)
	}
	v.filters[def.name] = selection.Combine(inputs, def.cross, selection.Named(def.name))
}

// Selection looks up a selection or a mounted filter by name.
func (v *Controller) Selection(name string) (*selection.Selection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sel := v.lookupLocked(name)
	if sel == nil {
		return nil, fmt.Errorf("%w: `%s`", ErrUnknownSelection, name)
	}
	return sel, nil
}

// Bind registers a component rebuilt whenever deps changes.
func (v *Controller) Bind(name string, deps Deps, factory Factory) error {

	v.rebuild.Lock()
	defer v.rebuild.Unlock()

	v.mu.Lock()
	for _, it := range v.bindings {
		if it.name == name {
			v.mu.Unlock()
			return fmt.Errorf("%w: `%s`", ErrDuplicateName, name)
		}
	}
	b := &binding{name: name, deps: deps, factory: factory}
	v.bindings = append(v.bindings, b)
	mounted := v.mounted
	cfg := v.config
	v.mu.Unlock()

	if mounted {
		return v.build(b, cfg)
	}
	return nil
}

// PlotFactory describes a plot for the current configuration.
type PlotFactory func(v *Controller, cfg Config) (plot.Options, []plot.Interactor, error)

func (v *Controller) AddPlot(name string, deps Deps, factory PlotFactory) error {
	return v.Bind(name, deps, func(v *Controller, cfg Config) (Component, error) {

		opts, interactors, factoryErr := factory(v, cfg)
		if factoryErr != nil {
			return nil, factoryErr
		}
		if opts.Name == "" {
			opts.Name = name
		}
		if opts.Logger == nil {
			opts.Logger = v.logger
		}
		if opts.OnError == nil {
			opts.OnError = v.reportError(name)
		}

		p, plotErr := plot.New(v.coord, opts, interactors...)
		if plotErr != nil {
			return nil, plotErr
		}
		return p, nil
	})
}

// Component returns the mounted component of a binding.
func (v *Controller) Component(name string) (Component, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, it := range v.bindings {
		if it.name == name && it.component != nil {
			return it.component, true
		}
	}
	return nil, false
}

// Plot returns a mounted plot binding.
func (v *Controller) Plot(name string) (*plot.Plot, bool) {
	component, ok := v.Component(name)
	if !ok {
		return nil, false
	}
	p, ok := component.(*plot.Plot)
	return p, ok
}

func (v *Controller) reportError(name string) func(error) {
	return func(err error) {
		if v.opts.OnError != nil {
			v.opts.OnError(name, err)
			return
		}
		v.logger.Warn("view client error", "binding", name, "err", err)
	}
}

// build runs outside v.mu since factories look selections up.
func (v *Controller) build(b *binding, cfg Config) error {

	component, buildErr := b.factory(v, cfg)
	if buildErr != nil {
		v.reportError(b.name)(buildErr)
		return fmt.Errorf("unable to build `%s`: %w", b.name, buildErr)
	}

	v.mu.Lock()
	b.current = b.deps(cfg)
	b.component = component
	v.mu.Unlock()

	v.logger.Debug("binding built", "binding", b.name)

	return nil
}

// Mount builds every filter and binding. Bindings that fail are reported and
// left unbuilt; the joined error lists them.
func (v *Controller) Mount() error {

	v.rebuild.Lock()
	defer v.rebuild.Unlock()

	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return ErrMounted
	}
	for _, def := range v.filterDefs {
		v.buildFilterLocked(def)
	}
	v.mounted = true
	bindings := append([]*binding(nil), v.bindings...)
	cfg := v.config
	v.mu.Unlock()

	var errs []error
	for _, b := range bindings {
		if buildErr := v.build(b, cfg); buildErr != nil {
			errs = append(errs, buildErr)
		}
	}

	return errors.Join(errs...)
}

// Unmount closes every component and releases the filters' subscriptions.
func (v *Controller) Unmount() {

	v.rebuild.Lock()
	defer v.rebuild.Unlock()

	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false

	var components []Component
	for _, it := range v.bindings {
		if it.component != nil {
			components = append(components, it.component)
		}
		it.component = nil
		it.current = nil
	}

	filters := make([]*selection.Selection, 0, len(v.filterDefs))
	for _, def := range v.filterDefs {
		filters = append(filters, v.filters[def.name])
		delete(v.filters, def.name)
	}
	v.mu.Unlock()

	for _, it := range components {
		it.Close()
	}
	for _, it := range filters {
		it.Close()
	}
}

// ResetAll clears every top-level selection and notifies once, so each bound
// client runs one query against the fully cleared predicate.
func (v *Controller) ResetAll() {

	v.mu.Lock()
	sels := make([]*selection.Selection, 0, len(v.order))
	for _, name := range v.order {
		sels = append(sels, v.selections[name])
	}
	var components []Component
	for _, it := range v.bindings {
		if it.component != nil {
			components = append(components, it.component)
		}
	}
	v.mu.Unlock()

	selection.ResetAll(sels...)

	for _, it := range components {
		if p, ok := it.(interface{ ResetBrush() }); ok {
			p.ResetBrush()
		}
	}
}

// SetConfig stores cfg and rebuilds the bindings whose dependencies changed.
func (v *Controller) SetConfig(cfg Config) error {

	v.rebuild.Lock()
	defer v.rebuild.Unlock()

	type change struct {
		b   *binding
		old Component
	}

	v.mu.Lock()
	v.config = cfg
	if !v.mounted {
		v.mu.Unlock()
		return nil
	}

	var changes []change
	for _, it := range v.bindings {
		if it.component != nil && it.deps(cfg) == it.current {
			continue
		}
		changes = append(changes, change{b: it, old: it.component})
		it.component = nil
	}
	v.mu.Unlock()

	var errs []error
	for _, it := range changes {
		if it.old != nil {
			it.old.Close()
		}
		if buildErr := v.build(it.b, cfg); buildErr != nil {
			errs = append(errs, buildErr)
		}
	}

	return errors.Join(errs...)
}

// Wait blocks until every mounted component has answered its queries.
func (v *Controller) Wait() {

	v.mu.Lock()
	var components []Component
	for _, it := range v.bindings {
		if it.component != nil {
			components = append(components, it.component)
		}
	}
	v.mu.Unlock()

	for _, it := range components {
		if w, ok := it.(interface{ Wait() }); ok {
			w.Wait()
		}
	}
}
