package plot

import (
	"sync"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/schema"
	"github.com/dot5enko/tessera/selection"
)

type Granularity byte

const (
	// OnEnd publishes a brush when it is released.
	OnEnd Granularity = iota
	// Live publishes on every move.
	Live
)

// Interactor turns pointer input into clauses of one selection.
type Interactor interface {
	Selection() *selection.Selection
	Clear()

	bind(source selection.ClientID)
	// reset drops pointer state after the selection was cleared elsewhere
	reset()
}

type Point struct {
	X, Y float64
}

type axis struct {
	field string
	pick  func(Point) float64
}

var (
	xAxis = func(p Point) float64 { return p.X }
	yAxis = func(p Point) float64 { return p.Y }
)

// Interval is a one or two dimensional brush. Its clause value is the list of
// brushed extents, one per field.
type Interval struct {
	as          *selection.Selection
	axes        []axis
	granularity Granularity

	mu     sync.Mutex
	source selection.ClientID
	active bool
	start  Point
}

type IntervalOption func(*Interval)

func WithGranularity(g Granularity) IntervalOption {
	return func(i *Interval) { i.granularity = g }
}

func newInterval(as *selection.Selection, axes []axis, opts []IntervalOption) *Interval {
	i := &Interval{as: as, axes: axes}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func IntervalX(as *selection.Selection, field string, opts ...IntervalOption) *Interval {
	return newInterval(as, []axis{{field: field, pick: xAxis}}, opts)
}

func IntervalY(as *selection.Selection, field string, opts ...IntervalOption) *Interval {
	return newInterval(as, []axis{{field: field, pick: yAxis}}, opts)
}

func IntervalXY(as *selection.Selection, xField, yField string, opts ...IntervalOption) *Interval {
	return newInterval(as, []axis{{field: xField, pick: xAxis}, {field: yField, pick: yAxis}}, opts)
}

func (i *Interval) Selection() *selection.Selection {
	return i.as
}

func (i *Interval) bind(source selection.ClientID) {
	i.mu.Lock()
	i.source = source
	i.mu.Unlock()
}

func (i *Interval) Start(p Point) {
	i.mu.Lock()
	i.active = true
	i.start = p
	i.mu.Unlock()
}

func (i *Interval) Move(p Point) {
	i.mu.Lock()
	if !i.active || i.granularity != Live {
		i.mu.Unlock()
		return
	}
	start := i.start
	i.mu.Unlock()

	i.publish(start, p)
}

// End releases the brush. A brush without extent on any axis clears the clause.
func (i *Interval) End(p Point) {
	i.mu.Lock()
	if !i.active {
		i.mu.Unlock()
		return
	}
	i.active = false
	start := i.start
	i.mu.Unlock()

	i.publish(start, p)
}

// Set publishes extents directly, one per field.
func (i *Interval) Set(extents ...schema.BoundsFloat) {
	if len(extents) != len(i.axes) {
		return
	}

	i.mu.Lock()
	source := i.source
	i.mu.Unlock()

	i.update(source, extents)
}

func (i *Interval) publish(from, to Point) {

	extents := make([]schema.BoundsFloat, len(i.axes))
	for idx, it := range i.axes {
		extents[idx] = schema.NewBoundsFromValues(it.pick(from), it.pick(to))
	}

	i.mu.Lock()
	source := i.source
	i.mu.Unlock()

	i.update(source, extents)
}

func (i *Interval) update(source selection.ClientID, extents []schema.BoundsFloat) {

	preds := make([]query.Predicate, len(i.axes))
	for idx, it := range i.axes {
		if extents[idx].Empty() {
			_ = i.as.Remove(source)
			return
		}
		preds[idx] = query.Between(it.field, extents[idx].Min, extents[idx].Max)
	}

	_ = i.as.Update(source, extents, query.AndOf(preds...))
}

func (i *Interval) reset() {
	i.mu.Lock()
	i.active = false
	i.mu.Unlock()
}

func (i *Interval) Clear() {
	i.mu.Lock()
	i.active = false
	source := i.source
	i.mu.Unlock()

	_ = i.as.Remove(source)
}

// Toggle selects categorical values, as a legend click does. The clause value
// is the list of selected values; it is read back from the selection so a reset
// elsewhere is picked up by the next click.
type Toggle struct {
	as    *selection.Selection
	field string

	mu     sync.Mutex
	source selection.ClientID
}

func NewToggle(as *selection.Selection, field string) *Toggle {
	return &Toggle{as: as, field: field}
}

func (t *Toggle) Selection() *selection.Selection {
	return t.as
}

func (t *Toggle) bind(source selection.ClientID) {
	t.mu.Lock()
	t.source = source
	t.mu.Unlock()
}

func (t *Toggle) Field() string {
	return t.field
}

// Values returns the selected values in click order.
func (t *Toggle) Values() []any {
	t.mu.Lock()
	source := t.source
	t.mu.Unlock()

	return t.current(source)
}

func (t *Toggle) current(source selection.ClientID) []any {
	value, ok := t.as.Value(source)
	if !ok {
		return nil
	}
	values, _ := value.([]any)
	return append([]any(nil), values...)
}

// Click selects only value, or deselects it when it is the only selected one.
// With extend, value is added to or removed from the current set.
func (t *Toggle) Click(value any, extend bool) {

	t.mu.Lock()
	defer t.mu.Unlock()

	values := t.current(t.source)

	found := -1
	for idx, it := range values {
		if it == value {
			found = idx
			break
		}
	}

	switch {
	case extend && found >= 0:
		values = append(values[:found:found], values[found+1:]...)
	case extend:
		values = append(values, value)
	case found >= 0 && len(values) == 1:
		values = nil
	default:
		values = []any{value}
	}

	if len(values) == 0 {
		_ = t.as.Remove(t.source)
		return
	}

	_ = t.as.Update(t.source, values, query.In(t.field, values...))
}

func (t *Toggle) Clear() {
	t.mu.Lock()
	source := t.source
	t.mu.Unlock()

	_ = t.as.Remove(source)
}

func (t *Toggle) reset() {}
