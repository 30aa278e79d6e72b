package selection

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dot5enko/tessera/query"
)

var ErrReadOnly = errors.New("selection is derived and cannot be updated")

// ClientID identifies the producer of a clause. uuid.Nil means "no source".
type ClientID = uuid.UUID

type Mode byte

const (
	IntersectMode Mode = iota
	UnionMode
)

func (m Mode) String() string {
	if m == UnionMode {
		return "union"
	}
	return "intersect"
}

type Clause struct {
	Source    ClientID
	Value     any
	Predicate query.Predicate
}

// Event is delivered to listeners after every write. Every write mints a new
// Wave; listeners reachable through several paths see the same wave more than once.
type Event struct {
	Wave   uuid.UUID
	Origin *Selection
	Source ClientID
}

type Listener func(Event)

type Subscription struct {
	fn     Listener
	active atomic.Bool
}

func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

// Selection aggregates predicates contributed by interactive clients.
// A selection built with Include inputs is a read-only combinator that resolves
// over the current clauses of its inputs.
type Selection struct {
	id    uuid.UUID
	name  string
	mode  Mode
	cross bool

	inputs    []*Selection
	inputSubs []*Subscription

	mu       sync.Mutex
	clauses  []Clause
	subs     []*Subscription
	lastWave uuid.UUID
}

type Option func(*Selection)

// Cross enables self exclusion: a client resolving the selection never sees
// its own clause.
func Cross(on bool) Option {
	return func(s *Selection) { s.cross = on }
}

func Include(sels ...*Selection) Option {
	return func(s *Selection) { s.inputs = append(s.inputs, sels...) }
}

func Named(name string) Option {
	return func(s *Selection) { s.name = name }
}

func Intersect(opts ...Option) *Selection {
	return newSelection(IntersectMode, opts)
}

func Union(opts ...Option) *Selection {
	return newSelection(UnionMode, opts)
}

func Crossfilter(opts ...Option) *Selection {
	return newSelection(IntersectMode, append(opts, Cross(true)))
}

// Combine builds a read-only selection whose predicate is the conjunction of its inputs.
func Combine(inputs []*Selection, cross bool, opts ...Option) *Selection {
	return Intersect(append([]Option{Include(inputs...), Cross(cross)}, opts...)...)
}

func newSelection(mode Mode, opts []Option) *Selection {

	s := &Selection{
		id:   uuid.New(),
		mode: mode,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.name == "" {
		s.name = s.id.String()
	}

	for _, in := range s.inputs {
		s.inputSubs = append(s.inputSubs, in.Subscribe(s.forward))
	}

	return s
}

func (s *Selection) ID() uuid.UUID { return s.id }
func (s *Selection) Name() string  { return s.name }
func (s *Selection) Mode() Mode    { return s.mode }
func (s *Selection) IsCross() bool { return s.cross }
func (s *Selection) Derived() bool { return len(s.inputs) > 0 }

func (s *Selection) Inputs() []*Selection {
	return append([]*Selection(nil), s.inputs...)
}

// Includes reports whether other is s or is reachable through s's inputs.
func (s *Selection) Includes(other *Selection) bool {
	if s == other {
		return true
	}
	for _, in := range s.inputs {
		if in.Includes(other) {
			return true
		}
	}
	return false
}

// Update records the clause of source, replacing an earlier one. A nil
// predicate removes the clause.
func (s *Selection) Update(source ClientID, value any, predicate query.Predicate) error {

	if s.Derived() {
		return ErrReadOnly
	}

	s.mu.Lock()
	if predicate == nil {
		s.removeLocked(source)
	} else {
		s.upsertLocked(Clause{Source: source, Value: value, Predicate: predicate})
	}
	s.mu.Unlock()

	slog.Debug("selection update", "selection", s.name, "source", source, "cleared", predicate == nil)

	s.emit(Event{Wave: uuid.New(), Origin: s, Source: source})

	return nil
}

func (s *Selection) Remove(source ClientID) error {
	return s.Update(source, nil, nil)
}

// Reset drops every clause. It is a no-op on derived selections.
func (s *Selection) Reset() {
	if s.Derived() {
		return
	}
	s.clear()
	s.emit(Event{Wave: uuid.New(), Origin: s})
}

func (s *Selection) clear() {
	s.mu.Lock()
	s.clauses = nil
	s.mu.Unlock()
}

// ResetAll clears every given selection first and then notifies within one
// wave, so a listener reachable from several of them runs once against the
// fully cleared state.
func ResetAll(sels ...*Selection) {

	for _, it := range sels {
		if !it.Derived() {
			it.clear()
		}
	}

	wave := uuid.New()
	for _, it := range sels {
		if !it.Derived() {
			it.emit(Event{Wave: wave, Origin: it})
		}
	}
}

func (s *Selection) upsertLocked(c Clause) {
	for idx := range s.clauses {
		if s.clauses[idx].Source == c.Source {
			s.clauses[idx] = c
			return
		}
	}
	s.clauses = append(s.clauses, c)
}

func (s *Selection) removeLocked(source ClientID) {
	for idx := range s.clauses {
		if s.clauses[idx].Source == source {
			s.clauses = append(s.clauses[:idx], s.clauses[idx+1:]...)
			return
		}
	}
}

func (s *Selection) Clauses() []Clause {
	if s.Derived() {
		var result []Clause
		for _, in := range s.inputs {
			result = append(result, in.Clauses()...)
		}
		return result
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Clause(nil), s.clauses...)
}

func (s *Selection) Value(source ClientID) (any, bool) {
	for _, c := range s.Clauses() {
		if c.Source == source {
			return c.Value, true
		}
	}
	return nil, false
}

// Resolve returns the predicate seen by forSource, nil meaning "no filter".
func (s *Selection) Resolve(forSource ClientID) query.Predicate {
	return s.resolve(forSource, s.cross)
}

func (s *Selection) resolve(forSource ClientID, exclude bool) query.Predicate {

	var preds []query.Predicate

	if s.Derived() {
		for _, in := range s.inputs {
			preds = append(preds, in.resolve(forSource, exclude || in.cross))
		}
	} else {
		s.mu.Lock()
		for _, c := range s.clauses {
			if exclude && forSource != uuid.Nil && c.Source == forSource {
				continue
			}
			preds = append(preds, c.Predicate)
		}
		s.mu.Unlock()
	}

	if s.mode == UnionMode {
		return query.OrOf(preds...)
	}
	return query.AndOf(preds...)
}

// Subscribe registers fn; listeners run in subscription order on the writer's goroutine.
func (s *Selection) Subscribe(fn Listener) *Subscription {
	sub := &Subscription{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub
}

func (s *Selection) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.active.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, it := range s.subs {
		if it == sub {
			s.subs = append(s.subs[:idx:idx], s.subs[idx+1:]...)
			return
		}
	}
}

func (s *Selection) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

// Close releases the subscriptions a combinator holds on its inputs.
func (s *Selection) Close() {
	for idx, in := range s.inputs {
		in.Unsubscribe(s.inputSubs[idx])
	}
	s.inputSubs = make([]*Subscription, len(s.inputs))
}

func (s *Selection) forward(ev Event) {
	s.mu.Lock()
	if ev.Wave == s.lastWave {
		s.mu.Unlock()
		return
	}
	s.lastWave = ev.Wave
	s.mu.Unlock()

	s.emit(ev)
}

func (s *Selection) emit(ev Event) {
	s.mu.Lock()
	listeners := append([]*Subscription(nil), s.subs...)
	s.mu.Unlock()

	for _, it := range listeners {
		if it.active.Load() {
			it.fn(ev)
		}
	}
}
