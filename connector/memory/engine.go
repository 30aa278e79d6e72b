package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrUnsupported   = errors.New("not supported by the in-memory engine")
	ErrClosed        = errors.New("engine is closed")
)

// table keeps bounds of every numeric column without nulls, used to answer
// range filters without a scan when a filter covers the whole column or misses it.
type table struct {
	schema schema.Schema
	data   *result.Table
	bounds map[string]schema.BoundsFloat

	floatViewsLock sync.Mutex
	floatViews     map[string][]float64
}

// Engine evaluates query descriptors over columns held in memory.
type Engine struct {
	mu     sync.RWMutex
	tables map[string]*table
	closed bool

	logger *slog.Logger
}

func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tables: make(map[string]*table),
		logger: logger,
	}
}

// Load registers data under name, replacing a table with the same name.
func (e *Engine) Load(name string, data *result.Table) error {

	t := &table{
		schema:     data.Schema(),
		data:       data,
		bounds:     make(map[string]schema.BoundsFloat),
		floatViews: make(map[string][]float64),
	}
	t.schema.Name = name

	for _, col := range data.Columns() {
		if hasNulls(col) {
			continue
		}
		switch typed := col.(type) {
		case *result.Int64Column:
			t.bounds[col.Name()] = schema.GetMaxMinBoundsFloat(typed.Values)
		case *result.Float64Column:
			t.bounds[col.Name()] = schema.GetMaxMinBoundsFloat(typed.Values)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.tables[name] = t

	e.logger.Info("table loaded", "table", name, "rows", data.NumRows(), "columns", data.NumColumns())

	return nil
}

func (e *Engine) Drop(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.tables, name)
}

func (e *Engine) lookup(name string) (*table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

func (e *Engine) Query(ctx context.Context, q *query.Query) (*result.Table, error) {

	if validateErr := q.Validate(); validateErr != nil {
		return nil, validateErr
	}

	t, lookupErr := e.lookup(q.From)
	if lookupErr != nil {
		return nil, lookupErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	indices, filterErr := t.filter(q.Filter)
	if filterErr != nil {
		return nil, filterErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	return t.project(q, indices)
}

// Exec is not supported: the engine has no statement parser. Use Load.
func (e *Engine) Exec(ctx context.Context, stmt string) error {
	return fmt.Errorf("%w: exec", ErrUnsupported)
}

func (e *Engine) Describe(ctx context.Context, name string) (schema.Schema, error) {
	t, lookupErr := e.lookup(name)
	if lookupErr != nil {
		return schema.Schema{}, lookupErr
	}
	return t.schema, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.tables = make(map[string]*table)

	return nil
}

// floatView returns the column as float64, converting integer columns once.
func (t *table) floatView(col result.Column) ([]float64, bool) {
	switch typed := col.(type) {
	case *result.Float64Column:
		return typed.Values, true
	case *result.Int64Column:
		t.floatViewsLock.Lock()
		defer t.floatViewsLock.Unlock()

		if view, ok := t.floatViews[col.Name()]; ok {
			return view, true
		}
		view := make([]float64, len(typed.Values))
		for idx, v := range typed.Values {
			view[idx] = float64(v)
		}
		t.floatViews[col.Name()] = view
		return view, true
	default:
		return nil, false
	}
}

func hasNulls(col result.Column) bool {
	for row := 0; row < col.Len(); row++ {
		if col.IsNull(row) {
			return true
		}
	}
	return false
}
