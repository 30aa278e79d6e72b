package view

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/dot5enko/tessera/client"
	"github.com/dot5enko/tessera/connector/memory"
	"github.com/dot5enko/tessera/coordinator"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
	"github.com/dot5enko/tessera/selection"
)

// recordingCoordinator logs the restriction of every query it forwards.
type recordingCoordinator struct {
	*coordinator.Coordinator

	mu      sync.Mutex
	filters []string
}

func (r *recordingCoordinator) Query(ctx context.Context, q *query.Query) (*result.Table, error) {
	r.mu.Lock()
	r.filters = append(r.filters, query.PredicateSQL(q.Filter))
	r.mu.Unlock()

	return r.Coordinator.Query(ctx, q)
}

func (r *recordingCoordinator) issued() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.filters...)
}

func eventsCoordinator(t *testing.T) *recordingCoordinator {
	t.Helper()

	xs := make([]float64, 1000)
	categories := make([]string, 1000)
	for i := range xs {
		xs[i] = float64(i % 25)
		categories[i] = string("ABCD"[i%4])
	}

	data, err := result.NewTable(
		result.NewFloat64Column("x", xs, nil),
		result.NewStringColumn("category", categories, nil),
	)
	if err != nil {
		t.Fatal(err)
	}

	engine := memory.New(nil)
	if err := engine.Load("events", data); err != nil {
		t.Fatal(err)
	}

	c := coordinator.New(engine, coordinator.Config{})
	t.Cleanup(func() { c.Close() })

	return &recordingCoordinator{Coordinator: c}
}

type counts struct {
	mu     sync.Mutex
	values []int64
}

func (c *counts) add(data *result.Table) {
	n, _ := data.Int64("n", 0)
	c.mu.Lock()
	c.values = append(c.values, n)
	c.mu.Unlock()
}

func (c *counts) get() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]int64(nil), c.values...)
}

func TestPredicateComposition(t *testing.T) {
	rec := eventsCoordinator(t)

	legend := selection.Intersect(selection.Named("legend"))
	spatial := selection.Intersect(selection.Named("spatial"))

	v := NewController(rec, Config{Table: "events"}, Options{})
	if err := v.AddSelection("legend", legend); err != nil {
		t.Fatal(err)
	}
	if err := v.AddSelection("spatial", spatial); err != nil {
		t.Fatal(err)
	}
	if err := v.AddFilter("allFilter", false, "legend", "spatial"); err != nil {
		t.Fatal(err)
	}

	seen := &counts{}
	err := v.Bind("count", byTable, func(v *Controller, cfg Config) (Component, error) {
		all, err := v.Selection("allFilter")
		if err != nil {
			return nil, err
		}
		c, err := client.New(v.Coordinator(), client.Options{
			Selection: all,
			Query: func(p query.Predicate) (*query.Query, error) {
				return &query.Query{From: cfg.Table, Select: []query.Selector{query.Count("n")}, Filter: p}, nil
			},
			Result: seen.add,
		})
		if err != nil {
			return nil, err
		}
		return Clients{c}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}
	defer v.Unmount()
	v.Wait()

	brush := selection.ClientID{1}
	legendClick := selection.ClientID{2}

	steps := []struct {
		name      string
		act       func()
		predicate string
		count     int64
	}{
		{"initial", func() {}, "", 1000},
		{"spatial brush", func() {
			_ = spatial.Update(brush, schema.BoundsFloat{Min: 0, Max: 10}, query.Between("x", 0, 10))
		}, `"x" BETWEEN 0 AND 10`, 440},
		{"legend click", func() {
			_ = legend.Update(legendClick, []any{"A"}, query.Eq("category", "A"))
		}, `"category" = 'A' AND "x" BETWEEN 0 AND 10`, 110},
		{"spatial reset", func() {
			spatial.Reset()
		}, `"category" = 'A'`, 250},
	}

	for idx, it := range steps {
		it.act()
		v.Wait()

		issued := rec.issued()
		if len(issued) != idx+1 {
			t.Fatalf("%s: expected %d queries so far, got %d: %s", it.name, idx+1, len(issued), spew.Sdump(issued))
		}
		if got := issued[idx]; got != it.predicate {
			t.Errorf("%s: predicate %s, want %s", it.name, got, it.predicate)
		}

		got := seen.get()
		if len(got) != idx+1 {
			t.Fatalf("%s: expected %d callbacks, got %v", it.name, idx+1, got)
		}
		if got[idx] != it.count {
			t.Errorf("%s: count %d, want %d", it.name, got[idx], it.count)
		}
	}
}

func TestRegistrationErrors(t *testing.T) {
	rec := eventsCoordinator(t)
	v := NewController(rec, Config{Table: "events"}, Options{})

	legend := selection.Intersect()
	if err := v.AddSelection("legend", legend); err != nil {
		t.Fatal(err)
	}

	if err := v.AddSelection("legend", selection.Intersect()); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if err := v.AddSelection("derived", selection.Combine([]*selection.Selection{legend}, false)); !errors.Is(err, ErrNotTopLevel) {
		t.Errorf("expected ErrNotTopLevel, got %v", err)
	}
	if err := v.AddFilter("all", false, "legend", "missing"); !errors.Is(err, ErrUnknownSelection) {
		t.Errorf("expected ErrUnknownSelection, got %v", err)
	}
	if _, err := v.Selection("all"); !errors.Is(err, ErrUnknownSelection) {
		t.Errorf("unmounted filter should not resolve, got %v", err)
	}

	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); !errors.Is(err, ErrMounted) {
		t.Errorf("expected ErrMounted, got %v", err)
	}
	v.Unmount()
}

func TestSetConfigRebuildsChangedBindings(t *testing.T) {
	rec := eventsCoordinator(t)
	v := NewController(rec, Config{Table: "events", Fill: ColumnFill("category")}, Options{})

	built := map[string]int{}
	closed := map[string]int{}
	var mu sync.Mutex

	bind := func(name string, deps Deps) {
		err := v.Bind(name, deps, func(v *Controller, cfg Config) (Component, error) {
			mu.Lock()
			built[name]++
			mu.Unlock()

			return closer(func() {
				mu.Lock()
				closed[name]++
				mu.Unlock()
			}), nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	bind("byTable", byTable)
	bind("byFill", byFill)

	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}

	if err := v.SetConfig(Config{Table: "events", Fill: ColumnFill("category")}); err != nil {
		t.Fatal(err)
	}
	if err := v.SetConfig(Config{Table: "events", Fill: GeneFill("gene_A")}); err != nil {
		t.Fatal(err)
	}

	v.Unmount()

	mu.Lock()
	defer mu.Unlock()

	if diff := cmp.Diff(map[string]int{"byTable": 1, "byFill": 2}, built); diff != "" {
		t.Errorf("builds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"byTable": 1, "byFill": 2}, closed); diff != "" {
		t.Errorf("closes mismatch (-want +got):\n%s", diff)
	}
}

type closer func()

func (c closer) Close() { c() }

func TestBuildErrorsAreReported(t *testing.T) {
	rec := eventsCoordinator(t)

	var reported []string
	v := NewController(rec, Config{Table: "events"}, Options{
		OnError: func(binding string, err error) {
			reported = append(reported, binding)
		},
	})

	boom := errors.New("boom")
	if err := v.Bind("broken", byTable, func(*Controller, Config) (Component, error) { return nil, boom }); err != nil {
		t.Fatal(err)
	}

	if err := v.Mount(); !errors.Is(err, boom) {
		t.Errorf("expected mount to surface the build error, got %v", err)
	}
	if diff := cmp.Diff([]string{"broken"}, reported); diff != "" {
		t.Errorf("reported mismatch (-want +got):\n%s", diff)
	}
	if _, ok := v.Component("broken"); ok {
		t.Error("failed binding should not be mounted")
	}
	v.Unmount()
}
