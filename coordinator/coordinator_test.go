package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

type fakeConnector struct {
	mu     sync.Mutex
	order  []string
	calls  atomic.Int32
	closed atomic.Bool

	// when set, Query signals started and waits for release or ctx
	started chan string
	release chan struct{}

	delay time.Duration
}

func (f *fakeConnector) Query(ctx context.Context, q *query.Query) (*result.Table, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.order = append(f.order, q.From)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.started != nil {
		f.started <- q.From
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return result.NewTable(result.NewStringColumn("from", []string{q.From}, nil))
}

func (f *fakeConnector) Exec(ctx context.Context, stmt string) error { return nil }

func (f *fakeConnector) Describe(ctx context.Context, table string) (schema.Schema, error) {
	return schema.Schema{Name: table}, nil
}

func (f *fakeConnector) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeClient struct {
	id        uuid.UUID
	destroyed atomic.Int32
}

func (f *fakeClient) ID() uuid.UUID { return f.id }
func (f *fakeClient) Destroy()      { f.destroyed.Add(1) }

func countQuery(from string) *query.Query {
	return &query.Query{From: from, Select: []query.Selector{query.Count("n")}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueryReturnsConnectorResult(t *testing.T) {
	conn := &fakeConnector{}
	c := New(conn, Config{})
	defer c.Close()

	table, err := c.Query(context.Background(), countQuery("cells"))
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}

	from, _ := table.String("from", 0)
	if from != "cells" {
		t.Errorf("result does not match its query: %s", from)
	}
}

func TestQueryRejectsInvalidDescriptor(t *testing.T) {
	c := New(&fakeConnector{}, Config{})
	defer c.Close()

	if _, err := c.Query(context.Background(), &query.Query{Select: []query.Selector{query.Count("n")}}); !errors.Is(err, query.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestIdenticalQueriesShareExecution(t *testing.T) {
	conn := &fakeConnector{started: make(chan string, 4), release: make(chan struct{})}
	c := New(conn, Config{Workers: 2})
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	results := make([]error, 2)
	go func() {
		defer wg.Done()
		_, results[0] = c.Query(context.Background(), countQuery("cells"))
	}()

	<-conn.started

	go func() {
		defer wg.Done()
		_, results[1] = c.Query(context.Background(), countQuery("cells"))
	}()

	// give the second caller time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(conn.release)
	wg.Wait()

	for idx, err := range results {
		if err != nil {
			t.Errorf("caller %d failed: %s", idx, err)
		}
	}
	if conn.calls.Load() != 1 {
		t.Errorf("expected one connector call, got %d", conn.calls.Load())
	}
}

func TestCacheServesRepeatedQuery(t *testing.T) {
	conn := &fakeConnector{}
	c := New(conn, Config{Cache: true})
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Query(context.Background(), countQuery("cells")); err != nil {
			t.Fatal(err)
		}
	}

	if conn.calls.Load() != 1 {
		t.Errorf("expected a single connector call, got %d", conn.calls.Load())
	}

	summary, ok := c.CacheSummary()
	if !ok || summary.Hits != 2 {
		t.Errorf("unexpected cache summary %+v", summary)
	}

	c.Clear(ClearOptions{Cache: true})
	if _, err := c.Query(context.Background(), countQuery("cells")); err != nil {
		t.Fatal(err)
	}
	if conn.calls.Load() != 2 {
		t.Errorf("expected a purge to force re-execution, got %d calls", conn.calls.Load())
	}
}

func TestSingleExecutorKeepsSubmissionOrder(t *testing.T) {
	conn := &fakeConnector{started: make(chan string, 8), release: make(chan struct{})}
	c := New(conn, Config{Workers: 1})
	defer c.Close()

	var wg sync.WaitGroup
	submit := func(from string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Query(context.Background(), countQuery(from))
		}()
	}

	submit("a")
	<-conn.started

	submit("b")
	waitFor(t, func() bool { return len(c.tasks) == 1 })
	submit("c")
	waitFor(t, func() bool { return len(c.tasks) == 2 })

	close(conn.release)
	wg.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if diff := cmp.Diff([]string{"a", "b", "c"}, conn.order); diff != "" {
		t.Errorf("execution order (-want +got):\n%s", diff)
	}
}

func TestClearRejectsPendingAndDestroysClients(t *testing.T) {
	conn := &fakeConnector{started: make(chan string, 1), release: make(chan struct{})}
	c := New(conn, Config{})
	defer c.Close()

	client := &fakeClient{id: uuid.New()}
	c.Connect(client)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Query(context.Background(), countQuery("cells"))
		errCh <- err
	}()
	<-conn.started

	genBefore := c.Generation()
	c.Clear(ClearOptions{Clients: true})

	if err := <-errCh; !errors.Is(err, ErrCleared) {
		t.Errorf("expected ErrCleared, got %v", err)
	}
	if client.destroyed.Load() != 1 {
		t.Errorf("expected client destroyed once, got %d", client.destroyed.Load())
	}
	if c.Generation() != genBefore+1 {
		t.Errorf("expected generation bump")
	}
	if c.Clients() != 0 {
		t.Errorf("expected no registered clients")
	}
	waitFor(t, func() bool { return c.Pending() == 0 })
}

func TestCallerCancellation(t *testing.T) {
	conn := &fakeConnector{started: make(chan string, 1), release: make(chan struct{})}
	c := New(conn, Config{})
	defer func() {
		close(conn.release)
		c.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, countQuery("cells"))
		errCh <- err
	}()
	<-conn.started
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFullQueueKeepsDraining(t *testing.T) {
	conn := &fakeConnector{delay: 20 * time.Millisecond}
	c := New(conn, Config{Workers: 1, QueueSize: 2})
	defer c.Close()

	errs := make(chan error, 9)
	for i := 0; i < 8; i++ {
		go func(i int) {
			_, err := c.Query(context.Background(), countQuery(fmt.Sprintf("t%d", i)))
			errs <- err
		}(i)
	}

	waitFor(t, func() bool { return len(c.tasks) == 2 })

	go func() {
		_, err := c.Query(context.Background(), countQuery("late"))
		errs <- err
	}()

	timeout := time.After(5 * time.Second)
	for i := 0; i < 9; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("query failed: %s", err)
			}
		case <-timeout:
			t.Fatalf("only %d of 9 queries answered", i)
		}
	}

	if conn.calls.Load() != 9 {
		t.Errorf("expected 9 connector calls, got %d", conn.calls.Load())
	}
	waitFor(t, func() bool { return c.Pending() == 0 })
}

func TestAbandonedQueuedQueryIsSkipped(t *testing.T) {
	conn := &fakeConnector{started: make(chan string, 4), release: make(chan struct{})}
	c := New(conn, Config{Workers: 1})
	defer c.Close()

	first := make(chan error, 1)
	go func() {
		_, err := c.Query(context.Background(), countQuery("a"))
		first <- err
	}()
	<-conn.started

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, countQuery("b"))
		second <- err
	}()
	waitFor(t, func() bool { return len(c.tasks) == 1 })

	cancel()
	if err := <-second; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	close(conn.release)
	if err := <-first; err != nil {
		t.Errorf("running query failed: %s", err)
	}

	waitFor(t, func() bool { return c.Pending() == 0 })

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if diff := cmp.Diff([]string{"a"}, conn.order); diff != "" {
		t.Errorf("executed queries (-want +got):\n%s", diff)
	}
}

func TestSharedFlightOutlivesOneCaller(t *testing.T) {
	conn := &fakeConnector{started: make(chan string, 2), release: make(chan struct{})}
	c := New(conn, Config{Workers: 2})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	leaving := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, countQuery("cells"))
		leaving <- err
	}()
	<-conn.started

	staying := make(chan error, 1)
	go func() {
		_, err := c.Query(context.Background(), countQuery("cells"))
		staying <- err
	}()

	// give the second caller time to join the flight
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-leaving; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	close(conn.release)
	if err := <-staying; err != nil {
		t.Errorf("remaining caller must get the shared result, got %v", err)
	}
	if conn.calls.Load() != 1 {
		t.Errorf("expected one connector call, got %d", conn.calls.Load())
	}
}

func TestSetConnectorClosesPrevious(t *testing.T) {
	first, second := &fakeConnector{}, &fakeConnector{}
	c := New(first, Config{Cache: true})
	defer c.Close()

	if _, err := c.Query(context.Background(), countQuery("cells")); err != nil {
		t.Fatal(err)
	}

	if err := c.SetConnector(second); err != nil {
		t.Fatal(err)
	}
	if !first.closed.Load() {
		t.Errorf("previous connector must be closed")
	}

	if _, err := c.Query(context.Background(), countQuery("cells")); err != nil {
		t.Fatal(err)
	}
	if second.calls.Load() != 1 {
		t.Errorf("expected the new connector to answer, cache must be purged")
	}
}

func TestClosedCoordinator(t *testing.T) {
	conn := &fakeConnector{}
	c := New(conn, Config{Workers: 3})

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !conn.closed.Load() {
		t.Errorf("expected connector to be closed")
	}
	if _, err := c.Query(context.Background(), countQuery("cells")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close must be a no-op, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	c := New(&fakeConnector{}, Config{})
	defer c.Close()

	s, err := c.Describe(context.Background(), "cells")
	if err != nil || s.Name != "cells" {
		t.Errorf("describe returned %+v, %v", s, err)
	}
}
