package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/dot5enko/tessera/coordinator/cache"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

var (
	ErrCleared     = errors.New("request rejected: coordinator was cleared")
	ErrClosed      = errors.New("coordinator is closed")
	ErrNoConnector = errors.New("coordinator has no connector")
)

type Config struct {
	// Workers is the number of executor goroutines. One executor answers
	// queries strictly in submission order.
	Workers   int
	QueueSize int

	Cache     bool
	CacheSize int

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

type ClearOptions struct {
	Clients bool
	Cache   bool
}

// Coordinator is the single entry point between query clients and a connector.
type Coordinator struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics
	cache   *cache.ResultCache

	group singleflight.Group

	flightsMu sync.Mutex
	flights   map[string]*flight
	flightSeq uint64

	tasks   chan *queryTask
	done    chan struct{}
	workers *sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.RWMutex
	conn       Connector
	generation uint64
	genCtx     context.Context
	genCancel  context.CancelFunc
	pending    map[uuid.UUID]*queryTask
	clients    map[uuid.UUID]Client
	closed     bool
}

func New(conn Connector, config Config) *Coordinator {

	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	c := &Coordinator{
		config:  config,
		logger:  config.Logger,
		metrics: newMetrics(config.Registerer),
		flights: make(map[string]*flight),
		tasks:   make(chan *queryTask, config.QueueSize),
		done:    make(chan struct{}),
		conn:    conn,
		pending: make(map[uuid.UUID]*queryTask),
		clients: make(map[uuid.UUID]Client),
	}

	if config.Cache {
		c.cache = cache.NewResultCache(config.CacheSize)
	}

	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	c.genCtx, c.genCancel = context.WithCancel(c.baseCtx)

	c.workers = c.startWorkers(config.Workers)

	return c
}

// Query runs q on the active connector. Identical queries issued while one is
// in flight share its execution; with the cache enabled, completed results
// are reused until the next Clear. A shared execution is cancelled once every
// caller waiting on it has given up.
func (c *Coordinator) Query(ctx context.Context, q *query.Query) (*result.Table, error) {

	if q == nil {
		return nil, query.ErrEmptyQuery
	}
	if validateErr := q.Validate(); validateErr != nil {
		return nil, validateErr
	}

	key := q.Key()

	if c.cache != nil {
		if table, ok := c.cache.Get(key); ok {
			c.metrics.cacheHits.Inc()
			c.metrics.queries.WithLabelValues(outcomeOK).Inc()
			return table, nil
		}
	}

	c.mu.RLock()
	closed, conn, gen, genCtx := c.closed, c.conn, c.generation, c.genCtx
	c.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if conn == nil {
		return nil, ErrNoConnector
	}

	flightKey := strconv.FormatUint(gen, 10) + "\x00" + key

	f := c.join(flightKey, genCtx)
	defer c.leave(flightKey, f)

	ch := c.group.DoChan(f.key, func() (any, error) {
		return c.execute(f.ctx, conn, gen, key, q)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:

		if res.Shared {
			c.metrics.shared.Inc()
		}

		if res.Err != nil {
			if errors.Is(res.Err, ErrCleared) {
				c.metrics.queries.WithLabelValues(outcomeCleared).Inc()
			} else {
				c.metrics.queries.WithLabelValues(outcomeError).Inc()
			}
			return nil, res.Err
		}

		c.metrics.queries.WithLabelValues(outcomeOK).Inc()
		return res.Val.(*result.Table), nil
	}
}

func (c *Coordinator) execute(ctx context.Context, conn Connector, gen uint64, key string, q *query.Query) (*result.Table, error) {

	task := newQueryTask(ctx, conn, gen, q)

	c.enqueue(task)
	<-task.Status.Done

	table, err := task.outcome()
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.Generation() == gen {
		c.cache.Put(key, table)
	}

	return table, nil
}

func (c *Coordinator) enqueue(task *queryTask) {

	c.mu.Lock()
	if c.closed || task.Generation != c.generation {
		closed := c.closed
		c.mu.Unlock()

		if closed {
			task.finish(nil, ErrClosed)
		} else {
			task.finish(nil, ErrCleared)
		}
		return
	}
	c.pending[task.ID] = task
	c.mu.Unlock()

	select {
	case c.tasks <- task:
	case <-task.ctx.Done():
		c.settle(task, nil, ErrCleared)
	case <-c.done:
		c.settle(task, nil, ErrClosed)
	}
}

// flight is one shared execution of a query. Its context ends when the last
// caller waiting on it leaves.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *Coordinator) join(key string, parent context.Context) *flight {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	if f, ok := c.flights[key]; ok {
		f.waiters++
		return f
	}

	c.flightSeq++
	f := &flight{
		key:     key + "\x00" + strconv.FormatUint(c.flightSeq, 10),
		waiters: 1,
	}
	f.ctx, f.cancel = context.WithCancel(parent)
	c.flights[key] = f

	return f
}

func (c *Coordinator) leave(key string, f *flight) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}

	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Coordinator) Exec(ctx context.Context, stmt string) error {

	conn, connErr := c.connector()
	if connErr != nil {
		return connErr
	}

	if execErr := conn.Exec(ctx, stmt); execErr != nil {
		return fmt.Errorf("exec failed: %w", execErr)
	}

	// data may have changed under cached results
	if c.cache != nil {
		c.cache.Purge()
	}

	return nil
}

func (c *Coordinator) Describe(ctx context.Context, table string) (schema.Schema, error) {

	conn, connErr := c.connector()
	if connErr != nil {
		return schema.Schema{}, connErr
	}

	ch := c.group.DoChan("describe\x00"+table, func() (any, error) {
		return conn.Describe(ctx, table)
	})

	select {
	case <-ctx.Done():
		return schema.Schema{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return schema.Schema{}, fmt.Errorf("unable to describe `%s`: %w", table, res.Err)
		}
		return res.Val.(schema.Schema), nil
	}
}

func (c *Coordinator) connector() (Connector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil {
		return nil, ErrNoConnector
	}
	return c.conn, nil
}

func (c *Coordinator) Connect(client Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clients[client.ID()] = client
}

func (c *Coordinator) Disconnect(client Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.clients, client.ID())
}

func (c *Coordinator) Clients() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.clients)
}

func (c *Coordinator) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.pending)
}

// Generation changes every time clients are cleared or the connector is switched.
func (c *Coordinator) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generation
}

// Clear detaches clients and/or purges cached results. Clearing clients
// destroys them and rejects every pending request with ErrCleared.
func (c *Coordinator) Clear(opts ClearOptions) {

	if opts.Clients {

		c.mu.Lock()

		c.generation++
		c.genCancel()
		c.genCtx, c.genCancel = context.WithCancel(c.baseCtx)

		detached := make([]Client, 0, len(c.clients))
		for _, it := range c.clients {
			detached = append(detached, it)
		}
		c.clients = make(map[uuid.UUID]Client)

		rejected := make([]*queryTask, 0, len(c.pending))
		for _, it := range c.pending {
			rejected = append(rejected, it)
		}

		gen := c.generation
		c.mu.Unlock()

		for _, it := range rejected {
			c.settle(it, nil, ErrCleared)
		}
		for _, it := range detached {
			it.Destroy()
		}

		c.metrics.clientsCleared.Add(float64(len(detached)))
		c.logger.Info("coordinator cleared", "generation", gen, "clients", len(detached), "rejected", len(rejected))
	}

	if opts.Cache && c.cache != nil {
		purged := c.cache.Purge()
		c.logger.Debug("result cache purged", "entries", purged)
	}
}

// SetConnector switches the data source: clients and cache are cleared, the
// previous connector is closed.
func (c *Coordinator) SetConnector(conn Connector) error {

	c.Clear(ClearOptions{Clients: true, Cache: true})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.conn
	c.conn = conn
	c.mu.Unlock()

	if prev != nil && prev != conn {
		if closeErr := prev.Close(); closeErr != nil {
			return fmt.Errorf("unable to close previous connector: %w", closeErr)
		}
	}
	return nil
}

// ReportStale records a response a client dropped because it was superseded.
func (c *Coordinator) ReportStale() {
	c.metrics.staleDiscards.Inc()
}

func (c *Coordinator) CacheSummary() (cache.Summary, bool) {
	if c.cache == nil {
		return cache.Summary{}, false
	}
	return c.cache.Summary(), true
}

// Close rejects pending requests, stops the executors and closes the connector.
func (c *Coordinator) Close() error {

	c.baseCancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	rejected := make([]*queryTask, 0, len(c.pending))
	for _, it := range c.pending {
		rejected = append(rejected, it)
	}
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	for _, it := range rejected {
		c.settle(it, nil, ErrClosed)
	}

	c.workers.Wait()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
