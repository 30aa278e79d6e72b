package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dot5enko/tessera/coordinator"
	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/selection"
)

type State int32

const (
	Idle State = iota
	Preparing
	Querying
	Settled
	Errored
	Destroyed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Querying:
		return "querying"
	case Settled:
		return "settled"
	case Errored:
		return "errored"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Coordinator is the part of *coordinator.Coordinator a client talks to.
type Coordinator interface {
	Query(ctx context.Context, q *query.Query) (*result.Table, error)
	Connect(c coordinator.Client)
	Disconnect(c coordinator.Client)
	Generation() uint64
	ReportStale()
}

// Builder turns the resolved predicate (nil means no filter) into a query.
// Returning a nil query skips the cycle. Builders run serialized per client
// and must not update the selection their client is bound to.
type Builder func(predicate query.Predicate) (*query.Query, error)

type Options struct {
	Selection *selection.Selection
	// Source is the identity used when resolving Selection. Defaults to the
	// client id; plots pass their own id so cross selections skip their brush.
	Source selection.ClientID

	Query   Builder
	Result  func(table *result.Table)
	Error   func(err error)
	Prepare func(ctx context.Context) error

	FilterStable bool

	Logger *slog.Logger
}

// Client keeps one view in sync with a selection. Only the response to the
// latest issued query is delivered; older ones are dropped as stale.
//
// Result and Error run serialized, on the goroutine that received the
// response. They must not call Destroy on their own client synchronously.
type Client struct {
	id     uuid.UUID
	source selection.ClientID
	coord  Coordinator
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// building is held from predicate resolution until the generation is
	// issued, so a later generation never carries an older predicate.
	building sync.Mutex

	mu         sync.Mutex
	generation uint64
	state      State
	shape      string
	lastWave   uuid.UUID
	datasetGen uint64

	deliver   sync.Mutex
	destroyed atomic.Bool
	sub       *selection.Subscription

	inflight sync.WaitGroup
	stale    atomic.Int64
}

func New(coord Coordinator, opts Options) (*Client, error) {

	if opts.Query == nil {
		return nil, ErrNoBuilder
	}

	c := &Client{
		id:     uuid.New(),
		coord:  coord,
		opts:   opts,
		logger: opts.Logger,
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.source = opts.Source
	if c.source == uuid.Nil {
		c.source = c.id
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.datasetGen = coord.Generation()

	coord.Connect(c)

	if opts.Selection != nil {
		c.sub = opts.Selection.Subscribe(c.onEvent)
	}

	if opts.Prepare != nil {
		c.setState(Preparing)

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()

			if prepareErr := opts.Prepare(c.ctx); prepareErr != nil {
				c.report(&TransportError{Err: prepareErr})
			}

			c.setState(Idle)
			c.cycle()
		}()
	} else {
		c.cycle()
	}

	return c, nil
}

func (c *Client) ID() uuid.UUID {
	return c.id
}

func (c *Client) Source() selection.ClientID {
	return c.source
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Generation is the number of the latest issued cycle.
func (c *Client) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

func (c *Client) StaleDiscards() int64 {
	return c.stale.Load()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != Destroyed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Client) onEvent(ev selection.Event) {

	c.mu.Lock()
	if ev.Wave == c.lastWave {
		c.mu.Unlock()
		return
	}
	c.lastWave = ev.Wave
	c.mu.Unlock()

	c.cycle()
}

// Requery runs a query cycle against the current predicate.
func (c *Client) Requery() {
	c.cycle()
}

func (c *Client) cycle() {

	if c.destroyed.Load() {
		return
	}

	q, gen, buildErr := c.build()
	if buildErr != nil {
		c.report(buildErr)
		return
	}
	if q == nil {
		return
	}

	c.inflight.Add(1)
	go c.run(gen, q)
}

func (c *Client) build() (*query.Query, uint64, error) {

	c.building.Lock()
	defer c.building.Unlock()

	c.mu.Lock()
	preparing := c.state == Preparing
	c.mu.Unlock()

	// the first query after prepare picks up the latest predicate
	if preparing {
		return nil, 0, nil
	}

	if c.coord.Generation() != c.datasetGen {
		c.invalidate()
		return nil, 0, &BuildError{Err: ErrConfigMismatch}
	}

	var predicate query.Predicate
	if c.opts.Selection != nil {
		predicate = c.opts.Selection.Resolve(c.source)
	}

	q, buildErr := c.opts.Query(predicate)
	if buildErr != nil {
		c.invalidate()
		return nil, 0, &BuildError{Err: buildErr}
	}
	if q == nil {
		return nil, 0, nil
	}

	if c.opts.FilterStable {
		shape := q.Shape()

		c.mu.Lock()
		changed := c.shape != "" && c.shape != shape
		if !changed {
			c.shape = shape
		}
		c.mu.Unlock()

		if changed {
			c.invalidate()
			return nil, 0, &BuildError{Err: ErrShapeChanged}
		}
		q.Stable = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.state != Destroyed {
		c.state = Querying
	}

	return q, c.generation, nil
}

// invalidate bumps the generation, so responses to earlier queries can no
// longer overwrite the view.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.generation++
	if c.state != Destroyed {
		c.state = Errored
	}
	c.mu.Unlock()
}

func (c *Client) report(err error) {

	c.deliver.Lock()
	defer c.deliver.Unlock()

	if c.destroyed.Load() {
		return
	}

	if c.opts.Error != nil {
		c.opts.Error(err)
	} else {
		c.logger.Warn("client query error", "client", c.id, "err", err)
	}
}

func (c *Client) run(gen uint64, q *query.Query) {

	defer c.inflight.Done()

	table, queryErr := c.coord.Query(c.ctx, q)

	c.deliver.Lock()
	defer c.deliver.Unlock()

	if c.destroyed.Load() {
		return
	}

	c.mu.Lock()
	current := gen == c.generation
	if current {
		if queryErr != nil {
			c.state = Errored
		} else {
			c.state = Settled
		}
	}
	c.mu.Unlock()

	if !current {
		c.stale.Add(1)
		c.coord.ReportStale()
		c.logger.Debug("stale response dropped", "client", c.id, "generation", gen)
		return
	}

	if queryErr != nil {
		err := &TransportError{Err: queryErr}
		if c.opts.Error != nil {
			c.opts.Error(err)
		} else {
			c.logger.Warn("client query error", "client", c.id, "err", err)
		}
		return
	}

	if c.opts.Result != nil {
		c.opts.Result(table)
	}
}

// Destroy unsubscribes, cancels in-flight requests and waits for a running
// callback to return. No callback starts after Destroy returns.
func (c *Client) Destroy() {

	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}

	if c.opts.Selection != nil {
		c.opts.Selection.Unsubscribe(c.sub)
	}
	c.coord.Disconnect(c)
	c.cancel()

	c.deliver.Lock()
	c.mu.Lock()
	c.state = Destroyed
	c.mu.Unlock()
	c.deliver.Unlock()
}

// Wait blocks until every query issued so far has been answered or dropped.
func (c *Client) Wait() {
	c.inflight.Wait()
}
