package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
)

type TaskStatus struct {
	Submitted time.Time
	Started   time.Time

	Finished atomic.Bool

	Table *result.Table
	Err   error

	Done chan struct{}
	Lock sync.Mutex
}

type queryTask struct {
	ID         uuid.UUID
	Query      *query.Query
	Conn       Connector
	Generation uint64

	ctx context.Context

	Status *TaskStatus
}

func newQueryTask(ctx context.Context, conn Connector, gen uint64, q *query.Query) *queryTask {
	uid, _ := uuid.NewV7()

	return &queryTask{
		ID:         uid,
		Query:      q,
		Conn:       conn,
		Generation: gen,
		ctx:        ctx,
		Status: &TaskStatus{
			Submitted: time.Now(),
			Done:      make(chan struct{}),
		},
	}
}

// finish settles the task once; later calls are ignored.
func (t *queryTask) finish(table *result.Table, err error) bool {

	if !t.Status.Finished.CompareAndSwap(false, true) {
		return false
	}

	t.Status.Lock.Lock()
	t.Status.Table = table
	t.Status.Err = err
	t.Status.Lock.Unlock()

	close(t.Status.Done)

	return true
}

func (t *queryTask) outcome() (*result.Table, error) {
	t.Status.Lock.Lock()
	defer t.Status.Lock.Unlock()

	return t.Status.Table, t.Status.Err
}

func StartWorkerThreads(routines int, worker func(threadId int)) *sync.WaitGroup {

	wg := &sync.WaitGroup{}
	wg.Add(routines)

	for i := 0; i < routines; i++ {
		go func(threadId int) {
			defer wg.Done()
			worker(threadId)
		}(i)
	}

	return wg
}

func (c *Coordinator) startWorkers(routines int) *sync.WaitGroup {

	c.logger.Info("starting query executors", "max_executors", routines)

	return StartWorkerThreads(routines, func(threadId int) {

		c.logger.Debug("executor started", "thread_id", threadId)
		defer c.logger.Debug("executor stopped", "thread_id", threadId)

		for {

			var task *queryTask
			select {
			case <-c.done:
				return
			case task = <-c.tasks:
			}

			if task.Status.Finished.Load() {
				continue
			}

			if ctxErr := task.ctx.Err(); ctxErr != nil {
				c.logger.Debug("skipped abandoned query", "request", task.ID, "reason", ctxErr)
				c.settle(task, nil, ErrCleared)
				continue
			}

			task.Status.Started = time.Now()
			c.metrics.inflight.Inc()

			table, err := task.Conn.Query(task.ctx, task.Query)

			c.metrics.inflight.Dec()
			c.metrics.duration.Observe(time.Since(task.Status.Started).Seconds())

			if err != nil && task.ctx.Err() != nil {
				err = ErrCleared
			}

			c.settle(task, table, err)
		}
	})
}

func (c *Coordinator) settle(task *queryTask, table *result.Table, err error) {
	if !task.finish(table, err) {
		return
	}

	c.mu.Lock()
	delete(c.pending, task.ID)
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("query failed", "request", task.ID, "err", err)
	}
}
