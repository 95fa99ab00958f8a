// Copyright 2026 The Bulkpump Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Jeffail/shutdown"
	"github.com/sourcegraph/conc/panics"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/asyncroutine"
)

// Hooks are optional callbacks invoked by upload workers when deliveries
// fail. They are called from worker goroutines.
type Hooks struct {
	// OnFullFailure is called when the endpoint rejects a whole batch with a
	// non-2xx status. The return value decides whether the batch is pushed
	// back onto the delivery queue, and when unset batches are always
	// requeued.
	OnFullFailure func(ctx context.Context, key string, items []Item, status int) (requeue bool)

	// OnPartialFailure is called with the items rejected within an accepted
	// batch. These items are not retried.
	OnPartialFailure func(ctx context.Context, key string, failures []ItemFailure)
}

// ConnectionOpt customises a Connection.
type ConnectionOpt func(c *Connection)

// WithBackpressure registers the receiver of pause and resume notifications.
func WithBackpressure(bp Backpressure) ConnectionOpt {
	return func(c *Connection) {
		c.bp = bp
	}
}

// WithMetrics sets the instruments the connection reports item outcomes and
// the queue depth to.
func WithMetrics(insert Counter, depth Gauge) ConnectionOpt {
	return func(c *Connection) {
		if insert != nil {
			c.metrics.insert = insert
		}
		if depth != nil {
			c.metrics.depth = depth
		}
	}
}

// WithHooks sets the failure hooks of the connection.
func WithHooks(h Hooks) ConnectionOpt {
	return func(c *Connection) {
		c.hooks = h
	}
}

// Connection accumulates items into batches per key and supervises a pool of
// upload workers, one set per node, that deliver sealed batches to a bulk
// endpoint.
type Connection struct {
	conf    Config
	log     *service.Logger
	dialer  Dialer
	bp      Backpressure
	hooks   Hooks
	metrics metrics

	queue *Queue

	mu      sync.Mutex
	bulks   map[string]*Batch
	slots   []*slot
	started bool
	running bool
	closing bool
	ticker  *asyncroutine.Periodic

	workerCtx    context.Context
	workerCancel context.CancelFunc
	shutSig      *shutdown.Signaller
}

// NewConnection creates a connection from a validated config. Workers are
// not spawned until Run is called.
func NewConnection(conf Config, dialer Dialer, log *service.Logger, opts ...ConnectionOpt) (*Connection, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, fmt.Errorf("a dialer must be provided")
	}

	c := &Connection{
		conf:    conf,
		log:     log,
		dialer:  dialer,
		metrics: metrics{insert: noopCounter{}, depth: noopGauge{}},
		bulks:   map[string]*Batch{},
		started: true,
		shutSig: shutdown.NewSignaller(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.queue = NewQueue(conf.QueueMaxSize, QueueHooks{
		OnPause: func() {
			c.log.Debugf("Delivery queue reached %d batches, pausing producers", c.conf.QueueMaxSize)
			if c.bp != nil {
				c.bp.Pause(c)
			}
		},
		OnResume: func() {
			c.log.Debugf("Delivery queue drained below %d batches, resuming producers", c.conf.QueueMaxSize)
			if c.bp != nil {
				c.bp.Resume(c)
			}
		},
		OnDepth: func(depth int) {
			c.metrics.depth.Set(int64(depth))
		},
	})

	for _, node := range conf.Nodes {
		for range conf.WorkersPerNode {
			c.slots = append(c.slots, &slot{
				node:            node,
				networkBackOff:  conf.NetworkBackOff(),
				protocolBackOff: conf.ProtocolBackOff(),
			})
		}
	}

	// Workers observe this context only to abandon in-flight requests when a
	// graceful close runs out of time.
	c.workerCtx, c.workerCancel = c.shutSig.HardStopCtx(context.Background())
	return c, nil
}

// Queue returns the delivery queue of the connection.
func (c *Connection) Queue() *Queue {
	return c.queue
}

// Run spawns the initial set of workers and, when a tick interval is
// configured, starts the periodic supervision pass. Calling Run more than
// once has no effect.
func (c *Connection) Run() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.closing {
		return
	}
	c.running = true

	c.supervise()
	if c.conf.TickInterval > 0 {
		c.ticker = asyncroutine.NewPeriodic(c.conf.TickInterval, c.OnTick)
		c.ticker.Start()
	}
}

// Consume appends items to the open batch of key, sealing and enqueueing the
// batch each time it becomes full. Consume never blocks on delivery; callers
// should honour the pause and resume notifications instead.
func (c *Connection) Consume(key string, items ...Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		c.metrics.fail(len(items))
		c.log.Errorf("Dropping %d documents for %v as the connection is closing", len(items), key)
		return
	}

	for _, item := range items {
		b, exists := c.bulks[key]
		if !exists {
			b = NewBatch(key, c.conf.BulkMaxSize)
			c.bulks[key] = b
		}
		if b.Append(item) {
			delete(c.bulks, key)
			c.enqueue(b)
		}
	}
}

func (c *Connection) enqueue(b *Batch) {
	c.queue.Push(b)
}

// OnTick ages open batches, sealing those that have not received items for
// two ticks, and then supervises the worker slots, reaping exited workers and
// replacing them while the connection is started.
func (c *Connection) OnTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flush(false)
	c.supervise()
}

func (c *Connection) flush(forced bool) {
	for key, b := range c.bulks {
		if b.tick() >= maxBatchAge || forced {
			delete(c.bulks, key)
			c.enqueue(b)
		}
	}
}

func (c *Connection) supervise() {
	for _, s := range c.slots {
		if s.task != nil && s.task.Done() {
			if err := s.task.Err(); err != nil {
				if s.task.State() == workerCrashed {
					c.log.Errorf("Upload worker for %v crashed, restoring: %v", s.node, err)
				} else {
					c.log.Warnf("Upload worker for %v exited: %v", s.node, err)
				}
			}
			s.task = nil
		}
		if s.task == nil && c.started {
			s.task = c.spawn(s)
		}
	}
}

func (c *Connection) spawn(s *slot) *task {
	t := newTask()
	w := &worker{
		conn: c,
		slot: s,
		task: t,
		log:  c.log.With("node", s.node),
	}
	go func() {
		defer close(t.done)

		var pc panics.Catcher
		pc.Try(func() {
			t.err = w.run(c.workerCtx)
		})
		if r := pc.Recovered(); r != nil {
			t.err = fmt.Errorf("worker panic: %w", r.AsError())
			t.setState(workerCrashed)
			return
		}
		t.setState(workerTerminated)
	}()
	return t
}

// Close flushes all open batches, waits for the delivery queue to drain and
// then stops every worker, one poison value each. Should the context expire
// first then in-flight requests are abandoned and the context error is
// returned.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	ticker := c.ticker
	c.ticker = nil
	c.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}

	c.mu.Lock()
	c.flush(true)
	c.mu.Unlock()

	if err := c.drain(ctx); err != nil {
		return c.abort(err)
	}

	c.mu.Lock()
	c.started = false
	var pending []*task
	for _, s := range c.slots {
		if s.task != nil {
			pending = append(pending, s.task)
		}
	}
	c.mu.Unlock()

	// Workers may exit without consuming their poison, for example after a
	// failed probe, so each push also gives up once its worker is gone.
	for _, t := range pending {
		if _, err := c.queue.PushPoisonFor(ctx, t.done); err != nil {
			return c.abort(err)
		}
	}
	for _, t := range pending {
		if err := t.Wait(ctx); err != nil {
			return c.abort(err)
		}
	}

	c.mu.Lock()
	c.supervise()
	c.mu.Unlock()

	c.workerCancel()
	c.shutSig.TriggerHasStopped()
	return nil
}

// drain waits for queued and in-flight batches to reach a terminal outcome,
// replacing exited workers in between polls. Giving up after the configured
// number of attempts is logged but not an error, the remaining batches are
// still ahead of the poison values in the queue.
func (c *Connection) drain(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if c.queue.Idle() {
			return nil
		}
		if attempt >= c.conf.DrainPollAttempts {
			c.log.Errorf("Delivery queue failed to drain after %d attempts, %d batches remain", attempt, c.queue.Len())
			return nil
		}

		c.mu.Lock()
		c.supervise()
		c.mu.Unlock()

		select {
		case <-time.After(c.conf.DrainPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) abort(err error) error {
	c.log.Errorf("Abandoning in-flight deliveries: %v", err)
	c.shutSig.TriggerHardStop()
	c.workerCancel()
	return err
}
