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
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/redpanda-data/benthos/v4/public/service"
)

type workerState int32

const (
	workerSpawned workerState = iota
	workerPreflight
	workerRunning
	workerTerminated
	workerCrashed
)

func (s workerState) String() string {
	switch s {
	case workerSpawned:
		return "spawned"
	case workerPreflight:
		return "preflight"
	case workerRunning:
		return "running"
	case workerTerminated:
		return "terminated"
	case workerCrashed:
		return "crashed"
	}
	return "unknown"
}

// task is the handle of a single upload worker run, polled by the
// supervision pass.
type task struct {
	state atomic.Int32
	done  chan struct{}
	err   error
}

func newTask() *task {
	return &task{done: make(chan struct{})}
}

func (t *task) setState(s workerState) {
	t.state.Store(int32(s))
}

func (t *task) State() workerState {
	return workerState(t.state.Load())
}

// Done returns true once the worker has exited.
func (t *task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the reason the worker exited, only valid once Done.
func (t *task) Err() error {
	return t.err
}

// Wait blocks until the worker exits or the context is cancelled.
func (t *task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slot is a position in the worker table bound to one node. Back-off
// sequences survive worker restarts so that repeated failures grow the wait.
type slot struct {
	node string
	task *task

	networkBackOff  backoff.BackOff
	protocolBackOff backoff.BackOff
}

func (s *slot) resetBackOff() {
	s.networkBackOff.Reset()
	s.protocolBackOff.Reset()
}

type failureClass int

const (
	classNetwork failureClass = iota
	classProtocol
)

func classify(err error) failureClass {
	if errors.Is(err, ErrMalformedResponse) {
		return classProtocol
	}
	return classNetwork
}

// worker delivers batches from the queue of a connection through a single
// session to one node.
type worker struct {
	conn *Connection
	slot *slot
	task *task
	log  *service.Logger
	sess Session
}

func (w *worker) run(ctx context.Context) error {
	w.task.setState(workerPreflight)

	sess, err := w.conn.dialer.Dial(ctx, w.slot.node)
	if err != nil {
		w.log.Errorf("Failed to open session: %v", err)
		w.sleep(ctx, classify(err))
		return nil
	}
	w.sess = sess
	defer func() {
		if err := sess.Close(); err != nil {
			w.log.Debugf("Failed to close session: %v", err)
		}
	}()

	if err := w.preflight(ctx); err != nil {
		w.log.Errorf("Node failed health probe: %v", err)
		w.sleep(ctx, classify(err))
		return nil
	}
	w.slot.resetBackOff()

	w.task.setState(workerRunning)
	for {
		b, err := w.conn.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, ErrPoisoned) {
				w.log.Debugf("Worker stopped while idle: %v", err)
			}
			return nil
		}
		if err := w.deliverTracked(ctx, b); err != nil {
			return err
		}
	}
}

func (w *worker) preflight(ctx context.Context) error {
	pctx, done := context.WithTimeout(ctx, w.conn.conf.Timeout)
	defer done()

	res, err := w.sess.Probe(pctx)
	if err != nil {
		return err
	}
	if !res.Success() {
		return &StatusError{StatusCode: res.StatusCode, Body: res.Body}
	}
	if !json.Valid(res.Body) {
		return fmt.Errorf("%w: probe body is not JSON: %s", ErrMalformedResponse, truncate(res.Body, 256))
	}
	return nil
}

func (w *worker) sleep(ctx context.Context, class failureClass) {
	boff := w.slot.networkBackOff
	if class == classProtocol {
		boff = w.slot.protocolBackOff
	}
	d := boff.NextBackOff()
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (w *worker) deliverTracked(ctx context.Context, b *Batch) error {
	defer w.conn.queue.Done()
	return w.deliver(ctx, b)
}

// deliver uploads a batch. A nil error means the batch reached a terminal
// outcome and the worker may continue, otherwise the batch has been handed
// back to the queue (or discarded by the full failure hook) and the worker
// must exit.
func (w *worker) deliver(ctx context.Context, b *Batch) error {
	n := b.Len()
	if n == 0 {
		return nil
	}

	start := time.Now()
	res, err := w.upload(ctx, b)
	if err != nil {
		return w.fullFailure(ctx, b, classNetwork, fmt.Errorf("sending bulk request: %w", err))
	}

	if !res.Success() {
		w.conn.metrics.fail(n)
		w.log.Errorf("Failed to insert %d documents into %v, status: %d body: %s", n, b.Key(), res.StatusCode, truncate(res.Body, 1024))

		requeue := true
		if w.conn.hooks.OnFullFailure != nil {
			requeue = w.conn.hooks.OnFullFailure(ctx, b.Key(), b.Items(), res.StatusCode)
		}
		statusErr := &StatusError{StatusCode: res.StatusCode, Body: res.Body}
		if !requeue {
			b.Release()
			w.sleep(ctx, classNetwork)
			return &DeliveryError{Key: b.Key(), Items: n, Err: statusErr}
		}
		return w.fullFailure(ctx, b, classNetwork, statusErr)
	}

	ack, err := parseAck(res.Body)
	if err != nil {
		return w.fullFailure(ctx, b, classProtocol, err)
	}

	failures := ack.failures(b.Items())
	if len(failures) == 0 {
		w.conn.metrics.ok(n)
		w.log.Debugf("Inserted %d documents into %v in %v", n, b.Key(), time.Since(start))
		b.Release()
		return nil
	}

	logLimit := w.conn.conf.FailLogMaxSize
	for i, f := range failures {
		if i >= logLimit {
			break
		}
		w.log.Errorf("Failed to insert document into %v: %v", b.Key(), f)
	}
	if len(failures) > logLimit {
		w.log.Errorf("Failed to insert %d more documents into %v", len(failures)-logLimit, b.Key())
	}

	if w.conn.hooks.OnPartialFailure != nil {
		w.conn.hooks.OnPartialFailure(ctx, b.Key(), failures)
	}

	k := min(len(failures), n)
	w.conn.metrics.fail(k)
	w.conn.metrics.ok(n - k)
	b.Release()
	return nil
}

func (w *worker) upload(ctx context.Context, b *Batch) (*Response, error) {
	uctx, done := context.WithTimeout(ctx, w.conn.conf.Timeout)
	defer done()

	body := b.Reader()
	defer body.Close()

	return w.sess.Bulk(uctx, b.Key(), body)
}

func (w *worker) fullFailure(ctx context.Context, b *Batch, class failureClass, err error) error {
	key, n := b.Key(), b.Len()
	w.log.Errorf("Failed to deliver %d documents to %v, returning batch to the queue: %v", n, key, err)

	// The batch belongs to the queue again from here on.
	w.conn.queue.Push(b)
	w.sleep(ctx, class)
	return &DeliveryError{Key: key, Items: n, Requeued: true, Err: err}
}
