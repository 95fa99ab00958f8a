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
	"errors"
	"sync"
)

// ErrPoisoned is returned by Queue.Pop when the popped entry is a poison value
// signalling that the consumer should stop.
var ErrPoisoned = errors.New("delivery queue poisoned")

// QueueHooks are notified of queue depth transitions. Hooks are called with
// the queue lock held and must not call back into the queue.
type QueueHooks struct {
	// OnPause is called once when the depth reaches the queue maximum.
	OnPause func()
	// OnResume is called once when the depth drops back below the maximum
	// after a pause.
	OnResume func()
	// OnDepth is called with the number of queued batches after every
	// mutation. Poison values are not counted.
	OnDepth func(depth int)
}

// Queue is a FIFO of sealed batches consumed by upload workers. The maximum
// size is a watermark rather than a hard limit: Push never blocks, and
// crossing the watermark produces edge-triggered pause and resume
// notifications.
type Queue struct {
	mu      sync.Mutex
	entries []*Batch
	limit   int
	paused  bool
	active  int
	poisons int
	hooks   QueueHooks

	// Closed and replaced whenever an entry is added or removed.
	added   chan struct{}
	removed chan struct{}
}

// NewQueue creates a delivery queue with a watermark of limit entries.
func NewQueue(limit int, hooks QueueHooks) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		limit:   limit,
		hooks:   hooks,
		added:   make(chan struct{}),
		removed: make(chan struct{}),
	}
}

func broadcast(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}

// Len returns the current depth of the queue, including poison values.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// depthLocked returns the number of queued batches, excluding poison values.
func (q *Queue) depthLocked() int {
	return len(q.entries) - q.poisons
}

// Paused returns true while the queue is at or above its watermark and has
// not yet been drained below it.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Push adds a batch to the back of the queue without blocking.
func (q *Queue) Push(b *Batch) {
	if b == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, b)
	broadcast(&q.added)
	depth := q.depthLocked()
	if q.hooks.OnDepth != nil {
		q.hooks.OnDepth(depth)
	}
	if !q.paused && depth >= q.limit {
		q.paused = true
		if q.hooks.OnPause != nil {
			q.hooks.OnPause()
		}
	}
}

// PushPoison adds a poison value to the back of the queue, which terminates
// exactly one consumer. Unlike Push this blocks while the queue is at or
// above its watermark, or until the context is cancelled. Poison values do
// not count towards the depth reported to hooks and never trigger a pause.
func (q *Queue) PushPoison(ctx context.Context) error {
	_, err := q.PushPoisonFor(ctx, nil)
	return err
}

// PushPoisonFor behaves like PushPoison but gives up without pushing once
// target is closed, which is used to stop waiting for room when the
// consumer the poison was meant for has already exited. Returns true if the
// poison value was pushed.
func (q *Queue) PushPoisonFor(ctx context.Context, target <-chan struct{}) (bool, error) {
	for {
		select {
		case <-target:
			return false, nil
		default:
		}

		q.mu.Lock()
		if len(q.entries) < q.limit {
			q.entries = append(q.entries, nil)
			q.poisons++
			broadcast(&q.added)
			q.mu.Unlock()
			return true, nil
		}
		removed := q.removed
		q.mu.Unlock()

		select {
		case <-removed:
		case <-target:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Done marks a batch previously returned by Pop as no longer in flight. It
// must be called once the batch reached a terminal outcome or was pushed
// back onto the queue.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active > 0 {
		q.active--
	}
}

// Idle returns true when the queue holds no entries and no popped batch is
// still in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0 && q.active == 0
}

// Pop removes the batch at the front of the queue, blocking until one is
// available or the context is cancelled. ErrPoisoned is returned when the
// entry popped is a poison value. Each batch returned must be followed by a
// call to Done.
func (q *Queue) Pop(ctx context.Context) (*Batch, error) {
	for {
		q.mu.Lock()
		if len(q.entries) > 0 {
			b := q.entries[0]
			q.entries[0] = nil
			q.entries = q.entries[1:]
			if b != nil {
				q.active++
			} else {
				q.poisons--
			}
			broadcast(&q.removed)
			depth := q.depthLocked()
			if q.hooks.OnDepth != nil {
				q.hooks.OnDepth(depth)
			}
			if q.paused && depth < q.limit {
				q.paused = false
				if q.hooks.OnResume != nil {
					q.hooks.OnResume()
				}
			}
			q.mu.Unlock()

			if b == nil {
				return nil, ErrPoisoned
			}
			return b, nil
		}
		added := q.added
		q.mu.Unlock()

		select {
		case <-added:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
