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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueEvents struct {
	mu     sync.Mutex
	events []string
	depth  int
}

func (e *queueEvents) hooks() QueueHooks {
	return QueueHooks{
		OnPause:  func() { e.record("pause") },
		OnResume: func() { e.record("resume") },
		OnDepth: func(d int) {
			e.mu.Lock()
			e.depth = d
			e.mu.Unlock()
		},
	}
}

func (e *queueEvents) record(event string) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
}

func (e *queueEvents) get() ([]string, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...), e.depth
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(10, QueueHooks{})

	a, b, c := NewBatch("a", 1), NewBatch("b", 1), NewBatch("c", 1)
	q.Push(a)
	q.Push(b)
	q.Push(c)
	assert.Equal(t, 3, q.Len())

	ctx := t.Context()
	for _, exp := range []*Batch{a, b, c} {
		act, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Same(t, exp, act)
		q.Done()
	}
	assert.True(t, q.Idle())
}

func TestQueueEdgeTriggeredBackpressure(t *testing.T) {
	var ev queueEvents
	q := NewQueue(2, ev.hooks())
	ctx := t.Context()

	q.Push(NewBatch("a", 1))
	events, depth := ev.get()
	assert.Empty(t, events)
	assert.Equal(t, 1, depth)

	q.Push(NewBatch("b", 1))
	events, _ = ev.get()
	assert.Equal(t, []string{"pause"}, events)
	assert.True(t, q.Paused())

	// Further pushes above the watermark emit nothing.
	q.Push(NewBatch("c", 1))
	q.Push(NewBatch("d", 1))
	events, depth = ev.get()
	assert.Equal(t, []string{"pause"}, events)
	assert.Equal(t, 4, depth)

	for range 2 {
		_, err := q.Pop(ctx)
		require.NoError(t, err)
		q.Done()
	}
	events, _ = ev.get()
	assert.Equal(t, []string{"pause"}, events)

	_, err := q.Pop(ctx)
	require.NoError(t, err)
	q.Done()
	events, depth = ev.get()
	assert.Equal(t, []string{"pause", "resume"}, events)
	assert.Equal(t, 1, depth)
	assert.False(t, q.Paused())

	_, err = q.Pop(ctx)
	require.NoError(t, err)
	q.Done()
	events, depth = ev.get()
	assert.Equal(t, []string{"pause", "resume"}, events)
	assert.Equal(t, 0, depth)

	q.Push(NewBatch("e", 1))
	q.Push(NewBatch("f", 1))
	events, _ = ev.get()
	assert.Equal(t, []string{"pause", "resume", "pause"}, events)
}

func TestQueuePushNilIgnored(t *testing.T) {
	q := NewQueue(1, QueueHooks{})
	q.Push(nil)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePoison(t *testing.T) {
	q := NewQueue(10, QueueHooks{})
	ctx := t.Context()

	b := NewBatch("a", 1)
	q.Push(b)
	require.NoError(t, q.PushPoison(ctx))
	q.Push(NewBatch("b", 1))

	act, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Same(t, b, act)
	q.Done()

	_, err = q.Pop(ctx)
	require.ErrorIs(t, err, ErrPoisoned)

	// Poison values are not tracked as in flight.
	assert.Equal(t, 1, q.Len())
	_, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, q.Idle())
	q.Done()
	assert.True(t, q.Idle())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue(10, QueueHooks{})
	b := NewBatch("a", 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(b)
	}()

	ctx, done := context.WithTimeout(t.Context(), 5*time.Second)
	defer done()

	act, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Same(t, b, act)
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue(10, QueueHooks{})

	ctx, done := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer done()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, q.Idle())
}

func TestQueuePushPoisonWaitsForRoom(t *testing.T) {
	q := NewQueue(1, QueueHooks{})
	q.Push(NewBatch("a", 1))

	ctx, done := context.WithTimeout(t.Context(), 10*time.Millisecond)
	require.ErrorIs(t, q.PushPoison(ctx), context.DeadlineExceeded)
	done()

	errChan := make(chan error, 1)
	go func() {
		errChan <- q.PushPoison(t.Context())
	}()

	select {
	case err := <-errChan:
		t.Fatalf("poison pushed while queue at watermark: %v", err)
	case <-time.After(10 * time.Millisecond):
	}

	_, err := q.Pop(t.Context())
	require.NoError(t, err)
	q.Done()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for poison push")
	}

	_, err = q.Pop(t.Context())
	require.ErrorIs(t, err, ErrPoisoned)
}

func TestQueuePoisonNotCountedAsDepth(t *testing.T) {
	var ev queueEvents
	q := NewQueue(1, ev.hooks())

	require.NoError(t, q.PushPoison(t.Context()))
	events, depth := ev.get()
	assert.Empty(t, events)
	assert.Equal(t, 0, depth)
	assert.False(t, q.Paused())

	_, err := q.Pop(t.Context())
	require.ErrorIs(t, err, ErrPoisoned)

	q.Push(NewBatch("a", 1))
	events, depth = ev.get()
	assert.Equal(t, []string{"pause"}, events)
	assert.Equal(t, 1, depth)
}

func TestQueuePushPoisonForExitedTarget(t *testing.T) {
	q := NewQueue(1, QueueHooks{})
	require.NoError(t, q.PushPoison(t.Context()))

	target := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(target)
	}()

	ctx, done := context.WithTimeout(t.Context(), 5*time.Second)
	defer done()

	pushed, err := q.PushPoisonFor(ctx, target)
	require.NoError(t, err)
	assert.False(t, pushed)
	assert.Equal(t, 1, q.Len())

	pushed, err = q.PushPoisonFor(ctx, target)
	require.NoError(t, err)
	assert.False(t, pushed)

	_, err = q.Pop(ctx)
	require.ErrorIs(t, err, ErrPoisoned)

	pushed, err = q.PushPoisonFor(ctx, make(chan struct{}))
	require.NoError(t, err)
	assert.True(t, pushed)
}
