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
	"encoding/json"
	"io"
	"iter"
	"sync"
)

// maxBatchAge is the number of ticks an open batch may go without receiving
// items before it is sealed regardless of its size.
const maxBatchAge = 2

// Item is a single document destined for a bulk endpoint.
type Item struct {
	// ID is the document identifier. When empty the endpoint assigns one.
	ID string

	// Data is the raw document, typically a single line of JSON.
	Data []byte

	// Meta is opaque to the engine and is handed back within failure hooks.
	Meta any
}

// Batch accumulates items for a single destination key until either its byte
// capacity is exhausted or it ages out.
type Batch struct {
	key       string
	items     []Item
	remaining int
	age       int
}

// NewBatch creates an empty batch for key with a capacity of capacity bytes.
func NewBatch(key string, capacity int) *Batch {
	return &Batch{
		key:       key,
		remaining: capacity,
	}
}

// Key returns the destination key of the batch.
func (b *Batch) Key() string {
	return b.key
}

// Items returns the items of the batch in insertion order.
func (b *Batch) Items() []Item {
	return b.items
}

// Len returns the number of items within the batch.
func (b *Batch) Len() int {
	return len(b.items)
}

// Remaining returns the remaining byte capacity, which becomes zero or
// negative once the batch is full.
func (b *Batch) Remaining() int {
	return b.remaining
}

// Age returns the number of ticks observed since the last append.
func (b *Batch) Age() int {
	return b.age
}

// Append adds an item to the batch and returns true if the batch is now full.
func (b *Batch) Append(item Item) bool {
	b.items = append(b.items, item)
	b.remaining -= len(item.Data)
	b.age = 0
	return b.IsFull()
}

// IsFull returns true once the byte capacity of the batch is exhausted.
func (b *Batch) IsFull() bool {
	return b.remaining <= 0
}

func (b *Batch) tick() int {
	b.age++
	return b.age
}

// Release drops all references to the items of the batch.
func (b *Batch) Release() {
	b.items = nil
}

var (
	createAction = []byte("{\"create\":{}}\n")
	lineBreak    = []byte("\n")
)

type indexAction struct {
	Index struct {
		ID string `json:"_id"`
	} `json:"index"`
}

func actionHeader(id string) []byte {
	if id == "" {
		return createAction
	}
	var a indexAction
	a.Index.ID = id
	hdr, _ := json.Marshal(a)
	return append(hdr, '\n')
}

// Serialize returns a lazy sequence of the chunks making up the bulk request
// body of the batch. Each item produces an action header followed by its
// payload, and payloads lacking a trailing newline are terminated with one.
func (b *Batch) Serialize() iter.Seq[[]byte] {
	items := b.items
	return func(yield func([]byte) bool) {
		for _, item := range items {
			if !yield(actionHeader(item.ID)) {
				return
			}
			if len(item.Data) > 0 && !yield(item.Data) {
				return
			}
			if len(item.Data) == 0 || item.Data[len(item.Data)-1] != '\n' {
				if !yield(lineBreak) {
					return
				}
			}
		}
	}
}

// Reader returns a reader that streams the serialized batch.
func (b *Batch) Reader() io.ReadCloser {
	next, stop := iter.Pull(b.Serialize())
	return &chunkReader{next: next, stop: stop}
}

type chunkReader struct {
	mu   sync.Mutex
	next func() ([]byte, bool)
	stop func()
	cur  []byte
	done bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.cur) == 0 {
		if r.done {
			return 0, io.EOF
		}
		chunk, ok := r.next()
		if !ok {
			r.done = true
			r.stop()
			return 0, io.EOF
		}
		r.cur = chunk
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done = true
	r.cur = nil
	r.stop()
	return nil
}
