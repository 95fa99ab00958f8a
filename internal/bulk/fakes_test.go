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
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func testConfig(nodes ...string) Config {
	conf := NewConfig()
	conf.Nodes = nodes
	conf.WorkersPerNode = 1
	conf.TickInterval = 0
	conf.Timeout = 5 * time.Second
	conf.NetworkBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	conf.ProtocolBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	conf.DrainPollInterval = time.Millisecond
	conf.DrainPollAttempts = 5000
	return conf
}

func testLogger() *service.Logger {
	return service.MockResources().Logger()
}

type delivery struct {
	node string
	key  string
	body string
}

// fakeEndpoint is a Dialer whose sessions hand requests to configurable
// functions and record every bulk request body.
type fakeEndpoint struct {
	probeFn func(node string) (*Response, error)
	bulkFn  func(call int, key string, body []byte) (*Response, error)

	mu         sync.Mutex
	dials      int
	closed     int
	calls      int
	deliveries []delivery
}

func (f *fakeEndpoint) Dial(ctx context.Context, node string) (Session, error) {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()
	return &fakeSession{f: f, node: node}, nil
}

func (f *fakeEndpoint) Deliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

func (f *fakeEndpoint) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEndpoint) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

type fakeSession struct {
	f    *fakeEndpoint
	node string
}

func (s *fakeSession) Probe(ctx context.Context) (*Response, error) {
	if s.f.probeFn != nil {
		return s.f.probeFn(s.node)
	}
	return &Response{StatusCode: 200, Body: []byte(`{"cluster_name":"test"}`)}, nil
}

func (s *fakeSession) Bulk(ctx context.Context, key string, body io.Reader) (*Response, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	s.f.mu.Lock()
	call := s.f.calls
	s.f.calls++
	s.f.mu.Unlock()

	var res *Response
	if s.f.bulkFn != nil {
		res, err = s.f.bulkFn(call, key, data)
	} else {
		res = &Response{StatusCode: 200, Body: ackFor(strings.Count(string(data), "\n")/2)}
	}
	if err == nil && res.Success() {
		s.f.mu.Lock()
		s.f.deliveries = append(s.f.deliveries, delivery{node: s.node, key: key, body: string(data)})
		s.f.mu.Unlock()
	}
	return res, err
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	return nil
}

// ackFor builds a bulk acknowledgement for n create actions where the
// indexes listed in errored were rejected.
func ackFor(n int, errored ...int) []byte {
	bad := map[int]bool{}
	for _, i := range errored {
		bad[i] = true
	}
	items := make([]string, 0, n)
	for i := range n {
		if bad[i] {
			items = append(items, fmt.Sprintf(`{"create":{"_id":"doc-%d","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field"}}}`, i))
		} else {
			items = append(items, fmt.Sprintf(`{"create":{"_id":"doc-%d","status":201}}`, i))
		}
	}
	return fmt.Appendf(nil, `{"took":3,"errors":%v,"items":[%s]}`, len(errored) > 0, strings.Join(items, ","))
}

type fakeCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: map[string]int64{}}
}

func (f *fakeCounter) Incr(count int64, labelValues ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[strings.Join(labelValues, ",")] += count
}

func (f *fakeCounter) Get(label string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[label]
}

type fakeGauge struct {
	value atomic.Int64
}

func (f *fakeGauge) Set(value int64, _ ...string) {
	f.value.Store(value)
}

type recordingBackpressure struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBackpressure) Pause(*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "pause")
}

func (r *recordingBackpressure) Resume(*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "resume")
}

func (r *recordingBackpressure) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type countingBackOff struct {
	calls *atomic.Int32
}

func (c countingBackOff) NextBackOff() time.Duration {
	c.calls.Add(1)
	return 0
}

func (c countingBackOff) Reset() {}

func item(id string, size int) Item {
	return Item{ID: id, Data: []byte(strings.Repeat("x", size))}
}
