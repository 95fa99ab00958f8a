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
	"github.com/prometheus/client_golang/prometheus"
)

// Label values of the insert counter.
const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

// Counter is a write-only counter instrument with labels. It is satisfied by
// *service.MetricCounter.
type Counter interface {
	Incr(count int64, labelValues ...string)
}

// Gauge is a write-only gauge instrument with labels. It is satisfied by
// *service.MetricGauge.
type Gauge interface {
	Set(value int64, labelValues ...string)
}

type noopCounter struct{}

func (noopCounter) Incr(int64, ...string) {}

type noopGauge struct{}

func (noopGauge) Set(int64, ...string) {}

type metrics struct {
	insert Counter
	depth  Gauge
}

func (m metrics) ok(n int) {
	if n > 0 {
		m.insert.Incr(int64(n), ResultOK)
	}
}

func (m metrics) fail(n int) {
	if n > 0 {
		m.insert.Incr(int64(n), ResultFail)
	}
}

//------------------------------------------------------------------------------

type promCounter struct {
	vec *prometheus.CounterVec
}

func (p promCounter) Incr(count int64, labelValues ...string) {
	p.vec.WithLabelValues(labelValues...).Add(float64(count))
}

type promGauge struct {
	g prometheus.Gauge
}

func (p promGauge) Set(value int64, _ ...string) {
	p.g.Set(float64(value))
}

// PrometheusMetrics registers the insert counter and queue depth gauge of a
// connection with a Prometheus registerer, for embedding the engine outside
// of a stream pipeline.
func PrometheusMetrics(reg prometheus.Registerer, namespace string) (Counter, Gauge, error) {
	insert := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_insert_total",
		Help:      "Documents acknowledged by the bulk endpoint, partitioned by result.",
	}, []string{"result"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bulk_queue_depth",
		Help:      "Sealed batches waiting for an upload worker.",
	})
	if err := reg.Register(insert); err != nil {
		return nil, nil, err
	}
	if err := reg.Register(depth); err != nil {
		reg.Unregister(insert)
		return nil, nil, err
	}
	return promCounter{vec: insert}, promGauge{g: depth}, nil
}
