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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config describes the behaviour of a Connection.
type Config struct {
	// Nodes are the base URLs of the endpoint nodes, each ending with a slash.
	Nodes []string

	// WorkersPerNode is the number of upload workers maintained per node.
	WorkersPerNode int

	// QueueMaxSize is the delivery queue watermark at which producers are
	// asked to pause.
	QueueMaxSize int

	// BulkMaxSize is the byte capacity of a batch.
	BulkMaxSize int

	// Timeout bounds each probe and bulk request.
	Timeout time.Duration

	// FailLogMaxSize caps the number of item failures logged individually
	// per batch.
	FailLogMaxSize int

	// TickInterval is the cadence of the supervision pass. When zero the
	// host is expected to call OnTick itself.
	TickInterval time.Duration

	// NetworkBackOff and ProtocolBackOff construct the back-off sequences a
	// worker sleeps by after network class and protocol class failures
	// respectively. Each worker slot keeps its own sequences.
	NetworkBackOff  func() backoff.BackOff
	ProtocolBackOff func() backoff.BackOff

	// DrainPollInterval and DrainPollAttempts bound how long Close waits
	// for queued batches to be delivered before stopping workers.
	DrainPollInterval time.Duration
	DrainPollAttempts int
}

// NewConfig returns a Config with default values and no nodes.
func NewConfig() Config {
	return Config{
		WorkersPerNode: 4,
		QueueMaxSize:   10,
		BulkMaxSize:    2 * 1024 * 1024,
		Timeout:        5 * time.Minute,
		FailLogMaxSize: 20,
		TickInterval:   time.Second,
		NetworkBackOff: func() backoff.BackOff {
			return exponential(time.Second, 30*time.Second)
		},
		ProtocolBackOff: func() backoff.BackOff {
			return exponential(10*time.Second, 5*time.Minute)
		},
		DrainPollInterval: time.Second,
		DrainPollAttempts: 60,
	}
}

func exponential(initial, maximum time.Duration) backoff.BackOff {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = initial
	boff.MaxInterval = maximum
	boff.MaxElapsedTime = 0
	return boff
}

// Validate checks the config for values that would prevent a connection
// from making progress.
func (c Config) Validate() error {
	if len(c.Nodes) == 0 {
		return errors.New("at least one node url must be specified")
	}
	if c.WorkersPerNode < 1 {
		return fmt.Errorf("workers per node must be at least 1, got %d", c.WorkersPerNode)
	}
	if c.QueueMaxSize < 1 {
		return fmt.Errorf("queue max size must be at least 1, got %d", c.QueueMaxSize)
	}
	if c.BulkMaxSize < 1 {
		return fmt.Errorf("bulk max size must be at least 1, got %d", c.BulkMaxSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.FailLogMaxSize < 0 {
		return fmt.Errorf("fail log max size must not be negative, got %d", c.FailLogMaxSize)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("tick interval must not be negative, got %v", c.TickInterval)
	}
	return nil
}

// ParseNodes expands a list of URL strings, each of which may contain
// several URLs separated by semicolons or commas, into normalised node base
// URLs. Empty entries are ignored and a trailing slash is ensured.
func ParseNodes(urls []string) []string {
	var nodes []string
	for _, u := range urls {
		for _, s := range strings.FieldsFunc(u, func(r rune) bool { return r == ';' || r == ',' }) {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			if !strings.HasSuffix(s, "/") {
				s += "/"
			}
			nodes = append(nodes, s)
		}
	}
	return nodes
}
