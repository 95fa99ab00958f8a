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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/retries"
)

const (
	boFieldURLs              = "urls"
	boFieldIndex             = "index"
	boFieldID                = "id"
	boFieldAuth              = "basic_auth"
	boFieldAuthEnabled       = "enabled"
	boFieldAuthUsername      = "username"
	boFieldAuthPassword      = "password"
	boFieldTLS               = "tls"
	boFieldWorkersPerURL     = "workers_per_url"
	boFieldQueueMaxSize      = "queue_max_size"
	boFieldBulkMaxSize       = "bulk_max_size"
	boFieldTimeout           = "timeout"
	boFieldFailLogMaxSize    = "fail_log_max_size"
	boFieldTickInterval      = "tick_interval"
	boFieldNetworkBackOff    = "network_backoff"
	boFieldProtocolBackOff   = "protocol_backoff"
	boFieldDrain             = "drain"
	boFieldDrainPollInterval = "poll_interval"
	boFieldDrainPollAttempts = "poll_attempts"
)

// FieldTLS is the name of the TLS field created with OutputFields, which
// transports read directly.
const FieldTLS = boFieldTLS

// OutputDescription documents the delivery semantics common to all bulk
// outputs.
const OutputDescription = `
Messages are accumulated into batches per target index, and a batch is sealed once the sum of its document sizes reaches ` + "`bulk_max_size`" + ` bytes or once it has not received a document for two consecutive ticks of ` + "`tick_interval`" + `. Sealed batches are placed on a delivery queue consumed by ` + "`workers_per_url`" + ` upload workers for each URL, each holding its own connection to a single node.

Writes are acknowledged once a message has been added to a batch. When the delivery queue reaches ` + "`queue_max_size`" + ` sealed batches further writes are held until a worker takes a batch from the queue.

A batch that cannot be delivered at all, either due to a network error or an unexpected response, is returned to the queue and the worker handling it backs off before a replacement is started. Documents rejected individually within an accepted batch are logged and counted as failed, but are not retried.

### Metrics

The counter ` + "`<label>_insert`" + ` with a ` + "`result`" + ` label of either ` + "`ok` or `fail`" + ` tracks the outcome of each document, and the gauge ` + "`<label>_queue_depth`" + ` tracks the number of sealed batches waiting for a worker.`

// OutputFields returns the config fields common to all bulk outputs.
func OutputFields() []*service.ConfigField {
	return []*service.ConfigField{
		service.NewStringListField(boFieldURLs).
			Description("A list of URLs of nodes to connect to. If an item of the list contains commas or semicolons it will be expanded into multiple URLs.").
			Example([]string{"http://localhost:9200"}),
		service.NewInterpolatedStringField(boFieldIndex).
			Description("The index to place messages. Messages are batched separately for each distinct index."),
		service.NewInterpolatedStringField(boFieldID).
			Description("The ID for indexed messages. When empty the document is created with an ID assigned by the cluster, otherwise it is indexed under the given ID, replacing any existing document.").
			Example(`${!counter()}-${!timestamp_unix()}`).
			Default(""),
		service.NewTLSToggledField(boFieldTLS),
		service.NewObjectField(boFieldAuth,
			service.NewBoolField(boFieldAuthEnabled).
				Description("Whether to use basic authentication in requests.").
				Default(false),
			service.NewStringField(boFieldAuthUsername).
				Description("A username to authenticate as.").
				Default(""),
			service.NewStringField(boFieldAuthPassword).
				Description("A password to authenticate with.").
				Default("").Secret(),
		).Description("Allows you to specify basic authentication.").
			Advanced().
			Optional(),
		service.NewIntField(boFieldWorkersPerURL).
			Description("The number of upload workers, each with its own connection, maintained for each URL.").
			Default(4),
		service.NewIntField(boFieldQueueMaxSize).
			Description("The number of sealed batches waiting for delivery at which writes are held.").
			Default(10),
		service.NewIntField(boFieldBulkMaxSize).
			Description("The number of document bytes at which a batch is sealed. The request body of a batch is slightly larger due to the bulk action lines.").
			Default(2097152),
		service.NewDurationField(boFieldTimeout).
			Description("The maximum period to wait for a health probe or bulk request to complete.").
			Default("300s"),
		service.NewIntField(boFieldFailLogMaxSize).
			Description("The maximum number of rejected documents logged individually per batch, the remainder are summarised in a single line.").
			Advanced().
			Default(20),
		service.NewDurationField(boFieldTickInterval).
			Description("The period between supervision passes, which seal idle batches and restart exited workers.").
			Advanced().
			Default("1s"),
		retries.BackOffField(boFieldNetworkBackOff, "The back-off applied by a worker after a network error or unexpected status code.", "1s", "30s"),
		retries.BackOffField(boFieldProtocolBackOff, "The back-off applied by a worker after a response that could not be parsed, which usually indicates a misconfigured URL.", "10s", "5m"),
		service.NewObjectField(boFieldDrain,
			service.NewDurationField(boFieldDrainPollInterval).
				Description("The period between checks of whether the delivery queue has drained.").
				Default("1s"),
			service.NewIntField(boFieldDrainPollAttempts).
				Description("The number of checks after which workers are stopped regardless of undelivered batches.").
				Default(60),
		).
			Description("Controls how long pending batches are given to be delivered when the output is closed.").
			Advanced(),
		service.NewOutputMaxInFlightField().Default(64),
	}
}

// ConfigFromParsed reads the engine config from fields created with
// OutputFields.
func ConfigFromParsed(pConf *service.ParsedConfig) (conf Config, err error) {
	conf = NewConfig()

	var urls []string
	if urls, err = pConf.FieldStringList(boFieldURLs); err != nil {
		return
	}
	conf.Nodes = ParseNodes(urls)

	if conf.WorkersPerNode, err = pConf.FieldInt(boFieldWorkersPerURL); err != nil {
		return
	}
	if conf.QueueMaxSize, err = pConf.FieldInt(boFieldQueueMaxSize); err != nil {
		return
	}
	if conf.BulkMaxSize, err = pConf.FieldInt(boFieldBulkMaxSize); err != nil {
		return
	}
	if conf.Timeout, err = pConf.FieldDuration(boFieldTimeout); err != nil {
		return
	}
	if conf.FailLogMaxSize, err = pConf.FieldInt(boFieldFailLogMaxSize); err != nil {
		return
	}
	if conf.TickInterval, err = pConf.FieldDuration(boFieldTickInterval); err != nil {
		return
	}
	if conf.NetworkBackOff, err = retries.BackOffCtorFromParsed(pConf, boFieldNetworkBackOff); err != nil {
		return
	}
	if conf.ProtocolBackOff, err = retries.BackOffCtorFromParsed(pConf, boFieldProtocolBackOff); err != nil {
		return
	}
	if conf.DrainPollInterval, err = pConf.FieldDuration(boFieldDrain, boFieldDrainPollInterval); err != nil {
		return
	}
	if conf.DrainPollAttempts, err = pConf.FieldInt(boFieldDrain, boFieldDrainPollAttempts); err != nil {
		return
	}

	err = conf.Validate()
	return
}

// BasicAuthFromParsed reads the basic authentication credentials from fields
// created with OutputFields.
func BasicAuthFromParsed(pConf *service.ParsedConfig) (username, password string, enabled bool, err error) {
	if !pConf.Contains(boFieldAuth) {
		return
	}
	authConf := pConf.Namespace(boFieldAuth)
	if enabled, err = authConf.FieldBool(boFieldAuthEnabled); err != nil || !enabled {
		return
	}
	if username, err = authConf.FieldString(boFieldAuthUsername); err != nil {
		return
	}
	password, err = authConf.FieldString(boFieldAuthPassword)
	return
}

//------------------------------------------------------------------------------

// Output is a service.Output that feeds messages into a Connection. It is the
// producer side of the engine: writes are held while the delivery queue is
// above its watermark.
type Output struct {
	log    *service.Logger
	conf   Config
	dialer Dialer

	index *service.InterpolatedString
	id    *service.InterpolatedString

	insert *service.MetricCounter
	depth  *service.MetricGauge
	gate   *Gate

	connMut sync.RWMutex
	conn    *Connection
}

// NewOutput creates a bulk output from fields created with OutputFields,
// delivering through dialer. The label is used as the prefix of the metrics
// emitted by the output.
func NewOutput(pConf *service.ParsedConfig, mgr *service.Resources, label string, dialer Dialer) (*Output, error) {
	conf, err := ConfigFromParsed(pConf)
	if err != nil {
		return nil, err
	}

	o := &Output{
		log:    mgr.Logger(),
		conf:   conf,
		dialer: dialer,
		insert: mgr.Metrics().NewCounter(label+"_insert", "result"),
		depth:  mgr.Metrics().NewGauge(label + "_queue_depth"),
		gate:   NewGate(),
	}
	if o.index, err = pConf.FieldInterpolatedString(boFieldIndex); err != nil {
		return nil, err
	}
	if o.id, err = pConf.FieldInterpolatedString(boFieldID); err != nil {
		return nil, err
	}
	return o, nil
}

// Connect starts the upload workers. The workers establish their own
// sessions in the background, and failing to reach a node is not an error.
func (o *Output) Connect(ctx context.Context) error {
	o.connMut.Lock()
	defer o.connMut.Unlock()
	if o.conn != nil {
		return nil
	}

	conn, err := NewConnection(o.conf, o.dialer, o.log,
		WithBackpressure(o.gate),
		WithMetrics(o.insert, o.depth),
	)
	if err != nil {
		return err
	}
	conn.Run()

	o.conn = conn
	return nil
}

// Write adds a message to the open batch of its index.
func (o *Output) Write(ctx context.Context, msg *service.Message) error {
	o.connMut.RLock()
	conn := o.conn
	o.connMut.RUnlock()
	if conn == nil {
		return service.ErrNotConnected
	}

	index, err := o.index.TryString(msg)
	if err != nil {
		return fmt.Errorf("interpolating index: %w", err)
	}
	if index == "" {
		return fmt.Errorf("index resolved to an empty string")
	}
	id, err := o.id.TryString(msg)
	if err != nil {
		return fmt.Errorf("interpolating id: %w", err)
	}

	msgBytes, err := msg.AsBytes()
	if err != nil {
		return fmt.Errorf("reading raw message data: %w", err)
	}
	doc, err := documentLine(msgBytes)
	if err != nil {
		return err
	}

	if err := o.gate.Wait(ctx); err != nil {
		return err
	}
	conn.Consume(index, Item{ID: id, Data: doc})
	return nil
}

// documentLine returns a copy of a document that is safe to place on a single
// line of a bulk request body, compacting multi-line JSON documents.
func documentLine(b []byte) ([]byte, error) {
	trimmed := bytes.TrimRight(b, "\r\n")
	if !bytes.ContainsAny(trimmed, "\r\n") {
		return bytes.Clone(trimmed), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("document spans multiple lines and is not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// Close flushes open batches and waits for pending batches to be delivered.
func (o *Output) Close(ctx context.Context) error {
	o.connMut.Lock()
	conn := o.conn
	o.conn = nil
	o.connMut.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}
