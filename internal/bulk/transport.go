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
	"fmt"
	"io"
)

// Response is the raw outcome of a request made against a bulk endpoint node.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success returns true for 2xx status codes.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Session is a long lived connection to a single node of the bulk endpoint.
// A session is owned by exactly one upload worker and is never shared.
type Session interface {
	// Probe performs a lightweight health check against the node.
	Probe(ctx context.Context) (*Response, error)

	// Bulk posts the body to the bulk API of key and returns the
	// acknowledgement. An error is returned only when the request could not
	// be completed, non-2xx responses are returned as a Response.
	Bulk(ctx context.Context, key string, body io.Reader) (*Response, error)

	// Close releases any resources held by the session.
	Close() error
}

// Dialer opens sessions against nodes of a bulk endpoint.
type Dialer interface {
	Dial(ctx context.Context, node string) (Session, error)
}

// DialerFunc is an adapter allowing ordinary functions to be used as a
// Dialer.
type DialerFunc func(ctx context.Context, node string) (Session, error)

// Dial calls f(ctx, node).
func (f DialerFunc) Dial(ctx context.Context, node string) (Session, error) {
	return f(ctx, node)
}

// ErrMalformedResponse indicates that a node replied with a body that could
// not be parsed.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned when a node replies with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, truncate(e.Body, 512))
}

// DeliveryError describes why an upload worker gave up on a batch and
// terminated.
type DeliveryError struct {
	Key      string
	Items    int
	Requeued bool
	Err      error
}

func (e *DeliveryError) Error() string {
	action := "requeued"
	if !e.Requeued {
		action = "discarded"
	}
	return fmt.Sprintf("delivery of %d items to %v failed, batch %s: %v", e.Items, e.Key, action, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
